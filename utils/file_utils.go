package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"ip-setkeeper/model"
)

// ReadMemberListFromFile reads one address or cidr per line. Blank lines
// and lines starting with '#' are skipped, members are normalized.
func ReadMemberListFromFile(f string) ([]model.Member, error) {
	file, err := os.Open(f)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	rs := make([]model.Member, 0, 128)
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		m, err := model.ParseMember(line)
		if err != nil {
			return nil, fmt.Errorf("scan member failed, line:%d, err:%w", lineNo, err)
		}
		rs = append(rs, m.Normalize())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

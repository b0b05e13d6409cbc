package persist

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ip-setkeeper/errs"
	"ip-setkeeper/model"
	"ip-setkeeper/registry"
)

// Encode writes sets in the snapshot format:
//
//	<set-name> <reference-count> <member-count>
//	<a.b.c.d>/<prefix>
//	...
func Encode(w io.Writer, sets []registry.SetInfo) error {
	bw := bufio.NewWriter(w)
	for _, s := range sets {
		if _, err := fmt.Fprintf(bw, "%s %d %d\n", s.Name, s.RefCount, len(s.Members)); err != nil {
			return err
		}
		for _, m := range s.Members {
			if _, err := bw.WriteString(m.String() + "\n"); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func corrupt(line int, format string, args ...interface{}) error {
	return errs.Newf(errs.CodeCorruptPersistence, "line %d: %s", line, fmt.Sprintf(format, args...))
}

// Decode parses a snapshot produced by Encode. Any deviation from the
// format is reported as CodeCorruptPersistence.
func Decode(raw []byte) ([]registry.SetInfo, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[len(raw)-1] == '\n' {
		raw = raw[:len(raw)-1]
	}
	lines := strings.Split(string(raw), "\n")
	if bytes.IndexByte(raw, '\r') >= 0 {
		return nil, corrupt(0, "unexpected carriage return")
	}
	rs := make([]registry.SetInfo, 0, 16)
	names := make(map[string]struct{})
	for i := 0; i < len(lines); {
		lineNo := i + 1
		fields := strings.Split(lines[i], " ")
		if len(fields) != 3 {
			return nil, corrupt(lineNo, "want 3 fields, get:%d", len(fields))
		}
		name := fields[0]
		if err := registry.ValidateSetName(name); err != nil {
			return nil, corrupt(lineNo, "bad set name:%v", err)
		}
		if _, ok := names[name]; ok {
			return nil, corrupt(lineNo, "duplicate set:%s", name)
		}
		names[name] = struct{}{}
		refCount, ok := parseCount(fields[1])
		if !ok {
			return nil, corrupt(lineNo, "bad reference count:%q", fields[1])
		}
		count, ok := parseCount(fields[2])
		if !ok {
			return nil, corrupt(lineNo, "bad member count:%q", fields[2])
		}
		i++
		if count > len(lines)-i {
			return nil, corrupt(lineNo, "set:%s want %d members, only %d lines left", name, count, len(lines)-i)
		}
		info := registry.SetInfo{Name: name, RefCount: refCount, Members: make([]model.Member, 0, count)}
		seen := make(map[model.Member]struct{}, count)
		for j := 0; j < count; j, i = j+1, i+1 {
			m, err := parseMemberLine(lines[i])
			if err != nil {
				return nil, corrupt(i+1, "%v", err)
			}
			if _, ok := seen[m]; ok {
				return nil, corrupt(i+1, "duplicate member:%s", m.String())
			}
			seen[m] = struct{}{}
			info.Members = append(info.Members, m)
		}
		rs = append(rs, info)
	}
	return rs, nil
}

// parseCount accepts only the canonical decimal form written by Encode.
func parseCount(field string) (int, bool) {
	n, err := strconv.Atoi(field)
	if err != nil || n < 0 || strconv.Itoa(n) != field {
		return 0, false
	}
	return n, true
}

func parseMemberLine(line string) (model.Member, error) {
	if !strings.Contains(line, "/") || strings.TrimSpace(line) != line {
		return model.Member{}, fmt.Errorf("bad member line:%q", line)
	}
	m, err := model.ParseMember(line)
	if err != nil {
		return model.Member{}, err
	}
	if m.Normalize() != m {
		return model.Member{}, fmt.Errorf("member has host bits set:%q", line)
	}
	return m, nil
}

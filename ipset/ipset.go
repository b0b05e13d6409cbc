package ipset

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"ip-setkeeper/model"
)

var (
	defaultVersionRegexp = regexp.MustCompile(`ipset\s+(v.*),\s+protocol\s+version:\s+(.*)`)
)

type errPack struct {
	args   []string
	err    error
	stdout []byte
	stderr []byte
}

func (p *errPack) error() error {
	if p.err == nil {
		return nil
	}
	return fmt.Errorf("run cmd:%s failed, err:%w, stderr:%s",
		strings.Join(p.args, " "), p.err, strings.TrimSpace(string(p.stderr)))
}

func (p *errPack) notExist() bool {
	for _, hint := range notExistHints {
		if bytes.Contains(p.stderr, []byte(hint)) {
			return true
		}
	}
	return false
}

// IPSet drives the ipset executable, optionally behind a command prefix
// such as "sudo" or a rootwrap helper.
type IPSet struct {
	path string
	args []string
}

// New resolves the command prefix. When the prefix does not end with an
// ipset binary, "ipset" is appended to it.
func New(prefix string) (*IPSet, error) {
	fields := strings.Fields(prefix)
	if len(fields) == 0 {
		fields = []string{defaultBinary}
	}
	if filepath.Base(fields[len(fields)-1]) != defaultBinary {
		fields = append(fields, defaultBinary)
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("lookup command:%s failed, err:%w", fields[0], err)
	}
	return &IPSet{path: path, args: fields[1:]}, nil
}

func MustNew(prefix string) *IPSet {
	set, err := New(prefix)
	if err != nil {
		panic(err)
	}
	return set
}

func (s *IPSet) runCmd(ctx context.Context, c *config, args ...string) *errPack {
	newArgs := make([]string, 0, len(s.args)+len(args)+len(c.params))
	newArgs = append(newArgs, s.args...)
	newArgs = append(newArgs, args...)
	newArgs = append(newArgs, c.params...)
	cmd := exec.CommandContext(ctx, s.path, newArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return &errPack{
		args:   append([]string{s.path}, newArgs...),
		err:    err,
		stdout: stdout.Bytes(),
		stderr: stderr.Bytes(),
	}
}

func (s *IPSet) runCmdNoData(ctx context.Context, c *config, args ...string) error {
	return s.runCmd(ctx, c, args...).error()
}

func (s *IPSet) Create(ctx context.Context, set string, typ SetType, opts ...CmdOption) error {
	return s.runCmdNoData(ctx, applyOpts(opts...), "create", set, string(typ), "family", familyInet)
}

func (s *IPSet) Destroy(ctx context.Context, set string, opts ...CmdOption) error {
	return s.runCmdNoData(ctx, applyOpts(opts...), "destroy", set)
}

func (s *IPSet) Add(ctx context.Context, set string, data string, opts ...CmdOption) error {
	return s.runCmdNoData(ctx, applyOpts(opts...), "add", set, data)
}

func (s *IPSet) Del(ctx context.Context, set string, data string, opts ...CmdOption) error {
	return s.runCmdNoData(ctx, applyOpts(opts...), "del", set, data)
}

func (s *IPSet) Version(ctx context.Context, opts ...CmdOption) (string, string, error) {
	pack := s.runCmd(ctx, applyOpts(opts...), "version")
	if err := pack.error(); err != nil {
		return "", "", err
	}
	out := defaultVersionRegexp.FindStringSubmatch(string(pack.stdout))
	if len(out) != 3 {
		return "", "", fmt.Errorf("invalid version format:%s", string(pack.stdout))
	}
	return out[1], out[2], nil
}

// CreateSet creates a hash:net set, an existing set is not an error.
func (s *IPSet) CreateSet(ctx context.Context, name string) error {
	return s.Create(ctx, name, SetTypeHashNet, WithExist())
}

func (s *IPSet) DestroySet(ctx context.Context, name string) error {
	return s.Destroy(ctx, name)
}

func (s *IPSet) AddMember(ctx context.Context, name string, m model.Member) error {
	return s.Add(ctx, name, m.String())
}

func (s *IPSet) DelMember(ctx context.Context, name string, m model.Member) error {
	return s.Del(ctx, name, m.String())
}

// ListSets returns the names of every live set.
func (s *IPSet) ListSets(ctx context.Context) ([]string, error) {
	pack := s.runCmd(ctx, applyOpts(WithName()), "list")
	if err := pack.error(); err != nil {
		return nil, err
	}
	return parseNameList(pack.stdout), nil
}

// ListMembers returns the live members of a set, exists is false when the
// set is not present in the kernel.
func (s *IPSet) ListMembers(ctx context.Context, name string) ([]model.Member, bool, error) {
	pack := s.runCmd(ctx, applyOpts(WithOutput(OutputTypeXml)), "list", name)
	if pack.err != nil {
		if pack.notExist() {
			return nil, false, nil
		}
		return nil, false, pack.error()
	}
	members, err := parseListXML(name, pack.stdout)
	if err != nil {
		return nil, false, err
	}
	return members, true, nil
}

func parseNameList(raw []byte) []string {
	lines := strings.Split(string(raw), "\n")
	rs := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		rs = append(rs, line)
	}
	return rs
}

func parseListXML(name string, raw []byte) ([]model.Member, error) {
	var sets listResult
	if err := xml.Unmarshal(raw, &sets); err != nil {
		return nil, fmt.Errorf("decode list output failed, set:%s, err:%w", name, err)
	}
	for _, item := range sets.Sets {
		if item.Name != name {
			continue
		}
		rs := make([]model.Member, 0, len(item.Members))
		for _, elem := range item.Members {
			m, err := model.ParseMember(elem.Elem)
			if err != nil {
				return nil, fmt.Errorf("parse member of set:%s failed, err:%w", name, err)
			}
			rs = append(rs, m.Normalize())
		}
		return rs, nil
	}
	return nil, fmt.Errorf("invalid ipset output struct, no data for set:%s", name)
}

package model

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

const (
	MaxPrefix = 32
)

// Member is one ipv4 entry of a set, Addr is kept in host order.
type Member struct {
	Addr   uint32
	Prefix int
}

func NewMember(addr uint32, prefix int) Member {
	return Member{Addr: addr, Prefix: prefix}
}

func (m Member) Valid() bool {
	return m.Prefix >= 0 && m.Prefix <= MaxPrefix
}

// Normalize clears the host bits which are not covered by prefix.
func (m Member) Normalize() Member {
	return Member{Addr: m.Addr & Mask(m.Prefix), Prefix: m.Prefix}
}

func (m Member) String() string {
	return FormatAddr(m.Addr) + "/" + strconv.Itoa(m.Prefix)
}

// Mask returns the netmask of prefix, prefix out of range is clamped.
func Mask(prefix int) uint32 {
	if prefix <= 0 {
		return 0
	}
	if prefix >= MaxPrefix {
		return 0xffffffff
	}
	return ^uint32(0) << (MaxPrefix - prefix)
}

func FormatAddr(addr uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

func ParseAddr(s string) (uint32, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return 0, err
	}
	if !ip.Is4() {
		return 0, fmt.Errorf("not an ipv4 address:%s", s)
	}
	b := ip.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// ParseMember accepts "a.b.c.d" or "a.b.c.d/p", the result is not normalized.
func ParseMember(s string) (Member, error) {
	s = strings.TrimSpace(s)
	addr, pfx, hasPrefix := strings.Cut(s, "/")
	ip, err := ParseAddr(addr)
	if err != nil {
		return Member{}, fmt.Errorf("parse addr failed, data:%s, err:%w", s, err)
	}
	if !hasPrefix {
		return Member{Addr: ip, Prefix: MaxPrefix}, nil
	}
	prefix, err := strconv.Atoi(pfx)
	if err != nil {
		return Member{}, fmt.Errorf("parse prefix failed, data:%s, err:%w", s, err)
	}
	m := Member{Addr: ip, Prefix: prefix}
	if !m.Valid() {
		return Member{}, fmt.Errorf("prefix out of range, data:%s", s)
	}
	return m, nil
}

package route

import (
	"fmt"
	"net"

	"ip-setkeeper/model"

	"github.com/vishvananda/netlink"
)

func DetectExitInterface() (string, error) {
	lst, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return "", err
	}
	for _, item := range lst {
		if item.Dst != nil && item.Dst.String() != "0.0.0.0/0" {
			continue
		}
		iface, err := netlink.LinkByIndex(item.LinkIndex)
		if err != nil {
			return "", err
		}
		return iface.Attrs().Name, nil
	}
	return "", fmt.Errorf("unable to found default network interface")
}

// LocalNetworks returns the ipv4 networks attached to the given interfaces,
// the exit interface is used when none is given.
func LocalNetworks(ifaceNames ...string) ([]model.Member, error) {
	if len(ifaceNames) == 0 {
		name, err := DetectExitInterface()
		if err != nil {
			return nil, err
		}
		ifaceNames = []string{name}
	}
	rs := make([]model.Member, 0, 4)
	for _, name := range ifaceNames {
		link, err := netlink.LinkByName(name)
		if err != nil {
			return nil, fmt.Errorf("find link:%s failed, err:%w", name, err)
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return nil, fmt.Errorf("list addr of link:%s failed, err:%w", name, err)
		}
		rs = append(rs, networksOf(addrs)...)
	}
	return dedupMembers(rs), nil
}

func networksOf(addrs []netlink.Addr) []model.Member {
	rs := make([]model.Member, 0, len(addrs))
	for _, addr := range addrs {
		if addr.IPNet == nil {
			continue
		}
		ip4 := addr.IP.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		ones, bits := addr.Mask.Size()
		if bits != net.IPv4len*8 {
			continue
		}
		a := uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
		rs = append(rs, model.NewMember(a, ones).Normalize())
	}
	return rs
}

func dedupMembers(items []model.Member) []model.Member {
	seen := make(map[model.Member]struct{}, len(items))
	rs := make([]model.Member, 0, len(items))
	for _, m := range items {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		rs = append(rs, m)
	}
	return rs
}

package route

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vishvananda/netlink"
)

func TestNetworksOf(t *testing.T) {
	mk := func(cidr string) netlink.Addr {
		ip, ipnet, err := net.ParseCIDR(cidr)
		assert.NoError(t, err)
		return netlink.Addr{IPNet: &net.IPNet{IP: ip, Mask: ipnet.Mask}}
	}
	addrs := []netlink.Addr{
		mk("192.168.1.23/24"),
		mk("127.0.0.1/8"),
		mk("10.8.0.1/32"),
		mk("fe80::1/64"),
		{},
	}
	rs := dedupMembers(append(networksOf(addrs), networksOf(addrs[:1])...))
	got := make([]string, 0, len(rs))
	for _, m := range rs {
		got = append(got, m.String())
	}
	assert.Equal(t, []string{"192.168.1.0/24", "10.8.0.1/32"}, got)
}

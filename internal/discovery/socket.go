// SPDX-License-Identifier: AGPL-3.0-or-later

package discovery

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Transport constants (spec.md §4.5).
const (
	Port    = 5454
	GroupV4 = "224.0.0.251"
	GroupV6 = "ff02::fb"
)

// reusableListenConfig enables SO_REUSEADDR/SO_REUSEPORT, so multiple OHX
// daemons on the same host can each bind the discovery port.
func reusableListenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			ctrlErr := c.Control(func(fd uintptr) {
				if sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); sockErr != nil {
					return
				}
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEPORT, 1)
			})
			if ctrlErr != nil {
				return ctrlErr
			}
			return sockErr
		},
	}
}

func resolveInterface(name string) (*net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("discovery: interface %s: %w", name, err)
	}
	return ifi, nil
}

// newV4Socket binds the IPv4 discovery socket and joins GroupV4.
func newV4Socket(ctx context.Context, iface string) (*ipv4.PacketConn, error) {
	ifi, err := resolveInterface(iface)
	if err != nil {
		return nil, err
	}

	pc, err := reusableListenConfig().ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", Port))
	if err != nil {
		return nil, fmt.Errorf("discovery: listen udp4: %w", err)
	}

	p := ipv4.NewPacketConn(pc)
	group := &net.UDPAddr{IP: net.ParseIP(GroupV4)}
	if err := p.JoinGroup(ifi, group); err != nil {
		pc.Close()
		return nil, fmt.Errorf("discovery: join v4 multicast group: %w", err)
	}
	if err := p.SetMulticastLoopback(true); err != nil {
		pc.Close()
		return nil, fmt.Errorf("discovery: set v4 multicast loopback: %w", err)
	}
	return p, nil
}

// newV6Socket binds the IPv6 discovery socket and joins GroupV6. "udp6"
// already restricts the socket to IPv6 (IPV6_V6ONLY) in Go's net package,
// matching spec.md §4.5's "IPv6-only on the v6 socket".
func newV6Socket(ctx context.Context, iface string) (*ipv6.PacketConn, error) {
	ifi, err := resolveInterface(iface)
	if err != nil {
		return nil, err
	}

	pc, err := reusableListenConfig().ListenPacket(ctx, "udp6", fmt.Sprintf(":%d", Port))
	if err != nil {
		return nil, fmt.Errorf("discovery: listen udp6: %w", err)
	}

	p := ipv6.NewPacketConn(pc)
	group := &net.UDPAddr{IP: net.ParseIP(GroupV6)}
	if err := p.JoinGroup(ifi, group); err != nil {
		pc.Close()
		return nil, fmt.Errorf("discovery: join v6 multicast group: %w", err)
	}
	if err := p.SetMulticastLoopback(true); err != nil {
		pc.Close()
		return nil, fmt.Errorf("discovery: set v6 multicast loopback: %w", err)
	}
	return p, nil
}

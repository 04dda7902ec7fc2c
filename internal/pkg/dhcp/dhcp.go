// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package dhcp implements a short-lived DHCPv4 session used to reach the
// metadata service before the machine has any persistent network identity.
package dhcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/nclient4"
	"github.com/jsimonetti/rtnetlink"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ErrNoLease indicates that no DHCP lease could be acquired on the link.
var ErrNoLease = errors.New("no DHCP lease obtained")

const connectivityCheckTimeout = 2 * time.Second

// Session is an ephemeral DHCPv4 lease bound to a single link.
//
// Everything a session sets up (link state, address, default route, lease)
// is undone by Close; callers must always Close, on failure paths included.
type Session struct {
	logger *zap.Logger

	link   *net.Interface
	conn   *rtnetlink.Conn
	client *nclient4.Client
	lease  *nclient4.Lease

	addr    *net.IPNet
	gateway net.IP

	wasUp      bool
	addrAdded  bool
	routeAdded bool
	noop       bool
}

// NewSession brings the link up, runs the DHCPv4 exchange and installs the
// offered address (plus a default route when the lease carries a router).
//
// checkURL is a connectivity hint: when it is already reachable the session
// leaves the system untouched and Close is a no-op.
func NewSession(ctx context.Context, linkName, checkURL string, logger *zap.Logger) (*Session, error) {
	link, err := net.InterfaceByName(linkName)
	if err != nil {
		return nil, fmt.Errorf("error looking up link %q: %w", linkName, err)
	}

	s := &Session{
		logger: logger,
		link:   link,
	}

	if checkURL != "" && reachable(ctx, checkURL) {
		logger.Debug("connectivity check passed, skipping DHCP", zap.String("link", linkName))

		s.noop = true

		return s, nil
	}

	s.conn, err = rtnetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("error dialing rtnetlink socket: %w", err)
	}

	if err = s.setup(ctx); err != nil {
		//nolint:errcheck
		s.Close()

		return nil, err
	}

	return s, nil
}

// Lease returns the DHCP ACK, nil for a no-op session.
func (s *Session) Lease() *dhcpv4.DHCPv4 {
	if s.lease == nil {
		return nil
	}

	return s.lease.ACK
}

func (s *Session) setup(ctx context.Context) error {
	msg, err := s.conn.Link.Get(uint32(s.link.Index))
	if err != nil {
		return fmt.Errorf("error getting link %q: %w", s.link.Name, err)
	}

	if msg.Flags&unix.IFF_UP != unix.IFF_UP {
		err = s.conn.Link.Set(&rtnetlink.LinkMessage{
			Family: msg.Family,
			Type:   msg.Type,
			Index:  uint32(s.link.Index),
			Flags:  unix.IFF_UP,
			Change: unix.IFF_UP,
		})
		if err != nil {
			return fmt.Errorf("error bringing up link %q: %w", s.link.Name, err)
		}
	} else {
		s.wasUp = true
	}

	s.client, err = nclient4.New(s.link.Name)
	if err != nil {
		return fmt.Errorf("error creating DHCP client on %q: %w", s.link.Name, err)
	}

	mods := []dhcpv4.Modifier{
		dhcpv4.WithRequestedOptions(
			dhcpv4.OptionSubnetMask,
			dhcpv4.OptionRouter,
			dhcpv4.OptionClasslessStaticRoute,
			dhcpv4.OptionDomainNameServer,
		),
	}

	s.lease, err = s.client.Request(ctx, mods...)
	if err != nil {
		return fmt.Errorf("%w for %q: %w", ErrNoLease, s.link.Name, err)
	}

	s.logger.Info("DHCP ACK",
		zap.String("link", s.link.Name),
		zap.Stringer("address", s.lease.ACK.YourIPAddr),
	)

	if err = s.assignAddress(); err != nil {
		return err
	}

	return s.addDefaultRoute()
}

func (s *Session) assignAddress() error {
	ip := s.lease.ACK.YourIPAddr.To4()
	if ip == nil {
		return fmt.Errorf("%w for %q: ACK carries no IPv4 address", ErrNoLease, s.link.Name)
	}

	mask := s.lease.ACK.SubnetMask()
	if mask == nil {
		mask = ip.DefaultMask()
	}

	s.addr = &net.IPNet{IP: ip, Mask: mask}

	if err := s.conn.Address.New(s.addressMessage()); err != nil {
		return fmt.Errorf("error assigning %s to %q: %w", s.addr, s.link.Name, err)
	}

	s.addrAdded = true

	return nil
}

func (s *Session) addDefaultRoute() error {
	routers := s.lease.ACK.Router()
	if len(routers) == 0 {
		return nil
	}

	s.gateway = routers[0].To4()
	if s.gateway == nil {
		return nil
	}

	if err := s.conn.Route.Add(s.routeMessage()); err != nil {
		// EEXIST means some other lease already provides a default route
		if errors.Is(err, unix.EEXIST) {
			return nil
		}

		return fmt.Errorf("error adding default route via %s: %w", s.gateway, err)
	}

	s.routeAdded = true

	return nil
}

func (s *Session) addressMessage() *rtnetlink.AddressMessage {
	ip := s.addr.IP.To4()

	brd := make(net.IP, len(ip))
	binary.BigEndian.PutUint32(brd, binary.BigEndian.Uint32(ip)|^binary.BigEndian.Uint32(s.addr.Mask))

	ones, _ := s.addr.Mask.Size()

	return &rtnetlink.AddressMessage{
		Family:       unix.AF_INET,
		PrefixLength: uint8(ones),
		Scope:        unix.RT_SCOPE_UNIVERSE,
		Index:        uint32(s.link.Index),
		Attributes: &rtnetlink.AddressAttributes{
			Address:   ip,
			Local:     ip,
			Broadcast: brd,
		},
	}
}

func (s *Session) routeMessage() *rtnetlink.RouteMessage {
	return &rtnetlink.RouteMessage{
		Family:   unix.AF_INET,
		Table:    unix.RT_TABLE_MAIN,
		Protocol: unix.RTPROT_DHCP,
		Scope:    unix.RT_SCOPE_UNIVERSE,
		Type:     unix.RTN_UNICAST,
		Attributes: rtnetlink.RouteAttributes{
			Gateway:  s.gateway,
			OutIface: uint32(s.link.Index),
		},
	}
}

// Close releases the lease and undoes every change the session made.
//
// Teardown is best-effort: failures are logged and the remaining steps still
// run, so a partially failed setup never leaks more state than it must.
func (s *Session) Close() error {
	if s.noop {
		return nil
	}

	var errs error

	if s.routeAdded {
		if err := s.conn.Route.Delete(s.routeMessage()); err != nil {
			s.logger.Warn("failed to remove default route", zap.Error(err))

			errs = errors.Join(errs, err)
		}
	}

	if s.addrAdded {
		if err := s.conn.Address.Delete(s.addressMessage()); err != nil {
			s.logger.Warn("failed to remove address", zap.Error(err))

			errs = errors.Join(errs, err)
		}
	}

	if s.client != nil {
		if s.lease != nil {
			if err := s.client.Release(s.lease); err != nil {
				s.logger.Warn("failed to release lease", zap.Error(err))

				errs = errors.Join(errs, err)
			}
		}

		if err := s.client.Close(); err != nil {
			errs = errors.Join(errs, err)
		}
	}

	if s.conn != nil {
		if !s.wasUp {
			msg, err := s.conn.Link.Get(uint32(s.link.Index))
			if err == nil {
				err = s.conn.Link.Set(&rtnetlink.LinkMessage{
					Family: msg.Family,
					Type:   msg.Type,
					Index:  uint32(s.link.Index),
					Flags:  0,
					Change: unix.IFF_UP,
				})
			}

			if err != nil {
				s.logger.Warn("failed to bring link back down", zap.String("link", s.link.Name), zap.Error(err))

				errs = errors.Join(errs, err)
			}
		}

		if err := s.conn.Close(); err != nil {
			errs = errors.Join(errs, err)
		}
	}

	return errs
}

func reachable(ctx context.Context, rawURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, connectivityCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}

	resp, err := cleanhttp.DefaultClient().Do(req)
	if err != nil {
		return false
	}

	//nolint:errcheck
	defer resp.Body.Close()

	return resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusBadRequest
}

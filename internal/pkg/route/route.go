// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package route ensures a host route to the metadata service exists on
// machines confined to a carrier-grade NAT network.
package route

import (
	"fmt"
	"net"
	"os/exec"
	"slices"

	"github.com/jsimonetti/rtnetlink"
	"github.com/siderolabs/gen/xslices"
	"github.com/siderolabs/go-cmd/pkg/cmd"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	// MetadataHost is the link-local address of the metadata service.
	MetadataHost = "169.254.169.254"
	// MetadataHostRoute is the host route added for the metadata service.
	MetadataHostRoute = "169.254.169.254/32"

	cgnatNetwork = "100.64.0.0"
	cgnatCIDR    = "100.64.0.0/10"

	// next-hop used by the legacy route tool fallback
	legacyGateway = "100.64.0.1"
)

// Entry is a single IPv4 routing table entry as seen by the installer.
type Entry struct {
	Destination string `json:"destination"`
	Gateway     string `json:"gateway,omitempty"`
}

// Installer adds the metadata host route when the routing table shows a
// CGNAT gateway but no way to reach the metadata address.
type Installer struct {
	logger *zap.Logger

	routeInfo func() (map[string][]Entry, error)
	lookPath  func(string) (string, error)
	run       func(name string, args ...string) (string, error)
}

// NewInstaller builds an installer over the live routing table and the
// system's routing tools.
func NewInstaller(logger *zap.Logger) *Installer {
	return &Installer{
		logger:    logger,
		routeInfo: routeInfo,
		lookPath:  exec.LookPath,
		run:       cmd.Run,
	}
}

// EnsureMetadataRoute adds a host route for the metadata address via the
// given link if one is needed.
//
// The route is needed only when a CGNAT route is present (the host has no
// regular default path to link-local space) and the metadata route is not
// already installed. Inability to read the routing table is a silent no-op;
// only route tool execution failures are reported.
func (i *Installer) EnsureMetadataRoute(linkName string) error {
	routes, err := i.routeInfo()
	if err != nil {
		i.logger.Debug("unable to read routing table", zap.Error(err))

		return nil
	}

	v4, ok := routes["ipv4"]
	if !ok {
		return nil
	}

	dests := xslices.Map(v4, func(e Entry) string { return e.Destination })

	gwPresent := slices.Contains(dests, cgnatNetwork) || slices.Contains(dests, cgnatCIDR)
	destPresent := slices.Contains(dests, MetadataHost)

	if !gwPresent || destPresent {
		return nil
	}

	switch {
	case i.haveTool("ip"):
		i.logger.Info("adding metadata host route", zap.String("link", linkName))

		if _, err = i.run("ip", "route", "add", MetadataHostRoute, "dev", linkName); err != nil {
			return fmt.Errorf("error adding metadata route on %q: %w", linkName, err)
		}
	case i.haveTool("route"):
		i.logger.Info("adding metadata host route (legacy tool)", zap.String("link", linkName))

		if _, err = i.run("route", "add", "-net", MetadataHostRoute, legacyGateway); err != nil {
			return fmt.Errorf("error adding metadata route on %q: %w", linkName, err)
		}
	}

	return nil
}

func (i *Installer) haveTool(name string) bool {
	_, err := i.lookPath(name)

	return err == nil
}

// routeInfo reads the main IPv4 routing table via rtnetlink.
//
// Destinations come back in both bare and CIDR form so that textual
// membership checks work for host and network routes alike.
func routeInfo() (map[string][]Entry, error) {
	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, err
	}

	//nolint:errcheck
	defer conn.Close()

	rl, err := conn.Route.List()
	if err != nil {
		return nil, err
	}

	var v4 []Entry

	for _, route := range rl {
		if route.Family != unix.AF_INET {
			continue
		}

		dst := route.Attributes.Dst
		if dst == nil {
			dst = net.IPv4zero
		}

		var gw string

		if route.Attributes.Gateway != nil {
			gw = route.Attributes.Gateway.String()
		}

		v4 = append(v4, Entry{
			Destination: dst.String(),
			Gateway:     gw,
		})

		v4 = append(v4, Entry{
			Destination: fmt.Sprintf("%s/%d", dst, route.DstLength),
			Gateway:     gw,
		})
	}

	return map[string][]Entry{"ipv4": v4}, nil
}

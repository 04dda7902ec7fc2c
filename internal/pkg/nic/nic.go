// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package nic enumerates network interfaces and resolves hardware addresses
// to interface names.
package nic

import (
	"net"
	"strings"
	"sync"
)

// List returns the network interfaces visible to the running kernel.
func List() ([]net.Interface, error) {
	return net.Interfaces()
}

// IsCandidate reports whether an interface may carry the metadata route.
//
// The loopback interface and dummy interfaces never do.
func IsCandidate(name string) bool {
	if name == "lo" {
		return false
	}

	return !strings.Contains(name, "dummy")
}

// Resolver maps hardware (MAC) addresses to interface names.
//
// The mapping is built once per process on first use; interfaces attached
// later are not observed until restart.
type Resolver struct {
	interfaces func() ([]net.Interface, error)

	once  sync.Once
	table map[string]string
	err   error
}

// NewResolver builds a resolver over the live system's interfaces.
func NewResolver() *Resolver {
	return &Resolver{
		interfaces: List,
	}
}

// Resolve looks up the interface name for a MAC address.
//
// The address is matched case-insensitively in the canonical colon-separated
// form. Resolve returns false if the address is not present on the system.
func (r *Resolver) Resolve(mac string) (string, bool) {
	r.once.Do(r.build)

	if r.err != nil {
		return "", false
	}

	name, ok := r.table[strings.ToLower(mac)]

	return name, ok
}

func (r *Resolver) build() {
	ifaces, err := r.interfaces()
	if err != nil {
		r.err = err

		return
	}

	r.table = make(map[string]string, len(ifaces))

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		if len(iface.HardwareAddr) == 0 {
			continue
		}

		mac := strings.ToLower(iface.HardwareAddr.String())

		// first interface wins for duplicated MACs (bonds, vlans)
		if _, ok := r.table[mac]; !ok {
			r.table[mac] = iface.Name
		}
	}
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package nic

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInterfaces() ([]net.Interface, error) {
	mac := func(s string) net.HardwareAddr {
		addr, err := net.ParseMAC(s)
		if err != nil {
			panic(err)
		}

		return addr
	}

	return []net.Interface{
		{
			Index: 1,
			Name:  "lo",
			Flags: net.FlagUp | net.FlagLoopback,
		},
		{
			Index:        2,
			Name:         "eth0",
			HardwareAddr: mac("56:00:03:89:53:e0"),
		},
		{
			Index:        3,
			Name:         "eth1",
			HardwareAddr: mac("5a:00:03:89:53:e0"),
		},
	}, nil
}

func TestIsCandidate(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCandidate("eth0"))
	assert.True(t, IsCandidate("enp3s0"))
	assert.False(t, IsCandidate("lo"))
	assert.False(t, IsCandidate("dummy0"))
	assert.False(t, IsCandidate("xdummy"))

	// only an exact match filters loopback
	assert.True(t, IsCandidate("lo0"))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	calls := 0

	r := &Resolver{
		interfaces: func() ([]net.Interface, error) {
			calls++

			return testInterfaces()
		},
	}

	name, ok := r.Resolve("56:00:03:89:53:e0")
	require.True(t, ok)
	assert.Equal(t, "eth0", name)

	// case-insensitive
	name, ok = r.Resolve("5A:00:03:89:53:E0")
	require.True(t, ok)
	assert.Equal(t, "eth1", name)

	// loopback never enters the table
	_, ok = r.Resolve("00:00:00:00:00:00")
	assert.False(t, ok)

	_, ok = r.Resolve("aa:bb:cc:dd:ee:ff")
	assert.False(t, ok)

	// table is built exactly once
	assert.Equal(t, 1, calls)
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package vultr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withIdentity(t *testing.T, manufacturer, cmdline string) {
	t.Helper()

	prevSysInfo, prevCmdline := readSysInfo, readCmdline

	readSysInfo = func() SysInfo {
		return SysInfo{Manufacturer: manufacturer, SubID: "50190000"}
	}
	readCmdline = func() string { return cmdline }

	t.Cleanup(func() {
		readSysInfo, readCmdline = prevSysInfo, prevCmdline
	})
}

func TestIsVultr(t *testing.T) {
	for _, test := range []struct {
		name         string
		manufacturer string
		cmdline      string

		expected bool
	}{
		{
			name:         "manufacturer match",
			manufacturer: "Vultr",
			cmdline:      "BOOT_IMAGE=/boot/vmlinuz root=/dev/vda1 ro",
			expected:     true,
		},
		{
			name:         "baremetal kernel parameter",
			manufacturer: "Supermicro",
			cmdline:      "BOOT_IMAGE=/boot/vmlinuz root=/dev/sda1 vultr ro",
			expected:     true,
		},
		{
			name:         "neither",
			manufacturer: "QEMU",
			cmdline:      "BOOT_IMAGE=/boot/vmlinuz root=/dev/vda1 ro",
			expected:     false,
		},
		{
			name:         "token must stand alone",
			manufacturer: "QEMU",
			cmdline:      "BOOT_IMAGE=/boot/vmlinuz console=vultr0 novultr",
			expected:     false,
		},
		{
			name:         "manufacturer match is exact",
			manufacturer: "Vultr Inc.",
			cmdline:      "",
			expected:     false,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			withIdentity(t, test.manufacturer, test.cmdline)

			assert.Equal(t, test.expected, IsVultr())
		})
	}
}

func TestIsBaremetal(t *testing.T) {
	withIdentity(t, "Vultr", "")
	assert.False(t, IsBaremetal())

	withIdentity(t, "Supermicro", "vultr")
	assert.True(t, IsBaremetal())
}

func TestGetSysInfo(t *testing.T) {
	withIdentity(t, "Vultr", "")

	info := GetSysInfo()
	assert.Equal(t, "Vultr", info.Manufacturer)
	assert.Equal(t, "50190000", info.SubID)
}

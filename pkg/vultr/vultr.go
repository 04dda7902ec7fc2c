// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package vultr detects whether the machine runs on the Vultr platform and
// classifies it as virtual or bare-metal.
package vultr

import (
	"slices"
	"strings"

	"github.com/siderolabs/go-procfs/procfs"

	"github.com/marthydavid/cloud-init/internal/pkg/smbios"
)

// Name is the manufacturer string Vultr guests report via SMBIOS.
const Name = "Vultr"

// kernelParam marks Vultr bare-metal machines, which report the hardware
// vendor as the manufacturer instead of Vultr.
const kernelParam = "vultr"

// SysInfo is the firmware identity of the machine.
type SysInfo struct {
	// Manufacturer is the SMBIOS system-manufacturer string.
	Manufacturer string
	// SubID is the SMBIOS system-serial-number, which Vultr sets to the
	// subscription ID.
	SubID string
}

// readSysInfo and readCmdline are swapped out in tests.
var (
	readSysInfo = func() SysInfo {
		s, err := smbios.GetSMBIOSInfo()
		if err != nil {
			return SysInfo{}
		}

		return SysInfo{
			Manufacturer: s.SystemInformation.Manufacturer,
			SubID:        s.SystemInformation.SerialNumber,
		}
	}

	readCmdline = func() string {
		cmdline := procfs.ProcCmdline()
		if cmdline == nil {
			return ""
		}

		return cmdline.String()
	}
)

// GetSysInfo returns the machine's firmware identity.
func GetSysInfo() SysInfo {
	return readSysInfo()
}

// IsVultr reports whether the machine runs on Vultr.
//
// VC2, VDC and HFC instances carry the manufacturer string; bare-metal
// machines are marked by the kernel parameter instead.
func IsVultr() bool {
	if readSysInfo().Manufacturer == Name {
		return true
	}

	return slices.Contains(strings.Fields(readCmdline()), kernelParam)
}

// IsBaremetal reports whether a confirmed Vultr machine is bare-metal.
//
// Callers must have established Vultr identity first: on any non-Vultr
// machine this returns true as well.
func IsBaremetal() bool {
	return readSysInfo().Manufacturer != Name
}

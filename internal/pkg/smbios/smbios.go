// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package smbios provides access to the SMBIOS information.
package smbios

import (
	"sync"

	"github.com/siderolabs/go-smbios/smbios"
)

var (
	syssmbios     *smbios.SMBIOS
	syssmbiosOnce sync.Once
	syssmbiosErr  error
)

// GetSMBIOSInfo returns the SMBIOS info.
//
// The underlying tables are decoded once per process; firmware data
// cannot change while the machine is running.
func GetSMBIOSInfo() (*smbios.SMBIOS, error) {
	syssmbiosOnce.Do(func() {
		syssmbios, syssmbiosErr = smbios.New()
	})

	return syssmbios, syssmbiosErr
}

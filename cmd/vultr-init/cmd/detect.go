// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marthydavid/cloud-init/pkg/vultr"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect whether the machine runs on Vultr",
	Long:  `Inspects SMBIOS and the kernel command line. Exits non-zero off Vultr.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !vultr.IsVultr() {
			return fmt.Errorf("not running on Vultr")
		}

		info := vultr.GetSysInfo()

		kind := "cloud"
		if vultr.IsBaremetal() {
			kind = "baremetal"
		}

		fmt.Printf("platform: vultr (%s)\n", kind)
		fmt.Printf("manufacturer: %s\n", info.Manufacturer)
		fmt.Printf("subid: %s\n", info.SubID)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

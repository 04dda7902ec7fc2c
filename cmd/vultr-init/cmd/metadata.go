// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marthydavid/cloud-init/pkg/metadata"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Acquire and print the instance metadata document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}

		//nolint:errcheck
		defer logger.Sync()

		md, err := metadata.NewAcquirer(logger).Acquire(
			cmd.Context(),
			options.Endpoint,
			options.Timeout,
			options.Retries,
			options.RetryDelay,
			options.UserAgent,
		)
		if err != nil {
			return err
		}

		b, err := json.MarshalIndent(md, "", "  ")
		if err != nil {
			return err
		}

		fmt.Println(string(b))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(metadataCmd)
}

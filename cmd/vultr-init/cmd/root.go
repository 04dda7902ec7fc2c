// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cmd implements the vultr-init commands.
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marthydavid/cloud-init/pkg/metadata"
)

var rootCmd = &cobra.Command{
	Use:   "vultr-init",
	Short: "Vultr instance metadata and network configuration helper",
	Long: `vultr-init probes the Vultr metadata service during machine boot:
it detects the platform, acquires the instance metadata document over an
ephemeral DHCP lease, and synthesizes the network configuration for the
instance's interfaces.`,
	SilenceUsage: true,
}

var options struct {
	Endpoint   string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	UserAgent  string
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once, by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&options.Endpoint, "endpoint", metadata.Endpoint, "base URL of the metadata service")
	rootCmd.PersistentFlags().DurationVar(&options.Timeout, "timeout", 10*time.Second, "timeout per fetch attempt")
	rootCmd.PersistentFlags().IntVar(&options.Retries, "retries", 3, "number of fetch retries")
	rootCmd.PersistentFlags().DurationVar(&options.RetryDelay, "retry-delay", 2*time.Second, "delay between fetch attempts")
	rootCmd.PersistentFlags().StringVar(&options.UserAgent, "user-agent", defaultUserAgent(), "User-Agent announced to the metadata service")
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}

	return cfg.Build()
}

// defaultUserAgent carries OS identification so the provider can tailor
// generated vendor data to the image.
func defaultUserAgent() string {
	agent := "Cloud-Init/vultr-init"

	if b, err := os.ReadFile("/etc/os-release"); err == nil {
		for _, line := range strings.Split(string(b), "\n") {
			if name, ok := strings.CutPrefix(line, "PRETTY_NAME="); ok {
				return agent + " (" + strings.Trim(name, `"`) + ")"
			}
		}
	}

	return agent
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package metadata acquires and models the Vultr instance metadata document.
package metadata

import (
	"context"
	"time"

	"github.com/marthydavid/cloud-init/pkg/download"
)

const (
	// Endpoint is the well-known base URL of the metadata service.
	Endpoint = "http://169.254.169.254"

	// versionPath is appended to the base URL for the v1 document.
	versionPath = "/v1.json"

	// metadataTokenHeader announces a cloud-init style consumer so the
	// service can tailor generated vendor data.
	metadataTokenHeader = "Metadata-Token"
	metadataTokenValue  = "cloudinit"
)

// RouteSpec is a route attached to an interface or a subnet.
type RouteSpec struct {
	Destination string `json:"destination,omitempty"`
	Gateway     string `json:"gateway,omitempty"`
	Metric      *int   `json:"metric,omitempty"`
}

// AdditionalAddress is an extra address assigned to an interface beyond its
// primary one.
type AdditionalAddress struct {
	Address string      `json:"address"`
	Netmask string      `json:"netmask"`
	Routes  []RouteSpec `json:"routes,omitempty"`
}

// AddressV4 is the IPv4 block of an interface record.
type AddressV4 struct {
	Address    string              `json:"address"`
	Gateway    string              `json:"gateway,omitempty"`
	Netmask    string              `json:"netmask"`
	Additional []AdditionalAddress `json:"additional"`
}

// AddressV6 is the IPv6 block of an interface record.
type AddressV6 struct {
	Address    string              `json:"address,omitempty"`
	Network    string              `json:"network,omitempty"`
	Prefix     string              `json:"prefix,omitempty"`
	Additional []AdditionalAddress `json:"additional"`
}

// Interface is one interface record of the metadata document.
//
// MAC is the identity: it must map to exactly one interface name on the
// running system. Name is not served by the endpoint, it is attached after
// resolution.
type Interface struct {
	MAC         string      `json:"mac"`
	Name        string      `json:"name,omitempty"`
	NetworkType string      `json:"network-type,omitempty"`
	MTU         *int        `json:"mtu,omitempty"`
	AcceptRA    *int        `json:"accept-ra,omitempty"`
	Routes      []RouteSpec `json:"routes,omitempty"`
	IPv4        AddressV4   `json:"ipv4"`
	IPv6        AddressV6   `json:"ipv6"`
}

// Region describes the datacenter the instance runs in.
type Region struct {
	RegionCode string `json:"regioncode"`
}

// MetaData is the v1.json instance metadata document.
type MetaData struct {
	Hostname     string      `json:"hostname,omitempty"`
	InstanceID   string      `json:"instanceid,omitempty"`
	InstanceV2ID string      `json:"instance-v2-id,omitempty"`
	Region       Region      `json:"region"`
	Interfaces   []Interface `json:"interfaces"`
}

// Read fetches the raw v1.json document from the metadata service.
//
// agent is sent as the User-Agent so the provider can identify the OS image
// behind the request.
func Read(ctx context.Context, baseURL string, timeout time.Duration, retries int, secBetween time.Duration, agent string) ([]byte, error) {
	return download.Download(ctx, baseURL+versionPath,
		download.WithTimeout(timeout),
		download.WithRetries(retries),
		download.WithRetryDelay(secBetween),
		download.WithUserAgent(agent),
		download.WithHeaders(map[string]string{metadataTokenHeader: metadataTokenValue}),
	)
}

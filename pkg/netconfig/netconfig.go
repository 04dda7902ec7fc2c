// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package netconfig synthesizes a network configuration document (version 1)
// from instance metadata interface records.
package netconfig

import (
	"fmt"

	"github.com/siderolabs/go-pointer"

	"github.com/marthydavid/cloud-init/pkg/metadata"
)

// Version is the only supported schema version of the produced document.
const Version = 1

// NameserverAddress is the provider's resolver, emitted in every document.
const NameserverAddress = "108.61.10.10"

// Stanza and subnet types of the version 1 schema.
const (
	TypeNameserver = "nameserver"
	TypePhysical   = "physical"

	SubnetDHCP    = "dhcp"
	SubnetSLAAC   = "ipv6_slaac"
	SubnetStatic  = "static"
	SubnetStatic6 = "static6"

	controlAuto = "auto"
)

// UnresolvedInterfaceError is returned when a metadata interface record has
// no matching interface on the running system.
//
// This is a hard mismatch between the metadata and the machine; no partial
// document is ever produced.
type UnresolvedInterfaceError struct {
	MAC string
}

func (e *UnresolvedInterfaceError) Error() string {
	return fmt.Sprintf("interface %s could not be found on the system", e.MAC)
}

// Resolver maps a MAC address to an interface name on the running system.
type Resolver interface {
	Resolve(mac string) (name string, ok bool)
}

// Subnet is one addressing method of a physical stanza.
type Subnet struct {
	Type    string               `json:"type"`
	Control string               `json:"control,omitempty"`
	Address string               `json:"address,omitempty"`
	Netmask string               `json:"netmask,omitempty"`
	Routes  []metadata.RouteSpec `json:"routes,omitempty"`
}

// Stanza is one entry of the document's config sequence: either a
// nameserver entry or a physical interface.
type Stanza struct {
	Type       string   `json:"type"`
	Address    []string `json:"address,omitempty"`
	Name       string   `json:"name,omitempty"`
	MACAddress string   `json:"mac_address,omitempty"`
	MTU        *int     `json:"mtu,omitempty"`
	AcceptRA   *int     `json:"accept-ra,omitempty"`
	Subnets    []Subnet `json:"subnets,omitempty"`
}

// Document is the produced network configuration, immutable once returned.
type Document struct {
	Version int      `json:"version"`
	Config  []Stanza `json:"config"`
}

// Generate translates the metadata interface list into a network
// configuration document.
//
// Interface 0 becomes the public stanza, every further interface a private
// one. The nameserver stanza always comes first.
func Generate(interfaces []metadata.Interface, resolver Resolver) (*Document, error) {
	doc := &Document{
		Version: Version,
		Config: []Stanza{
			{
				Type:    TypeNameserver,
				Address: []string{NameserverAddress},
			},
		},
	}

	if len(interfaces) == 0 {
		return doc, nil
	}

	public, err := generatePublic(interfaces[0], resolver)
	if err != nil {
		return nil, err
	}

	doc.Config = append(doc.Config, public)

	for _, iface := range interfaces[1:] {
		private, err := generatePrivate(iface, resolver)
		if err != nil {
			return nil, err
		}

		doc.Config = append(doc.Config, private)
	}

	return doc, nil
}

// generatePublic builds the stanza for the primary interface: addressing via
// DHCP and SLAAC, with any additional addresses as static subnets.
func generatePublic(iface metadata.Interface, resolver Resolver) (Stanza, error) {
	name, ok := resolver.Resolve(iface.MAC)
	if !ok {
		return Stanza{}, &UnresolvedInterfaceError{MAC: iface.MAC}
	}

	stanza := Stanza{
		Type:       TypePhysical,
		Name:       name,
		MACAddress: iface.MAC,
		// router advertisements accepted unless the metadata says otherwise
		AcceptRA: pointer.To(1),
		Subnets: []Subnet{
			{Type: SubnetDHCP, Control: controlAuto},
			{Type: SubnetSLAAC, Control: controlAuto},
		},
	}

	applyOverrides(&stanza, iface)

	for _, additional := range iface.IPv4.Additional {
		stanza.Subnets = append(stanza.Subnets, Subnet{
			Type:    SubnetStatic,
			Control: controlAuto,
			Address: additional.Address,
			Netmask: additional.Netmask,
			Routes:  additional.Routes,
		})
	}

	for _, additional := range iface.IPv6.Additional {
		stanza.Subnets = append(stanza.Subnets, Subnet{
			Type:    SubnetStatic6,
			Control: controlAuto,
			Address: additional.Address,
			Netmask: additional.Netmask,
			Routes:  additional.Routes,
		})
	}

	return stanza, nil
}

// generatePrivate builds a stanza for a secondary interface: a single static
// subnet from the primary address, no DHCP, no SLAAC.
func generatePrivate(iface metadata.Interface, resolver Resolver) (Stanza, error) {
	name, ok := resolver.Resolve(iface.MAC)
	if !ok {
		return Stanza{}, &UnresolvedInterfaceError{MAC: iface.MAC}
	}

	stanza := Stanza{
		Type:       TypePhysical,
		Name:       name,
		MACAddress: iface.MAC,
		Subnets: []Subnet{
			{
				Type:    SubnetStatic,
				Control: controlAuto,
				Address: iface.IPv4.Address,
				Netmask: iface.IPv4.Netmask,
			},
		},
	}

	applyOverrides(&stanza, iface)

	return stanza, nil
}

// applyOverrides copies the optional per-interface fields: MTU, accept-ra
// and primary-subnet routes.
func applyOverrides(stanza *Stanza, iface metadata.Interface) {
	if iface.MTU != nil {
		stanza.MTU = iface.MTU
	}

	if iface.AcceptRA != nil {
		stanza.AcceptRA = iface.AcceptRA
	}

	if len(iface.Routes) > 0 {
		stanza.Subnets[0].Routes = iface.Routes
	}
}

// AttachInterfaceNames resolves and sets the name of each metadata interface
// record in place.
func AttachInterfaceNames(interfaces []metadata.Interface, resolver Resolver) error {
	for i := range interfaces {
		name, ok := resolver.Resolve(interfaces[i].MAC)
		if !ok {
			return &UnresolvedInterfaceError{MAC: interfaces[i].MAC}
		}

		interfaces[i].Name = name
	}

	return nil
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/marthydavid/cloud-init/internal/pkg/dhcp"
	"github.com/marthydavid/cloud-init/internal/pkg/nic"
	"github.com/marthydavid/cloud-init/internal/pkg/route"
)

// ErrDHCPFailed indicates that no candidate interface yielded a lease and a
// successful metadata fetch.
var ErrDHCPFailed = errors.New("failed to DHCP")

// session is the part of an ephemeral DHCP session the acquirer drives.
type session interface {
	Close() error
}

type acquireKey struct {
	URL        string
	Timeout    time.Duration
	Retries    int
	SecBetween time.Duration
	Agent      string
}

func (k acquireKey) String() string {
	return fmt.Sprintf("%s|%s|%d|%s|%s", k.URL, k.Timeout, k.Retries, k.SecBetween, k.Agent)
}

// Acquirer obtains the metadata document by probing candidate interfaces
// with ephemeral DHCP leases.
//
// Successful acquisitions are memoized per exact parameter tuple for the
// life of the process, so the expensive DHCP and fetch sequence runs at most
// once per distinct set of parameters.
type Acquirer struct {
	logger *zap.Logger

	interfaces  func() ([]net.Interface, error)
	openSession func(ctx context.Context, linkName, checkURL string, logger *zap.Logger) (session, error)
	ensureRoute func(linkName string) error
	fetch       func(ctx context.Context, baseURL string, timeout time.Duration, retries int, secBetween time.Duration, agent string) ([]byte, error)

	group  singleflight.Group
	mu     sync.Mutex
	cached map[acquireKey]*MetaData
}

// NewAcquirer wires an acquirer to the live system.
func NewAcquirer(logger *zap.Logger) *Acquirer {
	installer := route.NewInstaller(logger)

	return &Acquirer{
		logger:     logger,
		interfaces: nic.List,
		openSession: func(ctx context.Context, linkName, checkURL string, logger *zap.Logger) (session, error) {
			return dhcp.NewSession(ctx, linkName, checkURL, logger)
		},
		ensureRoute: installer.EnsureMetadataRoute,
		fetch:       Read,
		cached:      map[acquireKey]*MetaData{},
	}
}

// Acquire fetches and decodes the metadata document.
//
// Candidate interfaces are tried in enumeration order; the first one that
// yields both a lease and a successful fetch wins. Lease and route command
// failures move the probe to the next interface; fetch and decode failures
// are fatal.
func (a *Acquirer) Acquire(ctx context.Context, baseURL string, timeout time.Duration, retries int, secBetween time.Duration, agent string) (*MetaData, error) {
	key := acquireKey{
		URL:        baseURL,
		Timeout:    timeout,
		Retries:    retries,
		SecBetween: secBetween,
		Agent:      agent,
	}

	v, err, _ := a.group.Do(key.String(), func() (any, error) {
		a.mu.Lock()
		md, ok := a.cached[key]
		a.mu.Unlock()

		if ok {
			return md, nil
		}

		md, err := a.acquire(ctx, key)
		if err != nil {
			return nil, err
		}

		a.mu.Lock()
		a.cached[key] = md
		a.mu.Unlock()

		return md, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*MetaData), nil
}

func (a *Acquirer) acquire(ctx context.Context, key acquireKey) (*MetaData, error) {
	ifaces, err := a.interfaces()
	if err != nil {
		return nil, fmt.Errorf("error enumerating interfaces: %w", err)
	}

	var lastErr error

	for _, iface := range ifaces {
		if !nic.IsCandidate(iface.Name) {
			continue
		}

		md, fatal, err := a.attempt(ctx, iface.Name, key)
		if err == nil {
			return md, nil
		}

		if fatal {
			return nil, err
		}

		a.logger.Error("DHCP attempt failed", zap.String("link", iface.Name), zap.Error(err))

		lastErr = err
	}

	if lastErr == nil {
		return nil, ErrDHCPFailed
	}

	return nil, fmt.Errorf("%w: %w", ErrDHCPFailed, lastErr)
}

// attempt runs a single per-interface probe: ephemeral lease, metadata
// route, fetch, decode. The session is released on every exit path.
//
// Lease and route command failures come back with fatal == false and move
// the probe to the next interface; once a lease is held, a failed fetch or
// decode is fatal, since trying other interfaces cannot help.
func (a *Acquirer) attempt(ctx context.Context, linkName string, key acquireKey) (md *MetaData, fatal bool, err error) {
	s, err := a.openSession(ctx, linkName, key.URL, a.logger)
	if err != nil {
		return nil, false, err
	}

	//nolint:errcheck
	defer s.Close()

	if err = a.ensureRoute(linkName); err != nil {
		return nil, false, err
	}

	raw, err := a.fetch(ctx, key.URL, key.Timeout, key.Retries, key.SecBetween, key.Agent)
	if err != nil {
		return nil, true, err
	}

	md = &MetaData{}

	if err = json.Unmarshal(raw, md); err != nil {
		return nil, true, fmt.Errorf("error decoding metadata: %w", err)
	}

	return md, false, nil
}

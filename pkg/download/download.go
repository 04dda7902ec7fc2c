// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package download provides a retrying HTTP downloader for machine metadata.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/siderolabs/go-retry/retry"
)

// Error is returned when the endpoint replies with a non-2xx status after
// all retries are exhausted.
type Error struct {
	URL        string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to connect to %q: code: %d", e.URL, e.StatusCode)
}

type downloadOptions struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Headers    map[string]string
	UserAgent  string
}

// Option configures the download.
type Option func(*downloadOptions)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *downloadOptions) {
		d.Timeout = timeout
	}
}

// WithRetries sets the number of retries after the initial attempt.
func WithRetries(retries int) Option {
	return func(d *downloadOptions) {
		d.Retries = retries
	}
}

// WithRetryDelay sets the delay between attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *downloadOptions) {
		d.RetryDelay = delay
	}
}

// WithHeaders sets additional request headers.
func WithHeaders(headers map[string]string) Option {
	return func(d *downloadOptions) {
		d.Headers = headers
	}
}

// WithUserAgent sets the User-Agent request header.
func WithUserAgent(agent string) Option {
	return func(d *downloadOptions) {
		d.UserAgent = agent
	}
}

func defaultOptions() downloadOptions {
	return downloadOptions{
		Timeout:    10 * time.Second,
		Retries:    0,
		RetryDelay: time.Second,
	}
}

// Download fetches the contents of a URL.
//
// Each attempt is bounded by the per-attempt timeout; attempts are repeated
// up to the configured number of retries with the configured delay in
// between. The last error wins.
func Download(ctx context.Context, rawURL string, opts ...Option) ([]byte, error) {
	options := defaultOptions()

	for _, opt := range opts {
		opt(&options)
	}

	var (
		result  []byte
		attempt int
	)

	// go-retry bounds the loop by wall time, the attempt counter bounds it
	// by count; the wall-time bound is sized to always outlast the counter.
	budget := time.Duration(options.Retries+1)*(options.Timeout+options.RetryDelay) + time.Second

	err := retry.Constant(budget, retry.WithUnits(options.RetryDelay)).RetryWithContext(ctx, func(ctx context.Context) error {
		attempt++

		b, err := fetch(ctx, rawURL, &options)
		if err != nil {
			if attempt <= options.Retries {
				return retry.ExpectedError(err)
			}

			return err
		}

		result = b

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func fetch(ctx context.Context, rawURL string, options *downloadOptions) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, options.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	for k, v := range options.Headers {
		req.Header.Set(k, v)
	}

	if options.UserAgent != "" {
		req.Header.Set("User-Agent", options.UserAgent)
	}

	resp, err := cleanhttp.DefaultClient().Do(req)
	if err != nil {
		return nil, err
	}

	//nolint:errcheck
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &Error{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
		}
	}

	return io.ReadAll(resp.Body)
}

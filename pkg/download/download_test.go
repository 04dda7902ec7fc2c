// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package download_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marthydavid/cloud-init/pkg/download"
)

func TestDownload(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("data")) //nolint:errcheck
		case "/headers":
			if r.Header.Get("Metadata-Token") != "cloudinit" || r.Header.Get("User-Agent") != "Cloud-Init/99.9" {
				w.WriteHeader(http.StatusForbidden)

				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok")) //nolint:errcheck
		case "/flaky":
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)

				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte("finally")) //nolint:errcheck
		case "/404":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		b, err := download.Download(ctx, srv.URL+"/data")
		require.NoError(t, err)
		assert.Equal(t, []byte("data"), b)
	})

	t.Run("headers", func(t *testing.T) {
		b, err := download.Download(ctx, srv.URL+"/headers",
			download.WithHeaders(map[string]string{"Metadata-Token": "cloudinit"}),
			download.WithUserAgent("Cloud-Init/99.9"),
		)
		require.NoError(t, err)
		assert.Equal(t, []byte("ok"), b)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := download.Download(ctx, srv.URL+"/404")
		require.Error(t, err)

		var dlErr *download.Error

		require.True(t, errors.As(err, &dlErr))
		assert.Equal(t, http.StatusNotFound, dlErr.StatusCode)
		assert.Equal(t, srv.URL+"/404", dlErr.URL)
	})

	t.Run("retries recover", func(t *testing.T) {
		b, err := download.Download(ctx, srv.URL+"/flaky",
			download.WithRetries(3),
			download.WithRetryDelay(10*time.Millisecond),
		)
		require.NoError(t, err)
		assert.Equal(t, []byte("finally"), b)
		assert.EqualValues(t, 3, hits.Load())
	})

	t.Run("retries exhausted", func(t *testing.T) {
		_, err := download.Download(ctx, srv.URL+"/404",
			download.WithRetries(1),
			download.WithRetryDelay(10*time.Millisecond),
		)
		require.Error(t, err)

		var dlErr *download.Error

		assert.True(t, errors.As(err, &dlErr))
	})
}

package beacon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviamasters/beacon-go/adapters"
)

const geoBody = `{"ip":"203.0.113.7","country_name":"Iceland","city":"Reykjavik","region":"Capital","country_code":"IS"}`

func newTestGeo(t *testing.T, mock *mockHTTPAdapter, storage StorageAdapter) (*GeoLocator, *quartz.Mock) {
	t.Helper()
	mClock := quartz.NewMock(t)
	geo := NewGeoLocator(DefaultGeoEndpoint, time.Second, DefaultGeoCacheTTL, mock, storage, mClock, newTestLogger(), newTestMetrics())
	return geo, mClock
}

func TestGeoLocator_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("should cache answers for a day", func(t *testing.T) {
		mock := &mockHTTPAdapter{handler: func(*HTTPRequest) (*HTTPResponse, error) {
			return jsonResponse(200, geoBody), nil
		}}
		geo, mClock := newTestGeo(t, mock, adapters.NewMemoryStorageAdapter())

		want := GeoRecord{IP: "203.0.113.7", Country: "Iceland", City: "Reykjavik", Region: "Capital", CountryCode: "IS"}
		assert.Equal(t, want, geo.Lookup(ctx))

		mClock.Advance(23 * time.Hour)
		assert.Equal(t, want, geo.Lookup(ctx))
		assert.Len(t, mock.calls(), 1)

		mClock.Advance(time.Hour + time.Second)
		assert.Equal(t, want, geo.Lookup(ctx))
		assert.Len(t, mock.calls(), 2)

		assert.Equal(t, 1.0, testutil.ToFloat64(geo.metrics.GeoLookups.WithLabelValues(resultCached)))
	})

	t.Run("should fill missing fields with defaults", func(t *testing.T) {
		mock := &mockHTTPAdapter{handler: func(*HTTPRequest) (*HTTPResponse, error) {
			return jsonResponse(200, `{"ip":"198.51.100.1"}`), nil
		}}
		geo, _ := newTestGeo(t, mock, adapters.NewMemoryStorageAdapter())

		assert.Equal(t, GeoRecord{
			IP:          "198.51.100.1",
			Country:     "Unknown",
			City:        "Unknown",
			Region:      "Unknown",
			CountryCode: "XX",
		}, geo.Lookup(ctx))
	})

	failures := map[string]func(*HTTPRequest) (*HTTPResponse, error){
		"network error": func(*HTTPRequest) (*HTTPResponse, error) {
			return nil, errors.New("dial tcp: timeout")
		},
		"server error": func(*HTTPRequest) (*HTTPResponse, error) {
			return jsonResponse(429, `{"error":true}`), nil
		},
		"invalid body": func(*HTTPRequest) (*HTTPResponse, error) {
			return jsonResponse(200, `<html>`), nil
		},
		"missing ip": func(*HTTPRequest) (*HTTPResponse, error) {
			return jsonResponse(200, `{"error":true,"reason":"RateLimited"}`), nil
		},
	}
	for name, handler := range failures {
		t.Run("should return the unknown record on "+name, func(t *testing.T) {
			mock := &mockHTTPAdapter{handler: handler}
			storage := adapters.NewMemoryStorageAdapter()
			geo, _ := newTestGeo(t, mock, storage)

			assert.Equal(t, UnknownGeo, geo.Lookup(ctx))
			assert.Equal(t, UnknownGeo, geo.Lookup(ctx))
			assert.Len(t, mock.calls(), 2, "failures must not be cached")

			_, ok, err := storage.Get(keyGeoCache)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	t.Run("should collapse concurrent lookups", func(t *testing.T) {
		release := make(chan struct{})
		mock := &mockHTTPAdapter{handler: func(*HTTPRequest) (*HTTPResponse, error) {
			<-release
			return jsonResponse(200, geoBody), nil
		}}
		geo, _ := newTestGeo(t, mock, adapters.NewMemoryStorageAdapter())

		var wg sync.WaitGroup
		results := make([]GeoRecord, 4)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = geo.Lookup(ctx)
			}()
		}
		require.Eventually(t, func() bool { return len(mock.calls()) == 1 }, time.Second, time.Millisecond)
		close(release)
		wg.Wait()

		assert.Len(t, mock.calls(), 1)
		for _, rec := range results {
			assert.Equal(t, "203.0.113.7", rec.IP)
		}
	})
}

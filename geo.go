package beacon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

type geoCacheEntry struct {
	Data      GeoRecord `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

// GeoLocator resolves the visitor's IP and location through an external
// lookup service and caches successful answers in storage.
type GeoLocator struct {
	endpoint string
	timeout  time.Duration
	ttl      time.Duration

	http    HTTPAdapter
	storage StorageAdapter
	clock   quartz.Clock
	logger  LoggerAdapter
	metrics *Metrics

	group singleflight.Group
}

// NewGeoLocator creates a locator for endpoint. Answers are reused for ttl.
func NewGeoLocator(endpoint string, timeout, ttl time.Duration, httpAdapter HTTPAdapter, storage StorageAdapter, clock quartz.Clock, logger LoggerAdapter, metrics *Metrics) *GeoLocator {
	return &GeoLocator{
		endpoint: endpoint,
		timeout:  timeout,
		ttl:      ttl,
		http:     httpAdapter,
		storage:  storage,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Lookup returns the cached record if it is younger than the TTL, otherwise
// asks the lookup service once. Failures yield UnknownGeo and are not
// cached, so the next call tries again.
func (g *GeoLocator) Lookup(ctx context.Context) GeoRecord {
	if rec, ok := g.cached(); ok {
		g.metrics.GeoLookups.WithLabelValues(resultCached).Inc()
		return rec
	}

	v, _, _ := g.group.Do("lookup", func() (any, error) {
		if rec, ok := g.cached(); ok {
			return rec, nil
		}

		rec, err := g.fetch(ctx)
		if err != nil {
			g.logger.Warn("Failed to get IP info: %v", err)
			g.metrics.GeoLookups.WithLabelValues(resultFailure).Inc()
			return UnknownGeo, nil
		}

		entry := geoCacheEntry{Data: rec, Timestamp: g.clock.Now().UnixMilli()}
		if err := saveJSON(g.storage, keyGeoCache, entry); err != nil {
			g.logger.Warn("Failed to cache IP info: %v", err)
		}
		g.metrics.GeoLookups.WithLabelValues(resultSuccess).Inc()
		return rec, nil
	})
	return v.(GeoRecord)
}

func (g *GeoLocator) cached() (GeoRecord, bool) {
	var entry geoCacheEntry
	if err := loadJSON(g.storage, keyGeoCache, &entry); err != nil {
		g.logger.Debug("Ignoring unreadable IP cache: %v", err)
		return GeoRecord{}, false
	}
	if entry.Timestamp == 0 {
		return GeoRecord{}, false
	}
	age := g.clock.Now().Sub(time.UnixMilli(entry.Timestamp))
	if age < 0 || age >= g.ttl {
		return GeoRecord{}, false
	}
	return entry.Data, true
}

func (g *GeoLocator) fetch(ctx context.Context) (GeoRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.http.Do(ctx, &HTTPRequest{Method: http.MethodGet, URL: g.endpoint})
	if err != nil {
		return GeoRecord{}, err
	}
	if !resp.OK {
		return GeoRecord{}, &HTTPError{Status: resp.Status}
	}
	if !gjson.ValidBytes(resp.Body) {
		return GeoRecord{}, errors.New("invalid geo lookup response")
	}
	if ip := gjson.GetBytes(resp.Body, "ip"); !ip.Exists() || ip.String() == "" {
		return GeoRecord{}, errors.New("geo lookup response has no ip")
	}

	field := func(path, fallback string) string {
		if v := gjson.GetBytes(resp.Body, path).String(); v != "" {
			return v
		}
		return fallback
	}
	return GeoRecord{
		IP:          field("ip", UnknownIP),
		Country:     field("country_name", "Unknown"),
		City:        field("city", "Unknown"),
		Region:      field("region", "Unknown"),
		CountryCode: field("country_code", "XX"),
	}, nil
}

package beacon

import (
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aviamasters/beacon-go/adapters"
)

// Re-export adapter types for convenience
type (
	Event                     = adapters.Event
	EventType                 = adapters.EventType
	GeoRecord                 = adapters.GeoRecord
	HTTPAdapter               = adapters.HTTPAdapter
	HTTPRequest               = adapters.HTTPRequest
	HTTPResponse              = adapters.HTTPResponse
	StorageAdapter            = adapters.StorageAdapter
	StorageQuotaExceededError = adapters.StorageQuotaExceededError
	LoggerAdapter             = adapters.LoggerAdapter
	LogLevel                  = adapters.LogLevel
)

const (
	EventTypeVisit  = adapters.EventTypeVisit
	EventTypeClick  = adapters.EventTypeClick
	EventTypeCustom = adapters.EventTypeCustom
)

// UnknownIP is the sentinel IP used when the geo lookup fails.
const UnknownIP = "Unknown"

// UnknownGeo is returned whenever the geo lookup cannot produce a record.
var UnknownGeo = GeoRecord{
	IP:          UnknownIP,
	Country:     "Unknown",
	City:        "Unknown",
	Region:      "Unknown",
	CountryCode: "XX",
}

// Storage keys shared by all components.
const (
	keyEventLog       = "gameAnalytics"
	keyUniqueVisitors = "gameUniqueVisitor"
	keyDailyCounter   = "gameDailyCounter"
	keySession        = "gameSession"
	keyGeoCache       = "gameIpCache"
	keyRetryQueue     = "gameFailedSyncs"
	keyLastSync       = "gameServerSync"
	countedKeyPrefix  = "counted_"
)

// timestampLayout matches JavaScript's Date.prototype.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// dayLayout is the calendar-date key used by the daily counter.
const dayLayout = "2006-01-02"

var (
	ErrNotInitialized = errors.New("client not initialized. Call Init() before tracking events")
	ErrNoDocument     = errors.New("no remote document available")
)

type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP request failed with status %d", e.Status)
}

// Environment describes the page the events are recorded on. The
// presentation layer fills it in; DeviceType and Browser are derived from
// UserAgent when left empty.
type Environment struct {
	URL              string
	PageTitle        string
	UserAgent        string
	Language         string
	Timezone         string
	ScreenResolution string
	Referrer         string
	DeviceType       string
	Browser          string
}

type Config struct {
	// Remote document store.
	APIKey             string
	APIKeyHeader       *string
	BaseURL            string
	FallbackDocumentID string
	DisableServerSync  bool

	// Identity.
	Site                    string
	Domain                  string
	ProjectPrefix           string
	DisableProjectNamespace bool

	// Geo lookup.
	GeoEndpoint string
	GeoTimeout  time.Duration
	GeoCacheTTL time.Duration

	// Scheduling.
	SyncInterval     time.Duration
	InitialSyncDelay time.Duration
	PushTimeout      time.Duration

	// Retention.
	MaxLocalEvents   int
	MaxRemoteEvents  int
	MaxRetryEntries  int
	MaxRetryAttempts int

	// Location decides calendar days for the daily counter. Defaults to time.Local.
	Location    *time.Location
	Environment Environment

	Clock      quartz.Clock
	Registerer prometheus.Registerer

	HTTPAdapter    HTTPAdapter
	StorageAdapter StorageAdapter
	LoggerAdapter  LoggerAdapter
}

const (
	DefaultBaseURL          = "https://api.jsonbin.io/v3/b"
	DefaultGeoEndpoint      = "https://ipapi.co/json/"
	DefaultAPIKeyHeader     = "X-Master-Key"
	DefaultSite             = "aviamasters"
	DefaultProjectPrefix    = "aviamasters"
	DefaultDomain           = "localhost"
	DefaultSyncInterval     = 120 * time.Second
	DefaultInitialSyncDelay = 10 * time.Second
	DefaultPushTimeout      = 15 * time.Second
	DefaultGeoTimeout       = 5 * time.Second
	DefaultGeoCacheTTL      = 24 * time.Hour
	DefaultMaxLocalEvents   = 1000
	DefaultMaxRemoteEvents  = 5000
	DefaultMaxRetryEntries  = 100
	DefaultMaxRetryAttempts = 5
	DefaultTotalWindowDays  = 30
)

// withDefaults returns a copy of c with every zero value replaced.
func (c Config) withDefaults() Config {
	if c.APIKeyHeader == nil {
		header := DefaultAPIKeyHeader
		c.APIKeyHeader = &header
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Site == "" {
		c.Site = DefaultSite
	}
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
	if c.ProjectPrefix == "" {
		c.ProjectPrefix = DefaultProjectPrefix
	}
	if c.GeoEndpoint == "" {
		c.GeoEndpoint = DefaultGeoEndpoint
	}
	if c.GeoTimeout == 0 {
		c.GeoTimeout = DefaultGeoTimeout
	}
	if c.GeoCacheTTL == 0 {
		c.GeoCacheTTL = DefaultGeoCacheTTL
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.InitialSyncDelay == 0 {
		c.InitialSyncDelay = DefaultInitialSyncDelay
	}
	if c.PushTimeout == 0 {
		c.PushTimeout = DefaultPushTimeout
	}
	if c.MaxLocalEvents <= 0 {
		c.MaxLocalEvents = DefaultMaxLocalEvents
	}
	if c.MaxRemoteEvents <= 0 {
		c.MaxRemoteEvents = DefaultMaxRemoteEvents
	}
	if c.MaxRetryEntries <= 0 {
		c.MaxRetryEntries = DefaultMaxRetryEntries
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Clock == nil {
		c.Clock = quartz.NewReal()
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	if c.HTTPAdapter == nil {
		c.HTTPAdapter = adapters.NewNetHTTPAdapter()
	}
	if c.LoggerAdapter == nil {
		c.LoggerAdapter = adapters.NewPrintLoggerAdapter(adapters.LogLevelWarn)
	}
	return c
}

// formatTimestamp renders t the way events store it.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

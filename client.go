package beacon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/hashicorp/go-multierror"
)

// Client records analytics events locally and mirrors them to a remote
// document. Create one with NewClient and call Init before recording.
type Client struct {
	config  Config
	clock   quartz.Clock
	logger  LoggerAdapter
	metrics *Metrics

	attributes *AttributeManager
	identity   *IdentityProvider
	geo        *GeoLocator
	store      *EventStore
	queue      *RetryQueue

	mu          sync.RWMutex
	initialized bool
	remote      *RemoteStore
	dispatcher  *Dispatcher
}

// NewClient validates config and fills in defaults.
func NewClient(config Config) (*Client, error) {
	if config.StorageAdapter == nil {
		return nil, errors.New("StorageAdapter must be provided in config")
	}
	if !config.DisableServerSync && config.APIKey == "" {
		return nil, errors.New("apiKey must be provided in config")
	}

	config = config.withDefaults()
	metrics := NewMetrics(config.Registerer)
	attributes := NewAttributeManager()

	return &Client{
		config:     config,
		clock:      config.Clock,
		logger:     config.LoggerAdapter,
		metrics:    metrics,
		attributes: attributes,
		identity: NewIdentityProvider(
			config.StorageAdapter,
			config.Clock,
			config.LoggerAdapter,
			config.ProjectPrefix,
			config.Domain,
			!config.DisableProjectNamespace,
		),
		geo: NewGeoLocator(
			config.GeoEndpoint,
			config.GeoTimeout,
			config.GeoCacheTTL,
			config.HTTPAdapter,
			config.StorageAdapter,
			config.Clock,
			config.LoggerAdapter,
			metrics,
		),
		store: NewEventStore(
			config.StorageAdapter,
			config.Clock,
			config.LoggerAdapter,
			metrics,
			config.Location,
			config.MaxLocalEvents,
			attributes,
		),
		queue: NewRetryQueue(
			config.StorageAdapter,
			config.Clock,
			config.LoggerAdapter,
			metrics,
			config.MaxRetryEntries,
			config.MaxRetryAttempts,
		),
	}, nil
}

// Init resolves identity and location, records the page visit and starts
// background sync. ctx bounds the lookups and the sync schedule. Calling
// Init again is a no-op.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	projectID := c.identity.ProjectID()
	sessionID := c.identity.NewSessionID()
	startTime := formatTimestamp(c.clock.Now())

	c.remote = NewRemoteStore(RemoteConfig{
		BaseURL:            c.config.BaseURL,
		APIKey:             c.config.APIKey,
		APIKeyHeader:       *c.config.APIKeyHeader,
		Site:               c.config.Site,
		Domain:             c.config.Domain,
		ProjectID:          projectID,
		DocumentIDKey:      c.identity.DocumentIDKey(projectID),
		FallbackDocumentID: c.config.FallbackDocumentID,
		MaxEvents:          c.config.MaxRemoteEvents,
	}, c.config.HTTPAdapter, c.config.StorageAdapter, c.clock, c.logger, c.metrics)

	if !c.config.DisableServerSync {
		c.identity.RemoteDocumentID(ctx, c.remote, c.config.PushTimeout)
	}

	geo := c.geo.Lookup(ctx)
	c.store.Bind(Session{
		ProjectID: projectID,
		SessionID: sessionID,
		StartTime: startTime,
		Env:       c.environment(),
		Geo:       geo,
	})

	c.dispatcher = NewDispatcher(DispatcherConfig{
		SyncInterval:     c.config.SyncInterval,
		InitialSyncDelay: c.config.InitialSyncDelay,
		PushTimeout:      c.config.PushTimeout,
		Disabled:         c.config.DisableServerSync,
	}, c.remote.Push, c.queue, c.clock, c.logger)
	if err := c.dispatcher.Start(ctx); err != nil {
		return err
	}

	visit := c.store.RecordUniqueVisit(geo.IP)
	c.dispatcher.Submit(visit)
	c.store.IncrementDailyCounter()

	c.initialized = true
	c.logger.Info("Client initialized for project %s, session %s", projectID, sessionID)
	return nil
}

// environment fills in the derived fields of the configured environment.
func (c *Client) environment() Environment {
	env := c.config.Environment
	if env.DeviceType == "" {
		env.DeviceType = DetectDevice(env.UserAgent)
	}
	if env.Browser == "" {
		env.Browser = DetectBrowser(env.UserAgent)
	}
	env.Referrer = ClassifyReferrer(env.Referrer, c.config.Site)
	return env
}

func (c *Client) ready() (*Dispatcher, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	return c.dispatcher, nil
}

func (c *Client) record(typ EventType, action string, details any) (Event, error) {
	dispatcher, err := c.ready()
	if err != nil {
		return Event{}, err
	}
	event := c.store.RecordEvent(typ, action, details)
	c.logger.Debug("Tracking %s event: %s", typ, action)
	dispatcher.Submit(event)
	return event, nil
}

// RecordVisit records another page visit for the current session.
func (c *Client) RecordVisit() (Event, error) {
	dispatcher, err := c.ready()
	if err != nil {
		return Event{}, err
	}
	event := c.store.RecordUniqueVisit(c.store.Session().Geo.IP)
	dispatcher.Submit(event)
	return event, nil
}

type clickDetails struct {
	ElementText string  `json:"elementText"`
	TargetURL   *string `json:"targetUrl"`
	ClickTime   string  `json:"clickTime"`
}

// RecordClick records a click on an element. url may be empty.
func (c *Client) RecordClick(elementType, label, url string) (Event, error) {
	details := clickDetails{
		ElementText: label,
		ClickTime:   formatTimestamp(c.clock.Now()),
	}
	if url != "" {
		details.TargetURL = &url
	}
	return c.record(EventTypeClick, elementType, details)
}

// RecordCustomEvent records an application event. Strings are stored as
// given, anything else as JSON.
func (c *Client) RecordCustomEvent(action string, details any) (Event, error) {
	if action == "" {
		return Event{}, errors.New("event action cannot be empty")
	}
	return c.record(EventTypeCustom, action, details)
}

// Events returns the local event log, oldest first.
func (c *Client) Events() []Event {
	return c.store.Events()
}

// Summary aggregates the local event log.
func (c *Client) Summary() Summary {
	return Summarize(c.store.Events(), c.clock.Now(), c.config.Location)
}

// TodayCount returns the number of sessions counted today.
func (c *Client) TodayCount() int {
	return TodayCount(c.store.DailyCounts(), c.clock.Now(), c.config.Location)
}

// TotalCount returns the number of sessions counted over the last 30 days.
func (c *Client) TotalCount() int {
	return TotalCount(c.store.DailyCounts(), c.clock.Now(), c.config.Location, DefaultTotalWindowDays)
}

// MergedHistory combines the remote document with the local log, newest
// first. If the remote cannot be read the local log is returned alone.
func (c *Client) MergedHistory(ctx context.Context) []Event {
	local := c.store.Events()

	c.mu.RLock()
	remote := c.remote
	c.mu.RUnlock()
	if remote == nil || c.config.DisableServerSync {
		return MergeHistory(nil, local)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.PushTimeout)
	defer cancel()
	doc, err := remote.Fetch(ctx)
	if err != nil {
		c.logger.Warn("Failed to read remote history, showing local events only: %v", err)
		return MergeHistory(nil, local)
	}
	return MergeHistory(doc.Events, local)
}

// ExportJSON renders the summary and local log as indented JSON.
func (c *Client) ExportJSON() ([]byte, error) {
	events := c.store.Events()
	now := c.clock.Now()
	return ExportJSON(Summarize(events, now, c.config.Location), events, now)
}

// ExportCSV renders the local log as CSV.
func (c *Client) ExportCSV() string {
	return ExportCSV(c.store.Events())
}

// ClearAll removes the local log, counters, session marker and the retry
// queue. Every removal is attempted; failures are combined.
func (c *Client) ClearAll() error {
	var result *multierror.Error
	if err := c.store.Clear(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.queue.Clear(); err != nil {
		result = multierror.Append(result, fmt.Errorf("clear retry queue: %w", err))
	}
	if err := result.ErrorOrNil(); err != nil {
		c.logger.Error("Failed to clear local data: %v", err)
		return err
	}
	c.logger.Info("Local analytics data cleared")
	return nil
}

// Flush runs one retry drain now.
func (c *Client) Flush(ctx context.Context) (DrainResult, error) {
	dispatcher, err := c.ready()
	if err != nil {
		c.logger.Warn("Flush called before initialization")
		return DrainResult{}, err
	}
	c.logger.Debug("Flushing retry queue")
	return dispatcher.Drain(ctx), nil
}

// PendingRetries returns the number of events waiting for another push.
func (c *Client) PendingRetries() int {
	return c.queue.Len()
}

// LastSynced reports when an event last reached the remote document.
func (c *Client) LastSynced() (time.Time, bool) {
	c.mu.RLock()
	remote := c.remote
	c.mu.RUnlock()
	if remote == nil {
		return time.Time{}, false
	}
	return remote.LastSynced()
}

// SetAttribute attaches key to every subsequently recorded event. A nil
// value removes it.
func (c *Client) SetAttribute(key string, value any) error {
	if key == "" {
		return errors.New("attribute key cannot be empty")
	}
	if len(key) > 255 {
		return errors.New("attribute key cannot exceed 255 characters")
	}
	c.attributes.Set(key, value)
	return nil
}

// Attributes returns a copy of the global attributes.
func (c *Client) Attributes() map[string]any {
	return c.attributes.Snapshot()
}

// SessionID returns the id of the current session, or "" before Init.
func (c *Client) SessionID() string {
	return c.store.Session().SessionID
}

// ProjectID returns the persisted project id.
func (c *Client) ProjectID() string {
	return c.identity.ProjectID()
}

// DocumentID returns the remote document id in use, or "".
func (c *Client) DocumentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.remote == nil {
		return ""
	}
	return c.remote.DocumentID()
}

// Metrics exposes the client's counters.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// Dispose stops background sync and waits for in-flight pushes. Undelivered
// events stay in the persisted retry queue.
func (c *Client) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil
	}

	c.logger.Info("Disposing client")
	err := c.dispatcher.Stop()
	c.initialized = false
	return err
}

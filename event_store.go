package beacon

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Session is the identity and environment stamped onto every event.
type Session struct {
	ProjectID string
	SessionID string
	StartTime string
	Env       Environment
	Geo       GeoRecord
}

// EventStore is the bounded local event log plus the unique-visitor set and
// the daily counter map. Every read-modify-write runs under one lock. The
// log is read from storage once and then served from memory, so events whose
// write failed stay visible for the life of the store.
type EventStore struct {
	storage    StorageAdapter
	clock      quartz.Clock
	logger     LoggerAdapter
	metrics    *Metrics
	location   *time.Location
	maxEvents  int
	attributes *AttributeManager

	mu        sync.Mutex
	session   Session
	log       []Event
	logLoaded bool
}

// NewEventStore creates a store keeping at most maxEvents events.
func NewEventStore(storage StorageAdapter, clock quartz.Clock, logger LoggerAdapter, metrics *Metrics, location *time.Location, maxEvents int, attributes *AttributeManager) *EventStore {
	return &EventStore{
		storage:    storage,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		location:   location,
		maxEvents:  maxEvents,
		attributes: attributes,
		session:    Session{Geo: UnknownGeo},
	}
}

// Bind sets the session used for subsequently recorded events.
func (s *EventStore) Bind(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

// Session returns the bound session.
func (s *EventStore) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// RecordEvent builds an event from the bound session, appends it to the log
// and persists the log. A failed write is logged and counted; the event is
// still returned and kept in memory.
func (s *EventStore) RecordEvent(typ EventType, action string, details any) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked(typ, action, details)
}

// RecordUniqueVisit records a visit tagged with whether ip was seen before on
// this profile. The Unknown sentinel is never treated as unique.
func (s *EventStore) RecordUniqueVisit(ip string) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ip != "" && ip != UnknownIP {
		var visited []string
		if err := loadJSON(s.storage, keyUniqueVisitors, &visited); err != nil {
			s.logger.Warn("Failed to read unique visitors: %v", err)
		}
		if !slices.Contains(visited, ip) {
			visited = append(visited, ip)
			if err := saveJSON(s.storage, keyUniqueVisitors, visited); err != nil {
				s.storageFailed(err)
			}
			s.logger.Debug("Recording unique visitor %s", ip)
			return s.recordLocked(EventTypeVisit, "page_visit", visitDetails{
				IsUniqueVisitor:       true,
				TotalVisitsFromThisIP: 1,
			})
		}
	}

	visits := 1
	for _, e := range s.logLocked() {
		if e.IP == ip {
			visits++
		}
	}
	s.logger.Debug("Recording repeat visitor %s, visit #%d", ip, visits)
	return s.recordLocked(EventTypeVisit, "page_visit", visitDetails{
		IsUniqueVisitor:       false,
		TotalVisitsFromThisIP: visits,
	})
}

type visitDetails struct {
	IsUniqueVisitor       bool `json:"isUniqueVisitor"`
	TotalVisitsFromThisIP int  `json:"totalVisitsFromThisIP"`
}

// IncrementDailyCounter counts the bound session once for the current
// calendar day. It reports whether the counter moved.
func (s *EventStore) IncrementDailyCounter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.clock.Now().In(s.location).Format(dayLayout)
	guard := countedKeyPrefix + day + "_" + s.session.SessionID

	if _, counted, err := s.storage.Get(guard); err != nil {
		s.logger.Warn("Failed to read daily guard: %v", err)
		return false
	} else if counted {
		return false
	}

	daily := map[string]int{}
	if err := loadJSON(s.storage, keyDailyCounter, &daily); err != nil {
		s.logger.Warn("Failed to read daily counter: %v", err)
		daily = map[string]int{}
	}
	daily[day]++
	if err := saveJSON(s.storage, keyDailyCounter, daily); err != nil {
		s.storageFailed(err)
		return false
	}
	if err := s.storage.Set(guard, "true"); err != nil {
		s.storageFailed(err)
	}
	return true
}

// Events returns the local log in insertion order.
func (s *EventStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.logLocked())
}

// DailyCounts returns the daily counter map keyed by YYYY-MM-DD.
func (s *EventStore) DailyCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	daily := map[string]int{}
	if err := loadJSON(s.storage, keyDailyCounter, &daily); err != nil {
		s.logger.Warn("Failed to read daily counter: %v", err)
		return map[string]int{}
	}
	return daily
}

// Clear removes the log, the daily counters, the session marker and every
// per-session-per-day guard.
func (s *EventStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = nil
	s.logLoaded = true

	var result *multierror.Error
	for _, key := range []string{keyEventLog, keyDailyCounter, keySession} {
		if err := s.storage.Remove(key); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", key, err))
		}
	}

	keys, err := s.storage.Keys()
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("list keys: %w", err))
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, countedKeyPrefix) {
			continue
		}
		if err := s.storage.Remove(key); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	return result.ErrorOrNil()
}

func (s *EventStore) recordLocked(typ EventType, action string, details any) Event {
	event := s.buildEvent(typ, action, details)

	events := append(s.logLocked(), event)
	if len(events) > s.maxEvents {
		events = slices.Clone(events[len(events)-s.maxEvents:])
	}
	s.log = events
	if err := saveJSON(s.storage, keyEventLog, events); err != nil {
		s.storageFailed(err)
	}

	s.metrics.EventsRecorded.WithLabelValues(string(typ)).Inc()
	return event
}

func (s *EventStore) buildEvent(typ EventType, action string, details any) Event {
	sess := s.session
	env := sess.Env
	var metadata map[string]any
	if s.attributes != nil {
		metadata = s.attributes.Snapshot()
	}
	return Event{
		ID:               uuid.NewString(),
		SessionID:        sess.SessionID,
		ProjectID:        sess.ProjectID,
		Type:             typ,
		Action:           action,
		Details:          encodeDetails(details),
		Timestamp:        formatTimestamp(s.clock.Now()),
		StartTime:        sess.StartTime,
		URL:              env.URL,
		PageTitle:        env.PageTitle,
		DeviceType:       env.DeviceType,
		Browser:          env.Browser,
		ScreenResolution: env.ScreenResolution,
		Referrer:         env.Referrer,
		UserAgent:        env.UserAgent,
		Language:         env.Language,
		Timezone:         env.Timezone,
		IP:               sess.Geo.IP,
		Country:          sess.Geo.Country,
		City:             sess.Geo.City,
		Region:           sess.Geo.Region,
		CountryCode:      sess.Geo.CountryCode,
		Metadata:         metadata,
	}
}

// logLocked returns the in-memory log, reading storage on first use.
func (s *EventStore) logLocked() []Event {
	if !s.logLoaded {
		s.log = s.loadLog()
		s.logLoaded = true
	}
	return s.log
}

// loadLog reads the log; an unreadable log is treated as empty.
func (s *EventStore) loadLog() []Event {
	var events []Event
	if err := loadJSON(s.storage, keyEventLog, &events); err != nil {
		s.logger.Warn("Failed to read event log, starting empty: %v", err)
		return nil
	}
	return events
}

func (s *EventStore) storageFailed(err error) {
	s.metrics.StorageFailures.Inc()
	var quotaErr *StorageQuotaExceededError
	if errors.As(err, &quotaErr) {
		s.logger.Warn("Local storage is full, keeping data in memory for this session: %v", err)
		return
	}
	s.logger.Warn("Failed to persist to local storage: %v", err)
}

// encodeDetails stores strings verbatim and anything else as JSON.
func encodeDetails(details any) string {
	switch d := details.(type) {
	case nil:
		return ""
	case string:
		return d
	default:
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Sprint(d)
		}
		return string(data)
	}
}

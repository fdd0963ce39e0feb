package adapters

import "encoding/json"

// EventType classifies a tracked event.
type EventType string

const (
	EventTypeVisit  EventType = "visit"
	EventTypeClick  EventType = "click"
	EventTypeCustom EventType = "event"
)

// Event represents a tracked event as stored locally and mirrored remotely.
type Event struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"sessionId"`
	ProjectID        string         `json:"projectId,omitempty"`
	Type             EventType      `json:"type"`
	Action           string         `json:"action"`
	Details          string         `json:"details"`
	Timestamp        string         `json:"timestamp"`
	StartTime        string         `json:"startTime,omitempty"`
	URL              string         `json:"url,omitempty"`
	PageTitle        string         `json:"pageTitle,omitempty"`
	DeviceType       string         `json:"deviceType,omitempty"`
	Browser          string         `json:"browser,omitempty"`
	ScreenResolution string         `json:"screenResolution,omitempty"`
	Referrer         string         `json:"referrer,omitempty"`
	UserAgent        string         `json:"userAgent,omitempty"`
	Language         string         `json:"language,omitempty"`
	Timezone         string         `json:"timezone,omitempty"`
	IP               string         `json:"ip"`
	Country          string         `json:"country"`
	City             string         `json:"city"`
	Region           string         `json:"region"`
	CountryCode      string         `json:"countryCode"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// DetailsMap decodes Details as a JSON object.
// Returns nil if Details is not a JSON object.
func (e Event) DetailsMap() map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(e.Details), &m); err != nil {
		return nil
	}
	return m
}

// GeoRecord is best-effort IP-derived location data.
type GeoRecord struct {
	IP          string `json:"ip"`
	Country     string `json:"country"`
	City        string `json:"city"`
	Region      string `json:"region"`
	CountryCode string `json:"countryCode"`
}

// StorageQuotaExceededError is returned by storage adapters when a write
// would exceed the configured capacity.
type StorageQuotaExceededError struct {
	Message string
}

func (e *StorageQuotaExceededError) Error() string {
	if e.Message == "" {
		return "storage quota exceeded"
	}
	return e.Message
}

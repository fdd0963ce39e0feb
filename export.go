package beacon

import (
	"encoding/json"
	"strings"
	"time"
)

type exportDocument struct {
	Summary    Summary `json:"summary"`
	Events     []Event `json:"events"`
	ExportTime string  `json:"exportTime"`
}

// ExportJSON renders the summary and the event log as indented JSON.
func ExportJSON(summary Summary, events []Event, now time.Time) ([]byte, error) {
	if events == nil {
		events = []Event{}
	}
	return json.MarshalIndent(exportDocument{
		Summary:    summary,
		Events:     events,
		ExportTime: formatTimestamp(now),
	}, "", "  ")
}

var csvHeader = []string{"IP", "Country", "City", "Timestamp", "Device", "Browser", "Type", "Action", "Details"}

// ExportCSV renders events as CSV with every value quoted. Commas inside
// details become semicolons. An empty log yields the header only.
func ExportCSV(events []Event) string {
	var b strings.Builder
	b.WriteString(strings.Join(csvHeader, ","))
	for _, e := range events {
		fields := []string{
			e.IP,
			e.Country,
			e.City,
			e.Timestamp,
			e.DeviceType,
			e.Browser,
			string(e.Type),
			e.Action,
			strings.ReplaceAll(e.Details, ",", ";"),
		}
		b.WriteByte('\n')
		for i, field := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(field, `"`, `""`))
			b.WriteByte('"')
		}
	}
	return b.String()
}

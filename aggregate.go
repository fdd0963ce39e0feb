package beacon

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

const topValuesLimit = 5

// HistoryRowLimit caps the rows shown from a merged history.
const HistoryRowLimit = 100

// ValueCount is one row of a top-values table. It encodes as a
// [value, count] pair.
type ValueCount struct {
	Value string
	Count int
}

func (v ValueCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{v.Value, v.Count})
}

func (v *ValueCount) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("value count: want [value, count], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &v.Value); err != nil {
		return fmt.Errorf("value count value: %w", err)
	}
	if err := json.Unmarshal(pair[1], &v.Count); err != nil {
		return fmt.Errorf("value count count: %w", err)
	}
	return nil
}

// Summary aggregates the local event log.
type Summary struct {
	TotalEvents     int          `json:"totalEvents"`
	TodayEvents     int          `json:"todayEvents"`
	TotalVisits     int          `json:"totalVisits"`
	TotalClicks     int          `json:"totalClicks"`
	UniqueCountries int          `json:"uniqueCountries"`
	UniqueIPs       int          `json:"uniqueIPs"`
	TopBrowsers     []ValueCount `json:"topBrowsers"`
	TopCountries    []ValueCount `json:"topCountries"`
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

// TodayCount returns the daily counter for the calendar day of now.
func TodayCount(daily map[string]int, now time.Time, loc *time.Location) int {
	return daily[dayKey(now, loc)]
}

// TotalCount sums the daily counter over the last windowDays calendar days,
// today included.
func TotalCount(daily map[string]int, now time.Time, loc *time.Location, windowDays int) int {
	local := now.In(loc)
	total := 0
	for i := range windowDays {
		day := time.Date(local.Year(), local.Month(), local.Day()-i, 12, 0, 0, 0, loc)
		total += daily[day.Format(dayLayout)]
	}
	return total
}

// Summarize computes totals over events. Today is judged in loc.
func Summarize(events []Event, now time.Time, loc *time.Location) Summary {
	today := dayKey(now, loc)
	summary := Summary{TotalEvents: len(events)}

	var visits []Event
	for _, e := range events {
		if ts, ok := parseTimestamp(e.Timestamp); ok && dayKey(ts, loc) == today {
			summary.TodayEvents++
		}
		switch e.Type {
		case EventTypeVisit:
			visits = append(visits, e)
		case EventTypeClick:
			summary.TotalClicks++
		}
	}
	summary.TotalVisits = len(visits)

	countries := map[string]struct{}{}
	ips := map[string]struct{}{}
	for _, v := range visits {
		countries[v.Country] = struct{}{}
		ips[v.IP] = struct{}{}
	}
	summary.UniqueCountries = len(countries)
	summary.UniqueIPs = len(ips)

	summary.TopBrowsers = topValues(visits, func(e Event) string { return e.Browser })
	summary.TopCountries = topValues(visits, func(e Event) string { return e.Country })
	return summary
}

// topValues counts field over events, highest first. Ties keep the order in
// which values were first seen.
func topValues(events []Event, field func(Event) string) []ValueCount {
	counts := []ValueCount{}
	index := map[string]int{}
	for _, e := range events {
		value := field(e)
		if value == "" {
			value = "Unknown"
		}
		if i, ok := index[value]; ok {
			counts[i].Count++
			continue
		}
		index[value] = len(counts)
		counts = append(counts, ValueCount{Value: value, Count: 1})
	}

	slices.SortStableFunc(counts, func(a, b ValueCount) int {
		return b.Count - a.Count
	})
	if len(counts) > topValuesLimit {
		counts = counts[:topValuesLimit]
	}
	return counts
}

// MergeHistory joins remote and local events, drops duplicates by session
// and timestamp (first occurrence wins) and orders the result newest first.
func MergeHistory(remote, local []Event) []Event {
	type key struct {
		session   string
		timestamp string
	}

	seen := make(map[key]struct{}, len(remote)+len(local))
	merged := make([]Event, 0, len(remote)+len(local))
	for _, e := range slices.Concat(remote, local) {
		k := key{e.SessionID, e.Timestamp}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, e)
	}

	slices.SortStableFunc(merged, func(a, b Event) int {
		ta, _ := parseTimestamp(a.Timestamp)
		tb, _ := parseTimestamp(b.Timestamp)
		return tb.Compare(ta)
	})
	return merged
}

// FilterByCountry returns the events whose country is country. An empty
// country matches every event.
func FilterByCountry(events []Event, country string) []Event {
	if country == "" {
		return slices.Clone(events)
	}
	filtered := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Country == country {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// Countries lists the distinct known countries in events, sorted.
func Countries(events []Event) []string {
	seen := map[string]struct{}{}
	countries := []string{}
	for _, e := range events {
		if e.Country == "" || e.Country == "Unknown" {
			continue
		}
		if _, ok := seen[e.Country]; ok {
			continue
		}
		seen[e.Country] = struct{}{}
		countries = append(countries, e.Country)
	}
	slices.Sort(countries)
	return countries
}

func parseTimestamp(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

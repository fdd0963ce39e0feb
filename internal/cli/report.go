package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	beacon "github.com/aviamasters/beacon-go"
)

type summaryJSON struct {
	beacon.Summary
	TodaySessions int `json:"todaySessions"`
	TotalSessions int `json:"totalSessions"`
}

// Execute implements the go-flags Commander interface for SummaryCommand.
func (c *SummaryCommand) Execute(args []string) error {
	s, err := c.app.newSession()
	if err != nil {
		return err
	}
	defer s.Close()

	summary := s.client.Summary()
	today, total := s.client.TodayCount(), s.client.TotalCount()

	if c.app.globals.JSON {
		return c.app.printJSON(summaryJSON{Summary: summary, TodaySessions: today, TotalSessions: total})
	}

	tw := table.NewWriter()
	tw.SetTitle("Beacon Summary")
	tw.SetStyle(table.StyleLight)
	tw.AppendRows([]table.Row{
		{"Events", summary.TotalEvents},
		{"Events today", summary.TodayEvents},
		{"Visits", summary.TotalVisits},
		{"Clicks", summary.TotalClicks},
		{"Countries", summary.UniqueCountries},
		{"IPs", summary.UniqueIPs},
		{"Sessions today", today},
		{"Sessions (30 days)", total},
	})
	fmt.Fprintln(c.app.out, tw.Render())

	if len(summary.TopBrowsers) > 0 {
		fmt.Fprintln(c.app.out, renderTop("Browser", summary.TopBrowsers))
	}
	if len(summary.TopCountries) > 0 {
		fmt.Fprintln(c.app.out, renderTop("Country", summary.TopCountries))
	}
	return nil
}

func renderTop(header string, values []beacon.ValueCount) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{header, "Events"})
	for _, v := range values {
		tw.AppendRow(table.Row{v.Value, v.Count})
	}
	return tw.Render()
}

// Execute implements the go-flags Commander interface for HistoryCommand.
func (c *HistoryCommand) Execute(args []string) error {
	if c.Limit < 0 {
		return errors.New("--limit must be positive")
	}
	limit := c.Limit
	if limit == 0 {
		limit = beacon.HistoryRowLimit
	}

	ctx := context.Background()
	s, err := c.app.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	history := beacon.FilterByCountry(s.client.MergedHistory(ctx), c.Country)
	if len(history) > limit {
		history = history[:limit]
	}

	if c.app.globals.JSON {
		return c.app.printJSON(history)
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Timestamp", "Type", "Action", "Country", "Browser", "Session"})
	for _, e := range history {
		tw.AppendRow(table.Row{e.Timestamp, e.Type, e.Action, e.Country, e.Browser, e.SessionID})
	}
	fmt.Fprintln(c.app.out, tw.Render())
	return nil
}

// Execute implements the go-flags Commander interface for CountriesCommand.
func (c *CountriesCommand) Execute(args []string) error {
	s, err := c.app.newSession()
	if err != nil {
		return err
	}
	defer s.Close()

	countries := beacon.Countries(s.client.Events())
	if c.app.globals.JSON {
		return c.app.printJSON(countries)
	}
	for _, country := range countries {
		fmt.Fprintln(c.app.out, country)
	}
	return nil
}

// Execute implements the go-flags Commander interface for ExportCommand.
func (c *ExportCommand) Execute(args []string) error {
	s, err := c.app.newSession()
	if err != nil {
		return err
	}
	defer s.Close()

	var data []byte
	switch c.Format {
	case "json":
		data, err = s.client.ExportJSON()
		if err != nil {
			return fmt.Errorf("export json: %w", err)
		}
		data = append(data, '\n')
	case "csv":
		data = []byte(s.client.ExportCSV())
	default:
		return fmt.Errorf("unknown format %q (use json or csv)", c.Format)
	}

	if c.Output == "" {
		_, err = c.app.out.Write(data)
		return err
	}
	if err := os.WriteFile(c.Output, data, 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(c.app.out, "Exported %d bytes to %s\n", len(data), c.Output)
	return nil
}

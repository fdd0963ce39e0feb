package cli

import (
	"context"
	"encoding/json"
	"errors"
)

// Execute implements the go-flags Commander interface for VisitCommand.
func (c *VisitCommand) Execute(args []string) error {
	s, err := c.app.openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	events := s.client.Events()
	if len(events) == 0 {
		return errors.New("visit was not recorded")
	}
	return c.app.printEvent(events[len(events)-1])
}

// Execute implements the go-flags Commander interface for ClickCommand.
func (c *ClickCommand) Execute(args []string) error {
	if c.Label == "" {
		return errors.New("click requires --label")
	}

	s, err := c.app.openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	event, err := s.client.RecordClick(c.Element, c.Label, c.Target)
	if err != nil {
		return err
	}
	return c.app.printEvent(event)
}

// Execute implements the go-flags Commander interface for EventCommand.
func (c *EventCommand) Execute(args []string) error {
	if c.Action == "" {
		return errors.New("event requires --action")
	}

	s, err := c.app.openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	var details any = c.Details
	if c.Details != "" && json.Valid([]byte(c.Details)) {
		details = json.RawMessage(c.Details)
	}

	event, err := s.client.RecordCustomEvent(c.Action, details)
	if err != nil {
		return err
	}
	return c.app.printEvent(event)
}

package cli

import (
	"context"
	"errors"
	"fmt"
)

type drainJSON struct {
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Dropped   int  `json:"dropped"`
	Skipped   bool `json:"skipped"`
	Pending   int  `json:"pending"`
}

// Execute implements the go-flags Commander interface for DrainCommand.
func (c *DrainCommand) Execute(args []string) error {
	ctx := context.Background()
	s, err := c.app.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.client.Flush(ctx)
	if err != nil {
		return err
	}
	pending := s.client.PendingRetries()

	if c.app.globals.JSON {
		return c.app.printJSON(drainJSON{
			Attempted: result.Attempted,
			Succeeded: result.Succeeded,
			Failed:    result.Failed,
			Dropped:   result.Dropped,
			Skipped:   result.Skipped,
			Pending:   pending,
		})
	}

	if result.Skipped {
		fmt.Fprintln(c.app.out, "Another drain is running")
		return nil
	}
	fmt.Fprintf(c.app.out, "Attempted %d, succeeded %d, failed %d, dropped %d; %d pending\n",
		result.Attempted, result.Succeeded, result.Failed, result.Dropped, pending)
	return nil
}

// Execute implements the go-flags Commander interface for ClearCommand.
func (c *ClearCommand) Execute(args []string) error {
	if !c.Force {
		return errors.New("clear requires --force flag for safety")
	}

	s, err := c.app.newSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.client.ClearAll(); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}

	if c.app.globals.JSON {
		return c.app.printJSON(map[string]any{"cleared": true})
	}
	fmt.Fprintln(c.app.out, "Local analytics data cleared")
	return nil
}

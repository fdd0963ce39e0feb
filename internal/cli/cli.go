package cli

import (
	"fmt"
	"io"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Visit     *VisitCommand
	Click     *ClickCommand
	Event     *EventCommand
	Summary   *SummaryCommand
	History   *HistoryCommand
	Countries *CountriesCommand
	Export    *ExportCommand
	Drain     *DrainCommand
	Clear     *ClearCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(a *app) (*goflags.Parser, *commands) {
	parser := goflags.NewParser(a.globals, goflags.Default)
	parser.Name = "beacon"
	parser.LongDescription = "Record analytics events locally and mirror them to a remote JSON document."

	cmds := &commands{
		Visit:     &VisitCommand{app: a},
		Click:     &ClickCommand{app: a},
		Event:     &EventCommand{app: a},
		Summary:   &SummaryCommand{app: a},
		History:   &HistoryCommand{app: a},
		Countries: &CountriesCommand{app: a},
		Export:    &ExportCommand{app: a},
		Drain:     &DrainCommand{app: a},
		Clear:     &ClearCommand{app: a},
	}

	parser.AddCommand("visit", "Record a page visit", "Open a new session and record its unique visit.", cmds.Visit)
	parser.AddCommand("click", "Record a click", "Open a new session and record a click on an element.", cmds.Click)
	parser.AddCommand("event", "Record a custom event", "Open a new session and record an application event.", cmds.Event)
	parser.AddCommand("summary", "Summarize the local log", "Print totals and top browsers and countries for the local event log.", cmds.Summary)
	parser.AddCommand("history", "Show merged history", "Print the remote document merged with the local log, newest first.", cmds.History)
	parser.AddCommand("countries", "List known countries", "List the distinct countries in the local log, sorted, without Unknown.", cmds.Countries)
	parser.AddCommand("export", "Export the local log", "Export the local event log as JSON or CSV.", cmds.Export)
	parser.AddCommand("drain", "Retry failed pushes", "Push every event waiting in the retry queue.", cmds.Drain)
	parser.AddCommand("clear", "Delete local data", "Delete the local log, daily counters and retry queue.", cmds.Clear)

	return parser, cmds
}

// Run is the main entry point for the beacon CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	return run(newApp(version, os.Stdout), args)
}

func run(a *app, args []string) error {
	// go-flags requires a subcommand, but --version is valid without one.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Fprintf(a.out, "beacon %s\n", a.version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _ := buildParser(a)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}

func newApp(version string, out io.Writer) *app {
	return &app{
		globals: &GlobalFlags{},
		version: version,
		out:     out,
		errOut:  os.Stderr,
	}
}

package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config   string `long:"config" description:"Path to config file" default:""`
	EnvFile  string `long:"env-file" description:"Path to a .env file with overrides" default:".env"`
	JSON     bool   `long:"json" description:"Output in JSON format"`
	Verbose  bool   `long:"verbose" description:"Enable verbose output"`
	Offline  bool   `long:"offline" description:"Do not contact the remote document"`
	URL      string `long:"url" description:"Page URL attached to recorded events" default:"cli://beacon"`
	Title    string `long:"title" description:"Page title attached to recorded events"`
	Referrer string `long:"referrer" description:"Referrer attached to recorded events"`
	Version  bool   `long:"version" description:"Show version and exit"`
}

// VisitCommand opens a session, which records its unique visit.
type VisitCommand struct {
	app *app
}

// ClickCommand records a click on an element.
type ClickCommand struct {
	Element string `long:"element" description:"Element type (e.g., button, link)" default:"button"`
	Label   string `long:"label" description:"Visible element text"`
	Target  string `long:"target" description:"Link target URL"`

	app *app
}

// EventCommand records an application event.
type EventCommand struct {
	Action  string `long:"action" description:"Event action (required)"`
	Details string `long:"details" description:"Event details; valid JSON is stored as JSON"`

	app *app
}

// SummaryCommand prints the aggregate of the local log.
type SummaryCommand struct {
	app *app
}

// HistoryCommand prints remote and local events merged.
type HistoryCommand struct {
	Limit   int    `long:"limit" description:"Maximum rows (default 100)"`
	Country string `long:"country" description:"Only events from this country"`

	app *app
}

// CountriesCommand lists the known countries in the local log.
type CountriesCommand struct {
	app *app
}

// ExportCommand writes the local log as JSON or CSV.
type ExportCommand struct {
	Format string `long:"format" description:"Output format: json | csv" default:"json"`
	Output string `long:"output" description:"Write to file instead of stdout"`

	app *app
}

// DrainCommand pushes the retry queue.
type DrainCommand struct {
	app *app
}

// ClearCommand deletes all local analytics data.
type ClearCommand struct {
	Force bool `long:"force" description:"Required flag to confirm deletion"`

	app *app
}

package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	beacon "github.com/aviamasters/beacon-go"
	"github.com/aviamasters/beacon-go/internal/config"
)

func TestBuildParser_RegistersCommands(t *testing.T) {
	parser, cmds := buildParser(newApp("test", io.Discard))

	for _, name := range []string{"visit", "click", "event", "summary", "history", "countries", "export", "drain", "clear"} {
		assert.NotNil(t, parser.Find(name), name)
	}
	assert.NotNil(t, cmds.Export)
}

func TestRun_Version(t *testing.T) {
	env := setupCLI(t, false)

	out, err := env.run(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "beacon test\n", out)
}

func TestRun_UnknownCommand(t *testing.T) {
	env := setupCLI(t, false)

	_, err := env.run(t, "bogus")
	require.Error(t, err)
}

func TestVisit_Offline(t *testing.T) {
	env := setupCLI(t, false)

	out, err := env.run(t, "visit")
	require.NoError(t, err)
	assert.Contains(t, out, `Recorded visit "page_visit"`)

	out, err = env.run(t, "--json", "summary")
	require.NoError(t, err)

	var got summaryJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.TotalVisits)
	assert.Equal(t, 1, got.TodaySessions)
	assert.Equal(t, 1, got.UniqueCountries)
}

func TestSummary_Table(t *testing.T) {
	env := setupCLI(t, false)

	_, err := env.run(t, "visit")
	require.NoError(t, err)

	out, err := env.run(t, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Beacon Summary")
	assert.Contains(t, out, "Norway")
	assert.Contains(t, out, "Sessions today")
}

func TestClick(t *testing.T) {
	env := setupCLI(t, false)

	t.Run("requires label", func(t *testing.T) {
		_, err := env.run(t, "click")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--label")
	})

	t.Run("records click details", func(t *testing.T) {
		out, err := env.run(t, "--json", "click", "--element", "link", "--label", "Play", "--target", "https://example.com/play")
		require.NoError(t, err)

		var event beacon.Event
		require.NoError(t, json.Unmarshal([]byte(out), &event))
		assert.Equal(t, beacon.EventTypeClick, event.Type)
		assert.Equal(t, "link", event.Action)

		details := event.DetailsMap()
		assert.Equal(t, "Play", details["elementText"])
		assert.Equal(t, "https://example.com/play", details["targetUrl"])
	})
}

func TestEvent(t *testing.T) {
	env := setupCLI(t, false)

	t.Run("requires action", func(t *testing.T) {
		_, err := env.run(t, "event")
		require.Error(t, err)
	})

	t.Run("json details are stored as json", func(t *testing.T) {
		out, err := env.run(t, "--json", "event", "--action", "level_up", "--details", `{"level":3}`)
		require.NoError(t, err)

		var event beacon.Event
		require.NoError(t, json.Unmarshal([]byte(out), &event))
		assert.Equal(t, `{"level":3}`, event.Details)
	})

	t.Run("plain details are stored verbatim", func(t *testing.T) {
		out, err := env.run(t, "--json", "event", "--action", "note", "--details", "hello there")
		require.NoError(t, err)

		var event beacon.Event
		require.NoError(t, json.Unmarshal([]byte(out), &event))
		assert.Equal(t, "hello there", event.Details)
	})
}

func TestExport(t *testing.T) {
	env := setupCLI(t, false)
	_, err := env.run(t, "event", "--action", "level_up", "--details", "a,b")
	require.NoError(t, err)

	t.Run("csv", func(t *testing.T) {
		out, err := env.run(t, "export", "--format", "csv")
		require.NoError(t, err)
		assert.Contains(t, out, "IP,Country,City,Timestamp,Device,Browser,Type,Action,Details")
		assert.Contains(t, out, `"level_up","a;b"`)
	})

	t.Run("json to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "export.json")
		out, err := env.run(t, "export", "--output", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Exported")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var doc struct {
			Summary    beacon.Summary `json:"summary"`
			Events     []beacon.Event `json:"events"`
			ExportTime string         `json:"exportTime"`
		}
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Len(t, doc.Events, 2)
		assert.NotEmpty(t, doc.ExportTime)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := env.run(t, "export", "--format", "xml")
		require.Error(t, err)
	})
}

func TestClear(t *testing.T) {
	env := setupCLI(t, false)
	_, err := env.run(t, "visit")
	require.NoError(t, err)

	_, err = env.run(t, "clear")
	require.Error(t, err)

	out, err := env.run(t, "clear", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")

	out, err = env.run(t, "--json", "summary")
	require.NoError(t, err)
	var got summaryJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Zero(t, got.TotalEvents)
	assert.Zero(t, got.TodaySessions)
}

func TestHistory_MergesRemote(t *testing.T) {
	env := setupCLI(t, true)

	_, err := env.run(t, "click", "--label", "Start")
	require.NoError(t, err)
	assert.Equal(t, 1, env.docs.Len())

	out, err := env.run(t, "--json", "history")
	require.NoError(t, err)

	var history []beacon.Event
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history, 3)
	assert.Equal(t, beacon.EventTypeVisit, history[0].Type)

	out, err = env.run(t, "history", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "TIMESTAMP")
}

func TestClick_SyncsBeforeExit(t *testing.T) {
	env := setupCLI(t, true)

	_, err := env.run(t, "click", "--label", "Start")
	require.NoError(t, err)
	assert.Equal(t, 2, env.remoteEvents(t), "visit and click reach the remote document")

	out, err := env.run(t, "--json", "drain")
	require.NoError(t, err)

	var got drainJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Zero(t, got.Attempted)
	assert.Zero(t, got.Pending)
	assert.Equal(t, 3, env.remoteEvents(t))
}

func TestHistory_FiltersByCountry(t *testing.T) {
	env := setupCLI(t, false)
	_, err := env.run(t, "visit")
	require.NoError(t, err)

	out, err := env.run(t, "--json", "history", "--country", "Norway")
	require.NoError(t, err)
	var history []beacon.Event
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	assert.Len(t, history, 2)

	out, err = env.run(t, "--json", "history", "--country", "Chile")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	assert.Empty(t, history)
}

func TestCountries(t *testing.T) {
	env := setupCLI(t, false)
	_, err := env.run(t, "visit")
	require.NoError(t, err)

	out, err := env.run(t, "countries")
	require.NoError(t, err)
	assert.Equal(t, "Norway\n", out)

	out, err = env.run(t, "--json", "countries")
	require.NoError(t, err)
	var countries []string
	require.NoError(t, json.Unmarshal([]byte(out), &countries))
	assert.Equal(t, []string{"Norway"}, countries)
}

func TestDrain_RetriesFailedPushes(t *testing.T) {
	env := setupCLI(t, true)

	env.docs.FailWith(http.StatusServiceUnavailable)
	_, err := env.run(t, "click", "--label", "Start")
	require.NoError(t, err)

	env.docs.FailWith(0)
	out, err := env.run(t, "--json", "drain")
	require.NoError(t, err)

	var got drainJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 2, got.Attempted)
	assert.Equal(t, 2, got.Succeeded)
	assert.Zero(t, got.Pending)
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	_, _, err := openStorage(config.StorageConfig{Driver: "bogus", Path: filepath.Join(t.TempDir(), "x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage driver")
}

func TestOpenStorage_SQLite(t *testing.T) {
	storage, closeFn, err := openStorage(config.StorageConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "beacon.db")})
	require.NoError(t, err)
	defer closeFn()

	require.NoError(t, storage.Set("k", "v"))
	got, ok, err := storage.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

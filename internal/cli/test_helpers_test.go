package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/aviamasters/beacon-go/internal/config"
	"github.com/aviamasters/beacon-go/internal/docstore"
)

const geoBody = `{"ip":"198.51.100.4","country_name":"Norway","city":"Oslo","region":"Oslo","country_code":"NO"}`

// testEnv is a CLI pointed at a temp config and local servers.
type testEnv struct {
	configPath string
	out        *bytes.Buffer
	docs       *docstore.Server
}

// setupCLI writes a config using file storage in a temp directory. If
// withRemote is false the config disables sync.
func setupCLI(t *testing.T, withRemote bool) *testEnv {
	t.Helper()
	dir := t.TempDir()

	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geoBody))
	}))
	t.Cleanup(geo.Close)

	cfg := config.DefaultConfig()
	cfg.Storage.Driver = "file"
	cfg.Storage.Path = filepath.Join(dir, "beacon.json")
	cfg.Geo.Endpoint = geo.URL + "/json/"
	cfg.Logging.Level = "error"

	env := &testEnv{out: &bytes.Buffer{}}
	if withRemote {
		env.docs = docstore.New(docstore.Options{APIKey: "cli-key"})
		srv := httptest.NewServer(env.docs.Handler())
		t.Cleanup(srv.Close)
		cfg.Remote.BaseURL = srv.URL + "/b"
		cfg.Remote.APIKey = "cli-key"
	} else {
		cfg.Remote.Disabled = true
	}

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	env.configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(env.configPath, data, 0600))
	return env
}

// run executes one CLI invocation and returns its stdout.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	e.out.Reset()
	a := newApp("test", e.out)
	a.errOut = &bytes.Buffer{}
	err := run(a, append([]string{"--config", e.configPath}, args...))
	return e.out.String(), err
}

// remoteEvents sums the events held by every stored document.
func (e *testEnv) remoteEvents(t *testing.T) int {
	t.Helper()
	total := 0
	for _, id := range e.docs.IDs() {
		record, ok := e.docs.Record(id)
		require.True(t, ok)
		total += int(gjson.GetBytes(record, "events.#").Int())
	}
	return total
}

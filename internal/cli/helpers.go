package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/coder/quartz"
	"github.com/hashicorp/go-multierror"

	beacon "github.com/aviamasters/beacon-go"
	"github.com/aviamasters/beacon-go/adapters"
	"github.com/aviamasters/beacon-go/internal/config"
)

// app carries what every subcommand needs besides its own flags.
type app struct {
	globals *GlobalFlags
	version string
	out     io.Writer
	errOut  io.Writer

	// clock and httpAdapter are nil outside tests.
	clock       quartz.Clock
	httpAdapter adapters.HTTPAdapter
}

// loadConfig reads the config file, then the .env file, then the process
// environment, then the global flags. Later sources win.
func (a *app) loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(a.globals.EnvFile); err != nil {
		return nil, err
	}

	var (
		cfg *config.Config
		err error
	)
	if a.globals.Config != "" {
		cfg, err = config.Load(a.globals.Config)
	} else {
		cfg, err = config.LoadOrCreate()
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	if a.globals.Offline {
		cfg.Remote.Disabled = true
	}
	if a.globals.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// openStorage opens the configured backend. The returned close func is
// never nil.
func openStorage(c config.StorageConfig) (adapters.StorageAdapter, func() error, error) {
	noop := func() error { return nil }

	if c.Driver == "memory" {
		return adapters.NewMemoryStorageAdapter(), noop, nil
	}

	path, err := config.ExpandPath(c.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("create storage directory: %w", err)
	}

	switch c.Driver {
	case "sqlite":
		store, err := adapters.OpenSQLiteStorageAdapter(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "file":
		return adapters.NewFileStorageAdapter(path), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q (use sqlite, file, or memory)", c.Driver)
	}
}

// session is a client bound to its storage for one command run.
type session struct {
	client       *beacon.Client
	closeStorage func() error
}

func (s *session) Close() error {
	var result *multierror.Error
	if err := s.client.Dispose(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.closeStorage(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close storage: %w", err))
	}
	return result.ErrorOrNil()
}

// newSession builds a client without starting it.
func (a *app) newSession() (*session, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	storage, closeStorage, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}

	clientConfig := cfg.ClientConfig()
	clientConfig.StorageAdapter = storage
	clientConfig.LoggerAdapter = cfg.NewLogger(a.errOut)
	clientConfig.HTTPAdapter = a.httpAdapter
	clientConfig.Clock = a.clock
	clientConfig.Environment = a.environment()

	client, err := beacon.NewClient(clientConfig)
	if err != nil {
		_ = closeStorage()
		return nil, err
	}
	return &session{client: client, closeStorage: closeStorage}, nil
}

// openSession builds a client and runs Init, which records the visit for
// the new session.
func (a *app) openSession(ctx context.Context) (*session, error) {
	s, err := a.newSession()
	if err != nil {
		return nil, err
	}
	if err := s.client.Init(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("init client: %w", err)
	}
	return s, nil
}

func (a *app) environment() beacon.Environment {
	zone, _ := time.Now().Zone()
	return beacon.Environment{
		URL:       a.globals.URL,
		PageTitle: a.globals.Title,
		Referrer:  a.globals.Referrer,
		UserAgent: fmt.Sprintf("beacon-cli/%s (%s; %s)", a.version, runtime.GOOS, runtime.GOARCH),
		Language:  os.Getenv("LANG"),
		Timezone:  zone,
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printEvent reports a recorded event.
func (a *app) printEvent(event beacon.Event) error {
	if a.globals.JSON {
		return a.printJSON(event)
	}
	fmt.Fprintf(a.out, "Recorded %s %q (id %s, session %s)\n", event.Type, event.Action, event.ID, event.SessionID)
	return nil
}

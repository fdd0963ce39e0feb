// Command docstore serves an in-memory document store for local
// development against the beacon client.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	goflags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aviamasters/beacon-go/adapters"
	"github.com/aviamasters/beacon-go/internal/config"
	"github.com/aviamasters/beacon-go/internal/docstore"
)

type options struct {
	Config   string `long:"config" description:"Path to config file"`
	EnvFile  string `long:"env-file" description:"Path to a .env file with overrides" default:".env"`
	Host     string `long:"host" description:"Listen host"`
	Port     int    `long:"port" description:"Listen port"`
	APIKey   string `long:"api-key" env:"BEACON_DOCSTORE_KEY" description:"Require this key on document requests"`
	LogLevel string `long:"log-level" description:"Log level: debug | info | warn | error" default:"info"`
}

func main() {
	var opts options
	if _, err := goflags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "docstore: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if opts.Host != "" {
		cfg.Docstore.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Docstore.Port = opts.Port
	}
	if opts.APIKey != "" {
		cfg.Docstore.APIKey = opts.APIKey
	}

	logger := adapters.NewJSONLoggerAdapter(os.Stderr, adapters.ParseLogLevel(opts.LogLevel))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store := docstore.New(docstore.Options{
		APIKeyHeader: cfg.Remote.APIKeyHeader,
		APIKey:       cfg.Docstore.APIKey,
		Logger:       logger,
		Registerer:   registry,
	})

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Mount("/", store.Handler())

	addr := net.JoinHostPort(cfg.Docstore.Host, strconv.Itoa(cfg.Docstore.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Docstore listening on http://%s/b", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

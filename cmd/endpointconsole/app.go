package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	console "github.com/network-plane/planeconsole"
	"github.com/network-plane/planeconsole/authz"
	"github.com/network-plane/planeconsole/endpoint"
	"github.com/network-plane/planeconsole/kibana"
	"github.com/network-plane/planeconsole/sqlitehistory"
)

type app struct {
	cfg     console.Config
	meta    endpoint.Meta
	engine  *console.Engine
	history *sqlitehistory.Store
	logFile *os.File
}

func newApp(ctx context.Context, opts *rootOptions, out io.Writer) (*app, error) {
	cfg, err := console.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.endpointID != "" {
		cfg.Kibana.EndpointID = opts.endpointID
	}

	a := &app{cfg: cfg}
	logger, err := a.newLogger()
	if err != nil {
		return nil, err
	}

	clientOpts := []kibana.Option{
		kibana.WithTimeout(cfg.Kibana.Timeout.Duration),
		kibana.WithLogger(logger),
	}
	switch {
	case cfg.Kibana.APIKey != "":
		clientOpts = append(clientOpts, kibana.WithAPIKey(cfg.Kibana.APIKey))
	case cfg.Kibana.Username != "":
		clientOpts = append(clientOpts, kibana.WithBasicAuth(cfg.Kibana.Username, cfg.Kibana.Password))
	}
	client, err := kibana.New(cfg.Kibana.URL, clientOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.meta = endpoint.Meta{EndpointID: cfg.Kibana.EndpointID}
	if a.meta.EndpointID != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		info, err := client.EndpointMetadata(lookupCtx, a.meta.EndpointID)
		cancel()
		if err != nil {
			logger.Warn("failed to resolve endpoint host name",
				slog.String("endpoint", a.meta.EndpointID),
				slog.String("error", err.Error()))
		} else {
			a.meta.Hostname = info.Metadata.Host.Hostname
		}
	}

	level, err := console.ParseOutputLevel(cfg.OutputLevel)
	if err != nil {
		a.Close()
		return nil, err
	}
	options := []console.Option{
		console.WithOutputWriter(out),
		console.WithOutputLevel(level),
		console.WithPrompt(cfg.Prompt),
		console.WithHelpHeader(cfg.HelpHeader),
		console.WithLogger(logger),
		console.WithMiddleware(console.TimingMiddleware, console.LogStatusChanges),
		console.WithCommands(endpoint.Commands(client, a.meta, endpoint.Options{
			PollInterval: cfg.Kibana.PollInterval.Duration,
			Timeout:      cfg.Kibana.ActionTimeout.Duration,
		})...),
	}
	if cfg.Authz.Enabled {
		authorizer := authz.New(authz.MachineLearning(),
			authz.KibanaLicenses{Client: client},
			authz.KibanaMLCapabilities{Client: client},
			authz.ForCommands(cfg.Authz.RestrictedCommands...))
		options = append(options, console.WithMiddleware(authz.Middleware(authorizer)))
	}
	if cfg.HistoryPath != "" {
		store, err := sqlitehistory.Open(cfg.HistoryPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.history = store
		options = append(options, console.WithHistoryRecorder(store))
	}

	a.engine = console.NewEngine(options...)
	return a, nil
}

func (a *app) newLogger() (*slog.Logger, error) {
	level, err := console.ParseLogLevel(a.cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	var w io.Writer = os.Stderr
	if a.cfg.LogFile != "" {
		f, err := os.OpenFile(a.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		a.logFile = f
		w = f
	}
	return console.NewLogger(level, w), nil
}

func (a *app) target() string {
	switch {
	case a.meta.Hostname != "":
		return a.meta.Hostname
	case a.meta.EndpointID != "":
		return a.meta.EndpointID
	default:
		return a.cfg.Kibana.URL
	}
}

// Close releases the engine, the history database and the log file.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.history != nil {
		_ = a.history.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// Command sessionkit-probe is an interactive diagnostic client for the
// session layer.
//
// It wires the full stack the way an application would: an encrypted
// file-backed secret store, a reachability monitor, the credential
// session with single-flight refresh, and the duplex message connection.
// Commands then exercise each layer so session behavior can be observed
// against a real backend.
//
// Usage:
//
//	sessionkit-probe [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-api string         Base URL of the credential API
//	-endpoint string    URL of the duplex messaging endpoint
//	-store string       Path of the encrypted secret store (default "sessionkit-secrets.json")
//	-events string      Path for the CBOR event log (disabled if empty)
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-probe-host string  host:port dialed by the reachability probe
//
// The store passphrase is read from the SESSIONKIT_PASSPHRASE
// environment variable.
//
// Examples:
//
//	# Connect against a staging backend with event logging
//	SESSIONKIT_PASSPHRASE=secret sessionkit-probe \
//	    -api https://auth.staging.example.com \
//	    -endpoint wss://realtime.staging.example.com/v1/stream \
//	    -events probe.evt -log-level debug
//
//	# Same, from a config file
//	SESSIONKIT_PASSPHRASE=secret sessionkit-probe -config probe.yaml
//
// Interactive Commands:
//
//	status            - Show session and connection state
//	net               - Show the current reachability snapshot
//	token             - Obtain a valid access secret (refreshing if needed)
//	login <access> <refresh> <ttl-seconds> - Install a credential pair
//	logout            - Invalidate the session and clear credentials
//	connect <identity> - Open the duplex connection
//	send <type> [json] - Send a frame
//	watch <type>      - Print inbound frames of a type
//	disconnect        - Close the duplex connection
//	quit              - Exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/novafeed/sessionkit-go/cmd/sessionkit-probe/interactive"
	"github.com/novafeed/sessionkit-go/pkg/credentials"
	"github.com/novafeed/sessionkit-go/pkg/duplex"
	"github.com/novafeed/sessionkit-go/pkg/log"
	"github.com/novafeed/sessionkit-go/pkg/reachability"
	"github.com/novafeed/sessionkit-go/pkg/retry"
	"github.com/novafeed/sessionkit-go/pkg/secrets"
)

// Config holds the probe configuration. Flags override file values.
type Config struct {
	APIBaseURL  string `yaml:"api_base_url"`
	RefreshPath string `yaml:"refresh_path"`
	LogoutPath  string `yaml:"logout_path"`
	Endpoint    string `yaml:"endpoint"`
	StorePath   string `yaml:"store_path"`
	EventLog    string `yaml:"event_log"`
	LogLevel    string `yaml:"log_level"`
	ProbeHost   string `yaml:"probe_host"`
}

var (
	configFile string
	config     Config
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&config.APIBaseURL, "api", "", "Base URL of the credential API")
	flag.StringVar(&config.Endpoint, "endpoint", "", "URL of the duplex messaging endpoint")
	flag.StringVar(&config.StorePath, "store", "sessionkit-secrets.json", "Path of the encrypted secret store")
	flag.StringVar(&config.EventLog, "events", "", "Path for the CBOR event log (disabled if empty)")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.ProbeHost, "probe-host", "", "host:port dialed by the reachability probe")
}

func main() {
	flag.Parse()

	if err := loadConfigFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := setupLogging(config.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if config.APIBaseURL == "" || config.Endpoint == "" {
		fmt.Fprintln(os.Stderr, "Both -api and -endpoint are required (flags or config file)")
		os.Exit(1)
	}

	passphrase := os.Getenv("SESSIONKIT_PASSPHRASE")
	if passphrase == "" {
		fmt.Fprintln(os.Stderr, "SESSIONKIT_PASSPHRASE is not set")
		os.Exit(1)
	}

	// Event logging
	events := log.Logger(log.NoopLogger{})
	if config.EventLog != "" {
		fl, err := log.NewFileLogger(config.EventLog)
		if err != nil {
			logger.Error("failed to open event log", "path", config.EventLog, "error", err)
			os.Exit(1)
		}
		defer fl.Close()
		events = fl
		logger.Info("event log enabled", "path", config.EventLog)
	}
	if parseLevel(config.LogLevel) == slog.LevelDebug {
		// Mirror session events to the console at debug level.
		events = log.NewMultiLogger(events, log.NewSlogAdapter(logger))
	}

	// Secret store
	store, err := secrets.NewFileStore(config.StorePath, passphrase)
	if err != nil {
		if errors.Is(err, secrets.ErrBadPassphrase) {
			logger.Error("wrong passphrase for secret store", "path", config.StorePath)
		} else {
			logger.Error("failed to open secret store", "path", config.StorePath, "error", err)
		}
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reachability
	monitor := reachability.NewMonitor()
	source := reachability.NewProbeSource(reachability.ProbeSourceConfig{
		ProbeAddr: config.ProbeHost,
	})
	monitor.Start(ctx, source)
	defer monitor.Close()

	// Credential session
	api, err := credentials.NewRestAPI(credentials.RestAPIConfig{
		BaseURL:     config.APIBaseURL,
		RefreshPath: config.RefreshPath,
		LogoutPath:  config.LogoutPath,
	})
	if err != nil {
		logger.Error("failed to create credential API client", "error", err)
		os.Exit(1)
	}
	session := credentials.NewSession(store, api,
		credentials.WithLogger(logger),
		credentials.WithEventLogger(events))

	// Retry executor for interactive commands
	executor := retry.NewExecutor(monitor,
		retry.WithLogger(logger),
		retry.WithEventLogger(events))

	// Duplex connection
	conn, err := duplex.NewConn(duplex.Config{
		Endpoint:    config.Endpoint,
		Logger:      logger,
		EventLogger: events,
	}, session)
	if err != nil {
		logger.Error("failed to create connection", "error", err)
		os.Exit(1)
	}
	defer conn.Disconnect()

	probe, err := interactive.New(interactive.Deps{
		Session:  session,
		Conn:     conn,
		Monitor:  monitor,
		Executor: executor,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create interactive probe", "error", err)
		os.Exit(1)
	}

	// Route log output through readline so it does not clobber the prompt.
	logger = slog.New(slog.NewTextHandler(probe.Stdout(), &slog.HandlerOptions{
		Level: parseLevel(config.LogLevel),
	}))
	slog.SetDefault(logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	probe.Run(ctx, cancel)

	logger.Info("shutting down")
}

// loadConfigFile merges the YAML config file into unset flag values.
func loadConfigFile() error {
	if configFile == "" {
		return nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}

	var fileConfig Config
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("parsing %s: %w", configFile, err)
	}

	// Explicit flags win over file values.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["api"] && fileConfig.APIBaseURL != "" {
		config.APIBaseURL = fileConfig.APIBaseURL
	}
	if !set["endpoint"] && fileConfig.Endpoint != "" {
		config.Endpoint = fileConfig.Endpoint
	}
	if !set["store"] && fileConfig.StorePath != "" {
		config.StorePath = fileConfig.StorePath
	}
	if !set["events"] && fileConfig.EventLog != "" {
		config.EventLog = fileConfig.EventLog
	}
	if !set["log-level"] && fileConfig.LogLevel != "" {
		config.LogLevel = fileConfig.LogLevel
	}
	if !set["probe-host"] && fileConfig.ProbeHost != "" {
		config.ProbeHost = fileConfig.ProbeHost
	}
	config.RefreshPath = fileConfig.RefreshPath
	config.LogoutPath = fileConfig.LogoutPath

	return nil
}

func setupLogging(level string) (*slog.Logger, error) {
	lvl := parseLevel(level)
	if lvl == slog.LevelError && level != "error" {
		return nil, fmt.Errorf("unknown log level: %s", level)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

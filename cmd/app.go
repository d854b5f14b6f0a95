package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/theirongolddev/promptroute/internal/catalog"
	"github.com/theirongolddev/promptroute/internal/classify"
	"github.com/theirongolddev/promptroute/internal/config"
	"github.com/theirongolddev/promptroute/internal/gateway"
	"github.com/theirongolddev/promptroute/internal/ledger"
	"github.com/theirongolddev/promptroute/internal/logging"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/recorder"
	"github.com/theirongolddev/promptroute/internal/router"
	"github.com/theirongolddev/promptroute/internal/strategy"
	"github.com/theirongolddev/promptroute/internal/tokens"
)

var errNoAPIKey = errors.New("no API key configured: set " + config.APIKeyEnv + " or run `promptroute setup`")

// app is the fully wired set of components a command works with.
type app struct {
	cfg        config.Config
	configPath string
	dataDir    string
	logger     *log.Logger
	holder     *catalog.Holder
	resolver   *strategy.Resolver
	classifier *classify.Classifier
	recorder   *recorder.FileRecorder
	ledger     *ledger.Ledger
	engine     *router.Engine

	closers []io.Closer
}

type appOptions struct {
	// engine wires the gateway, recorder, and router; it requires an API key.
	engine bool
	// ledger opens the cost ledger without the engine.
	ledger bool
}

func loadConfig() (config.Config, string, error) {
	_ = config.LoadEnv()
	path := flagConfig
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return cfg, path, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, path, nil
}

func dataDir(cfg config.Config) string {
	if flagDataDir != "" {
		return flagDataDir
	}
	return config.DataDir(cfg)
}

func selectedStrategy(cfg config.Config) model.Strategy {
	name := cfg.Routing.Strategy
	if flagStrategy != "" {
		name = flagStrategy
	}
	// Unknown names are passed through; the resolver falls back to balanced.
	if s, ok := model.ParseStrategy(name); ok {
		return s
	}
	return model.Strategy(name)
}

func newApp(opts appOptions) (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}

	lopts := logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	}
	if flagLogLevel != "" {
		lopts.Level = flagLogLevel
	}
	logger, logCloser := logging.Setup(lopts)

	a := &app{
		cfg:        cfg,
		configPath: path,
		dataDir:    dataDir(cfg),
		logger:     logger,
		closers:    []io.Closer{logCloser},
	}

	cat, err := config.BuildCatalog(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.holder = catalog.NewHolder(cat)
	a.classifier = classify.New(tokens.NewDefaultEstimator(), "")
	a.resolver = strategy.New(cat, strategy.Table(cfg.BalancedOverrides()), logger)

	if !opts.engine && !opts.ledger {
		return a, nil
	}

	if opts.engine && config.GetAPIKey(cfg) == "" {
		a.Close()
		return nil, errNoAPIKey
	}

	var session string
	if opts.engine {
		session = uuid.NewString()
		rec, err := recorder.NewFileRecorder(a.dataDir, recorder.Options{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.recorder = rec
		a.closers = append(a.closers, rec)
	}

	led, err := ledger.Open(a.dataDir, a.holder, session, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ledger = led
	a.closers = append(a.closers, led)

	if opts.engine {
		a.engine = router.New(a.gatewayClient(), a.classifier, a.resolver, a.holder, router.Options{
			Strategy:         selectedStrategy(cfg),
			SessionID:        led.SessionID(),
			MaxTokensCeiling: cfg.Routing.MaxTokensCeiling,
			Timeout:          time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second,
			Recorder:         a.recorder,
			Ledger:           led,
			Logger:           logger,
		})
	}
	return a, nil
}

func (a *app) gatewayClient() *gateway.Client {
	return gateway.NewClient(gateway.Options{
		BaseURL:           a.cfg.Gateway.BaseURL,
		APIKey:            config.GetAPIKey(a.cfg),
		Referer:           a.cfg.Gateway.Referer,
		Title:             a.cfg.Gateway.Title,
		Timeout:           time.Duration(a.cfg.Gateway.TimeoutSeconds) * time.Second,
		RequestsPerMinute: a.cfg.Gateway.RequestsPerMinute,
	})
}

// Close releases files in reverse open order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if c := a.closers[i]; c != nil {
			_ = c.Close()
		}
	}
	a.closers = nil
}

package app

import (
	"context"
	"fmt"
	"net/http"

	"call-compass-go/internal/actionable"
	"call-compass-go/internal/config"
	"call-compass-go/internal/events"
	"call-compass-go/internal/gateway"
	"call-compass-go/internal/httpapi"
	"call-compass-go/internal/logger"
	"call-compass-go/internal/processor"
	"call-compass-go/internal/state"
	"call-compass-go/internal/store"
	"call-compass-go/internal/views"
)

// App is the wired client core.
type App struct {
	Config    config.Config
	Log       *logger.Logger
	Bus       *events.Bus
	State     *state.Manager
	Cache     *store.AnalysisStore
	Chat      *store.ChatStore
	Gateway   *gateway.Client
	Processor *processor.Processor
	Dashboard *views.Dashboard
	Alerts    *views.Alerts
	Table     *views.Table

	kv store.KV
}

// Build opens the store and connects every component. Close releases what it opened.
func Build(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.New()
	}
	kv, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}

	rules := actionable.DefaultRules()
	if cfg.AlertRules != "" {
		loaded, err := actionable.LoadRules(cfg.AlertRules)
		if err != nil {
			kv.Close()
			return nil, err
		}
		rules = loaded
	}

	a := &App{Config: cfg, Log: log, kv: kv}
	a.Bus = events.NewBus(log)
	a.State = state.NewManager(a.Bus, log)
	a.Cache = store.NewAnalysisStore(kv, a.Bus, log)
	a.Chat = store.NewChatStore(kv, log)
	a.Gateway = gateway.New(gateway.Options{
		BaseURL:         cfg.APIURL,
		HTTPClient:      &http.Client{Timeout: cfg.HTTPTimeout},
		MaxRetryElapsed: cfg.RetryMaxElapsed,
		UploadTimeout:   cfg.UploadTimeout,
		Logger:          log,
	})
	a.Processor = processor.New(a.Gateway, a.State, a.Cache, a.Chat, log)
	a.Dashboard = views.NewDashboard(a.Bus, a.State.CurrentCalls)
	a.Alerts = views.NewAlerts(a.Bus, actionable.NewEngine(rules))
	a.Table = views.NewTable(a.Bus)

	log.WithField("store", cfg.StoreBackend).WithField("api_url", cfg.APIURL).Info("client core ready")
	return a, nil
}

// WatchRules hot-reloads the alert rules file until ctx is done. It is a no-op without a
// rules file.
func (a *App) WatchRules(ctx context.Context) error {
	if a.Config.AlertRules == "" {
		return nil
	}
	return actionable.Watch(ctx, a.Config.AlertRules, a.Alerts.Engine(), func([]actionable.Rule) {
		a.Alerts.Refresh()
	}, a.Log)
}

// Server builds the HTTP surface with a websocket hub on the app's bus.
func (a *App) Server() (*httpapi.Server, *httpapi.Hub) {
	hub := httpapi.NewHub(a.Bus, a.Log)
	return httpapi.New(httpapi.Deps{
		Processor: a.Processor,
		State:     a.State,
		Dashboard: a.Dashboard,
		Alerts:    a.Alerts,
		Table:     a.Table,
		Hub:       hub,
		Logger:    a.Log,
	}), hub
}

func (a *App) Close() error {
	a.Dashboard.Close()
	a.Alerts.Close()
	a.Table.Close()
	return a.kv.Close()
}

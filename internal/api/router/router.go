package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jomigata/wiz-coco-sub004/internal/http/handlers"
	httpmiddleware "github.com/jomigata/wiz-coco-sub004/internal/http/middleware"
	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger               *logging.Logger
	RiskSignalsHandler   *handlers.RiskSignalsHandler
	ChatHandler          *handlers.ChatHandler
	NotificationsHandler *handlers.NotificationsHandler
	ReportsHandler       *handlers.ReportsHandler
	MetricsHandler       http.Handler
	CORSAllowedOrigins   []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.RiskSignalsHandler != nil {
		r.Route("/risk-signals", func(r chi.Router) {
			r.Post("/", cfg.RiskSignalsHandler.SubmitUnit)
			r.Get("/", cfg.RiskSignalsHandler.ListSignals)
			r.Post("/{signalID}/resolve", cfg.RiskSignalsHandler.ResolveSignal)
			r.Post("/{signalID}/correct", cfg.RiskSignalsHandler.CorrectSignal)
		})
	}

	if cfg.ChatHandler != nil {
		r.Route("/chat", func(r chi.Router) {
			r.Post("/sessions", cfg.ChatHandler.StartSession)
			r.Post("/send-message", cfg.ChatHandler.SendMessage)
			r.Post("/escalate-session", cfg.ChatHandler.EscalateSession)
			r.Post("/close-session", cfg.ChatHandler.CloseSession)
		})
	}

	if cfg.NotificationsHandler != nil {
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/{recipientID}", cfg.NotificationsHandler.ListByRecipient)
			r.Post("/{notificationID}/ack", cfg.NotificationsHandler.Acknowledge)
		})
	}

	if cfg.ReportsHandler != nil {
		r.Get("/reports/{clientID}", cfg.ReportsHandler.GetReport)
	}

	return r
}

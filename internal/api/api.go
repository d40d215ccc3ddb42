// Package api provides HTTP handlers and the main API server logic for SafeSpeak.
//
// It exposes RESTful endpoints for identity, preferences, the support chat,
// and the safety-plan wizard. The API composes the store, genai, flow,
// identity, wizard, alert, and scheduler modules.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/safehaven-ng/safespeak/internal/alert"
	"github.com/safehaven-ng/safespeak/internal/flow"
	"github.com/safehaven-ng/safespeak/internal/genai"
	"github.com/safehaven-ng/safespeak/internal/identity"
	"github.com/safehaven-ng/safespeak/internal/models"
	"github.com/safehaven-ng/safespeak/internal/scheduler"
	"github.com/safehaven-ng/safespeak/internal/store"
	"github.com/safehaven-ng/safespeak/internal/wizard"
)

// Default configuration constants
const (
	// DefaultAddr is the default API server listen address.
	DefaultAddr = ":8080"
	// DefaultSweepSchedule runs the idle wizard sweep every 10 minutes.
	DefaultSweepSchedule = "*/10 * * * *"
	// QuickExitDestination is the fixed neutral site returned by the
	// quick-exit operation for the client to navigate to.
	QuickExitDestination = "https://www.google.com"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	SweepSchedule string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSweepSchedule sets the cron expression for the idle wizard sweep.
func WithSweepSchedule(expr string) Option {
	return func(o *Opts) { o.SweepSchedule = expr }
}

// Server bundles the modules behind the HTTP surface.
type Server struct {
	st      store.Store
	idp     identity.Provider
	conv    *flow.Conversation
	wizards *wizard.Manager
	sched   *scheduler.Scheduler
	opts    Opts
}

// NewServer creates an API server from already-constructed modules. Used
// directly by tests; production wiring goes through Run.
func NewServer(st store.Store, idp identity.Provider, conv *flow.Conversation, wizards *wizard.Manager, sched *scheduler.Scheduler, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, SweepSchedule: DefaultSweepSchedule}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{st: st, idp: idp, conv: conv, wizards: wizards, sched: sched, opts: cfg}
}

// Run builds every module from its options and serves the API until the
// process exits. It is the production composition root.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, alertOpts []alert.Option, apiOpts []Option) error {
	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	var gen genai.ClientInterface
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("api.Run: generation client unavailable, using canned responses", "error", err)
		gen = flow.NewStaticResponder(nil)
	} else {
		gen = client
	}

	var notifier alert.Notifier
	twilio, err := alert.NewTwilioNotifier(alertOpts...)
	if err != nil {
		slog.Warn("api.Run: emergency alert notifier unavailable, alerts disabled", "error", err)
		notifier = alert.NoopNotifier{}
	} else {
		notifier = twilio
	}

	idp := identity.NewStoreProvider(st)
	conv := flow.NewConversation(st, gen, notifier)
	wizards := wizard.NewManager()
	sched := scheduler.NewScheduler()
	defer sched.Stop()

	s := NewServer(st, idp, conv, wizards, sched, apiOpts...)

	if err := sched.AddJob(s.opts.SweepSchedule, func() {
		wizards.Sweep(wizard.DefaultMaxIdle)
		conv.Sweep(flow.DefaultMaxIdle)
	}); err != nil {
		return fmt.Errorf("failed to schedule idle sweep: %w", err)
	}

	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	slog.Info("api.Run: SafeSpeak API listening", "addr", s.opts.Addr)
	return http.ListenAndServe(s.opts.Addr, mux)
}

// buildStore selects a backend from the configured DSN: PostgreSQL or SQLite
// when one is set, in-memory otherwise.
func buildStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("api.buildStore: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(opts...)
	}
	return store.NewSQLiteStore(opts...)
}

// RegisterRoutes attaches every endpoint to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth/signup", s.signUpHandler)
	mux.HandleFunc("/auth/signin", s.signInHandler)
	mux.HandleFunc("/auth/anonymous", s.anonymousHandler)
	mux.HandleFunc("/auth/signout", s.signOutHandler)
	mux.HandleFunc("/preferences", s.preferencesHandler)
	mux.HandleFunc("/chat/messages", s.chatMessagesHandler)
	mux.HandleFunc("/chat/history", s.chatHistoryHandler)
	mux.HandleFunc("/wizard", s.wizardCollectionHandler)
	mux.HandleFunc("/wizard/", s.wizardHandler)
	mux.HandleFunc("/quick-exit", s.quickExitHandler)
	mux.HandleFunc("/health", s.healthHandler)
}

// authenticate resolves the bearer token on r. On failure it writes a 401
// response and returns ok=false.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (models.User, string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		slog.Warn("Server.authenticate: missing bearer token", "path", r.URL.Path)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Missing bearer token"))
		return models.User{}, "", false
	}
	user, err := s.idp.Resolve(token)
	if err != nil {
		slog.Warn("Server.authenticate: token resolution failed", "error", err, "path", r.URL.Path)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid or expired token"))
		return models.User{}, "", false
	}
	return user, token, true
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

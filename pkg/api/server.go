package api

import (
	"log/slog"
	"net/http"

	"github.com/actionledger/core/pkg/archive"
	"github.com/actionledger/core/pkg/chain"
	"github.com/actionledger/core/pkg/ledger"
	"github.com/actionledger/core/pkg/store"
)

// Version is reported by the root banner.
const Version = "1.1.0"

// Server exposes the ledger over HTTP. It owns no business logic: appends go
// through the coordinator, verification through the chain verifier.
type Server struct {
	store      store.EventStore
	appender   *ledger.Appender
	verifier   *chain.Verifier
	reconciler *ledger.Reconciler
	archive    archive.Writer
	logger     *slog.Logger
}

func NewServer(
	s store.EventStore,
	appender *ledger.Appender,
	verifier *chain.Verifier,
	reconciler *ledger.Reconciler,
	archiveWriter archive.Writer,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:      s,
		appender:   appender,
		verifier:   verifier,
		reconciler: reconciler,
		archive:    archiveWriter,
		logger:     logger.With("component", "api"),
	}
}

// Routes returns the route table without middleware.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/events/", s.handleEventByID)
	mux.HandleFunc("/verify", s.handleVerify)
	mux.HandleFunc("/verify/archive", s.handleVerifyArchive)
	mux.HandleFunc("/export", s.handleExport)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Chain wraps h with the given middleware, outermost first.
func Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		WriteNotFound(w, "")
		return
	}
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "AI Action Ledger",
		"version": Version,
		"endpoints": map[string]string{
			"events": "/events",
			"export": "/export",
			"verify": "/verify",
			"health": "/health",
		},
	})
}

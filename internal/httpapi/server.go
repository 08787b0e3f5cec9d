// Package httpapi serves the operator HTTP API: session status, risk
// settings, broker switching, channel bindings, the signal journal, and the
// runtime log level.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"telebridge/internal/broker"
	"telebridge/internal/dispatcher"
	"telebridge/internal/domain"
	"telebridge/internal/journal"
	"telebridge/internal/settings"
	"telebridge/internal/util"
)

// JournalReader is the read side of the signal journal consumed by the API.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Server serves the operator API.
type Server struct {
	store      *settings.Store
	session    *broker.Session
	dispatcher *dispatcher.Dispatcher
	journal    JournalReader
	logLevel   *slog.LevelVar
	log        *slog.Logger

	// Paces account-snapshot fetches so polling dashboards do not hammer
	// the terminal bridge.
	accountLimit *util.RateLimiter
}

// NewServer creates the operator API server. journal and logLevel may be nil
// when the deployment does not expose them.
func NewServer(store *settings.Store, session *broker.Session, d *dispatcher.Dispatcher, j JournalReader, logLevel *slog.LevelVar, log *slog.Logger) *Server {
	return &Server{
		store:        store,
		session:      session,
		dispatcher:   d,
		journal:      j,
		logLevel:     logLevel,
		log:          log,
		accountLimit: util.NewRateLimiter(60),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	mux.HandleFunc("GET /api/brokers", s.handleBrokers)
	mux.HandleFunc("PUT /api/brokers/active", s.handleSwitchBroker)
	mux.HandleFunc("GET /api/channels", s.handleGetChannels)
	mux.HandleFunc("PUT /api/channels", s.handlePutChannels)
	mux.HandleFunc("GET /api/journal", s.handleJournal)
	mux.HandleFunc("PUT /api/logging", s.handleLogging)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Connected: s.session.Connected()}

	if resp.Connected {
		profile := s.session.Profile()
		resp.Broker = profile.Name
		resp.Server = profile.Server
		resp.StartCapital = s.session.StartCapital()

		// The snapshot is omitted rather than delayed when the bucket
		// is empty.
		lctx, cancel := context.WithTimeout(r.Context(), 50*time.Millisecond)
		if err := s.accountLimit.Wait(lctx); err == nil {
			if acct, err := s.session.Terminal().Account(r.Context()); err == nil && acct != nil {
				resp.Account = acct
			}
		}
		cancel()
	}
	if s.dispatcher != nil {
		resp.PendingSL, resp.PendingTP = s.dispatcher.State()
	}
	writeJSON(w, resp)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	rs, err := s.store.Risk()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading settings failed")
		return
	}
	writeJSON(w, rs)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var rs domain.RiskSettings
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings payload")
		return
	}
	if rs.LotPercent < 0 || rs.MaxCapPercent < 0 || rs.DefaultLot < 0 {
		writeError(w, http.StatusBadRequest, "percentages and lots must be non-negative")
		return
	}
	if err := s.store.SetRisk(rs); err != nil {
		writeError(w, http.StatusInternalServerError, "saving settings failed")
		return
	}
	s.log.Info("risk settings updated",
		"lot_method", rs.LotMethod, "lot_percent", rs.LotPercent,
		"max_cap_percent", rs.MaxCapPercent, "reinvest", rs.Reinvest,
		"accept_put_call", rs.AcceptPutCall)
	writeJSON(w, rs)
}

func (s *Server) handleBrokers(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Brokers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading brokers failed")
		return
	}

	resp := BrokersResponse{Active: doc.Active}
	for name, p := range doc.Brokers {
		resp.Brokers = append(resp.Brokers, BrokerSummary{
			Name:   name,
			Server: p.Server,
			Tier:   string(p.Tier),
		})
	}
	sort.Slice(resp.Brokers, func(i, j int) bool { return resp.Brokers[i].Name < resp.Brokers[j].Name })
	writeJSON(w, resp)
}

func (s *Server) handleSwitchBroker(w http.ResponseWriter, r *http.Request) {
	var req SwitchBrokerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "broker name required")
		return
	}

	if err := s.session.SwitchBroker(r.Context(), req.Name); err != nil {
		s.log.Error("broker switch failed", "broker", req.Name, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, map[string]string{"active": req.Name})
}

func (s *Server) handleGetChannels(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Channels()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading channels failed")
		return
	}
	writeJSON(w, doc)
}

func (s *Server) handlePutChannels(w http.ResponseWriter, r *http.Request) {
	var doc settings.ChannelsDoc
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid channels payload")
		return
	}
	if len(doc.Active()) == 0 {
		writeError(w, http.StatusBadRequest, "binding must leave at least one active channel")
		return
	}
	if err := s.store.SetChannels(doc); err != nil {
		writeError(w, http.StatusInternalServerError, "saving channels failed")
		return
	}
	writeJSON(w, doc)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, JournalResponse{Entries: []journal.Entry{}})
		return
	}

	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading journal failed")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, JournalResponse{Entries: entries})
}

func (s *Server) handleLogging(w http.ResponseWriter, r *http.Request) {
	if s.logLevel == nil {
		writeError(w, http.StatusServiceUnavailable, "log level not adjustable")
		return
	}

	var req LoggingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid logging payload")
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(req.Level)); err != nil {
		writeError(w, http.StatusBadRequest, "unknown log level")
		return
	}
	s.logLevel.Set(level)
	s.log.Info("log level changed", "level", level)
	writeJSON(w, map[string]string{"level": level.String()})
}

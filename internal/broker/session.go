package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"telebridge/internal/domain"
	"telebridge/internal/settings"
	"telebridge/internal/util"
)

// Session owns the single authenticated terminal connection. All state reads
// and the reconnect/invalidate operations are mutex-guarded so no caller ever
// observes a half-switched session.
type Session struct {
	terminal Terminal
	store    *settings.Store
	log      *slog.Logger
	loc      *time.Location
	now      func() time.Time // injectable clock for tests

	mu           sync.Mutex
	connected    bool
	profile      domain.BrokerProfile
	startBalance float64
	day          time.Time
}

// NewSession creates a Session over the given terminal. loc selects the
// calendar used for the daily balance reset; nil means local time.
func NewSession(terminal Terminal, store *settings.Store, log *slog.Logger, loc *time.Location) *Session {
	if loc == nil {
		loc = time.Local
	}
	return &Session{
		terminal: terminal,
		store:    store,
		log:      log,
		loc:      loc,
		now:      time.Now,
	}
}

// Terminal returns the underlying terminal. The terminal instance never
// changes; only the authenticated state behind it does.
func (s *Session) Terminal() Terminal {
	return s.terminal
}

// Connected reports whether a login has been established.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Profile returns the broker profile the session is logged into.
func (s *Session) Profile() domain.BrokerProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// StartCapital returns the balance sampled at the start of the current
// trading day.
func (s *Session) StartCapital() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startBalance
}

// Invalidate drops the authenticated state; the next Ensure call reconnects.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

// Connect establishes the terminal session against the currently active
// broker profile and samples the start-of-day balance.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

// Ensure connects if no session is established yet, and otherwise refreshes
// the session once per calendar day so sizing reads a current start balance.
func (s *Session) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return s.connectLocked(ctx)
	}
	if util.SameDay(s.day, s.now(), s.loc) {
		return nil
	}
	s.log.Info("trading day rolled over, refreshing session", "broker", s.profile.Name)
	s.connected = false
	return s.connectLocked(ctx)
}

// SwitchBroker activates a different broker profile and reconnects. The old
// session state is discarded atomically.
func (s *Session) SwitchBroker(ctx context.Context, name string) error {
	if err := s.store.SetActiveBroker(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if err := s.connectLocked(ctx); err != nil {
		return err
	}
	s.log.Info("switched active broker", "broker", name)
	return nil
}

// connectLocked performs the shutdown/initialize/login sequence. Callers must
// hold mu.
func (s *Session) connectLocked(ctx context.Context) error {
	profile, err := s.store.ActiveBroker()
	if err != nil {
		return fmt.Errorf("loading active broker: %w", err)
	}

	// Kill any existing terminal session before re-initializing.
	_ = s.terminal.Shutdown(ctx)

	if err := s.terminal.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}

	ok, err := s.terminal.Login(ctx, profile.Account, profile.Password, profile.Server)
	if err != nil {
		return fmt.Errorf("logging in to %s: %w", profile.Server, err)
	}
	if !ok {
		return fmt.Errorf("login rejected by %s", profile.Server)
	}

	acct, err := s.terminal.Account(ctx)
	if err != nil {
		return fmt.Errorf("sampling account balance: %w", err)
	}

	s.profile = profile
	s.startBalance = acct.Balance
	s.day = s.now()
	s.connected = true

	s.log.Info("terminal session established",
		"broker", profile.Name,
		"server", profile.Server,
		"start_capital", s.startBalance,
	)
	return nil
}

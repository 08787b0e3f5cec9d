// Package notify provides fire-and-forget audible notifications for order
// outcomes. Playback runs detached so a slow or missing audio player never
// stalls signal processing.
package notify

import (
	"log/slog"
	"os/exec"
)

// Notifier signals order outcomes to the operator.
type Notifier interface {
	// Success signals an accepted order.
	Success()
	// Alert signals a failed order or a dropped signal.
	Alert()
}

// Sound plays configured sound files through an external player command.
type Sound struct {
	player  string
	success string
	alert   string
	log     *slog.Logger
}

// NewSound creates a Sound notifier. player is the playback command (e.g.
// "aplay" or "afplay"); success and alert are paths to the sound files.
func NewSound(player, success, alert string, log *slog.Logger) *Sound {
	return &Sound{player: player, success: success, alert: alert, log: log}
}

func (s *Sound) Success() { s.play(s.success) }
func (s *Sound) Alert()   { s.play(s.alert) }

func (s *Sound) play(file string) {
	if s.player == "" || file == "" {
		return
	}
	cmd := exec.Command(s.player, file)
	if err := cmd.Start(); err != nil {
		s.log.Warn("sound playback failed", "player", s.player, "file", file, "error", err)
		return
	}
	go func() {
		_ = cmd.Wait()
	}()
}

// Nop discards all notifications. Used in tests and headless deployments.
type Nop struct{}

func (Nop) Success() {}
func (Nop) Alert()   {}

// Recorder counts notifications for tests.
type Recorder struct {
	Successes int
	Alerts    int
}

func (r *Recorder) Success() { r.Successes++ }
func (r *Recorder) Alert()   { r.Alerts++ }

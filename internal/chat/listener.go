// Package chat receives signal messages from the chat-transport bridge over a
// WebSocket stream and feeds them to the dispatcher. The listener reconnects
// with backoff and re-subscribes its channel binding whenever the operator
// changes it.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"telebridge/internal/domain"
	"telebridge/internal/settings"
	"telebridge/internal/util"
)

// frame is one message on the bridge stream.
type frame struct {
	ChannelID int64  `json:"channel_id"`
	Text      string `json:"text"`
}

// subscribeFrame tells the bridge which channels to forward.
type subscribeFrame struct {
	Op       string  `json:"op"`
	Channels []int64 `json:"channels"`
}

// Listener consumes the bridge stream and emits inbound messages.
type Listener struct {
	url   string
	store *settings.Store
	log   *slog.Logger

	dialer *websocket.Dialer

	// reconnect tuning
	maxAttempts int
	baseDelay   time.Duration
}

// NewListener creates a Listener for the bridge at url.
func NewListener(url string, store *settings.Store, log *slog.Logger) *Listener {
	return &Listener{
		url:         url,
		store:       store,
		log:         log,
		dialer:      websocket.DefaultDialer,
		maxAttempts: 5,
		baseDelay:   time.Second,
	}
}

// Run connects to the bridge and forwards messages to out until the context
// is cancelled. Connection drops trigger reconnection with backoff; only when
// all attempts for one cycle fail does Run return the error.
func (l *Listener) Run(ctx context.Context, out chan<- domain.InboundMessage) error {
	for {
		var conn *websocket.Conn
		err := util.Retry(ctx, l.maxAttempts, l.baseDelay, func() error {
			c, _, err := l.dialer.DialContext(ctx, l.url, nil)
			if err != nil {
				l.log.Warn("bridge dial failed", "url", l.url, "error", err)
				return err
			}
			conn = c
			return nil
		})
		if err != nil {
			return fmt.Errorf("connecting to chat bridge: %w", err)
		}
		l.log.Info("chat bridge connected", "url", l.url)

		// An unusable channel binding is a configuration problem, not a
		// transient fault: fail instead of reconnecting.
		if err := l.subscribe(conn); err != nil {
			conn.Close()
			return err
		}

		err = l.pump(ctx, conn, out)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.Warn("chat bridge connection lost, reconnecting", "error", err)
	}
}

// pump reads frames until the connection breaks or the context is cancelled.
// A settings subscription re-sends the subscribe frame when the operator
// rebinds the channel set.
func (l *Listener) pump(ctx context.Context, conn *websocket.Conn, out chan<- domain.InboundMessage) error {
	subID, events := l.store.Subscribe(4)
	defer l.store.Unsubscribe(subID)

	// The reader goroutine owns conn reads; the outer loop owns writes.
	frames := make(chan frame)
	readErr := make(chan error, 1)
	go func() {
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return err

		case ev := <-events:
			if ev.Doc != "channels" {
				continue
			}
			l.log.Info("channel binding changed, re-subscribing")
			if err := l.subscribe(conn); err != nil {
				return err
			}

		case f := <-frames:
			msg := domain.InboundMessage{
				Channel:    f.ChannelID,
				Text:       f.Text,
				ReceivedAt: time.Now(),
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// subscribe sends the current channel binding to the bridge.
func (l *Listener) subscribe(conn *websocket.Conn) error {
	doc, err := l.store.Channels()
	if err != nil {
		return fmt.Errorf("loading channel binding: %w", err)
	}
	channels := doc.Active()
	if len(channels) == 0 {
		return fmt.Errorf("no active channels configured")
	}

	payload, err := json.Marshal(subscribeFrame{Op: "subscribe", Channels: channels})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("sending subscribe frame: %w", err)
	}
	l.log.Info("subscribed to channels", "channels", channels)
	return nil
}

// ListChannels connects once and asks the bridge for the channels visible to
// the account. Used by the operator tooling to discover channel IDs.
func (l *Listener) ListChannels(ctx context.Context) ([]ChannelInfo, error) {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to chat bridge: %w", err)
	}
	defer conn.Close()

	req, _ := json.Marshal(map[string]string{"op": "list_channels"})
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return nil, fmt.Errorf("requesting channel list: %w", err)
	}

	var resp struct {
		Channels []ChannelInfo `json:"channels"`
	}
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("reading channel list: %w", err)
	}
	return resp.Channels, nil
}

// ChannelInfo describes one chat channel visible to the bridge account.
type ChannelInfo struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

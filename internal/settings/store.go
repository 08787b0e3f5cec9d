// Package settings provides the JSON-document configuration store consumed
// by the signal pipeline: risk settings, broker profiles, channel bindings,
// and per-broker leverage maps. Documents are read fresh on every access so
// the dispatcher always sees the last successfully written value, and writes
// are broadcast to subscribers for runtime rebinding.
package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"telebridge/internal/domain"
)

// Document filenames under the store directory.
const (
	riskFile     = "settings.json"
	brokersFile  = "brokers.json"
	channelsFile = "channels.json"
	leverageDir  = "leverage_maps"
)

// Event notifies subscribers that a document changed.
type Event struct {
	Doc string `json:"doc"` // "risk", "brokers", "channels"
}

// BrokersDoc is the broker credentials document: one active profile name and
// the set of configured profiles.
type BrokersDoc struct {
	Active  string                          `json:"active"`
	Brokers map[string]domain.BrokerProfile `json:"brokers"`
}

// ChannelsDoc is the chat channel binding document.
type ChannelsDoc struct {
	ChannelIDs  []int64 `json:"channel_ids"`
	ActiveIndex int     `json:"active_index"`
	ListenToAll bool    `json:"listen_to_all"`
}

// Active returns the channel set the dispatcher should accept messages from.
// Empty when no valid binding exists.
func (c ChannelsDoc) Active() []int64 {
	if c.ListenToAll {
		return c.ChannelIDs
	}
	if c.ActiveIndex >= 0 && c.ActiveIndex < len(c.ChannelIDs) {
		return []int64{c.ChannelIDs[c.ActiveIndex]}
	}
	return nil
}

// LeverageEntry is one instrument row in a leverage-map document. Field names
// match the documents the operator tooling produces.
type LeverageEntry struct {
	Instrument string  `json:"Instrument"`
	Leverage   float64 `json:"Leverage"`
}

// LeverageMap is a per-broker leverage document: category name to instrument
// rows.
type LeverageMap map[string][]LeverageEntry

// Store reads and writes the JSON configuration documents with subscriber
// notifications on writes.
type Store struct {
	dir string
	log *slog.Logger

	mu sync.RWMutex // serializes document reads against writes

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Event
}

// NewStore creates a Store rooted at dir. The directory is created if absent.
func NewStore(dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, leverageDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating settings dir: %w", err)
	}
	return &Store{
		dir:  dir,
		log:  log,
		subs: make(map[int]chan Event),
	}, nil
}

// Risk returns the current risk settings.
func (s *Store) Risk() (domain.RiskSettings, error) {
	var rs domain.RiskSettings
	err := s.readDoc(riskFile, &rs)
	return rs, err
}

// SetRisk persists new risk settings and notifies subscribers.
func (s *Store) SetRisk(rs domain.RiskSettings) error {
	if err := s.writeDoc(riskFile, rs); err != nil {
		return err
	}
	s.broadcast(Event{Doc: "risk"})
	return nil
}

// Brokers returns the broker credentials document.
func (s *Store) Brokers() (BrokersDoc, error) {
	var doc BrokersDoc
	err := s.readDoc(brokersFile, &doc)
	return doc, err
}

// ActiveBroker returns the currently active broker profile. Fails when no
// active broker is set or its profile is missing.
func (s *Store) ActiveBroker() (domain.BrokerProfile, error) {
	doc, err := s.Brokers()
	if err != nil {
		return domain.BrokerProfile{}, err
	}
	if doc.Active == "" {
		return domain.BrokerProfile{}, fmt.Errorf("active broker not set")
	}
	p, ok := doc.Brokers[doc.Active]
	if !ok {
		return domain.BrokerProfile{}, fmt.Errorf("active broker %q not found", doc.Active)
	}
	p.Name = doc.Active
	return p, nil
}

// SetActiveBroker switches the active profile and notifies subscribers. The
// named broker must already be configured.
func (s *Store) SetActiveBroker(name string) error {
	doc, err := s.Brokers()
	if err != nil {
		return err
	}
	if _, ok := doc.Brokers[name]; !ok {
		return fmt.Errorf("broker %q not found", name)
	}
	doc.Active = name
	if err := s.writeDoc(brokersFile, doc); err != nil {
		return err
	}
	s.broadcast(Event{Doc: "brokers"})
	return nil
}

// SetBrokers replaces the whole broker document.
func (s *Store) SetBrokers(doc BrokersDoc) error {
	if err := s.writeDoc(brokersFile, doc); err != nil {
		return err
	}
	s.broadcast(Event{Doc: "brokers"})
	return nil
}

// Channels returns the channel binding document.
func (s *Store) Channels() (ChannelsDoc, error) {
	var doc ChannelsDoc
	err := s.readDoc(channelsFile, &doc)
	return doc, err
}

// SetChannels persists a new channel binding and notifies subscribers; the
// dispatcher rebinds its listener on this event.
func (s *Store) SetChannels(doc ChannelsDoc) error {
	if err := s.writeDoc(channelsFile, doc); err != nil {
		return err
	}
	s.broadcast(Event{Doc: "channels"})
	return nil
}

// LeverageMap loads the named leverage-map document from the leverage_maps
// directory.
func (s *Store) LeverageMap(filename string) (LeverageMap, error) {
	var m LeverageMap
	err := s.readDoc(filepath.Join(leverageDir, filename), &m)
	return m, err
}

// Subscribe returns a channel that receives a notification for every write.
// Slow consumers have events dropped.
func (s *Store) Subscribe(bufSize int) (int, <-chan Event) {
	ch := make(chan Event, bufSize)
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	s.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(id int) {
	s.subsMu.Lock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
	s.subsMu.Unlock()
}

func (s *Store) broadcast(e Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Slow consumer — drop event.
		}
	}
}

func (s *Store) readDoc(name string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

func (s *Store) writeDoc(name string, doc any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

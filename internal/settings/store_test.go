package settings

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"telebridge/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return s
}

func TestRiskRoundTrip(t *testing.T) {
	s := newTestStore(t)

	rs := domain.RiskSettings{
		LotMethod:     domain.LotPercentStart,
		LotPercent:    5,
		MaxCapPercent: 20,
		Reinvest:      false,
		DefaultLot:    0.01,
		AcceptPutCall: true,
	}
	if err := s.SetRisk(rs); err != nil {
		t.Fatalf("SetRisk returned error: %v", err)
	}

	got, err := s.Risk()
	if err != nil {
		t.Fatalf("Risk returned error: %v", err)
	}
	if got != rs {
		t.Errorf("Risk = %+v, want %+v", got, rs)
	}
}

func TestRiskMissingFile(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Risk(); err == nil {
		t.Fatal("Risk should fail when settings.json is absent")
	}
}

func TestActiveBroker(t *testing.T) {
	s := newTestStore(t)

	doc := BrokersDoc{
		Active: "icmarkets",
		Brokers: map[string]domain.BrokerProfile{
			"icmarkets": {Account: 123456, Password: "pw", Server: "ICMarkets-Live", LeverageMap: "ic.json", Tier: domain.TierStandard},
			"mq-demo":   {Account: 1, Password: "pw", Server: "MetaQuotes-Demo", Tier: domain.TierDemo},
		},
	}
	if err := s.SetBrokers(doc); err != nil {
		t.Fatalf("SetBrokers returned error: %v", err)
	}

	p, err := s.ActiveBroker()
	if err != nil {
		t.Fatalf("ActiveBroker returned error: %v", err)
	}
	if p.Name != "icmarkets" {
		t.Errorf("ActiveBroker Name = %q, want %q", p.Name, "icmarkets")
	}
	if p.Server != "ICMarkets-Live" {
		t.Errorf("ActiveBroker Server = %q, want %q", p.Server, "ICMarkets-Live")
	}

	if err := s.SetActiveBroker("mq-demo"); err != nil {
		t.Fatalf("SetActiveBroker returned error: %v", err)
	}
	p, err = s.ActiveBroker()
	if err != nil {
		t.Fatalf("ActiveBroker after switch returned error: %v", err)
	}
	if p.Name != "mq-demo" {
		t.Errorf("ActiveBroker after switch = %q, want %q", p.Name, "mq-demo")
	}

	if err := s.SetActiveBroker("missing"); err == nil {
		t.Error("SetActiveBroker should reject an unconfigured broker")
	}
}

func TestChannelsActive(t *testing.T) {
	cases := []struct {
		name string
		doc  ChannelsDoc
		want []int64
	}{
		{
			name: "listen to all",
			doc:  ChannelsDoc{ChannelIDs: []int64{-100, -200}, ListenToAll: true},
			want: []int64{-100, -200},
		},
		{
			name: "single by index",
			doc:  ChannelsDoc{ChannelIDs: []int64{-100, -200}, ActiveIndex: 1},
			want: []int64{-200},
		},
		{
			name: "index out of range",
			doc:  ChannelsDoc{ChannelIDs: []int64{-100}, ActiveIndex: 5},
			want: nil,
		},
		{
			name: "empty list",
			doc:  ChannelsDoc{ListenToAll: true},
			want: nil,
		},
	}

	for _, tc := range cases {
		got := tc.doc.Active()
		if len(got) != len(tc.want) {
			t.Errorf("%s: Active() = %v, want %v", tc.name, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%s: Active()[%d] = %d, want %d", tc.name, i, got[i], tc.want[i])
			}
		}
	}
}

func TestLeverageMapLoad(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	doc := []byte(`{
  "FX Majors": [{"Instrument": "EURUSD", "Leverage": 30}],
  "platform": [{"Instrument": "ignored", "Leverage": 1}]
}`)
	if err := os.WriteFile(filepath.Join(dir, "leverage_maps", "ic.json"), doc, 0o644); err != nil {
		t.Fatalf("writing leverage map: %v", err)
	}

	m, err := s.LeverageMap("ic.json")
	if err != nil {
		t.Fatalf("LeverageMap returned error: %v", err)
	}
	rows := m["FX Majors"]
	if len(rows) != 1 || rows[0].Instrument != "EURUSD" || rows[0].Leverage != 30 {
		t.Errorf("FX Majors rows = %+v, want one EURUSD@30", rows)
	}
}

func TestSubscribeReceivesWrites(t *testing.T) {
	s := newTestStore(t)

	id, ch := s.Subscribe(4)
	defer s.Unsubscribe(id)

	if err := s.SetChannels(ChannelsDoc{ChannelIDs: []int64{-1}, ListenToAll: true}); err != nil {
		t.Fatalf("SetChannels returned error: %v", err)
	}

	select {
	case e := <-ch:
		if e.Doc != "channels" {
			t.Errorf("event Doc = %q, want %q", e.Doc, "channels")
		}
	default:
		t.Fatal("expected a buffered event after SetChannels")
	}
}

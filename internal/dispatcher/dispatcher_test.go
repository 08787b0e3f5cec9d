package dispatcher

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"telebridge/internal/broker"
	"telebridge/internal/domain"
	"telebridge/internal/executor"
	"telebridge/internal/leverage"
	"telebridge/internal/notify"
	"telebridge/internal/settings"
	"telebridge/internal/sizing"
	"telebridge/internal/symbols"
)

const testChannel int64 = 100

type journalEntry struct {
	sig    domain.ParsedSignal
	symbol string
	res    *domain.OrderResult
}

// memJournal records signals in memory for assertions.
type memJournal struct {
	entries []journalEntry
}

func (j *memJournal) RecordSignal(_ context.Context, _ domain.InboundMessage, sig domain.ParsedSignal, symbol string) (string, error) {
	j.entries = append(j.entries, journalEntry{sig: sig, symbol: symbol})
	return "id", nil
}

func (j *memJournal) RecordResult(_ context.Context, _ string, res *domain.OrderResult) error {
	if len(j.entries) > 0 {
		j.entries[len(j.entries)-1].res = res
	}
	return nil
}

type fixture struct {
	d   *Dispatcher
	sim *broker.Sim
	rec *notify.Recorder
	jrn *memJournal
	st  *settings.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := settings.NewStore(t.TempDir(), log)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	if err := store.SetBrokers(settings.BrokersDoc{
		Active: "sim",
		Brokers: map[string]domain.BrokerProfile{
			"sim": {Account: 1, Password: "pw", Server: "Sim-Live", Tier: domain.TierStandard},
		},
	}); err != nil {
		t.Fatalf("SetBrokers returned error: %v", err)
	}
	if err := store.SetChannels(settings.ChannelsDoc{ChannelIDs: []int64{testChannel}, ActiveIndex: 0}); err != nil {
		t.Fatalf("SetChannels returned error: %v", err)
	}
	if err := store.SetRisk(domain.RiskSettings{
		LotMethod:     domain.LotPercentStart,
		LotPercent:    5,
		MaxCapPercent: 20,
		DefaultLot:    0.1,
		AcceptPutCall: true,
	}); err != nil {
		t.Fatalf("SetRisk returned error: %v", err)
	}

	sim := broker.NewSim()
	sim.SetAccount(domain.AccountSnapshot{Balance: 10_000, FreeMargin: 10_000})
	sim.AddInstrument(domain.Instrument{
		Name:         "EURUSD",
		ContractSize: 1,
		VolumeStep:   0.01,
		VolumeMin:    0.01,
		VolumeMax:    100_000,
		Point:        1,
		StopsLevel:   5,
		Visible:      true,
	})
	sim.SetTick("EURUSD", 99, 100)

	sess := broker.NewSession(sim, store, log, time.UTC)
	sizer := sizing.NewSizer(sess, leverage.NewResolver(store, log), log)
	rec := &notify.Recorder{}
	exec := executor.New(sess, sizer, rec, log, executor.Options{Deviation: 20, Magic: 234000, Comment: "TeleBot"})
	jrn := &memJournal{}
	d := New(store, symbols.NewResolver(sim, log), exec, jrn, rec, log)
	return &fixture{d: d, sim: sim, rec: rec, jrn: jrn, st: store}
}

func (f *fixture) send(t *testing.T, text string) {
	t.Helper()
	f.d.Handle(context.Background(), domain.InboundMessage{
		Channel:    testChannel,
		Text:       text,
		ReceivedAt: time.Now(),
	})
}

func TestHandleOpenCarriesPendingStops(t *testing.T) {
	f := newFixture(t)

	f.send(t, "SL: 90")
	f.send(t, "TP: 115")
	f.send(t, "I Buy EURUSD")

	sent := f.sim.SentRequests()
	if len(sent) != 1 {
		t.Fatalf("sent requests = %d, want 1", len(sent))
	}
	if sent[0].SL != 90 || sent[0].TP != 115 {
		t.Errorf("got sl=%v tp=%v, want the pending 90/115", sent[0].SL, sent[0].TP)
	}
	if sent[0].Type != domain.ActionBuy {
		t.Errorf("Type = %q, want buy", sent[0].Type)
	}
}

func TestHandleStatePersistsAcrossOpens(t *testing.T) {
	f := newFixture(t)

	f.send(t, "SL: 90")
	f.send(t, "I Buy EURUSD")
	f.send(t, "I Buy EURUSD")

	sent := f.sim.SentRequests()
	if len(sent) != 2 {
		t.Fatalf("sent requests = %d, want 2", len(sent))
	}
	for i, req := range sent {
		if req.SL != 90 {
			t.Errorf("open %d SL = %v, want the persistent 90", i, req.SL)
		}
	}
}

func TestHandleStateMessageDoesNotDispatch(t *testing.T) {
	f := newFixture(t)

	f.send(t, "SL: 1.2345")

	if n := len(f.sim.SentRequests()); n != 0 {
		t.Errorf("sent requests = %d, want 0 for a state message", n)
	}
	sl, tp := f.d.State()
	if sl != 1.2345 || tp != 0 {
		t.Errorf("State() = %v/%v, want 1.2345/0", sl, tp)
	}
}

func TestHandleClose(t *testing.T) {
	f := newFixture(t)
	f.sim.AddPosition(domain.Position{Symbol: "EURUSD", Type: domain.ActionBuy, Volume: 0.5})

	f.send(t, "CLOSE EURUSD")

	positions, err := f.sim.Positions(context.Background(), broker.PositionFilter{Symbol: "EURUSD"})
	if err != nil {
		t.Fatalf("Positions returned error: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("open positions = %d, want 0 after close", len(positions))
	}
}

func TestHandleSetStopsOnOpenPositions(t *testing.T) {
	f := newFixture(t)
	f.sim.AddPosition(domain.Position{Symbol: "EURUSD", Type: domain.ActionBuy, Volume: 0.5})

	f.send(t, "Ich setze den SL bei EURUSD auf 95")
	f.send(t, "Ich setze den TP bei EURUSD auf 120")

	positions, err := f.sim.Positions(context.Background(), broker.PositionFilter{Symbol: "EURUSD"})
	if err != nil {
		t.Fatalf("Positions returned error: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("open positions = %d, want 1", len(positions))
	}
	if positions[0].SL != 95 || positions[0].TP != 120 {
		t.Errorf("got sl=%v tp=%v, want 95/120", positions[0].SL, positions[0].TP)
	}
}

func TestHandleDropsUnboundChannel(t *testing.T) {
	f := newFixture(t)

	f.d.Handle(context.Background(), domain.InboundMessage{Channel: 999, Text: "I Buy EURUSD"})

	if n := len(f.sim.SentRequests()); n != 0 {
		t.Errorf("sent requests = %d, want 0 for an unbound channel", n)
	}
	if len(f.jrn.entries) != 0 {
		t.Errorf("journal entries = %d, want 0", len(f.jrn.entries))
	}
}

func TestHandleListenToAll(t *testing.T) {
	f := newFixture(t)
	if err := f.st.SetChannels(settings.ChannelsDoc{
		ChannelIDs:  []int64{testChannel, 200},
		ListenToAll: true,
	}); err != nil {
		t.Fatalf("SetChannels returned error: %v", err)
	}

	f.d.Handle(context.Background(), domain.InboundMessage{Channel: 200, Text: "I Buy EURUSD"})

	if n := len(f.sim.SentRequests()); n != 1 {
		t.Errorf("sent requests = %d, want 1 in listen-to-all mode", n)
	}
}

func TestHandleSuppressedSignalNotDispatched(t *testing.T) {
	f := newFixture(t)
	if err := f.st.SetRisk(domain.RiskSettings{
		LotMethod:     domain.LotPercentStart,
		LotPercent:    5,
		MaxCapPercent: 20,
		DefaultLot:    0.1,
		AcceptPutCall: false,
	}); err != nil {
		t.Fatalf("SetRisk returned error: %v", err)
	}

	f.send(t, "I Buy EURUSD Put 4500")

	if n := len(f.sim.SentRequests()); n != 0 {
		t.Errorf("sent requests = %d, want 0 for a suppressed signal", n)
	}
	if len(f.jrn.entries) != 1 || !f.jrn.entries[0].sig.Suppressed {
		t.Fatalf("journal should hold the suppressed signal, got %+v", f.jrn.entries)
	}
}

func (f *fixture) addOptionSeries(name string) {
	f.sim.AddInstrument(domain.Instrument{
		Name:         name,
		ContractSize: 1,
		VolumeStep:   0.01,
		VolumeMin:    0.01,
		VolumeMax:    100_000,
		Point:        1,
		StopsLevel:   5,
		Visible:      true,
	})
	f.sim.SetTick(name, 99, 100)
}

func TestHandleBuyPutOpensSell(t *testing.T) {
	f := newFixture(t)
	f.addOptionSeries("EURUSD-4500-P")

	f.send(t, "I Buy EURUSD Put 4500")

	sent := f.sim.SentRequests()
	if len(sent) != 1 {
		t.Fatalf("sent requests = %d, want 1", len(sent))
	}
	if sent[0].Type != domain.ActionSell {
		t.Errorf("Type = %q, want sell (buying a put is bearish)", sent[0].Type)
	}
}

func TestHandleOpenWithStrikeTradesOptionSeries(t *testing.T) {
	f := newFixture(t)
	f.addOptionSeries("EURUSD-4500-C")

	f.send(t, "I Buy EURUSD Call 4500")

	sent := f.sim.SentRequests()
	if len(sent) != 1 {
		t.Fatalf("sent requests = %d, want 1", len(sent))
	}
	if sent[0].Symbol != "EURUSD-4500-C" {
		t.Errorf("Symbol = %q, want the option series EURUSD-4500-C", sent[0].Symbol)
	}
	if sent[0].Type != domain.ActionBuy {
		t.Errorf("Type = %q, want buy", sent[0].Type)
	}
}

func TestHandleOpenLegWithoutStrikeTradesBase(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I Buy EURUSD Call")

	sent := f.sim.SentRequests()
	if len(sent) != 1 {
		t.Fatalf("sent requests = %d, want 1", len(sent))
	}
	if sent[0].Symbol != "EURUSD" {
		t.Errorf("Symbol = %q, want the base instrument without a strike", sent[0].Symbol)
	}
}

func TestHandleUnknownOptionSeriesRejected(t *testing.T) {
	f := newFixture(t)

	// The base resolves but the broker does not list this series.
	f.send(t, "I Buy EURUSD Call 9999")

	if n := len(f.sim.SentRequests()); n != 0 {
		t.Errorf("sent requests = %d, want 0 for an unlisted option series", n)
	}
	if f.rec.Alerts == 0 {
		t.Error("an unlisted option series should raise an alert")
	}
	if len(f.jrn.entries) != 1 || f.jrn.entries[0].res == nil ||
		f.jrn.entries[0].res.Retcode != domain.RetcodeDisabled {
		t.Errorf("journal = %+v, want a disabled-instrument result", f.jrn.entries)
	}
}

func TestHandleUnknownSymbolAlerts(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I Buy NOPE123")

	if n := len(f.sim.SentRequests()); n != 0 {
		t.Errorf("sent requests = %d, want 0", n)
	}
	if f.rec.Alerts == 0 {
		t.Error("unknown symbol should raise an alert")
	}
}

func TestHandleRecordsResults(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I Buy EURUSD")

	if len(f.jrn.entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(f.jrn.entries))
	}
	e := f.jrn.entries[0]
	if e.symbol != "EURUSD" {
		t.Errorf("journaled symbol = %q, want EURUSD", e.symbol)
	}
	if e.res == nil || !e.res.OK() {
		t.Errorf("journaled result = %+v, want an accepted order", e.res)
	}
}

func TestRunProcessesInArrivalOrder(t *testing.T) {
	f := newFixture(t)

	msgs := make(chan domain.InboundMessage, 2)
	msgs <- domain.InboundMessage{Channel: testChannel, Text: "SL: 90"}
	msgs <- domain.InboundMessage{Channel: testChannel, Text: "I Buy EURUSD"}
	close(msgs)

	if err := f.d.Run(context.Background(), msgs); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	sent := f.sim.SentRequests()
	if len(sent) != 1 {
		t.Fatalf("sent requests = %d, want 1", len(sent))
	}
	if sent[0].SL != 90 {
		t.Errorf("SL = %v, want 90: the state message must be applied before the open", sent[0].SL)
	}
}

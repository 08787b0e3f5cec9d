package executor

import (
	"context"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"telebridge/internal/broker"
	"telebridge/internal/domain"
	"telebridge/internal/leverage"
	"telebridge/internal/notify"
	"telebridge/internal/settings"
	"telebridge/internal/sizing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func testRisk() domain.RiskSettings {
	return domain.RiskSettings{
		LotMethod:     domain.LotPercentStart,
		LotPercent:    5,
		MaxCapPercent: 20,
		DefaultLot:    0.1,
	}
}

func newTestExecutor(t *testing.T) (*Executor, *broker.Sim, *notify.Recorder) {
	t.Helper()

	sim := broker.NewSim()
	sim.SetAccount(domain.AccountSnapshot{Balance: 10_000, FreeMargin: 10_000})

	log := testLogger()
	store, err := settings.NewStore(t.TempDir(), log)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	doc := settings.BrokersDoc{
		Active: "sim",
		Brokers: map[string]domain.BrokerProfile{
			"sim": {Account: 1, Password: "pw", Server: "Sim-Live", Tier: domain.TierStandard},
		},
	}
	if err := store.SetBrokers(doc); err != nil {
		t.Fatalf("SetBrokers returned error: %v", err)
	}

	sess := broker.NewSession(sim, store, log, time.UTC)
	sizer := sizing.NewSizer(sess, leverage.NewResolver(store, log), log)
	rec := &notify.Recorder{}
	exec := New(sess, sizer, rec, log, Options{Deviation: 20, Magic: 234000, Comment: "TeleBot"})
	return exec, sim, rec
}

func addTestInstrument(sim *broker.Sim, name string) {
	sim.AddInstrument(domain.Instrument{
		Name:         name,
		ContractSize: 1,
		VolumeStep:   0.01,
		VolumeMin:    0.01,
		VolumeMax:    100_000,
		Point:        1,
		StopsLevel:   5,
		Visible:      true,
	})
}

func TestOpenSubmitsSizedOrder(t *testing.T) {
	exec, sim, rec := newTestExecutor(t)
	addTestInstrument(sim, "EURUSD")
	sim.SetTick("EURUSD", 99, 100)

	res := exec.Open(context.Background(), domain.ActionBuy, "EURUSD", testRisk(), 0, 0, 0)
	if !res.OK() {
		t.Fatalf("Open failed: retcode %d %s", res.Retcode, res.Comment)
	}

	sent := sim.SentRequests()
	if len(sent) != 1 {
		t.Fatalf("sent requests = %d, want 1", len(sent))
	}
	req := sent[0]
	if req.Type != domain.ActionBuy || req.Price != 100 {
		t.Errorf("got type=%q price=%v, want buy at the ask 100", req.Type, req.Price)
	}
	// 5% of 10k start capital is 500 of margin: 75k notional at price 100.
	if math.Abs(req.Volume-750) > 1e-3 {
		t.Errorf("Volume = %v, want 750", req.Volume)
	}
	if req.Magic != 234000 || req.Comment != "TeleBot" || req.Deviation != 20 {
		t.Errorf("request constants = magic %d comment %q deviation %d", req.Magic, req.Comment, req.Deviation)
	}
	if rec.Successes != 1 || rec.Alerts != 0 {
		t.Errorf("notifications = %d successes %d alerts, want 1/0", rec.Successes, rec.Alerts)
	}
}

func TestOpenGuardsStopDistance(t *testing.T) {
	exec, sim, _ := newTestExecutor(t)
	addTestInstrument(sim, "EURUSD") // stops_level 5, point 1 => min distance 5
	sim.SetTick("EURUSD", 99, 100)

	// SL 97 is inside the 5-point minimum distance from 100 and must be
	// dropped; TP 110 is valid and survives.
	res := exec.Open(context.Background(), domain.ActionBuy, "EURUSD", testRisk(), 0, 97, 110)
	if !res.OK() {
		t.Fatalf("Open failed: retcode %d %s", res.Retcode, res.Comment)
	}

	req := sim.SentRequests()[0]
	if req.SL != 0 {
		t.Errorf("SL = %v, want 0 (violates minimum stop distance)", req.SL)
	}
	if req.TP != 110 {
		t.Errorf("TP = %v, want 110", req.TP)
	}
}

func TestOpenGuardsStopDistanceSellSide(t *testing.T) {
	exec, sim, _ := newTestExecutor(t)
	addTestInstrument(sim, "EURUSD")
	sim.SetTick("EURUSD", 100, 101)

	// For a sell at bid 100: SL must sit above 105, TP below 95.
	res := exec.Open(context.Background(), domain.ActionSell, "EURUSD", testRisk(), 0, 103, 97)
	if !res.OK() {
		t.Fatalf("Open failed: retcode %d %s", res.Retcode, res.Comment)
	}

	req := sim.SentRequests()[0]
	if req.SL != 0 {
		t.Errorf("SL = %v, want 0 (inside minimum distance above price)", req.SL)
	}
	if req.TP != 0 {
		t.Errorf("TP = %v, want 0 (inside minimum distance below price)", req.TP)
	}
}

func TestOpenRetriesFillModes(t *testing.T) {
	exec, sim, rec := newTestExecutor(t)
	addTestInstrument(sim, "EURUSD")
	sim.SetTick("EURUSD", 99, 100)
	sim.AcceptFills(domain.FillReturn)

	res := exec.Open(context.Background(), domain.ActionBuy, "EURUSD", testRisk(), 0, 0, 0)
	if !res.OK() {
		t.Fatalf("Open failed: retcode %d %s", res.Retcode, res.Comment)
	}

	sent := sim.SentRequests()
	if len(sent) != 3 {
		t.Fatalf("sent requests = %d, want 3 (one per fill mode)", len(sent))
	}
	wantOrder := []domain.FillMode{domain.FillIOC, domain.FillFOK, domain.FillReturn}
	for i, want := range wantOrder {
		if sent[i].FillMode != want {
			t.Errorf("attempt %d fill mode = %v, want %v", i, sent[i].FillMode, want)
		}
	}
	if rec.Successes != 1 {
		t.Errorf("successes = %d, want 1", rec.Successes)
	}
}

func TestOpenAllFillModesRejected(t *testing.T) {
	exec, sim, rec := newTestExecutor(t)
	addTestInstrument(sim, "EURUSD")
	sim.SetTick("EURUSD", 99, 100)
	sim.AcceptFills(domain.FillMode(99)) // broker accepts none of the tried modes

	res := exec.Open(context.Background(), domain.ActionBuy, "EURUSD", testRisk(), 0, 0, 0)
	if res.Retcode != domain.RetcodeUnsupportedFill {
		t.Errorf("Retcode = %d, want %d", res.Retcode, domain.RetcodeUnsupportedFill)
	}
	if rec.Alerts != 1 {
		t.Errorf("alerts = %d, want 1", rec.Alerts)
	}
}

func TestOpenPreconditions(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		exec, sim, rec := newTestExecutor(t)
		sim.LoginOK = false

		res := exec.Open(context.Background(), domain.ActionBuy, "EURUSD", testRisk(), 0, 0, 0)
		if res.Retcode != domain.RetcodeNotConnected {
			t.Errorf("Retcode = %d, want %d", res.Retcode, domain.RetcodeNotConnected)
		}
		if rec.Alerts != 1 {
			t.Errorf("alerts = %d, want 1", rec.Alerts)
		}
	})

	t.Run("unknown symbol", func(t *testing.T) {
		exec, _, _ := newTestExecutor(t)
		res := exec.Open(context.Background(), domain.ActionBuy, "NOPE", testRisk(), 0, 0, 0)
		if res.Retcode != domain.RetcodeDisabled {
			t.Errorf("Retcode = %d, want %d", res.Retcode, domain.RetcodeDisabled)
		}
	})

	t.Run("trading disabled", func(t *testing.T) {
		exec, sim, _ := newTestExecutor(t)
		sim.AddInstrument(domain.Instrument{Name: "EURUSD", ContractSize: 1, TradeDisabled: true})
		res := exec.Open(context.Background(), domain.ActionBuy, "EURUSD", testRisk(), 0, 0, 0)
		if res.Retcode != domain.RetcodeDisabled {
			t.Errorf("Retcode = %d, want %d", res.Retcode, domain.RetcodeDisabled)
		}
	})

	t.Run("no price", func(t *testing.T) {
		exec, sim, _ := newTestExecutor(t)
		addTestInstrument(sim, "EURUSD") // no tick scripted
		res := exec.Open(context.Background(), domain.ActionBuy, "EURUSD", testRisk(), 0, 0, 0)
		if res.Retcode != domain.RetcodeNoPrice {
			t.Errorf("Retcode = %d, want %d", res.Retcode, domain.RetcodeNoPrice)
		}
	})

	t.Run("zero lot", func(t *testing.T) {
		exec, sim, _ := newTestExecutor(t)
		sim.AddInstrument(domain.Instrument{
			Name:         "EURUSD",
			ContractSize: 1,
			VolumeStep:   1,
			VolumeMin:    1000, // budget cannot reach the minimum volume
			VolumeMax:    100_000,
			Visible:      true,
		})
		sim.SetTick("EURUSD", 99, 100)

		res := exec.Open(context.Background(), domain.ActionBuy, "EURUSD", testRisk(), 0, 0, 0)
		if res.Retcode != domain.RetcodeNoVolume {
			t.Errorf("Retcode = %d, want %d", res.Retcode, domain.RetcodeNoVolume)
		}
	})
}

func TestCloseSubmitsOppositeDeal(t *testing.T) {
	exec, sim, rec := newTestExecutor(t)
	addTestInstrument(sim, "EURUSD")
	sim.SetTick("EURUSD", 99, 101)
	ticket := sim.AddPosition(domain.Position{Symbol: "EURUSD", Type: domain.ActionBuy, Volume: 0.5, PriceOpen: 100, Magic: 234000})

	res := exec.Close(context.Background(), "EURUSD")
	if !res.OK() {
		t.Fatalf("Close failed: retcode %d %s", res.Retcode, res.Comment)
	}

	req := sim.SentRequests()[0]
	if req.Type != domain.ActionSell || req.Price != 99 {
		t.Errorf("got type=%q price=%v, want sell at the bid 99", req.Type, req.Price)
	}
	if req.Position != ticket || req.Volume != 0.5 {
		t.Errorf("got position=%d volume=%v, want %d/0.5", req.Position, req.Volume, ticket)
	}

	positions, err := sim.Positions(context.Background(), broker.PositionFilter{Symbol: "EURUSD"})
	if err != nil {
		t.Fatalf("Positions returned error: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("open positions after close = %d, want 0", len(positions))
	}
	if rec.Successes != 1 {
		t.Errorf("successes = %d, want 1", rec.Successes)
	}
}

func TestCloseClosesEveryPosition(t *testing.T) {
	exec, sim, _ := newTestExecutor(t)
	addTestInstrument(sim, "EURUSD")
	sim.SetTick("EURUSD", 99, 101)
	sim.AddPosition(domain.Position{Symbol: "EURUSD", Type: domain.ActionBuy, Volume: 0.5})
	sim.AddPosition(domain.Position{Symbol: "EURUSD", Type: domain.ActionSell, Volume: 0.3})

	res := exec.Close(context.Background(), "EURUSD")
	if !res.OK() {
		t.Fatalf("Close failed: retcode %d %s", res.Retcode, res.Comment)
	}

	positions, err := sim.Positions(context.Background(), broker.PositionFilter{Symbol: "EURUSD"})
	if err != nil {
		t.Fatalf("Positions returned error: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("open positions after close = %d, want 0", len(positions))
	}
}

func TestCloseNoPosition(t *testing.T) {
	exec, sim, rec := newTestExecutor(t)
	addTestInstrument(sim, "EURUSD")

	res := exec.Close(context.Background(), "EURUSD")
	if res.Retcode != domain.RetcodeNoPosition {
		t.Errorf("Retcode = %d, want %d", res.Retcode, domain.RetcodeNoPosition)
	}
	if rec.Alerts != 1 {
		t.Errorf("alerts = %d, want 1", rec.Alerts)
	}
}

func TestSetStopsModifiesAllPositions(t *testing.T) {
	exec, sim, rec := newTestExecutor(t)
	addTestInstrument(sim, "EURUSD")
	t1 := sim.AddPosition(domain.Position{Symbol: "EURUSD", Type: domain.ActionBuy, Volume: 0.5, TP: 120})
	t2 := sim.AddPosition(domain.Position{Symbol: "EURUSD", Type: domain.ActionBuy, Volume: 0.3})

	res := exec.SetStops(context.Background(), "EURUSD", 95, 0)
	if !res.OK() {
		t.Fatalf("SetStops failed: retcode %d %s", res.Retcode, res.Comment)
	}

	positions, err := sim.Positions(context.Background(), broker.PositionFilter{Symbol: "EURUSD"})
	if err != nil {
		t.Fatalf("Positions returned error: %v", err)
	}
	for _, p := range positions {
		if p.SL != 95 {
			t.Errorf("ticket %d SL = %v, want 95", p.Ticket, p.SL)
		}
	}
	// A zero TP leaves the existing level untouched.
	for _, p := range positions {
		if p.Ticket == t1 && p.TP != 120 {
			t.Errorf("ticket %d TP = %v, want 120 preserved", t1, p.TP)
		}
		if p.Ticket == t2 && p.TP != 0 {
			t.Errorf("ticket %d TP = %v, want 0", t2, p.TP)
		}
	}
	if rec.Successes != 2 {
		t.Errorf("successes = %d, want 2", rec.Successes)
	}
}

func TestSetStopsTicket(t *testing.T) {
	exec, sim, _ := newTestExecutor(t)
	addTestInstrument(sim, "EURUSD")
	t1 := sim.AddPosition(domain.Position{Symbol: "EURUSD", Type: domain.ActionBuy, Volume: 0.5})
	t2 := sim.AddPosition(domain.Position{Symbol: "EURUSD", Type: domain.ActionBuy, Volume: 0.3})

	res := exec.SetStopsTicket(context.Background(), t2, 0, 130)
	if !res.OK() {
		t.Fatalf("SetStopsTicket failed: retcode %d %s", res.Retcode, res.Comment)
	}

	positions, err := sim.Positions(context.Background(), broker.PositionFilter{Ticket: t2})
	if err != nil {
		t.Fatalf("Positions returned error: %v", err)
	}
	if len(positions) != 1 || positions[0].TP != 130 {
		t.Fatalf("ticket %d TP = %v, want 130", t2, positions[0].TP)
	}

	other, _ := sim.Positions(context.Background(), broker.PositionFilter{Ticket: t1})
	if other[0].TP != 0 {
		t.Errorf("ticket %d TP = %v, want untouched 0", t1, other[0].TP)
	}

	res = exec.SetStopsTicket(context.Background(), 424242, 1, 0)
	if res.Retcode != domain.RetcodeNoPosition {
		t.Errorf("Retcode for unknown ticket = %d, want %d", res.Retcode, domain.RetcodeNoPosition)
	}
}

func TestOpenSendFailure(t *testing.T) {
	exec, sim, rec := newTestExecutor(t)
	addTestInstrument(sim, "EURUSD")
	sim.SetTick("EURUSD", 99, 100)
	sim.SendNil = true

	res := exec.Open(context.Background(), domain.ActionBuy, "EURUSD", testRisk(), 0, 0, 0)
	if res.Retcode != domain.RetcodeSendFailed {
		t.Errorf("Retcode = %d, want %d", res.Retcode, domain.RetcodeSendFailed)
	}
	if rec.Alerts != 1 {
		t.Errorf("alerts = %d, want 1", rec.Alerts)
	}
}

package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"riskcore/internal/common"
	"riskcore/internal/position"
	"riskcore/internal/risk"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAdmissionAuditRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		sig := risk.Signal{
			UserID:    int64(i),
			Symbol:    "ETHUSDT",
			Direction: common.DirectionLong,
			At:        t0.Add(time.Duration(i) * time.Minute),
		}
		adm := risk.Admission{Approved: true, Group: "ETH_HIGH", SizeMultiplier: 1.0}
		if err := s.RecordAdmission(sig, adm); err != nil {
			t.Fatal(err)
		}
	}
	// A decision in another group must not appear in ETH_HIGH scans.
	if err := s.RecordAdmission(
		risk.Signal{UserID: 9, Symbol: "SOLUSDT", Direction: common.DirectionLong, At: t0},
		risk.Admission{Approved: true, Group: "SOL_HIGH", SizeMultiplier: 1.0},
	); err != nil {
		t.Fatal(err)
	}

	records, err := s.AdmissionsInRange("ETH_HIGH", t0, t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.UserID != int64(i) {
			t.Errorf("record %d user = %d, want oldest-first ordering", i, rec.UserID)
		}
		if rec.Group != "ETH_HIGH" {
			t.Errorf("record %d group = %q", i, rec.Group)
		}
	}

	// Narrow the window to the middle record only.
	middle, err := s.AdmissionsInRange("ETH_HIGH", t0.Add(30*time.Second), t0.Add(90*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(middle) != 1 || middle[0].UserID != 1 {
		t.Errorf("narrow range = %+v, want only user 1", middle)
	}
}

func TestRejectedAdmissionFilesUnderOther(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	sig := risk.Signal{UserID: 1, Symbol: "ETHUSDT", Direction: common.DirectionShort, At: t0}
	adm := risk.Admission{Reason: common.ReasonOppositeDirection}
	if err := s.RecordAdmission(sig, adm); err != nil {
		t.Fatal(err)
	}

	records, err := s.AdmissionsInRange("OTHER", t0.Add(-time.Minute), t0.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record under OTHER, got %d", len(records))
	}
	if records[0].Approved || records[0].Reason != common.ReasonOppositeDirection {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestPositionRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	p, err := position.New(7, "BTCUSDT", common.DirectionLong, 50000, decimal.NewFromFloat(0.25), 48000, 52000, 55000, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	p.Sector = "L1"
	p.Group = "BTC_HIGH"
	p.MarkTP1()

	if err := s.SavePosition(p); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadPositions()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 position, got %d", len(loaded))
	}
	got := loaded[0]
	if got.UserID != 7 || got.Symbol != "BTCUSDT" || got.Group != "BTC_HIGH" {
		t.Errorf("unexpected position: %+v", got)
	}
	if !got.Quantity.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("quantity = %s, want 0.25", got.Quantity)
	}
	if !got.TP1Executed {
		t.Error("TP1 flag should survive the round trip")
	}

	if err := s.DeletePosition(7, "BTCUSDT"); err != nil {
		t.Fatal(err)
	}
	loaded, err = s.LoadPositions()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty store after delete, got %d positions", len(loaded))
	}
}

func TestBudgetRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	b := risk.NewBudget(3, decimal.NewFromInt(1000))
	b.ApplyPnL(decimal.NewFromInt(250))
	b.ApplyPnL(decimal.NewFromInt(-100))

	if err := s.SaveBudget(b); err != nil {
		t.Fatal(err)
	}

	snap, err := s.LoadBudget(3)
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil {
		t.Fatal("expected a snapshot")
	}
	if !snap.Balance.Equal(decimal.NewFromInt(1150)) {
		t.Errorf("balance = %s, want 1150", snap.Balance)
	}
	if !snap.PeakBalance.Equal(decimal.NewFromInt(1250)) {
		t.Errorf("peak = %s, want 1250", snap.PeakBalance)
	}
	if !snap.RealizedPnL.Equal(decimal.NewFromInt(150)) {
		t.Errorf("realized = %s, want 150", snap.RealizedPnL)
	}

	missing, err := s.LoadBudget(999)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("unknown user should load nil, got %+v", missing)
	}
}

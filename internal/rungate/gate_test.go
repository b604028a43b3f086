package rungate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"newsletterbot/internal/storage"
	logx "newsletterbot/pkg/logx"
)

var sast = time.FixedZone("SAST", 2*60*60)

func newGate(t *testing.T, now func() time.Time) (*Gate, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "runs.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	g, err := New(st, Config{Location: sast, Now: now}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g, st
}

func TestGateClosesDayAfterSuccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 10, 15, 9, 0, 0, 0, sast)
	g, _ := newGate(t, func() time.Time { return now })

	ok, err := g.ShouldRun(ctx, now)
	if err != nil || !ok {
		t.Fatalf("fresh day: ok=%v err=%v", ok, err)
	}
	if err := g.RecordOutcome(ctx, "X", 5, true); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	for _, at := range []time.Time{now, now.Add(time.Hour), time.Date(2025, 10, 15, 23, 59, 0, 0, sast)} {
		if ok, _ := g.ShouldRun(ctx, at); ok {
			t.Fatalf("ShouldRun(%v) = true after success", at)
		}
	}
	if ok, _ := g.ShouldRun(ctx, time.Date(2025, 10, 16, 0, 0, 1, 0, sast)); !ok {
		t.Fatalf("next day should run")
	}
}

func TestGateFailureDoesNotCloseDay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 10, 15, 9, 0, 0, 0, sast)
	g, _ := newGate(t, func() time.Time { return now })

	if err := g.RecordOutcome(ctx, "Processing Failed", 0, false); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if ok, _ := g.ShouldRun(ctx, now.Add(time.Hour)); !ok {
		t.Fatalf("failed attempt must not block a retry")
	}
}

func TestGateUsesCivilDayNotRollingWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g, _ := newGate(t, nil)

	// 23:30 local on the 14th is 21:30 UTC; 00:30 local on the 15th is 22:30 UTC the 14th.
	late := time.Date(2025, 10, 14, 23, 30, 0, 0, sast)
	if err := g.RecordOutcomeAt(ctx, late, "late", 3, true); err != nil {
		t.Fatalf("RecordOutcomeAt: %v", err)
	}
	if ok, _ := g.ShouldRun(ctx, late.Add(time.Hour)); !ok {
		t.Fatalf("an hour later is a new civil day")
	}
	if ok, _ := g.ShouldRun(ctx, time.Date(2025, 10, 14, 8, 0, 0, 0, sast)); ok {
		t.Fatalf("earlier the same day should be closed")
	}
}

func TestGateReadsPersistedRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 10, 15, 9, 0, 0, 0, sast)
	g, st := newGate(t, nil)

	if err := st.AppendRun(ctx, storage.RunRecord{RunAt: now.Add(-2 * time.Hour), Title: "earlier", RecipientsReached: 4, Success: true}); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}
	if ok, _ := g.ShouldRun(ctx, now); ok {
		t.Fatalf("run persisted by another process must close the day")
	}
}

type brokenLog struct{ err error }

func (b brokenLog) AppendRun(context.Context, storage.RunRecord) error { return b.err }
func (b brokenLog) CountRuns(context.Context, storage.RunFilter) (int, error) {
	return 0, b.err
}

func TestGatePropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk gone")
	g, err := New(brokenLog{err: boom}, Config{Location: sast}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := g.ShouldRun(context.Background(), time.Now()); !errors.Is(err, boom) {
		t.Fatalf("ShouldRun err=%v", err)
	}
	if err := g.RecordOutcome(context.Background(), "x", 1, true); !errors.Is(err, boom) {
		t.Fatalf("RecordOutcome err=%v", err)
	}
	if _, err := New(nil, Config{}, logx.Nop()); err == nil {
		t.Fatalf("nil run log accepted")
	}
}

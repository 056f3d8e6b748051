package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"sntportal/contexts/governance/voting-engine/domain/entities"
	"sntportal/internal/platform/config"

	"go.uber.org/goleak"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := config.Default()
	cfg.ReconcileInterval = 10 * time.Millisecond

	app, err := BuildWorker(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("build worker failed: %v", err)
	}
	defer app.Close()
	if !app.reconcile || !app.relay {
		t.Fatalf("expected both loops enabled, got reconcile=%v relay=%v", app.reconcile, app.relay)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := app.Run(ctx); err != nil {
		t.Fatalf("worker run failed: %v", err)
	}
}

func TestAPIEmbedsWorkersForBadger(t *testing.T) {
	cfg := config.Default()
	cfg.StoreDriver = config.StoreBadger
	cfg.BadgerDir = filepath.Join(t.TempDir(), "badger")
	cfg.HTTPPort = "127.0.0.1:0"
	cfg.ReconcileInterval = 10 * time.Millisecond

	app, err := BuildAPI(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("build api failed: %v", err)
	}
	defer app.Close()
	if app.embedded == nil {
		t.Fatalf("expected embedded workers for a badger store")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	if err := app.Run(ctx); err != nil {
		t.Fatalf("api run failed: %v", err)
	}
}

func TestWorkerSendsNoticeFromCompletedEvent(t *testing.T) {
	rosterServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"users":[{"email":"ann@example.com","first_name":"Ann","last_name":"Lee","role":"member"}]}`))
	}))
	defer rosterServer.Close()
	delivered := make(chan string, 4)
	notifyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			VotingID string `json:"votingId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		delivered <- body.VotingID
		w.WriteHeader(http.StatusAccepted)
	}))
	defer notifyServer.Close()

	cfg := config.Default()
	cfg.RosterURL = rosterServer.URL
	cfg.NotifyURL = notifyServer.URL
	cfg.EnableReconciler = false
	cfg.MetricsEnabled = false
	cfg.ReconcileInterval = 10 * time.Millisecond

	app, err := BuildWorker(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("build worker failed: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	end := time.Now().UTC().Add(-time.Minute)
	if err := app.module.Handler.Lifecycle.Votings.CreateVoting(ctx, entities.Voting{
		VotingID:  "b-1",
		Title:     "Gate code",
		Options:   []string{"Keep", "Change"},
		EndDate:   end,
		Status:    entities.VotingStatusActive,
		Votes:     map[int]int{},
		CreatedAt: end.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	// A read closes the ballot without sending anything.
	if _, err := app.module.Handler.ListVotingsHandler(ctx, "completed"); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	select {
	case id := <-delivered:
		t.Fatalf("read path sent a notice for %s", id)
	default:
	}

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	select {
	case id := <-delivered:
		if id != "b-1" {
			t.Fatalf("expected notice for b-1, got %s", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("voting.completed never produced a notice")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("worker run failed: %v", err)
	}
}

func TestNormalizeAddr(t *testing.T) {
	for input, want := range map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000", "127.0.0.1:0": "127.0.0.1:0"} {
		if got := normalizeAddr(input); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", input, got, want)
		}
	}
}

package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-media-notify/internal/domain"
)

func newTestPipeline(t *testing.T, fm *fakeMessenger) (*Pipeline, *SubscriptionIndex) {
	t.Helper()
	db := newTestDB(t)
	ix := NewSubscriptionIndex()
	d := NewDispatcher(fm, db, DispatcherOptions{Workers: 1, QueueSize: 32, MaxRetries: 3, BackoffBase: time.Millisecond})
	d.Start()
	t.Cleanup(func() { d.Stop(2 * time.Second) })

	p := NewPipeline(db, NewDedupFilter(time.Hour), NewRouter(db, ix, "chan-1"), d, time.Hour)
	return p, ix
}

func grabbedPayload() []byte {
	return []byte(`{"eventType":"Grabbed","movie":{"title":"The Matrix","year":1999,"tmdbId":603},"downloadId":"d1"}`)
}

func TestPipeline_IngestRoutesAndDelivers(t *testing.T) {
	fm := &fakeMessenger{}
	p, ix := newTestPipeline(t, fm)
	seedUser(t, p.DB, "u1", false, true)
	item := seedItem(t, p.DB, "tmdb:603", "The Matrix", domain.MediaMovie)
	seedSub(t, p.DB, "u1", item.ID)
	ix.Add("u1", "tmdb:603")

	out, err := p.Ingest(context.Background(), "radarr", grabbedPayload())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if out != OutcomeAccepted {
		t.Fatalf("expected accepted, got %v", out)
	}

	p.Dispatcher.Stop(2 * time.Second)
	if len(fm.dms) != 1 || fm.dms[0] != "u1" {
		t.Fatalf("expected one DM to u1, got %v", fm.dms)
	}
}

func TestPipeline_DuplicateSuppressed(t *testing.T) {
	fm := &fakeMessenger{}
	p, ix := newTestPipeline(t, fm)
	seedUser(t, p.DB, "u1", false, true)
	item := seedItem(t, p.DB, "tmdb:603", "The Matrix", domain.MediaMovie)
	seedSub(t, p.DB, "u1", item.ID)
	ix.Add("u1", "tmdb:603")

	if out, err := p.Ingest(context.Background(), "radarr", grabbedPayload()); err != nil || out != OutcomeAccepted {
		t.Fatalf("first ingest: out=%v err=%v", out, err)
	}
	out, err := p.Ingest(context.Background(), "radarr", grabbedPayload())
	if err != nil {
		t.Fatalf("replay ingest: %v", err)
	}
	if out != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %v", out)
	}

	p.Dispatcher.Stop(2 * time.Second)
	if len(fm.dms) != 1 {
		t.Fatalf("replay must not deliver again, got %d sends", len(fm.dms))
	}
}

func TestPipeline_UnroutableOutcome(t *testing.T) {
	fm := &fakeMessenger{}
	p, _ := newTestPipeline(t, fm)

	out, err := p.Ingest(context.Background(), "radarr", grabbedPayload())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if out != OutcomeUnroutable {
		t.Fatalf("expected unroutable for unknown item, got %v", out)
	}
}

func TestPipeline_MalformedSurfacesError(t *testing.T) {
	fm := &fakeMessenger{}
	p, _ := newTestPipeline(t, fm)

	if _, err := p.Ingest(context.Background(), "radarr", []byte(`{`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if _, err := p.Ingest(context.Background(), "bogus", grabbedPayload()); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestPipeline_ReplayAfterTTLIsAccepted(t *testing.T) {
	fm := &fakeMessenger{}
	db := newTestDB(t)
	ix := NewSubscriptionIndex()
	d := NewDispatcher(fm, db, DispatcherOptions{Workers: 1, QueueSize: 32, MaxRetries: 3, BackoffBase: time.Millisecond})
	d.Start()
	t.Cleanup(func() { d.Stop(2 * time.Second) })

	const ttl = 10 * time.Millisecond
	p := NewPipeline(db, NewDedupFilter(ttl), NewRouter(db, ix, "chan-1"), d, ttl)
	seedUser(t, p.DB, "u1", false, true)
	item := seedItem(t, p.DB, "tmdb:603", "The Matrix", domain.MediaMovie)
	seedSub(t, p.DB, "u1", item.ID)
	ix.Add("u1", "tmdb:603")

	if out, err := p.Ingest(context.Background(), "radarr", grabbedPayload()); err != nil || out != OutcomeAccepted {
		t.Fatalf("first ingest: out=%v err=%v", out, err)
	}

	// Backends may legitimately resend events; once the window has lapsed
	// the replay must be delivered again, not suppressed on the stale
	// receipt row.
	time.Sleep(5 * ttl)
	out, err := p.Ingest(context.Background(), "radarr", grabbedPayload())
	if err != nil {
		t.Fatalf("replay after ttl: %v", err)
	}
	if out != OutcomeAccepted {
		t.Fatalf("expected accepted after ttl, got %v", out)
	}

	p.Dispatcher.Stop(2 * time.Second)
	if len(fm.dms) != 2 {
		t.Fatalf("expected both ingests to deliver, got %d sends", len(fm.dms))
	}
}

func TestPipeline_RoutingErrorReleasesFingerprint(t *testing.T) {
	fm := &fakeMessenger{}
	p, ix := newTestPipeline(t, fm)
	seedUser(t, p.DB, "u1", false, true)

	// Break routing after the dedup stages: the item lookup hits a missing
	// table and the ingest fails with a storage error.
	if err := p.DB.Migrator().DropTable(&domain.MediaItem{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if _, err := p.Ingest(context.Background(), "radarr", grabbedPayload()); err == nil {
		t.Fatal("expected a storage error while routing")
	}

	// The backend retries the same payload once the store is healthy again.
	// The failed attempt must not have burned the fingerprint.
	if err := p.DB.AutoMigrate(&domain.MediaItem{}); err != nil {
		t.Fatalf("restore table: %v", err)
	}
	item := seedItem(t, p.DB, "tmdb:603", "The Matrix", domain.MediaMovie)
	seedSub(t, p.DB, "u1", item.ID)
	ix.Add("u1", "tmdb:603")

	out, err := p.Ingest(context.Background(), "radarr", grabbedPayload())
	if err != nil {
		t.Fatalf("retry ingest: %v", err)
	}
	if out != OutcomeAccepted {
		t.Fatalf("retry after routing failure must be accepted, got %v", out)
	}

	p.Dispatcher.Stop(2 * time.Second)
	if len(fm.dms) != 1 {
		t.Fatalf("expected the retried event to deliver, got %d sends", len(fm.dms))
	}
}

func TestPipeline_WarmFilterSurvivesRestart(t *testing.T) {
	fm := &fakeMessenger{}
	p, ix := newTestPipeline(t, fm)
	seedUser(t, p.DB, "u1", false, true)
	item := seedItem(t, p.DB, "tmdb:603", "The Matrix", domain.MediaMovie)
	seedSub(t, p.DB, "u1", item.ID)
	ix.Add("u1", "tmdb:603")

	if out, err := p.Ingest(context.Background(), "radarr", grabbedPayload()); err != nil || out != OutcomeAccepted {
		t.Fatalf("first ingest: out=%v err=%v", out, err)
	}

	// "Restart": a fresh filter warmed from the same store must still
	// recognize the fingerprint.
	p.Filter = NewDedupFilter(time.Hour)
	if err := p.WarmFilter(context.Background()); err != nil {
		t.Fatalf("warm filter: %v", err)
	}

	out, err := p.Ingest(context.Background(), "radarr", grabbedPayload())
	if err != nil {
		t.Fatalf("replay after restart: %v", err)
	}
	if out != OutcomeDuplicate {
		t.Fatalf("expected duplicate after warm-up, got %v", out)
	}
}

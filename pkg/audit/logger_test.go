package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bulwark-ai/bulwark/pkg/config"
	"github.com/bulwark-ai/bulwark/pkg/models"
)

func setup(t *testing.T) *Logger {
	t.Helper()
	l, err := New(config.AuditConfig{
		Enabled:       true,
		DBPath:        filepath.Join(t.TempDir(), "audit_test.db"),
		RetentionDays: 7,
	})
	if err != nil {
		t.Fatalf("failed to open audit logger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func record(id, kind string, source models.ResultSource, errMsg string, at time.Time) models.InvocationRecord {
	return models.InvocationRecord{
		ID:        id,
		Kind:      kind,
		Source:    source,
		Degraded:  source == models.SourceFallback,
		Error:     errMsg,
		LatencyMs: 42,
		CreatedAt: at,
	}
}

func TestRecordAndQuery(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := l.Record(ctx, record("r1", "summarize", models.SourceRemote, "", now.Add(-2*time.Minute))); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := l.Record(ctx, record("r2", "summarize", models.SourceFallback, "remote error 503", now.Add(-time.Minute))); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := l.Record(ctx, record("r3", "classify", models.SourceCache, "", now)); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	all, err := l.Query(ctx, models.InvocationQuery{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].ID != "r3" {
		t.Errorf("expected newest first, got %s", all[0].ID)
	}

	byKind, err := l.Query(ctx, models.InvocationQuery{Kind: "summarize"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(byKind) != 2 {
		t.Errorf("expected 2 summarize records, got %d", len(byKind))
	}

	errsOnly, err := l.Query(ctx, models.InvocationQuery{ErrorsOnly: true})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(errsOnly) != 1 || errsOnly[0].ID != "r2" {
		t.Errorf("expected only the failed invocation, got %+v", errsOnly)
	}
	if errsOnly[0].Error != "remote error 503" {
		t.Errorf("unexpected error text: %q", errsOnly[0].Error)
	}
	if errsOnly[0].Source != models.SourceFallback || !errsOnly[0].Degraded {
		t.Errorf("expected degraded fallback record, got %+v", errsOnly[0])
	}
}

func TestQueryLimitAndSince(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, id := range []string{"a", "b", "c", "d"} {
		rec := record(id, "summarize", models.SourceRemote, "", now.Add(time.Duration(i)*time.Second))
		if err := l.Record(ctx, rec); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	limited, err := l.Query(ctx, models.InvocationQuery{Limit: 2})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "d" {
		t.Errorf("expected 2 newest records, got %+v", limited)
	}

	since, err := l.Query(ctx, models.InvocationQuery{Since: now.Add(2 * time.Second)})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("expected 2 records since cutoff, got %d", len(since))
	}
}

func TestStats(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	l.Record(ctx, record("r1", "summarize", models.SourceRemote, "", now))
	l.Record(ctx, record("r2", "summarize", models.SourceCache, "", now))
	l.Record(ctx, record("r3", "classify", models.SourceRemote, "", now))

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	counts := make(map[string]int64)
	for _, s := range stats {
		counts[s.Kind] += s.Count
	}
	if counts["summarize"] != 2 || counts["classify"] != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestCleanup(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	l.Record(ctx, record("old", "summarize", models.SourceRemote, "", now.AddDate(0, 0, -30)))
	l.Record(ctx, record("new", "summarize", models.SourceRemote, "", now))

	deleted, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	recs, err := l.Query(ctx, models.InvocationQuery{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "new" {
		t.Errorf("expected only the recent record, got %+v", recs)
	}
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dcr/internal/ledger"
)

func newTestRepository(t *testing.T) *JudgmentRepository {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "dcr.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewJudgmentRepository(db)
}

func TestJudgmentRepository_InsertAndRecent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	records := []ledger.Record{
		{ID: 1, Label: ledger.Mold, Confidence: 85, At: at},
		{ID: 2, Label: ledger.Healthy, Confidence: 70, At: at.Add(time.Second)},
		{ID: 3, Label: ledger.StemCrack, Confidence: 91, At: at.Add(2 * time.Second)},
	}
	for _, rec := range records {
		if err := repo.Insert(ctx, "run-1", rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 judgments, got %d", len(got))
	}

	// 新しい順
	if got[0].RecordID != 3 || got[1].RecordID != 2 {
		t.Errorf("Unexpected order: %+v", got)
	}
	if got[0].Label != ledger.StemCrack || got[0].Confidence != 91 || got[0].RunID != "run-1" {
		t.Errorf("Unexpected judgment %+v", got[0])
	}
	if !got[0].JudgedAt.Equal(at.Add(2 * time.Second)) {
		t.Errorf("Expected judged_at %v, got %v", at.Add(2*time.Second), got[0].JudgedAt)
	}
}

func TestJudgmentRepository_CountByLabel(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	inserts := []struct {
		run   string
		label ledger.Label
	}{
		{"run-1", ledger.Mold},
		{"run-1", ledger.Mold},
		{"run-1", ledger.Immature},
		{"run-2", ledger.Mold},
	}
	for i, in := range inserts {
		rec := ledger.Record{ID: uint64(i + 1), Label: in.label, Confidence: 80, At: time.Now()}
		if err := repo.Insert(ctx, in.run, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	counts, err := repo.CountByLabel(ctx, "run-1")
	if err != nil {
		t.Fatalf("CountByLabel failed: %v", err)
	}
	if counts[ledger.Mold] != 2 || counts[ledger.Immature] != 1 || len(counts) != 2 {
		t.Errorf("Unexpected counts for run-1: %v", counts)
	}

	all, err := repo.CountByLabel(ctx, "")
	if err != nil {
		t.Fatalf("CountByLabel failed: %v", err)
	}
	if all[ledger.Mold] != 3 {
		t.Errorf("Expected 3 mold in total, got %d", all[ledger.Mold])
	}
}

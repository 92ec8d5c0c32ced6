package sqlite

import (
	"context"
	"fmt"

	"dcr/internal/ledger"
	"dcr/internal/repository"
)

// JudgmentRepository はrepository.JudgmentRepositoryのSQLite実装
type JudgmentRepository struct {
	db *DB
}

var _ repository.JudgmentRepository = (*JudgmentRepository)(nil)

// NewJudgmentRepository は新しいJudgmentRepositoryを作成する
func NewJudgmentRepository(db *DB) *JudgmentRepository {
	return &JudgmentRepository{db: db}
}

// Insert は判定結果を1件保存する
func (r *JudgmentRepository) Insert(ctx context.Context, runID string, rec ledger.Record) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO judgments (run_id, record_id, label, confidence, judged_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, rec.ID, rec.Label.String(), rec.Confidence, rec.At.UTC())
	if err != nil {
		return fmt.Errorf("判定結果の保存に失敗: %w", err)
	}
	return nil
}

// Recent は新しい順に最大limit件を返す
func (r *JudgmentRepository) Recent(ctx context.Context, limit int) ([]repository.Judgment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT seq, run_id, record_id, label, confidence, judged_at
		FROM judgments
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("判定結果の取得に失敗: %w", err)
	}
	defer rows.Close()

	var result []repository.Judgment
	for rows.Next() {
		var j repository.Judgment
		var label string
		if err := rows.Scan(&j.Seq, &j.RunID, &j.RecordID, &label, &j.Confidence, &j.JudgedAt); err != nil {
			return nil, fmt.Errorf("判定結果の読み取りに失敗: %w", err)
		}
		if j.Label, err = ledger.ParseLabel(label); err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

// CountByLabel は運転IDごとの分類別件数を返す。runIDが空なら全件
func (r *JudgmentRepository) CountByLabel(ctx context.Context, runID string) (map[ledger.Label]int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	query := `SELECT label, COUNT(*) FROM judgments`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` GROUP BY label`

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("件数の集計に失敗: %w", err)
	}
	defer rows.Close()

	counts := make(map[ledger.Label]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("件数の読み取りに失敗: %w", err)
		}
		l, err := ledger.ParseLabel(label)
		if err != nil {
			return nil, err
		}
		counts[l] = n
	}
	return counts, rows.Err()
}

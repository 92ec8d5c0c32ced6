// Package repository 判定結果の永続化のインターフェース
package repository

import (
	"context"
	"time"

	"dcr/internal/ledger"
)

// Judgment は保存された1件の判定結果
type Judgment struct {
	Seq        int64        `json:"seq"`
	RunID      string       `json:"run_id"`
	RecordID   uint64       `json:"record_id"`
	Label      ledger.Label `json:"label"`
	Confidence int          `json:"confidence"`
	JudgedAt   time.Time    `json:"judged_at"`
}

// JudgmentRepository は判定結果の保存先
type JudgmentRepository interface {
	// Create operations
	Insert(ctx context.Context, runID string, rec ledger.Record) error

	// Read operations
	Recent(ctx context.Context, limit int) ([]Judgment, error)
	CountByLabel(ctx context.Context, runID string) (map[ledger.Label]int, error)
}

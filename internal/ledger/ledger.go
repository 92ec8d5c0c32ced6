// Package ledger 判定結果の履歴を管理する
//
// 履歴は直近K件だけを保持し、IDは履歴から消えても再利用しない。
package ledger

import (
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity は履歴の既定の保持件数
const DefaultCapacity = 10

// Record は1件の判定結果
type Record struct {
	ID         uint64    `json:"id"`
	Label      Label     `json:"label"`
	Confidence int       `json:"confidence"`
	At         time.Time `json:"at"`
}

// DisplayRow は履歴表示の1行
type DisplayRow struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Color      string `json:"color"`
	Confidence string `json:"confidence"`
}

// Ledger は容量付きの判定履歴
type Ledger struct {
	mu       sync.RWMutex
	capacity int
	lastID   uint64
	records  []Record
	now      func() time.Time
}

// New は容量capacityのLedgerを作成する。1未満ならDefaultCapacityを使う
func New(capacity int) *Ledger {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		capacity: capacity,
		records:  make([]Record, 0, capacity+1),
		now:      time.Now,
	}
}

// Classify は判定結果を記録し、採番したレコードを返す
//
// 容量を超えた場合は最も古いレコードを捨てる。
func (l *Ledger) Classify(label Label, confidence int) Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastID++
	rec := Record{
		ID:         l.lastID,
		Label:      label,
		Confidence: clampPercent(confidence),
		At:         l.now(),
	}

	l.records = append(l.records, rec)
	if len(l.records) > l.capacity {
		n := copy(l.records, l.records[len(l.records)-l.capacity:])
		l.records = l.records[:n]
	}
	return rec
}

// Records は古い順の履歴のコピーを返す
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Record, len(l.records))
	copy(result, l.records)
	return result
}

// Projection は履歴を表示用の行に変換する
func (l *Ledger) Projection() []DisplayRow {
	return Project(l.Records())
}

// Len は履歴の件数を返す
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Capacity は保持件数の上限を返す
func (l *Ledger) Capacity() int { return l.capacity }

// LastID は最後に採番したIDを返す
func (l *Ledger) LastID() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastID
}

// Project はレコードを表示用の行に変換する
func Project(records []Record) []DisplayRow {
	rows := make([]DisplayRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, Row(r))
	}
	return rows
}

// Row は1件のレコードを表示用の行に変換する
func Row(r Record) DisplayRow {
	return DisplayRow{
		ID:         fmt.Sprintf("%03d", r.ID),
		Label:      r.Label.Display(),
		Color:      r.Label.Color(),
		Confidence: fmt.Sprintf("%d %%", r.Confidence),
	}
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

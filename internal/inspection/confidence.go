package inspection

import (
	"math/rand/v2"
)

// ConfidenceSource は判定の確信度（%）を与える
type ConfidenceSource interface {
	Next() int
}

// RandomConfidence は[Min, Max]の一様乱数を返す
type RandomConfidence struct {
	Min int
	Max int
}

// Next は確信度を1つ返す
func (r RandomConfidence) Next() int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.IntN(r.Max-r.Min+1)
}

// FixedConfidence は常に同じ値を返す
type FixedConfidence int

// Next は固定値を返す
func (f FixedConfidence) Next() int { return int(f) }

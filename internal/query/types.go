package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/risk"
)

// PoolSummary is the list view of a pool.
type PoolSummary struct {
	Namespace    string      `json:"namespace"`
	PoolID       uint64      `json:"pool_id"`
	Owner        uuid.UUID   `json:"owner"`
	Enabled      bool        `json:"enabled"`
	Liquidity    fixed.Value `json:"liquidity"`
	AsOfSequence int64       `json:"as_of_sequence"`
}

// PoolDetail adds the solvency metrics to the list view.
type PoolDetail struct {
	PoolSummary
	Risk risk.PoolInfo `json:"risk"`
}

// TraderDetail is one trader's standing inside a pool.
type TraderDetail struct {
	Namespace    string          `json:"namespace"`
	PoolID       uint64          `json:"pool_id"`
	Account      uuid.UUID       `json:"account"`
	Risk         risk.TraderInfo `json:"risk"`
	AsOfSequence int64           `json:"as_of_sequence"`
}

// JournalEntry is one row of the ops journal, with pagination by sequence.
type JournalEntry struct {
	Sequence  int64           `json:"sequence"`
	Namespace string          `json:"namespace"`
	Op        string          `json:"op"`
	Details   json.RawMessage `json:"details,omitempty"`
	AppliedAt time.Time       `json:"applied_at"`
}

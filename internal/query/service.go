package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"SynthLedger/internal/engine"
	"SynthLedger/internal/pool"
	"SynthLedger/internal/risk"
)

var ErrUnknownNamespace = errors.New("unknown namespace")

// Service serves read-only views. Live state (pools, traders, risk) comes
// straight from the engines; historical data comes from the ops journal in
// Postgres. db may be nil, in which case journal queries report an error.
type Service struct {
	engines map[string]*engine.Engine
	db      *sql.DB
}

func NewService(engines map[string]*engine.Engine, db *sql.DB) *Service {
	return &Service{engines: engines, db: db}
}

// Namespaces lists the configured namespaces in stable order.
func (s *Service) Namespaces() []string {
	out := make([]string, 0, len(s.engines))
	for ns := range s.engines {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func (s *Service) engine(namespace string) (*engine.Engine, error) {
	e, ok := s.engines[namespace]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNamespace, namespace)
	}
	return e, nil
}

// Pools lists every pool in a namespace.
func (s *Service) Pools(namespace string) ([]PoolSummary, error) {
	e, err := s.engine(namespace)
	if err != nil {
		return nil, err
	}
	seq := e.Sequence()
	ids := e.PoolIDs()
	out := make([]PoolSummary, 0, len(ids))
	for _, id := range ids {
		owner, _ := e.PoolOwner(id)
		out = append(out, PoolSummary{
			Namespace:    namespace,
			PoolID:       uint64(id),
			Owner:        owner.Account,
			Enabled:      e.PoolEnabled(id),
			Liquidity:    e.Liquidity(id),
			AsOfSequence: seq,
		})
	}
	return out, nil
}

// Pool returns one pool with its solvency metrics.
func (s *Service) Pool(namespace string, id pool.ID) (*PoolDetail, error) {
	e, err := s.engine(namespace)
	if err != nil {
		return nil, err
	}
	info, err := e.PoolInfo(id)
	if err != nil {
		return nil, err
	}
	owner, _ := e.PoolOwner(id)
	return &PoolDetail{
		PoolSummary: PoolSummary{
			Namespace:    namespace,
			PoolID:       uint64(id),
			Owner:        owner.Account,
			Enabled:      e.PoolEnabled(id),
			Liquidity:    e.Liquidity(id),
			AsOfSequence: e.Sequence(),
		},
		Risk: info,
	}, nil
}

// Trader returns a trader's margin standing in a pool. A trader with no open
// positions reports zero metrics, not an error.
func (s *Service) Trader(namespace string, id pool.ID, account uuid.UUID) (*TraderDetail, error) {
	e, err := s.engine(namespace)
	if err != nil {
		return nil, err
	}
	info, err := e.TraderInfo(account, id)
	if err != nil {
		return nil, err
	}
	return &TraderDetail{
		Namespace:    namespace,
		PoolID:       uint64(id),
		Account:      account,
		Risk:         info,
		AsOfSequence: e.Sequence(),
	}, nil
}

// RiskOfTrader is a convenience wrapper used by admin tooling.
func (s *Service) RiskOfTrader(namespace string, id pool.ID, account uuid.UUID) (risk.TraderInfo, error) {
	e, err := s.engine(namespace)
	if err != nil {
		return risk.TraderInfo{}, err
	}
	return e.TraderInfo(account, id)
}

// JournalHistory pages through the ops journal for one namespace, newest
// first. afterSequence, when non-nil, returns entries strictly older than it.
func (s *Service) JournalHistory(
	ctx context.Context,
	namespace string,
	limit int,
	afterSequence *int64,
) ([]JournalEntry, error) {
	if s.db == nil {
		return nil, errors.New("journal store not configured")
	}
	if _, err := s.engine(namespace); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT sequence, namespace, op, details, applied_at
		FROM ops
		WHERE namespace = $1
	`
	args := []interface{}{namespace}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var details []byte
		if err := rows.Scan(&e.Sequence, &e.Namespace, &e.Op, &details, &e.AppliedAt); err != nil {
			return nil, err
		}
		e.Details = details
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

package query_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"SynthLedger/internal/engine"
	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/pool"
	"SynthLedger/internal/query"
	"SynthLedger/internal/risk"
)

func newService(t *testing.T) (*query.Service, *engine.Engine, uuid.UUID) {
	t.Helper()
	l := ledger.New()
	board := oracle.NewBoard()
	ausd := l.RegisterAsset("aUSD", fixed.Zero())
	e := engine.New("synthetic", l, board, ausd, risk.Thresholds{}, nil, nil, zerolog.Nop())
	owner := uuid.New()
	if err := l.Mint(owner, ausd, fixed.FromInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	svc := query.NewService(map[string]*engine.Engine{"synthetic": e}, nil)
	return svc, e, owner
}

func TestService_PoolsAndDetail(t *testing.T) {
	svc, e, owner := newService(t)
	id, err := e.CreatePool(owner)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := e.DepositLiquidity(owner, id, fixed.FromInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	pools, err := svc.Pools("synthetic")
	if err != nil {
		t.Fatalf("pools: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("want one pool, got %d", len(pools))
	}
	p := pools[0]
	if p.PoolID != uint64(id) || p.Owner != owner || !p.Enabled {
		t.Errorf("unexpected summary: %+v", p)
	}
	if p.Liquidity.Cmp(fixed.FromInt(1000)) != 0 {
		t.Errorf("liquidity: got %s", p.Liquidity)
	}
	if p.AsOfSequence != e.Sequence() {
		t.Errorf("as_of_sequence: got %d, want %d", p.AsOfSequence, e.Sequence())
	}

	detail, err := svc.Pool("synthetic", id)
	if err != nil {
		t.Fatalf("pool detail: %v", err)
	}
	if detail.Risk.Equity.Cmp(fixed.FromInt(1000)) != 0 {
		t.Errorf("equity: got %s", detail.Risk.Equity)
	}
}

func TestService_UnknownNamespaceAndPool(t *testing.T) {
	svc, _, owner := newService(t)
	if _, err := svc.Pools("margin"); !errors.Is(err, query.ErrUnknownNamespace) {
		t.Errorf("want ErrUnknownNamespace, got %v", err)
	}
	if _, err := svc.Pool("synthetic", 99); !errors.Is(err, pool.ErrPoolNotFound) {
		t.Errorf("want ErrPoolNotFound, got %v", err)
	}
	if _, err := svc.Trader("margin", 1, owner); !errors.Is(err, query.ErrUnknownNamespace) {
		t.Errorf("want ErrUnknownNamespace, got %v", err)
	}
}

func TestService_TraderWithoutPositions(t *testing.T) {
	svc, e, owner := newService(t)
	id, err := e.CreatePool(owner)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}

	detail, err := svc.Trader("synthetic", id, uuid.New())
	if err != nil {
		t.Fatalf("trader: %v", err)
	}
	if detail.Risk.MarginHeld.Sign() != 0 || detail.Risk.Equity.Sign() != 0 {
		t.Errorf("empty trader should report zero metrics: %+v", detail.Risk)
	}
	if !detail.Risk.MarginLevel.IsInfinity() {
		t.Errorf("margin level with no margin held should be infinite, got %s", detail.Risk.MarginLevel)
	}
}

func TestService_JournalRequiresStore(t *testing.T) {
	svc, _, _ := newService(t)
	if _, err := svc.JournalHistory(context.Background(), "synthetic", 10, nil); err == nil {
		t.Error("journal queries without a store should fail")
	}
}

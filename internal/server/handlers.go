package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"SynthLedger/internal/engine"
	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/pool"
	"SynthLedger/internal/pricing"
	"SynthLedger/internal/query"
	"SynthLedger/internal/trading"
)

type handlers struct {
	deps *Deps
}

// requireNamespace rejects requests for namespaces that were not configured.
func (h *handlers) requireNamespace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.deps.Engines[chi.URLParam(r, "namespace")]; !ok {
			respondError(w, query.ErrUnknownNamespace)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handlers) engine(r *http.Request) (string, *engine.Engine) {
	ns := chi.URLParam(r, "namespace")
	return ns, h.deps.Engines[ns]
}

func (h *handlers) account(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	account, err := h.deps.Resolver.Resolve(r.Header.Get("X-Account"))
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return uuid.Nil, false
	}
	return account, true
}

func (h *handlers) poolID(w http.ResponseWriter, r *http.Request) (pool.ID, bool) {
	raw := chi.URLParam(r, "pool")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id: " + raw})
		return 0, false
	}
	return pool.ID(id), true
}

func (h *handlers) asset(w http.ResponseWriter, r *http.Request) (ledger.AssetID, bool) {
	symbol := chi.URLParam(r, "asset")
	id, ok := h.deps.Ledger.AssetBySymbol(symbol)
	if !ok {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "unknown asset: " + symbol})
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError maps domain errors to HTTP statuses. Unknown errors are
// reported as 400; the engine has no internal failure modes that a retry
// would fix.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, query.ErrUnknownNamespace),
		errors.Is(err, pool.ErrPoolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pool.ErrNoPermission):
		status = http.StatusForbidden
	case errors.Is(err, pool.ErrCannotRemovePool),
		errors.Is(err, trading.ErrStillInSafePosition):
		status = http.StatusConflict
	case errors.Is(err, oracle.ErrNoPriceConfigured),
		errors.Is(err, pricing.ErrTradeDisabled):
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

// --- Pools ---

func (h *handlers) listPools(w http.ResponseWriter, r *http.Request) {
	ns, _ := h.engine(r)
	pools, err := h.deps.Query.Pools(ns)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"pools": pools})
}

func (h *handlers) createPool(w http.ResponseWriter, r *http.Request) {
	_, e := h.engine(r)
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	id, err := e.CreatePool(account)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"pool_id": uint64(id)})
}

func (h *handlers) getPool(w http.ResponseWriter, r *http.Request) {
	ns, _ := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	detail, err := h.deps.Query.Pool(ns, id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *handlers) removePool(w http.ResponseWriter, r *http.Request) {
	_, e := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	if err := e.RemovePool(account, id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *handlers) enablePool(w http.ResponseWriter, r *http.Request) {
	h.setPoolState(w, r, true)
}

func (h *handlers) disablePool(w http.ResponseWriter, r *http.Request) {
	h.setPoolState(w, r, false)
}

func (h *handlers) setPoolState(w http.ResponseWriter, r *http.Request, enabled bool) {
	_, e := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	var err error
	if enabled {
		err = e.EnablePool(account, id)
	} else {
		err = e.DisablePool(account, id)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

type amountRequest struct {
	Amount fixed.Value `json:"amount"`
}

func (h *handlers) depositLiquidity(w http.ResponseWriter, r *http.Request) {
	_, e := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := e.DepositLiquidity(account, id, req.Amount); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"liquidity": e.Liquidity(id)})
}

func (h *handlers) withdrawLiquidity(w http.ResponseWriter, r *http.Request) {
	_, e := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := e.WithdrawLiquidity(account, id, req.Amount); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"liquidity": e.Liquidity(id)})
}

func (h *handlers) liquidity(w http.ResponseWriter, r *http.Request) {
	_, e := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	if !e.PoolExists(id) {
		respondError(w, pool.ErrPoolNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"liquidity": e.Liquidity(id)})
}

func (h *handlers) getTrader(w http.ResponseWriter, r *http.Request) {
	ns, _ := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	account, err := uuid.Parse(chi.URLParam(r, "account"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return
	}
	detail, err := h.deps.Query.Trader(ns, id, account)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// --- Pair configuration ---

type ratioRequest struct {
	RatioPPM uint32 `json:"ratio_ppm"`
}

func (h *handlers) setSpread(w http.ResponseWriter, r *http.Request) {
	h.setPairRatio(w, r, func(e *engine.Engine, caller uuid.UUID, id pool.ID, asset ledger.AssetID, ratio fixed.Ratio) error {
		return e.SetSpread(caller, id, asset, ratio)
	})
}

func (h *handlers) setCollateralRatio(w http.ResponseWriter, r *http.Request) {
	h.setPairRatio(w, r, func(e *engine.Engine, caller uuid.UUID, id pool.ID, asset ledger.AssetID, ratio fixed.Ratio) error {
		return e.SetAdditionalCollateralRatio(caller, id, asset, ratio)
	})
}

func (h *handlers) setLiquidationRatio(w http.ResponseWriter, r *http.Request) {
	h.setPairRatio(w, r, func(e *engine.Engine, _ uuid.UUID, id pool.ID, asset ledger.AssetID, ratio fixed.Ratio) error {
		return e.SetLiquidationRatio(id, asset, ratio)
	})
}

func (h *handlers) setPairRatio(
	w http.ResponseWriter,
	r *http.Request,
	apply func(*engine.Engine, uuid.UUID, pool.ID, ledger.AssetID, fixed.Ratio) error,
) {
	_, e := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	asset, ok := h.asset(w, r)
	if !ok {
		return
	}
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req ratioRequest
	if !decode(w, r, &req) {
		return
	}
	if err := apply(e, account, id, asset, fixed.Ratio(req.RatioPPM)); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]uint32{"ratio_ppm": req.RatioPPM})
}

func (h *handlers) enablePair(w http.ResponseWriter, r *http.Request) {
	_, e := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	asset, ok := h.asset(w, r)
	if !ok {
		return
	}
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := e.EnableSyntheticPair(account, id, asset, req.Enabled); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

// --- Trading ---

func (h *handlers) buy(w http.ResponseWriter, r *http.Request) {
	_, e := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	asset, ok := h.asset(w, r)
	if !ok {
		return
	}
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req struct {
		Collateral fixed.Value `json:"collateral"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := e.Buy(account, id, asset, req.Collateral)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"synthetic":  res.Synthetic,
		"price":      res.Price,
		"locked":     res.Locked,
		"additional": res.Additional,
	})
}

func (h *handlers) sell(w http.ResponseWriter, r *http.Request) {
	_, e := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	asset, ok := h.asset(w, r)
	if !ok {
		return
	}
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req struct {
		Synthetic fixed.Value `json:"synthetic"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := e.Sell(account, id, asset, req.Synthetic)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"proceeds": res.Proceeds,
		"price":    res.Price,
		"refund":   res.Refund,
	})
}

func (h *handlers) liquidate(w http.ResponseWriter, r *http.Request) {
	_, e := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	asset, ok := h.asset(w, r)
	if !ok {
		return
	}
	var req struct {
		Trader    uuid.UUID   `json:"trader"`
		Synthetic fixed.Value `json:"synthetic"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := e.Liquidate(req.Trader, id, asset, req.Synthetic)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"synthetic": res.Synthetic,
		"proceeds":  res.Proceeds,
		"penalty":   res.Penalty,
		"swept":     res.Swept,
	})
}

func (h *handlers) addCollateral(w http.ResponseWriter, r *http.Request) {
	_, e := h.engine(r)
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	asset, ok := h.asset(w, r)
	if !ok {
		return
	}
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := e.AddCollateral(account, id, asset, req.Amount); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// --- Journal ---

func (h *handlers) journalHistory(w http.ResponseWriter, r *http.Request) {
	ns, _ := h.engine(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var after *int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid after cursor"})
			return
		}
		after = &v
	}
	entries, err := h.deps.Query.JournalHistory(r.Context(), ns, limit, after)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

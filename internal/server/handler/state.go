package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/session"
)

// StateProvider serves the latest derived market state per symbol. The
// pipeline manager implements it directly; server mode substitutes a reader
// backed by the Redis state cache.
type StateProvider interface {
	Latest(symbol string) (*domain.MarketState, error)
	Symbols() []string
}

// StateHandler serves the per-symbol analysis endpoints.
type StateHandler struct {
	provider StateProvider
	logger   *slog.Logger
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(provider StateProvider, logger *slog.Logger) *StateHandler {
	return &StateHandler{
		provider: provider,
		logger:   logger.With(slog.String("handler", "state")),
	}
}

func (h *StateHandler) lookup(w http.ResponseWriter, r *http.Request) (*domain.MarketState, bool) {
	symbol := pathParam(r, "symbol")
	state, err := h.provider.Latest(symbol)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownSymbol), errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown symbol: "+symbol)
		default:
			h.logger.Error("state lookup failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "state lookup failed")
		}
		return nil, false
	}
	return state, true
}

// ListSymbols returns the configured symbol set.
// GET /api/symbols
func (h *StateHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"symbols": h.provider.Symbols()})
}

// GetState returns the full derived state for one symbol.
// GET /api/state/{symbol}
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	state, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetBook returns the latest order book snapshot.
// GET /api/book/{symbol}
func (h *StateHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	state, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, state.Snapshot)
}

// GetSignal returns the latest composite signal.
// GET /api/signal/{symbol}
func (h *StateHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	state, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, state.Signal)
}

// GetAlerts returns the active hidden-order alert set, ordered.
// GET /api/alerts/{symbol}
func (h *StateHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	state, ok := h.lookup(w, r)
	if !ok {
		return
	}
	alerts := state.Alerts
	if alerts == nil {
		alerts = []domain.HiddenOrderAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": state.Symbol,
		"alerts": alerts,
	})
}

// GetLevels returns the tracked support/resistance levels, price ascending.
// GET /api/levels/{symbol}
func (h *StateHandler) GetLevels(w http.ResponseWriter, r *http.Request) {
	state, ok := h.lookup(w, r)
	if !ok {
		return
	}
	lvls := state.Levels
	if lvls == nil {
		lvls = []domain.SupportResistanceLevel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": state.Symbol,
		"levels": lvls,
	})
}

// GetSession classifies the current wall-clock instant.
// GET /api/session
func (h *StateHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, map[string]any{
		"session":   session.Classify(now),
		"timestamp": now.Format(time.RFC3339),
	})
}

package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// symbolStatus is the per-symbol row in the status response.
type symbolStatus struct {
	Symbol    string    `json:"symbol"`
	Conn      string    `json:"conn"`
	Session   string    `json:"session"`
	Direction string    `json:"direction"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusHandler reports feed connectivity and freshness per symbol.
type StatusHandler struct {
	provider  StateProvider
	mode      string
	startedAt time.Time
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(provider StateProvider, mode string, startedAt time.Time, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		provider:  provider,
		mode:      mode,
		startedAt: startedAt,
		logger:    logger.With(slog.String("handler", "status")),
	}
}

// GetStatus returns the analyzer mode, uptime, and one row per symbol.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	symbols := h.provider.Symbols()
	rows := make([]symbolStatus, 0, len(symbols))
	for _, sym := range symbols {
		state, err := h.provider.Latest(sym)
		if err != nil {
			continue
		}
		rows = append(rows, symbolStatus{
			Symbol:    state.Symbol,
			Conn:      string(state.Conn),
			Session:   string(state.Session),
			Direction: string(state.Signal.Direction),
			UpdatedAt: state.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"symbols":        rows,
	})
}

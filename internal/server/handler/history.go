package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

// HistoryHandler replays recent signals and alerts from the durable Redis
// streams.
type HistoryHandler struct {
	bus          domain.SignalBus
	signalStream string
	alertStream  string
	logger       *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler reading from the given streams.
func NewHistoryHandler(bus domain.SignalBus, signalStream, alertStream string, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		bus:          bus,
		signalStream: signalStream,
		alertStream:  alertStream,
		logger:       logger.With(slog.String("handler", "history")),
	}
}

// ListSignals returns recent signals from the durable stream.
// GET /api/history/signals?after=<id>&limit=<n>
func (h *HistoryHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	h.replay(w, r, h.signalStream)
}

// ListAlerts returns recent hidden-order alerts from the durable stream.
// GET /api/history/alerts?after=<id>&limit=<n>
func (h *HistoryHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	h.replay(w, r, h.alertStream)
}

type historyEntry struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func (h *HistoryHandler) replay(w http.ResponseWriter, r *http.Request, stream string) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := queryInt(r, "limit", 50, 500)

	msgs, err := h.bus.StreamRead(r.Context(), stream, after, limit)
	if err != nil {
		h.logger.Error("stream read failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "stream read failed")
		return
	}

	entries := make([]historyEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, historyEntry{ID: m.ID, Payload: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stream":  stream,
		"entries": entries,
	})
}

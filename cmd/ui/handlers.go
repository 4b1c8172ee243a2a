package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"crypto-call-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CallHistory is the read side of the call store.
type CallHistory interface {
	ListCalls(ctx context.Context) ([]*models.Call, error)
	ClosedCalls(ctx context.Context) ([]*models.Call, error)
}

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log   *zap.Logger
	calls CallHistory
	now   func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, calls CallHistory) *APIHandler {
	return &APIHandler{log: log, calls: calls, now: time.Now}
}

// CallsHandler returns all calls, newest first.
func (h *APIHandler) CallsHandler(w http.ResponseWriter, r *http.Request) {
	calls, err := h.calls.ListCalls(r.Context())
	if err != nil {
		h.log.Error("Failed to get calls from database", zap.Error(err))
		http.Error(w, "Failed to get calls", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(calls)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalCalls      int64           `json:"total_calls"`
	ProfitableCalls int64           `json:"profitable_calls"`
	WinRate         float64         `json:"win_rate"`
	TotalResult     decimal.Decimal `json:"total_result"`
}

func (s *StatsDetail) add(call *models.Call) {
	s.TotalCalls++
	if call.Result.IsPositive() {
		s.ProfitableCalls++
	}
	s.TotalResult = s.TotalResult.Add(call.Result)
}

func (s *StatsDetail) finish() {
	if s.TotalCalls > 0 {
		s.WinRate = float64(s.ProfitableCalls) / float64(s.TotalCalls)
	}
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// StatisticsHandler calculates the results of the closed calls.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	calls, err := h.calls.ClosedCalls(r.Context())
	if err != nil {
		h.log.Error("Failed to get calls for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	since24h := h.now().Add(-24 * time.Hour)

	var response StatisticsResponse
	for _, call := range calls {
		response.AllTime.add(call)
		if call.ClosedAt != nil && call.ClosedAt.After(since24h) {
			response.Since24h.add(call)
		}
	}
	response.AllTime.finish()
	response.Since24h.finish()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

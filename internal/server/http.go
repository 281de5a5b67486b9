// Package server exposes the admin HTTP endpoints and the gRPC health service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/service"
)

// HistorySyncer replays an account's streams
type HistorySyncer interface {
	SyncHistory(ctx context.Context, accountID string) (service.SyncResult, error)
}

// HistoryLister reads the replayed history of an account
type HistoryLister interface {
	List(ctx context.Context, accountID string) ([]models.HistoryRecord, error)
}

// Liveness reports the state of the bus consumers
type Liveness interface {
	Topics() []string
	Alive() int
}

// Handler serves the admin endpoints
type Handler struct {
	syncer   HistorySyncer
	history  HistoryLister
	liveness Liveness
}

// NewHandler creates a new Handler; history may be nil when no history store is configured
func NewHandler(syncer HistorySyncer, history HistoryLister, liveness Liveness) *Handler {
	return &Handler{
		syncer:   syncer,
		history:  history,
		liveness: liveness,
	}
}

// Router builds the chi router for h
func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/accounts/{accountID}/history", h.GetHistory)
	r.Post("/accounts/{accountID}/history/sync", h.SyncHistory)

	return r
}

type healthResponse struct {
	Status         string   `json:"status"`
	Topics         []string `json:"topics"`
	ConsumersAlive int      `json:"consumersAlive"`
}

// Health reports 200 while at least one consumer is alive, or when none are configured
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Topics: []string{}}
	if h.liveness != nil {
		resp.Topics = h.liveness.Topics()
		resp.ConsumersAlive = h.liveness.Alive()
	}

	status := http.StatusOK
	if len(resp.Topics) > 0 && resp.ConsumersAlive == 0 {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type syncResponse struct {
	AccountID string `json:"accountId"`
	Streams   int    `json:"streams"`
	Records   int    `json:"records"`
	Balance   string `json:"balance"`
}

// SyncHistory replays the account and returns the resulting balance
func (h *Handler) SyncHistory(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	result, err := h.syncer.SyncHistory(r.Context(), accountID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		AccountID: result.AccountID,
		Streams:   result.Streams,
		Records:   result.Records,
		Balance:   result.Balance.String(),
	})
}

type historyRecordResponse struct {
	Sequence     uint64 `json:"sequence"`
	StreamID     string `json:"streamId"`
	EventID      string `json:"eventId"`
	OperationKey string `json:"operationKey"`
	EventType    string `json:"eventType"`
	CategoryID   string `json:"categoryId"`
	ContractorID string `json:"contractorId,omitempty"`
	Amount       string `json:"amount"`
	Delta        string `json:"delta"`
	Balance      string `json:"balance"`
	OperationDay string `json:"operationDay"`
	Comment      string `json:"comment,omitempty"`
}

// GetHistory returns the last replayed history of the account
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		sendErrorResponse(w, http.StatusNotImplemented, "NOT_CONFIGURED", "History store is not configured")
		return
	}

	accountID := chi.URLParam(r, "accountID")
	records, err := h.history.List(r.Context(), accountID)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := make([]historyRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, historyRecordResponse{
			Sequence:     rec.Sequence,
			StreamID:     rec.StreamID,
			EventID:      rec.EventID,
			OperationKey: rec.OperationKey,
			EventType:    string(rec.EventType),
			CategoryID:   rec.CategoryID,
			ContractorID: rec.ContractorID,
			Amount:       rec.Amount.String(),
			Delta:        rec.Delta.String(),
			Balance:      rec.Balance.String(),
			OperationDay: rec.OperationDay.String(),
			Comment:      rec.Comment,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleError converts service errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		sendErrorResponse(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case domain.IsValidation(err):
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	default:
		log.Printf("Admin request failed: error=%v", err)
		sendErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

type errorResponse struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
}

func sendErrorResponse(w http.ResponseWriter, statusCode int, code, description string) {
	writeJSON(w, statusCode, errorResponse{
		ID:          uuid.New(),
		Code:        code,
		Description: description,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

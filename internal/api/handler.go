package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/sweep"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Page sizes of the browse endpoints.
const (
	FlaggedPageSize     = 25
	TransactionPageSize = 20
)

// Screener screens one submitted transaction.
type Screener interface {
	Submit(ctx context.Context, req *domain.ScreeningRequest) (*domain.ScreeningResult, error)
}

// Records is the read side of the record store.
type Records interface {
	PageFlagged(ctx context.Context, filter domain.FlaggedFilter) ([]*domain.FlaggedRecord, int, error)
	PageTransactions(ctx context.Context, offset, limit int) ([]*domain.Transaction, int, error)
	Ping(ctx context.Context) error
}

// BlockAdmin manages the block list.
type BlockAdmin interface {
	Block(ctx context.Context, upiID, reason string) error
	Get(ctx context.Context, upiID string) (*domain.BlockedSender, error)
	List(ctx context.Context) ([]*domain.BlockedSender, error)
}

// Sweeper runs the batch pattern detector.
type Sweeper interface {
	Run(ctx context.Context) (*sweep.Report, error)
}

// RetrainRequester publishes a manual retrain signal.
type RetrainRequester interface {
	Request(ctx context.Context) error
}

// RetrainCounter reports the fraud counter behind automatic retraining.
type RetrainCounter interface {
	Count() int
	Fired() uint64
	Threshold() int
}

// WorkerStats reports retrain worker activity.
type WorkerStats interface {
	GetStats() worker.Stats
}

// Deps are the components the HTTP layer serves.
type Deps struct {
	Screener Screener
	Records  Records
	Blocks   BlockAdmin
	Sweeper  Sweeper
	Retrain  RetrainRequester
	Counter  RetrainCounter
	Worker   WorkerStats
	Cache    domain.Cache
	Bus      domain.EventBus
	Version  string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// CheckFraud handles POST /api/check_fraud.
func (h *Handler) CheckFraud(w http.ResponseWriter, r *http.Request) {
	var req domain.ScreeningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	res, err := h.deps.Screener.Submit(r.Context(), &req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, domain.ErrInvalidTimestamp):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Invalid timestamp format",
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "record store unavailable",
		})
	default:
		slog.Error("screening failed", "error", err, "trace_id", GetTraceID(r.Context()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

// FlaggedPage is the response of GET /flagged.
type FlaggedPage struct {
	Records    []*domain.FlaggedRecord `json:"records"`
	Page       int                     `json:"page"`
	TotalPages int                     `json:"total_pages"`
	Total      int                     `json:"total"`
	UPIID      string                  `json:"upi_id,omitempty"`
}

// ListFlagged handles GET /flagged?upi_id=&page=.
func (h *Handler) ListFlagged(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	upiID := strings.TrimSpace(r.URL.Query().Get("upi_id"))

	recs, total, err := h.deps.Records.PageFlagged(r.Context(), domain.FlaggedFilter{
		UPIID:  upiID,
		Offset: (page - 1) * FlaggedPageSize,
		Limit:  FlaggedPageSize,
	})
	if err != nil {
		storeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*domain.FlaggedRecord{}
	}

	writeJSON(w, http.StatusOK, FlaggedPage{
		Records:    recs,
		Page:       page,
		TotalPages: totalPages(total, FlaggedPageSize),
		Total:      total,
		UPIID:      upiID,
	})
}

// TransactionPage is the response of GET /transactions.
type TransactionPage struct {
	Transactions []*domain.Transaction `json:"transactions"`
	Page         int                   `json:"page"`
	TotalPages   int                   `json:"total_pages"`
	Total        int                   `json:"total"`
}

// ListTransactions handles GET /transactions?page=.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}

	txs, total, err := h.deps.Records.PageTransactions(r.Context(), (page-1)*TransactionPageSize, TransactionPageSize)
	if err != nil {
		storeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}

	writeJSON(w, http.StatusOK, TransactionPage{
		Transactions: txs,
		Page:         page,
		TotalPages:   totalPages(total, TransactionPageSize),
		Total:        total,
	})
}

// ListBlocked handles GET /blocked.
func (h *Handler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Blocks.List(r.Context())
	if err != nil {
		storeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.BlockedSender{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"blocked": list,
		"count":   len(list),
	})
}

// GetBlocked handles GET /blocked/{upi_id}.
func (h *Handler) GetBlocked(w http.ResponseWriter, r *http.Request) {
	upiID := chi.URLParam(r, "upi_id")

	entry, err := h.deps.Blocks.Get(r.Context(), upiID)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "sender not blocked",
		})
		return
	}
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// BlockRequest is the request body for POST /blocked.
type BlockRequest struct {
	UPIID  string `json:"upi_id"`
	Reason string `json:"reason"`
}

// CreateBlocked handles POST /blocked.
func (h *Handler) CreateBlocked(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if strings.TrimSpace(req.UPIID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "upi_id is required",
		})
		return
	}
	if req.Reason == "" {
		req.Reason = "manually blocked"
	}

	if err := h.deps.Blocks.Block(r.Context(), req.UPIID, req.Reason); err != nil {
		storeError(w, r, err)
		return
	}

	entry, err := h.deps.Blocks.Get(r.Context(), req.UPIID)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// RunSweep handles POST /sweeps.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Sweeper.Run(r.Context())
	if errors.Is(err, domain.ErrSweepInProgress) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "sweep already in progress",
		})
		return
	}
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RequestRetrain handles POST /model/retrain.
func (h *Handler) RequestRetrain(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Retrain.Request(r.Context()); err != nil {
		slog.Error("failed to request retrain", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to publish retrain signal",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "retrain requested",
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.deps.Records != nil {
		if err := h.deps.Records.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.deps.Cache != nil {
		if err := h.deps.Cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.deps.Bus != nil {
		if err := h.deps.Bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	body := map[string]any{
		"status":  status,
		"version": h.deps.Version,
	}
	if h.deps.Counter != nil {
		body["retrain"] = map[string]any{
			"count":     h.deps.Counter.Count(),
			"threshold": h.deps.Counter.Threshold(),
			"fired":     h.deps.Counter.Fired(),
		}
	}
	if h.deps.Worker != nil {
		body["worker"] = h.deps.Worker.GetStats()
	}
	writeJSON(w, http.StatusOK, body)
}

// Ready handles GET /ready. The service is ready once the store answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Records != nil {
		if err := h.deps.Records.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// pageParam parses the 1-based page query parameter, writing a 400 on
// malformed input.
func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "page must be a positive integer",
		})
		return 0, false
	}
	return page, true
}

func totalPages(total, size int) int {
	return (total + size - 1) / size
}

func storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	slog.Error("store request failed",
		"path", r.URL.Path,
		"error", err,
		"trace_id", GetTraceID(r.Context()),
	)
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error": "record store unavailable",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

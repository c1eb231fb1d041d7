// Package managerapi serves the transaction REST API under /api/manager/.
package managerapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"moneymanager/internal/core"
	"moneymanager/internal/log"
	"moneymanager/internal/storage"
)

// BasePath is where the collection is mounted.
const BasePath = "/api/manager/"

const maxBodyBytes = 1 << 16

// TransactionService is what the handler needs from the service layer.
type TransactionService interface {
	ListTransactions(ctx context.Context, q core.Query) ([]storage.Record, error)
	CreateTransaction(ctx context.Context, p core.Payload) (storage.Record, error)
	DeleteTransaction(ctx context.Context, id core.ID) error
}

type Handler struct {
	svc    TransactionService
	logger *log.Logger
	events *log.Events
}

func NewHandler(svc TransactionService, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentTransaction)
	return &Handler{svc: svc, logger: logger, events: log.NewEvents(logger)}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+BasePath+"{$}", h.handleList)
	mux.HandleFunc("POST "+BasePath+"{$}", h.handleCreate)
	mux.HandleFunc("DELETE "+BasePath+"{id}", h.handleDelete)
}

// createRequest mirrors core.Payload with raw fields so each one can be
// validated and reported on its own.
type createRequest struct {
	Title  string      `json:"title"`
	Amount json.Number `json:"amount"`
	Type   string      `json:"type"`
	Date   string      `json:"date"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := core.ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.svc.ListTransactions(r.Context(), q)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "List transactions failed",
			log.FieldOperation, log.OpList,
			log.FieldFromDate, q.From.String(),
			log.FieldToDate, q.To.String(),
			log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, err := decodeCreate(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.svc.CreateTransaction(r.Context(), p)
	if err != nil {
		if isValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "Create transaction failed",
			log.FieldOperation, log.OpCreate,
			log.FieldTitle, p.Title,
			log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to create transaction")
		return
	}

	h.events.TransactionCreated(r.Context(),
		rec.ID.String(), rec.Title, rec.Amount, rec.Type.String(), rec.Date.String())
	w.Header().Set("Location", BasePath+rec.ID.String())
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := core.ID(strings.TrimSpace(r.PathValue("id")))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	if err := h.svc.DeleteTransaction(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, storage.ErrNotFound.Error())
			return
		}
		h.events.Failed(r.Context(), "Delete transaction failed", err,
			log.OpDelete, log.ErrorTypeDatabase,
			log.FieldTransactionID, id.String())
		writeError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}
	h.events.TransactionDeleted(r.Context(), id.String())
	w.WriteHeader(http.StatusNoContent)
}

func decodeCreate(body io.Reader) (core.Payload, error) {
	var req createRequest
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return core.Payload{}, fmt.Errorf("invalid JSON body: %w", err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return core.Payload{}, core.ErrEmptyTitle
	}
	amount, err := core.ParseAmount(req.Amount.String())
	if err != nil {
		return core.Payload{}, fmt.Errorf("%w: %q", core.ErrInvalidAmount, req.Amount.String())
	}
	typ, err := core.ParseTransactionType(req.Type)
	if err != nil {
		return core.Payload{}, err
	}
	day, err := time.Parse(core.DateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		return core.Payload{}, fmt.Errorf("%w: %q, want YYYY-MM-DD", core.ErrInvalidDate, req.Date)
	}

	return core.Payload{Title: title, Amount: amount, Type: typ, Date: core.DateOf(day)}, nil
}

func isValidation(err error) bool {
	for _, target := range []error{core.ErrEmptyTitle, core.ErrInvalidAmount, core.ErrInvalidType, core.ErrInvalidDate} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Package handler contains the HTTP handlers for the marketplace API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nftbazaar/marketd/internal/domain"
)

// writeJSON marshals v and writes it with the given status. Marshal failures
// fall back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses, with
// the sentinel's message as the body.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, domain.ErrItemAlreadySold):
		writeError(w, http.StatusConflict, "item already sold")
	case errors.Is(err, domain.ErrInvalidPrice):
		writeError(w, http.StatusBadRequest, "invalid price")
	case errors.Is(err, domain.ErrInsufficientFee), errors.Is(err, domain.ErrIncorrectPayment):
		writeError(w, http.StatusPaymentRequired, "incorrect payment")
	case errors.Is(err, domain.ErrWalletUnavailable):
		writeError(w, http.StatusServiceUnavailable, "signing wallet unavailable")
	case errors.Is(err, domain.ErrUpload):
		writeError(w, http.StatusBadGateway, "storage upload failed")
	case errors.Is(err, domain.ErrTransactionReverted), errors.Is(err, domain.ErrTransactionRejected):
		writeError(w, http.StatusBadGateway, "transaction failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseListOpts extracts pagination from the query string. Defaults:
// limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}

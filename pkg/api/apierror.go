// Package api exposes the notary over HTTP. Errors are RFC 7807 problem
// documents carrying the notary error code.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/notary/pkg/envelope"
	"github.com/Mindburn-Labs/notary/pkg/ledger"
	"github.com/Mindburn-Labs/notary/pkg/notary"
)

const problemTypeBase = "https://notary.mindburn.dev/errors/"

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Code is the notary error code, e.g. ALLOCATION/ALREADY_EXISTS.
	Code string `json:"code,omitempty"`
	// TraceID links to the request ID of this occurrence.
	TraceID string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	if p.Code != "" {
		return fmt.Sprintf("%s (%s): %s", p.Title, p.Code, p.Detail)
	}
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func writeProblem(w http.ResponseWriter, problem *ProblemDetail) {
	if problem.Type == "" {
		problem.Type = fmt.Sprintf("%s%d", problemTypeBase, problem.Status)
	}
	if problem.TraceID == "" {
		problem.TraceID = w.Header().Get("X-Request-ID")
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{Title: title, Status: status, Detail: detail})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	WriteError(w, http.StatusForbidden, "Forbidden", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but never exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// StatusFor maps a failure to its HTTP status and title. Unknown errors are
// internal.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, notary.ErrSizeExceeded), errors.Is(err, notary.ErrSizeMismatch):
		return http.StatusBadRequest, "Invalid Commitment"
	case errors.Is(err, notary.ErrInvalidAuthority):
		return http.StatusForbidden, "Invalid Authority"
	case errors.Is(err, notary.ErrTransferRejected):
		return http.StatusPaymentRequired, "Fee Transfer Rejected"
	case errors.Is(err, notary.ErrAlreadyExists):
		return http.StatusConflict, "Record Already Exists"
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict, "Transaction Conflict"
	case errors.Is(err, notary.ErrClockUnavailable):
		return http.StatusServiceUnavailable, "Clock Unavailable"
	case errors.Is(err, notary.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, envelope.ErrBadSignature):
		return http.StatusUnauthorized, "Invalid Signature"
	case errors.Is(err, envelope.ErrMalformed):
		return http.StatusBadRequest, "Malformed Invocation"
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

// WriteNotaryError writes err as a problem document enriched with request
// context and the notary error code.
func WriteNotaryError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := StatusFor(err)
	if status == http.StatusInternalServerError {
		WriteInternal(w, err)
		return
	}
	problem := &ProblemDetail{
		Title:    title,
		Status:   status,
		Detail:   err.Error(),
		Instance: r.URL.Path,
	}
	var nerr *notary.Error
	if errors.As(err, &nerr) {
		problem.Code = nerr.Code
		problem.Type = problemTypeBase + nerr.Code
	}
	writeProblem(w, problem)
}

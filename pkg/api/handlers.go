package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/notary/pkg/envelope"
	"github.com/Mindburn-Labs/notary/pkg/ledger"
	"github.com/Mindburn-Labs/notary/pkg/notary"
)

const maxBodyBytes = 64 << 10

// Handler serves the notary HTTP API.
type Handler struct {
	svc      *notary.Service
	crediter ledger.Crediter
	schema   *jsonschema.Schema
	logger   *slog.Logger
}

// NewHandler wires the API to a notary service. crediter backs the admin
// airdrop endpoint and may be nil to disable it.
func NewHandler(svc *notary.Service, crediter ledger.Crediter, logger *slog.Logger) (*Handler, error) {
	schema, err := compileSubmitSchema()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default().With("component", "api")
	}
	return &Handler{svc: svc, crediter: crediter, schema: schema, logger: logger}, nil
}

// Routes registers every endpoint. admin guards the airdrop endpoint.
func (h *Handler) Routes(admin func(http.Handler) http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /v1/config", h.handleConfig)
	mux.HandleFunc("POST /v1/proofs", h.handleSubmit)
	mux.HandleFunc("GET /v1/proofs", h.handleFind)
	mux.HandleFunc("GET /v1/proofs/{address}", h.handleGet)
	mux.HandleFunc("GET /v1/accounts/{identity}/balance", h.handleBalance)
	if h.crediter != nil {
		mux.Handle("POST /v1/admin/airdrop", admin(http.HandlerFunc(h.handleAirdrop)))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := h.svc.Config()
	writeJSON(w, http.StatusOK, ConfigView{Authority: cfg.Authority.String(), Fee: cfg.Fee})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteBadRequest(w, "Request body too large or unreadable")
		return
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		WriteBadRequest(w, "Invalid JSON body")
		return
	}
	if err := h.schema.Validate(doc); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	var si envelope.SignedInvocation
	if err := json.Unmarshal(body, &si); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	commitment, inv, err := si.Verify()
	if err != nil {
		WriteNotaryError(w, r, err)
		return
	}

	handle, err := h.svc.SubmitProof(r.Context(), commitment, inv)
	if err != nil {
		WriteNotaryError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/proofs/"+handle.Address.String())
	writeJSON(w, http.StatusCreated, NewRecordView(*handle))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	addr, err := notary.ParseAddress(r.PathValue("address"))
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	handle, err := h.svc.GetRecord(r.Context(), addr)
	if err != nil {
		WriteNotaryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRecordView(*handle))
}

func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	commitment, submitter := q.Get("commitment"), q.Get("submitter")

	var (
		handles []notary.RecordHandle
		err     error
	)
	switch {
	case commitment != "" && submitter == "":
		var c notary.Commitment
		if c, err = notary.ParseCommitment(commitment); err != nil {
			WriteBadRequest(w, err.Error())
			return
		}
		handles, err = h.svc.FindByCommitment(r.Context(), c)
	case submitter != "" && commitment == "":
		var id notary.Identity
		if id, err = notary.ParseIdentity(submitter); err != nil {
			WriteBadRequest(w, err.Error())
			return
		}
		handles, err = h.svc.FindBySubmitter(r.Context(), id)
	default:
		WriteBadRequest(w, "exactly one of commitment or submitter is required")
		return
	}
	if err != nil {
		WriteNotaryError(w, r, err)
		return
	}

	out := RecordList{Records: make([]RecordView, 0, len(handles))}
	for _, hd := range handles {
		out.Records = append(out.Records, NewRecordView(hd))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, err := notary.ParseIdentity(r.PathValue("identity"))
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	bal, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceView{Identity: id.String(), Balance: bal})
}

func (h *Handler) handleAirdrop(w http.ResponseWriter, r *http.Request) {
	var req AirdropRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	id, err := notary.ParseIdentity(req.Identity)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if req.Amount == 0 {
		WriteBadRequest(w, "amount must be positive")
		return
	}
	if err := h.crediter.Credit(r.Context(), id, req.Amount); err != nil {
		if errors.Is(err, notary.ErrBalanceOverflow) {
			WriteBadRequest(w, "balance would overflow")
			return
		}
		WriteNotaryError(w, r, err)
		return
	}
	bal, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "airdrop", "identity", id.String(), "amount", req.Amount)
	writeJSON(w, http.StatusOK, BalanceView{Identity: id.String(), Balance: bal})
}

// Package handler provides HTTP handlers for the kernel coordinator API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/McElyea/orket-kernel/internal/coordinator"
	"github.com/McElyea/orket-kernel/internal/middleware"
	apierrors "github.com/McElyea/orket-kernel/internal/pkg/errors"
	"github.com/McElyea/orket-kernel/internal/pkg/response"
)

// CardHandler exposes the lease coordinator store over HTTP.
type CardHandler struct {
	store *coordinator.Store
}

// NewCardHandler builds a CardHandler over store.
func NewCardHandler(store *coordinator.Store) *CardHandler {
	return &CardHandler{store: store}
}

// Routes returns a chi router mounted at /cards.
func (h *CardHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/{id}/claim", h.Claim)
	r.Post("/{id}/renew", h.Renew)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/fail", h.Fail)
	return r
}

// CardResponse is the wire shape of a coordinator.Card.
type CardResponse struct {
	ID              string    `json:"id"`
	State           string    `json:"state"`
	ClaimedBy       string    `json:"claimed_by,omitempty"`
	LeaseExpiresAt  time.Time `json:"lease_expires_at,omitempty"`
	Attempts        int       `json:"attempts"`
	HedgedExecution bool      `json:"hedged_execution"`
	Result          any       `json:"result,omitempty"`
}

func toCardResponse(c coordinator.Card) CardResponse {
	return CardResponse{
		ID:              c.ID,
		State:           string(c.State),
		ClaimedBy:       c.ClaimedBy,
		LeaseExpiresAt:  c.LeaseExpiresAt,
		Attempts:        c.Attempts,
		HedgedExecution: c.HedgedExecution,
		Result:          c.Result,
	}
}

func decodeStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// List handles GET /cards?state=open.
func (h *CardHandler) List(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state != "" && state != "open" {
		response.BadRequest(w, "unsupported state filter: "+state)
		return
	}

	cards := h.store.ListOpen()
	out := make([]CardResponse, len(cards))
	for i, c := range cards {
		out[i] = toCardResponse(c)
	}
	response.OK(w, out)
}

type claimRequest struct {
	NodeID        string        `json:"node_id"`
	LeaseDuration time.Duration `json:"lease_duration"`
}

// Claim handles POST /cards/{id}/claim.
func (h *CardHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req claimRequest
	if err := decodeStrict(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.NodeID == "" {
		response.ValidationError(w, "node_id", "node_id is required")
		return
	}

	card, err := h.store.Claim(id, req.NodeID, req.LeaseDuration)
	if err != nil {
		h.handleClaimError(w, err)
		return
	}
	middleware.RecordCardClaim("success")
	response.OK(w, toCardResponse(card))
}

func (h *CardHandler) handleClaimError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrNotFound):
		middleware.RecordCardClaim("not_found")
		response.NotFound(w, "card")
	case errors.Is(err, coordinator.ErrAlreadyClaimed):
		middleware.RecordCardClaim("conflict")
		response.Error(w, apierrors.NewConflictError("card already claimed"))
	default:
		middleware.RecordCardClaim("error")
		response.InternalError(w)
	}
}

type renewRequest struct {
	NodeID        string        `json:"node_id"`
	LeaseDuration time.Duration `json:"lease_duration"`
}

// Renew handles POST /cards/{id}/renew.
func (h *CardHandler) Renew(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req renewRequest
	if err := decodeStrict(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.NodeID == "" {
		response.ValidationError(w, "node_id", "node_id is required")
		return
	}

	card, err := h.store.Renew(id, req.NodeID, req.LeaseDuration)
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrNotFound):
			middleware.RecordCardRenewal("not_found")
			response.NotFound(w, "card")
		case errors.Is(err, coordinator.ErrLeaseExpired):
			middleware.RecordCardRenewal("expired")
			response.Forbidden(w)
		case errors.Is(err, coordinator.ErrNotClaimedByYou):
			middleware.RecordCardRenewal("conflict")
			response.Error(w, apierrors.NewConflictError("card not claimed by this node"))
		default:
			middleware.RecordCardRenewal("error")
			response.InternalError(w)
		}
		return
	}
	middleware.RecordCardRenewal("success")
	response.OK(w, toCardResponse(card))
}

type terminateRequest struct {
	NodeID string `json:"node_id"`
	Result any    `json:"result,omitempty"`
}

// Complete handles POST /cards/{id}/complete.
func (h *CardHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, true)
}

// Fail handles POST /cards/{id}/fail.
func (h *CardHandler) Fail(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, false)
}

func (h *CardHandler) terminate(w http.ResponseWriter, r *http.Request, complete bool) {
	id := chi.URLParam(r, "id")
	var req terminateRequest
	if err := decodeStrict(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.NodeID == "" {
		response.ValidationError(w, "node_id", "node_id is required")
		return
	}

	var card coordinator.Card
	var firstWriter bool
	var err error
	if complete {
		card, firstWriter, err = h.store.Complete(id, req.NodeID, req.Result)
	} else {
		card, firstWriter, err = h.store.Fail(id, req.NodeID, req.Result)
	}
	if err != nil {
		if errors.Is(err, coordinator.ErrNotFound) {
			response.NotFound(w, "card")
			return
		}
		response.InternalError(w)
		return
	}

	transition := "complete"
	if !complete {
		transition = "fail"
	}
	middleware.RecordCardTermination(transition, firstWriter)
	response.OK(w, toCardResponse(card))
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/McElyea/orket-kernel/internal/kernel"
	"github.com/McElyea/orket-kernel/internal/kernel/codes"
	"github.com/McElyea/orket-kernel/internal/kernel/contracts"
	"github.com/McElyea/orket-kernel/internal/ledgerstore"
	"github.com/McElyea/orket-kernel/internal/pkg/response"
)

// KernelHandler exposes the Validator Front-End's seven operations as JSON
// endpoints, one per contract method, mirroring the coordinator surface's
// strict-decode/response-envelope conventions rather than a single
// multiplexed JSON-RPC method name.
type KernelHandler struct {
	validator *kernel.Validator
	ledger    *ledgerstore.Store // optional audit mirror, nil when database.enabled=false
}

// NewKernelHandler builds a KernelHandler. ledger may be nil.
func NewKernelHandler(validator *kernel.Validator, ledger *ledgerstore.Store) *KernelHandler {
	return &KernelHandler{validator: validator, ledger: ledger}
}

// Routes returns a chi router mounted at /v1/kernel.
func (h *KernelHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/start_run", h.StartRun)
	r.Post("/execute_turn", h.ExecuteTurn)
	r.Post("/finish_run", h.FinishRun)
	r.Post("/resolve_capability", h.ResolveCapability)
	r.Post("/authorize_tool_call", h.AuthorizeToolCall)
	r.Post("/replay_run", h.ReplayRun)
	r.Post("/compare_runs", h.CompareRuns)
	return r
}

// StartRun handles POST /v1/kernel/start_run.
func (h *KernelHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req kernel.StartRunRequest
	if err := decodeStrict(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	resp, err := h.validator.StartRun(req)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.OK(w, resp)
}

// ExecuteTurn handles POST /v1/kernel/execute_turn. execute_turn never
// errors at the Go-error level: malformed input surfaces as a FAIL
// TurnResult with issues, matching the contract's "never raises" rule.
func (h *KernelHandler) ExecuteTurn(w http.ResponseWriter, r *http.Request) {
	var req kernel.ExecuteTurnRequest
	if err := decodeStrict(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	result := h.validator.ExecuteTurn(req)
	h.mirrorPromotion(r, result)
	response.OK(w, result)
}

// mirrorPromotion writes a best-effort audit row to the optional ledger
// mirror after a turn that reached and passed the promotion stage. Failure
// to mirror never affects the HTTP response already computed from result.
func (h *KernelHandler) mirrorPromotion(r *http.Request, result kernel.TurnResult) {
	if h.ledger == nil {
		return
	}
	if result.Stage != codes.StagePromotion || result.Outcome != contracts.OutcomePass {
		return
	}
	_ = h.ledger.RecordPromotion(r.Context(), result.RunID, result.TurnID, result.Stage, map[string]any{
		"turn_result_digest": result.TurnResultDigest,
	})
}

// FinishRun handles POST /v1/kernel/finish_run.
func (h *KernelHandler) FinishRun(w http.ResponseWriter, r *http.Request) {
	var req kernel.FinishRunRequest
	if err := decodeStrict(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	resp, err := h.validator.FinishRun(req)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.OK(w, resp)
}

// ResolveCapability handles POST /v1/kernel/resolve_capability.
func (h *KernelHandler) ResolveCapability(w http.ResponseWriter, r *http.Request) {
	var req kernel.ResolveCapabilityRequest
	if err := decodeStrict(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	resp, err := h.validator.ResolveCapability(req)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.OK(w, resp)
}

// AuthorizeToolCall handles POST /v1/kernel/authorize_tool_call.
func (h *KernelHandler) AuthorizeToolCall(w http.ResponseWriter, r *http.Request) {
	var req kernel.AuthorizeToolCallRequest
	if err := decodeStrict(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	resp, err := h.validator.AuthorizeToolCall(req)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.OK(w, resp)
}

// ReplayRun handles POST /v1/kernel/replay_run.
func (h *KernelHandler) ReplayRun(w http.ResponseWriter, r *http.Request) {
	var req kernel.ReplayRunRequest
	if err := decodeStrict(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	resp, err := h.validator.ReplayRun(req)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.OK(w, resp)
}

// CompareRuns handles POST /v1/kernel/compare_runs.
func (h *KernelHandler) CompareRuns(w http.ResponseWriter, r *http.Request) {
	var req kernel.CompareRunsRequest
	if err := decodeStrict(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	resp, err := h.validator.CompareRuns(req)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.OK(w, resp)
}

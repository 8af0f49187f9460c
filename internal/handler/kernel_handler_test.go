package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/McElyea/orket-kernel/internal/kernel"
	"github.com/McElyea/orket-kernel/internal/kernel/contracts"
)

func newKernelHandler() *KernelHandler {
	validator := kernel.NewValidator(kernel.CapabilityPolicy{}, "")
	return NewKernelHandler(validator, nil)
}

func TestKernelHandler_StartRun_Succeeds(t *testing.T) {
	h := newKernelHandler()

	rec := doRequest(t, h.Routes(), http.MethodPost, "/start_run", kernel.StartRunRequest{
		ContractVersion: kernel.ContractVersion,
		WorkflowID:      "wf-1",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp kernel.StartRunResponse
	decodeEnvelope(t, rec, &resp)
	assert.NotEmpty(t, resp.RunHandle.RunID)
}

func TestKernelHandler_StartRun_RejectsMissingWorkflowID(t *testing.T) {
	h := newKernelHandler()

	rec := doRequest(t, h.Routes(), http.MethodPost, "/start_run", kernel.StartRunRequest{
		ContractVersion: kernel.ContractVersion,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKernelHandler_ExecuteTurn_NeverErrorsAtTheHTTPLevel(t *testing.T) {
	h := newKernelHandler()

	rec := doRequest(t, h.Routes(), http.MethodPost, "/execute_turn", kernel.ExecuteTurnRequest{
		ContractVersion: kernel.ContractVersion,
		TurnID:          "turn-0001",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result kernel.TurnResult
	decodeEnvelope(t, rec, &result)
	assert.Equal(t, contracts.OutcomeFail, result.Outcome)
}

func TestKernelHandler_FinishRun_RejectsInvalidOutcome(t *testing.T) {
	h := newKernelHandler()

	rec := doRequest(t, h.Routes(), http.MethodPost, "/finish_run", kernel.FinishRunRequest{
		ContractVersion: kernel.ContractVersion,
		RunHandle:       kernel.RunHandle{RunID: "run-1"},
		Outcome:         "MAYBE",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKernelHandler_ResolveCapability_RejectsMissingRole(t *testing.T) {
	h := newKernelHandler()

	rec := doRequest(t, h.Routes(), http.MethodPost, "/resolve_capability", kernel.ResolveCapabilityRequest{
		ContractVersion: kernel.ContractVersion,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

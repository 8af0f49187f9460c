// Package kernel implements the Validator Front-End: the contract API
// (start_run, execute_turn, finish_run, replay_run, compare_runs,
// resolve_capability, authorize_tool_call) that glues the canonical
// encoder, object store, LSI, promotion engine, and ODR into one surface.
// Grounded on original_source/orket/kernel/v1/{validator,api}.py.
package kernel

import (
	"github.com/McElyea/orket-kernel/internal/kernel/contracts"
)

// ContractVersion is the only accepted value for every request's
// contract_version field.
const ContractVersion = contracts.ContractVersion

// DefaultVisibilityMode is start_run's visibility_mode default.
const DefaultVisibilityMode = "local_only"

// DefaultWorkspaceRoot is start_run's workspace_root default.
const DefaultWorkspaceRoot = ".orket_kernel"

// RunHandle identifies an in-flight run and the workspace it operates on.
type RunHandle struct {
	ContractVersion string `json:"contract_version"`
	RunID           string `json:"run_id"`
	VisibilityMode  string `json:"visibility_mode"`
	WorkspaceRoot   string `json:"workspace_root"`
}

// StartRunRequest is start_run's input.
type StartRunRequest struct {
	ContractVersion string `json:"contract_version"`
	WorkflowID      string `json:"workflow_id"`
	VisibilityMode  string `json:"visibility_mode,omitempty"`
	WorkspaceRoot   string `json:"workspace_root,omitempty"`
}

// StartRunResponse is start_run's output.
type StartRunResponse struct {
	ContractVersion string    `json:"contract_version"`
	RunHandle       RunHandle `json:"run_handle"`
}

// StageTripletInput is one turn_input.stage_triplet payload.
type StageTripletInput struct {
	Stem     string         `json:"stem"`
	Body     map[string]any `json:"body"`
	Links    map[string]any `json:"links"`
	Manifest map[string]any `json:"manifest"`
}

// ToolCall is one turn_input.tool_call or authorize_tool_call tool_request
// payload.
type ToolCall struct {
	Action                string   `json:"action,omitempty"`
	Resource              string   `json:"resource,omitempty"`
	RequestedPermissions  []string `json:"requested_permissions,omitempty"`
	DeclaredPermissions   []string `json:"declared_permissions,omitempty"`
	SideEffectsDeclared   *bool    `json:"side_effects_declared,omitempty"`
}

func (t ToolCall) sideEffectsDeclared() bool {
	if t.SideEffectsDeclared == nil {
		return true
	}
	return *t.SideEffectsDeclared
}

func (t ToolCall) action() string {
	if t.Action == "" {
		return "tool.call"
	}
	return t.Action
}

func (t ToolCall) resource() string {
	if t.Resource == "" {
		return "unknown"
	}
	return t.Resource
}

// CapabilityContext is the context object accompanying a tool_call,
// resolve_capability request, or authorize_tool_call request.
type CapabilityContext struct {
	CapabilityEnforcement *bool    `json:"capability_enforcement,omitempty"`
	Subject               string   `json:"subject,omitempty"`
	Role                  string   `json:"role,omitempty"`
	Task                  string   `json:"task,omitempty"`
	CapabilityResolved    *bool    `json:"capability_resolved,omitempty"`
	AllowToolCall         *bool    `json:"allow_tool_call,omitempty"`
	Permissions           []string `json:"permissions,omitempty"`
	PolicySource          string   `json:"policy_source,omitempty"`
	PolicyVersion         string   `json:"policy_version,omitempty"`
	PolicyRef             string   `json:"policy_ref,omitempty"`
}

func (c CapabilityContext) enforcementEnabled() bool {
	if c.CapabilityEnforcement == nil {
		return true
	}
	return *c.CapabilityEnforcement
}

func (c CapabilityContext) resolved() bool {
	if c.CapabilityResolved == nil {
		return true
	}
	return *c.CapabilityResolved
}

func (c CapabilityContext) allowToolCall() bool {
	if c.AllowToolCall == nil {
		return false
	}
	return *c.AllowToolCall
}

func (c CapabilityContext) subjectOrUnknown() string {
	if c.Subject == "" {
		return "unknown"
	}
	return c.Subject
}

// TurnInput is execute_turn's request.turn_input payload. ToolCall and
// StageTriplet are each optional; a turn may carry either, both, or neither.
type TurnInput struct {
	Context      *CapabilityContext `json:"context,omitempty"`
	ToolCall     *ToolCall          `json:"tool_call,omitempty"`
	StageTriplet *StageTripletInput `json:"stage_triplet,omitempty"`
}

// CommitIntent is execute_turn's commit_intent enum.
type CommitIntent string

const (
	CommitStageOnly               CommitIntent = "stage_only"
	CommitStageAndRequestPromotion CommitIntent = "stage_and_request_promotion"
)

// ExecuteTurnRequest is execute_turn's input.
type ExecuteTurnRequest struct {
	ContractVersion string       `json:"contract_version"`
	RunHandle       *RunHandle   `json:"run_handle"`
	TurnID          string       `json:"turn_id"`
	CommitIntent    CommitIntent `json:"commit_intent,omitempty"`
	TurnInput       *TurnInput   `json:"turn_input,omitempty"`
}

// DiffSummary is the transition block's diff_summary.
type DiffSummary struct {
	Kind          string   `json:"kind"`
	ChangedCount  int      `json:"changed_count"`
	TripletStems  []string `json:"triplet_stems"`
	SoloJSONPaths []string `json:"solo_json_paths"`
}

// Transition is a turn result's host-supplied state transition block. No
// full state-diffing engine exists in this core (that lives upstream of the
// kernel); the fields are carried through with placeholder digests exactly
// as the Python original does, since the kernel's job ends at staging and
// promotion, not state reconstruction.
type Transition struct {
	PriorStateDigest    *string     `json:"prior_state_digest"`
	ProposedStateDigest string      `json:"proposed_state_digest"`
	InputsDigest        string      `json:"inputs_digest"`
	DiffSummary         DiffSummary `json:"diff_summary"`
	Artifacts           []string    `json:"artifacts"`
}

func defaultTransition() Transition {
	return Transition{
		ProposedStateDigest: zeroDigest,
		InputsDigest:        zeroDigest,
		DiffSummary: DiffSummary{
			Kind:          "host_supplied",
			TripletStems:  []string{},
			SoloJSONPaths: []string{},
		},
		Artifacts: []string{},
	}
}

const zeroDigest = "0000000000000000000000000000000000000000000000000000000000000000"

// CapabilityEvidence names the policy table backing a capability decision.
type CapabilityEvidence struct {
	PolicyRef         string `json:"policy_ref"`
	CapabilitySource  string `json:"capability_source"`
	CapabilityVersion string `json:"capability_version"`
}

// CapabilityDecision is one resolve/authorize decision result.
type CapabilityDecision struct {
	ContractVersion string              `json:"contract_version"`
	Subject         string              `json:"subject"`
	Action          string              `json:"action"`
	Resource        string              `json:"resource"`
	Result          string              `json:"result"`
	ReasonCode      string              `json:"reason_code"`
	Evidence        CapabilityEvidence  `json:"evidence"`
}

// CapabilityDecisionRecord is the audit-trail form of a CapabilityDecision,
// content-addressed by its own canonical bytes.
type CapabilityDecisionRecord struct {
	ContractVersion string               `json:"contract_version"`
	RunID           string               `json:"run_id"`
	TurnID          string               `json:"turn_id"`
	ToolName        string               `json:"tool_name"`
	Action          string               `json:"action"`
	Ordinal         int                  `json:"ordinal"`
	Outcome         string               `json:"outcome"`
	Stage           string               `json:"stage"`
	DenyCode        *string              `json:"deny_code"`
	InfoCode        *string              `json:"info_code"`
	Reason          string               `json:"reason"`
	Provenance      *CapabilityEvidence  `json:"provenance"`
	DecisionID      string               `json:"decision_id"`
}

// Capabilities is a turn result's capabilities block.
type Capabilities struct {
	Mode            string                     `json:"mode"`
	Decisions       []CapabilityDecision       `json:"decisions"`
	DecisionsV121   []CapabilityDecisionRecord `json:"decisions_v1_2_1"`
	DeniedCount     int                        `json:"denied_count"`
	GrantedCount    int                        `json:"granted_count"`
}

func disabledCapabilities() Capabilities {
	return Capabilities{Mode: "disabled", Decisions: []CapabilityDecision{}, DecisionsV121: []CapabilityDecisionRecord{}}
}

// TurnResult is execute_turn's output shape.
type TurnResult struct {
	ContractVersion  string             `json:"contract_version"`
	RunID            string             `json:"run_id"`
	TurnID           string             `json:"turn_id"`
	Outcome          contracts.Outcome  `json:"outcome"`
	Stage            string             `json:"stage"`
	Errors           int                `json:"errors"`
	Warnings         int                `json:"warnings"`
	Issues           []contracts.Issue  `json:"issues"`
	Events           []string           `json:"events"`
	Transition       Transition         `json:"transition"`
	Capabilities     Capabilities       `json:"capabilities"`
	Trace            any                `json:"trace"`
	TurnResultDigest string             `json:"turn_result_digest,omitempty"`
}

// FinishRunRequest is finish_run's input.
type FinishRunRequest struct {
	ContractVersion string    `json:"contract_version"`
	RunHandle       RunHandle `json:"run_handle"`
	Outcome         string    `json:"outcome"`
}

// FinishRunResponse is finish_run's output.
type FinishRunResponse struct {
	ContractVersion string   `json:"contract_version"`
	RunID           string   `json:"run_id"`
	Outcome         string   `json:"outcome"`
	TurnsExecuted   int      `json:"turns_executed"`
	Events          []string `json:"events"`
}

// ResolveCapabilityRequest is resolve_capability's input.
type ResolveCapabilityRequest struct {
	ContractVersion string             `json:"contract_version"`
	Role            string             `json:"role"`
	Task            string             `json:"task"`
	Context         *CapabilityContext `json:"context,omitempty"`
}

// CapabilityPlan is resolve_capability's plan payload.
type CapabilityPlan struct {
	Mode          string   `json:"mode"`
	Role          string   `json:"role"`
	Task          string   `json:"task"`
	Permissions   []string `json:"permissions"`
	PolicySource  string   `json:"policy_source"`
	PolicyVersion string   `json:"policy_version"`
}

// ResolveCapabilityResponse is resolve_capability's output.
type ResolveCapabilityResponse struct {
	ContractVersion string          `json:"contract_version"`
	CapabilityPlan  CapabilityPlan  `json:"capability_plan"`
	Events          []string        `json:"events"`
}

// AuthorizeToolCallRequest is authorize_tool_call's input.
type AuthorizeToolCallRequest struct {
	ContractVersion string             `json:"contract_version"`
	Context         CapabilityContext  `json:"context"`
	ToolRequest     ToolCall           `json:"tool_request"`
}

// AuthorizeToolCallResponse is authorize_tool_call's output.
type AuthorizeToolCallResponse struct {
	ContractVersion string              `json:"contract_version"`
	Decision        CapabilityDecision  `json:"decision"`
}

// RunDescriptor is replay_run's input descriptor.
type RunDescriptor struct {
	RunID              string `json:"run_id"`
	WorkflowID         string `json:"workflow_id"`
	ContractVersion    string `json:"contract_version"`
	SchemaVersion      string `json:"schema_version"`
	PolicyProfileRef   string `json:"policy_profile_ref"`
	ModelProfileRef    string `json:"model_profile_ref"`
	RuntimeProfileRef  string `json:"runtime_profile_ref"`
	TraceRef           string `json:"trace_ref"`
	StateRef           string `json:"state_ref"`
}

// ReplayRunRequest is replay_run's input.
type ReplayRunRequest struct {
	ContractVersion string         `json:"contract_version"`
	RunDescriptor   *RunDescriptor `json:"run_descriptor,omitempty"`
}

// TurnDigestEntry is one entry of a run payload's turn_digests surface.
type TurnDigestEntry struct {
	TurnID           string `json:"turn_id"`
	TurnResultDigest string `json:"turn_result_digest"`
	EvidenceDigest   string `json:"evidence_digest,omitempty"`
}

// StageOutcomeEntry is one entry of a run payload's stage_outcomes surface.
type StageOutcomeEntry struct {
	TurnID  string `json:"turn_id"`
	Stage   string `json:"stage"`
	Outcome string `json:"outcome"`
}

// IssueCodeEntry is one entry of a run payload's issue_codes surface.
type IssueCodeEntry struct {
	Code     string `json:"code"`
	Stage    string `json:"stage"`
	Location string `json:"location"`
}

// RunPayload is the comparable surface of one run, as fed to compare_runs.
// It mirrors the Python original's acceptance of an arbitrary run-shaped
// dict by exposing the exact fields compare_runs reads and normalizes.
type RunPayload struct {
	RunID           string            `json:"run_id,omitempty"`
	ContractVersion string            `json:"contract_version,omitempty"`
	SchemaVersion   string            `json:"schema_version,omitempty"`
	TurnDigests     []TurnDigestEntry `json:"turn_digests,omitempty"`
	StageOutcomes   []StageOutcomeEntry `json:"stage_outcomes,omitempty"`
	Issues          []IssueCodeEntry `json:"issues,omitempty"`
	Events          []string          `json:"events,omitempty"`
}

// CompareRunsRequest is compare_runs' input.
type CompareRunsRequest struct {
	ContractVersion string      `json:"contract_version"`
	RunA            *RunPayload `json:"run_a,omitempty"`
	RunB            *RunPayload `json:"run_b,omitempty"`
}

// Parity is a replay report's structural_parity block.
type Parity struct {
	Kind        string         `json:"kind"`
	Matches     int            `json:"matches"`
	Mismatches  int            `json:"mismatches"`
	Expected    ParitySide     `json:"expected"`
	Actual      ParitySide     `json:"actual"`
}

// ParitySide is one side (expected/actual) of a Parity block.
type ParitySide struct {
	RunID       string            `json:"run_id"`
	TurnDigests []TurnDigestEntry `json:"turn_digests"`
}

func defaultParity(runA, runB string) Parity {
	return Parity{
		Kind:     "structural_parity",
		Expected: ParitySide{RunID: runA, TurnDigests: []TurnDigestEntry{}},
		Actual:   ParitySide{RunID: runB, TurnDigests: []TurnDigestEntry{}},
	}
}

// ReplayReport is the output shape shared by replay_run and compare_runs.
type ReplayReport struct {
	ContractVersion string            `json:"contract_version"`
	Mode            string            `json:"mode"`
	Outcome         contracts.Outcome `json:"outcome"`
	RunsCompared    int               `json:"runs_compared"`
	TurnsCompared   int               `json:"turns_compared"`
	Issues          []contracts.Issue `json:"issues"`
	Events          []string          `json:"events"`
	Parity          Parity            `json:"parity"`
}

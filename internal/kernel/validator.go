package kernel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/McElyea/orket-kernel/internal/canon"
	"github.com/McElyea/orket-kernel/internal/kernel/codes"
	"github.com/McElyea/orket-kernel/internal/kernel/contracts"
	"github.com/McElyea/orket-kernel/internal/kernel/event"
	"github.com/McElyea/orket-kernel/internal/lsi"
	"github.com/McElyea/orket-kernel/internal/promotion"
)

// Validator is the kernel's Validator Front-End: start_run, execute_turn,
// finish_run, resolve_capability, authorize_tool_call, replay_run, and
// compare_runs, all bound to one CapabilityPolicy.
type Validator struct {
	policy               CapabilityPolicy
	defaultWorkspaceRoot string
}

// NewValidator builds a Validator over policy. defaultWorkspaceRoot is used
// by start_run whenever a caller omits workspace_root; an empty string
// falls back to DefaultWorkspaceRoot.
func NewValidator(policy CapabilityPolicy, defaultWorkspaceRoot string) *Validator {
	if defaultWorkspaceRoot == "" {
		defaultWorkspaceRoot = DefaultWorkspaceRoot
	}
	return &Validator{policy: policy, defaultWorkspaceRoot: defaultWorkspaceRoot}
}

func newRunID() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "run-" + token[:8]
}

// StartRun allocates a run_id and returns a run handle.
func (v *Validator) StartRun(req StartRunRequest) (StartRunResponse, error) {
	if req.ContractVersion != ContractVersion {
		return StartRunResponse{}, fmt.Errorf("contract_version must be %s", ContractVersion)
	}
	if req.WorkflowID == "" {
		return StartRunResponse{}, fmt.Errorf("workflow_id is required")
	}
	visibilityMode := req.VisibilityMode
	if visibilityMode == "" {
		visibilityMode = DefaultVisibilityMode
	}
	workspaceRoot := req.WorkspaceRoot
	if workspaceRoot == "" {
		workspaceRoot = v.defaultWorkspaceRoot
	}
	return StartRunResponse{
		ContractVersion: ContractVersion,
		RunHandle: RunHandle{
			ContractVersion: ContractVersion,
			RunID:           newRunID(),
			VisibilityMode:  visibilityMode,
			WorkspaceRoot:   workspaceRoot,
		},
	}, nil
}

func baseShapeFailure(runID, turnID, code, location, message string) TurnResult {
	issue := contracts.NewIssue(codes.StageBaseShape, code, location, message, nil)
	return TurnResult{
		ContractVersion: ContractVersion,
		RunID:           runID,
		TurnID:          turnID,
		Outcome:         contracts.OutcomeFail,
		Stage:           codes.StageBaseShape,
		Errors:          1,
		Issues:          []contracts.Issue{issue},
		Events:          []string{event.Format(event.LevelError, codes.StageBaseShape, code, location, message, nil)},
		Transition:      defaultTransition(),
		Capabilities:    disabledCapabilities(),
	}
}

// ExecuteTurn runs the base-shape checks, then capability authorization
// and/or LSI staging, then optionally promotion, for one turn.
func (v *Validator) ExecuteTurn(req ExecuteTurnRequest) TurnResult {
	if req.ContractVersion != ContractVersion {
		result := baseShapeFailure("unknown", orUnknown(req.TurnID), codes.EBaseShapeInvalidManifestValue, "/contract_version", "contract_version must be kernel_api/v1.")
		return withDigest(result)
	}
	if req.RunHandle == nil {
		result := baseShapeFailure("unknown", orUnknown(req.TurnID), codes.EBaseShapeInvalidManifestValue, "/run_handle", "run_handle must be an object.")
		return withDigest(result)
	}
	runID := req.RunHandle.RunID
	if runID == "" {
		result := baseShapeFailure("unknown", orUnknown(req.TurnID), codes.EBaseShapeMissingRunID, "/run_handle/run_id", "run_id is required.")
		return withDigest(result)
	}
	turnID := req.TurnID
	if turnID == "" {
		result := baseShapeFailure(runID, "unknown", codes.EBaseShapeInvalidManifestValue, "/turn_id", "turn_id is required.")
		return withDigest(result)
	}

	workspaceRoot := req.RunHandle.WorkspaceRoot
	if workspaceRoot == "" {
		workspaceRoot = DefaultWorkspaceRoot
	}
	index := lsi.New(workspaceRoot)

	commitIntent := req.CommitIntent
	if commitIntent == "" {
		commitIntent = CommitStageOnly
	}

	events := []string{}
	issues := []contracts.Issue{}
	stage := codes.StageBaseShape
	outcome := contracts.OutcomePass
	capabilities := disabledCapabilities()

	if req.TurnInput != nil && req.TurnInput.ToolCall != nil {
		stage = codes.StageCapability
		ctx := CapabilityContext{}
		if req.TurnInput.Context != nil {
			ctx = *req.TurnInput.Context
		}
		tool := *req.TurnInput.ToolCall

		if !ctx.enforcementEnabled() {
			infoCode := codes.ICapabilitySkipped
			record, _ := v.capabilityRecord(runID, turnID, tool.resource(), tool.action(), 0, "skipped", nil, &infoCode, "Capability module disabled for this request.", nil)
			capabilities.DecisionsV121 = []CapabilityDecisionRecord{record}
			events = append(events, event.Format(event.LevelInfo, codes.StageCapability, codes.ICapabilitySkipped, "/turn_input/context", "Capability module disabled.", nil))
		} else {
			capabilities.Mode = "enabled"
			decision := v.policy.decide(ctx, tool)
			capabilities.Decisions = []CapabilityDecision{decision}

			var (
				recordOutcome string
				denyCode      *string
				provenance    *CapabilityEvidence
			)
			if decision.Result == "DENY" {
				if decision.ReasonCode == codes.ECapabilityNotResolved {
					recordOutcome = "unresolved"
				} else {
					recordOutcome = "denied"
				}
				reasonCode := decision.ReasonCode
				denyCode = &reasonCode
			} else {
				recordOutcome = "allowed"
				ev := decision.Evidence
				provenance = &ev
			}
			record, _ := v.capabilityRecord(runID, turnID, tool.resource(), tool.action(), 0, recordOutcome, denyCode, nil,
				fmt.Sprintf("Capability decision outcome: %s.", recordOutcome), provenance)
			capabilities.DecisionsV121 = []CapabilityDecisionRecord{record}

			if decision.Result == "DENY" {
				capabilities.DeniedCount = 1
				outcome = contracts.OutcomeFail
				location := fmt.Sprintf("/capabilities/decisions_v1_2_1/%d", record.Ordinal)
				issues = append(issues, contracts.NewIssue(codes.StageCapability, decision.ReasonCode, location,
					"Capability policy denied tool execution.", map[string]any{"decision": toJSONMap(decision), "decision_record": toJSONMap(record)}))
				events = append(events, event.Format(event.LevelError, codes.StageCapability, decision.ReasonCode, location, "Tool execution denied by capability policy.", nil))
			} else {
				capabilities.GrantedCount = 1
				events = append(events, event.Format(event.LevelInfo, codes.StageCapability, decision.ReasonCode, "/turn_input/tool_call", "Tool execution authorized by capability policy.", nil))
			}
		}
	}

	if outcome == contracts.OutcomePass && req.TurnInput != nil && req.TurnInput.StageTriplet != nil {
		triplet := req.TurnInput.StageTriplet
		manifestInput := triplet.Manifest
		if manifestInput == nil {
			manifestInput = map[string]any{}
		}
		body, bodyErr := toCanonValue(triplet.Body)
		links, linksErr := toCanonValue(triplet.Links)
		manifest, manifestErr := toCanonValue(manifestInput)
		if triplet.Stem == "" || bodyErr != nil || linksErr != nil || manifestErr != nil {
			issues = append(issues, contracts.NewIssue(codes.StageBaseShape, codes.EBaseShapeInvalidManifestValue, "/turn_input/stage_triplet",
				"stage_triplet requires stem/body/links/manifest shapes.", nil))
			events = append(events, event.Format(event.LevelError, codes.StageBaseShape, codes.EBaseShapeInvalidManifestValue, "/turn_input/stage_triplet", "stage_triplet shape invalid.", nil))
			outcome = contracts.OutcomeFail
			stage = codes.StageBaseShape
		} else {
			stageResult := index.StageTriplet(runID, turnID, triplet.Stem, body, links, manifest)
			events = append(events, stageResult.Events...)
			issues = append(issues, stageResult.Issues...)
			stage = codes.StageStaging
			if stageResult.OK() {
				events = append(events, event.Format(event.LevelInfo, codes.StageStaging, codes.IGatekeeperPass, "/turn_input/stage_triplet", "Triplet staged.", nil))
			} else {
				outcome = contracts.OutcomeFail
			}
		}
	}

	if outcome == contracts.OutcomePass && commitIntent == CommitStageAndRequestPromotion {
		promotionResult := promotion.Promote(index, runID, turnID)
		events = append(events, promotionResult.Events...)
		issues = append(issues, promotionResult.Issues...)
		outcome = promotionResult.Outcome
		stage = codes.StagePromotion
	}

	errCount := 0
	warnCount := 0
	for _, issue := range issues {
		switch issue.Level {
		case contracts.LevelError:
			errCount++
		case contracts.LevelWarn:
			warnCount++
		}
	}

	result := TurnResult{
		ContractVersion: ContractVersion,
		RunID:           runID,
		TurnID:          turnID,
		Outcome:         outcome,
		Stage:           stage,
		Errors:          errCount,
		Warnings:        warnCount,
		Issues:          issues,
		Events:          events,
		Transition:      defaultTransition(),
		Capabilities:    capabilities,
	}
	return withDigest(result)
}

func withDigest(r TurnResult) TurnResult {
	digest, err := computeTurnResultDigest(r)
	if err != nil {
		return r
	}
	r.TurnResultDigest = digest
	return r
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func toCanonValue(m map[string]any) (canon.Value, error) {
	if m == nil {
		return canon.Value{}, fmt.Errorf("value must be an object")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return canon.Value{}, err
	}
	value, err := canon.ParseJSON(data)
	if err != nil {
		return canon.Value{}, err
	}
	if value.Kind() != canon.KindObject {
		return canon.Value{}, fmt.Errorf("value must be an object")
	}
	return value, nil
}

func (v *Validator) capabilityRecord(runID, turnID, toolName, action string, ordinal int, outcome string, denyCode, infoCode *string, reason string, provenance *CapabilityEvidence) (CapabilityDecisionRecord, error) {
	record := CapabilityDecisionRecord{
		ContractVersion: ContractVersion,
		RunID:           runID,
		TurnID:          turnID,
		ToolName:        toolName,
		Action:          action,
		Ordinal:         ordinal,
		Outcome:         outcome,
		Stage:           codes.StageCapability,
		DenyCode:        denyCode,
		InfoCode:        infoCode,
		Reason:          reason,
		Provenance:      provenance,
	}
	id, err := decisionID(record)
	if err != nil {
		return record, err
	}
	record.DecisionID = id
	return record, nil
}

// FinishRun validates the finish_run request and reports a trivial
// completion summary. No run ledger of executed turns is kept by this core
// (that is upstream orchestration state), so turns_executed is always 0 and
// events is always empty, matching the Python original.
func (v *Validator) FinishRun(req FinishRunRequest) (FinishRunResponse, error) {
	if req.ContractVersion != ContractVersion {
		return FinishRunResponse{}, fmt.Errorf("contract_version must be %s", ContractVersion)
	}
	if req.RunHandle.RunID == "" {
		return FinishRunResponse{}, fmt.Errorf("run_handle.run_id is required")
	}
	if req.Outcome != "PASS" && req.Outcome != "FAIL" {
		return FinishRunResponse{}, fmt.Errorf("outcome must be PASS or FAIL")
	}
	return FinishRunResponse{
		ContractVersion: ContractVersion,
		RunID:           req.RunHandle.RunID,
		Outcome:         req.Outcome,
		TurnsExecuted:   0,
		Events:          []string{},
	}, nil
}

// ResolveCapability looks up the permission grant for (role, task) under the
// bound policy, honoring a context.capability_enforcement==false override.
func (v *Validator) ResolveCapability(req ResolveCapabilityRequest) (ResolveCapabilityResponse, error) {
	if req.ContractVersion != ContractVersion {
		return ResolveCapabilityResponse{}, fmt.Errorf("contract_version must be %s", ContractVersion)
	}
	if req.Role == "" {
		return ResolveCapabilityResponse{}, fmt.Errorf("role is required")
	}
	if req.Task == "" {
		return ResolveCapabilityResponse{}, fmt.Errorf("task is required")
	}
	ctx := CapabilityContext{}
	if req.Context != nil {
		ctx = *req.Context
	}
	ev := v.policy.evidence(ctx)

	if !ctx.enforcementEnabled() {
		return ResolveCapabilityResponse{
			ContractVersion: ContractVersion,
			CapabilityPlan: CapabilityPlan{
				Mode:          "disabled",
				Role:          req.Role,
				Task:          req.Task,
				Permissions:   []string{},
				PolicySource:  ev.CapabilitySource,
				PolicyVersion: ev.CapabilityVersion,
			},
			Events: []string{event.Format(event.LevelInfo, codes.StageCapability, codes.ICapabilitySkipped, "/context", "Capability module disabled.", nil)},
		}, nil
	}

	permissions := v.policy.permissions(req.Role, req.Task, ctx.Permissions)
	return ResolveCapabilityResponse{
		ContractVersion: ContractVersion,
		CapabilityPlan: CapabilityPlan{
			Mode:          "enabled",
			Role:          req.Role,
			Task:          req.Task,
			Permissions:   permissions,
			PolicySource:  ev.CapabilitySource,
			PolicyVersion: ev.CapabilityVersion,
		},
		Events: []string{event.Format(event.LevelInfo, codes.StageCapability, codes.IGatekeeperPass, "/context", "Capability resolved.", nil)},
	}, nil
}

// AuthorizeToolCall runs the shared capability decision against a single
// tool request, outside the execute_turn flow.
func (v *Validator) AuthorizeToolCall(req AuthorizeToolCallRequest) (AuthorizeToolCallResponse, error) {
	if req.ContractVersion != ContractVersion {
		return AuthorizeToolCallResponse{}, fmt.Errorf("contract_version must be %s", ContractVersion)
	}
	if !req.Context.enforcementEnabled() {
		ev := v.policy.evidence(req.Context)
		decision := CapabilityDecision{
			ContractVersion: ContractVersion,
			Subject:         req.Context.subjectOrUnknown(),
			Action:          req.ToolRequest.action(),
			Resource:        req.ToolRequest.resource(),
			Result:          "GRANT",
			ReasonCode:      codes.ICapabilitySkipped,
			Evidence:        ev,
		}
		return AuthorizeToolCallResponse{ContractVersion: ContractVersion, Decision: decision}, nil
	}
	decision := v.policy.decide(req.Context, req.ToolRequest)
	return AuthorizeToolCallResponse{ContractVersion: ContractVersion, Decision: decision}, nil
}

package kernel

import (
	"fmt"
	"sort"

	"github.com/McElyea/orket-kernel/internal/kernel/codes"
	"github.com/McElyea/orket-kernel/internal/kernel/contracts"
	"github.com/McElyea/orket-kernel/internal/kernel/event"
)

// replayDescriptorFields lists the required fields of a replay descriptor,
// in the order replay_run checks them, so the first missing field named in
// an issue location is deterministic.
var replayDescriptorFields = []struct {
	name string
	get  func(RunDescriptor) string
}{
	{"run_id", func(d RunDescriptor) string { return d.RunID }},
	{"workflow_id", func(d RunDescriptor) string { return d.WorkflowID }},
	{"contract_version", func(d RunDescriptor) string { return d.ContractVersion }},
	{"schema_version", func(d RunDescriptor) string { return d.SchemaVersion }},
	{"policy_profile_ref", func(d RunDescriptor) string { return d.PolicyProfileRef }},
	{"model_profile_ref", func(d RunDescriptor) string { return d.ModelProfileRef }},
	{"runtime_profile_ref", func(d RunDescriptor) string { return d.RuntimeProfileRef }},
	{"trace_ref", func(d RunDescriptor) string { return d.TraceRef }},
	{"state_ref", func(d RunDescriptor) string { return d.StateRef }},
}

func buildReplayReport(mode string, outcome contracts.Outcome, issues []contracts.Issue, events []string, parity Parity, runsCompared, turnsCompared int) ReplayReport {
	return ReplayReport{
		ContractVersion: ContractVersion,
		Mode:            mode,
		Outcome:         outcome,
		RunsCompared:    runsCompared,
		TurnsCompared:   turnsCompared,
		Issues:          issues,
		Events:          events,
		Parity:          parity,
	}
}

// ReplayRun validates a run descriptor's required fields and contract
// version; it never re-executes a run, matching the Python original's
// shape-only replay check.
func (v *Validator) ReplayRun(req ReplayRunRequest) (ReplayReport, error) {
	if req.ContractVersion != ContractVersion {
		return ReplayReport{}, errContractVersion()
	}
	descriptor := RunDescriptor{}
	if req.RunDescriptor != nil {
		descriptor = *req.RunDescriptor
	}

	var missing string
	for _, field := range replayDescriptorFields {
		if field.get(descriptor) == "" {
			missing = field.name
			break
		}
	}
	runID := descriptor.RunID
	if runID == "" {
		runID = "unknown"
	}
	parity := defaultParity(runID, runID)

	if missing != "" {
		location := "/run_descriptor/" + missing
		issue := contracts.NewIssue(codes.StageReplay, codes.EReplayInputMissing, location,
			"Replay input descriptor is incomplete.", map[string]any{"missing_fields": []string{missing}})
		return buildReplayReport("replay_run", contracts.OutcomeFail, []contracts.Issue{issue},
			[]string{event.Format(event.LevelError, codes.StageReplay, codes.EReplayInputMissing, location, "Replay input missing.", nil)},
			parity, 1, 0), nil
	}

	if descriptor.ContractVersion != ContractVersion {
		issue := contracts.NewIssue(codes.StageReplay, codes.EReplayVersionMismatch, "/run_descriptor/contract_version",
			"Replay descriptor contract_version mismatch.", map[string]any{"expected": ContractVersion, "actual": descriptor.ContractVersion})
		return buildReplayReport("replay_run", contracts.OutcomeFail, []contracts.Issue{issue},
			[]string{event.Format(event.LevelError, codes.StageReplay, codes.EReplayVersionMismatch, "/run_descriptor/contract_version", "Replay version mismatch.", nil)},
			parity, 1, 0), nil
	}

	return buildReplayReport("replay_run", contracts.OutcomePass, []contracts.Issue{},
		[]string{event.Format(event.LevelInfo, codes.StageReplay, codes.IGatekeeperPass, "/run_descriptor", "Replay input accepted.", nil)},
		parity, 1, 0), nil
}

func sortedTurnDigests(entries []TurnDigestEntry) []TurnDigestEntry {
	out := append([]TurnDigestEntry{}, entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].TurnID < out[j].TurnID })
	return out
}

func sortedStageOutcomes(entries []StageOutcomeEntry) []StageOutcomeEntry {
	out := append([]StageOutcomeEntry{}, entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].TurnID < out[j].TurnID })
	return out
}

func sortedIssueCodes(entries []IssueCodeEntry) []IssueCodeEntry {
	out := append([]IssueCodeEntry{}, entries...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		return a.Code < b.Code
	})
	return out
}

func eventCodesOf(events []string) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		code, ok := event.ExtractCode(e)
		if ok {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

// contractSurface is the six-field normalized comparison surface compare_runs
// checks for structural parity.
type contractSurface struct {
	contractVersion string
	schemaVersion   string
	turnDigests     []TurnDigestEntry
	stageOutcomes   []StageOutcomeEntry
	issueCodes      []IssueCodeEntry
	eventCodes      []string
}

func surfaceOf(run RunPayload) contractSurface {
	return contractSurface{
		contractVersion: run.ContractVersion,
		schemaVersion:   run.SchemaVersion,
		turnDigests:     sortedTurnDigests(run.TurnDigests),
		stageOutcomes:   sortedStageOutcomes(run.StageOutcomes),
		issueCodes:      sortedIssueCodes(run.Issues),
		eventCodes:      eventCodesOf(run.Events),
	}
}

func turnDigestsEqual(a, b []TurnDigestEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stageOutcomesEqual(a, b []StageOutcomeEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func issueCodesEqual(a, b []IssueCodeEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CompareRuns compares run_a and run_b across the six structural-parity
// surfaces named in spec.md 4.J: contract_version, schema_version, sorted
// turn_digests, sorted stage_outcomes, sorted issue_codes, sorted
// event_codes. Any mismatch fails with E_REPLAY_EQUIVALENCE_FAILED and names
// every mismatched surface.
func (v *Validator) CompareRuns(req CompareRunsRequest) (ReplayReport, error) {
	if req.ContractVersion != ContractVersion {
		return ReplayReport{}, errContractVersion()
	}
	if req.RunA == nil || req.RunB == nil {
		issue := contracts.NewIssue(codes.StageReplay, codes.EReplayInputMissing, "/run_a",
			"compare_runs requires run_a and run_b objects.", map[string]any{})
		return buildReplayReport("compare_runs", contracts.OutcomeFail, []contracts.Issue{issue},
			[]string{event.Format(event.LevelError, codes.StageReplay, codes.EReplayInputMissing, "/run_a", "compare_runs input missing.", nil)},
			defaultParity("unknown", "unknown"), 2, 0), nil
	}

	runAID := req.RunA.RunID
	if runAID == "" {
		runAID = "run-a"
	}
	runBID := req.RunB.RunID
	if runBID == "" {
		runBID = "run-b"
	}
	parity := defaultParity(runAID, runBID)

	surfaceA := surfaceOf(*req.RunA)
	surfaceB := surfaceOf(*req.RunB)
	parity.Expected.TurnDigests = surfaceA.turnDigests
	parity.Actual.TurnDigests = surfaceB.turnDigests

	comparisons := map[string]bool{
		"turn_digests":     turnDigestsEqual(surfaceA.turnDigests, surfaceB.turnDigests),
		"stage_outcomes":   stageOutcomesEqual(surfaceA.stageOutcomes, surfaceB.stageOutcomes),
		"issue_codes":      issueCodesEqual(surfaceA.issueCodes, surfaceB.issueCodes),
		"event_codes":      stringsEqual(surfaceA.eventCodes, surfaceB.eventCodes),
		"contract_version": surfaceA.contractVersion == surfaceB.contractVersion,
		"schema_version":   surfaceA.schemaVersion == surfaceB.schemaVersion,
	}
	matches := 0
	var mismatchFields []string
	for field, ok := range comparisons {
		if ok {
			matches++
		} else {
			mismatchFields = append(mismatchFields, field)
		}
	}
	sort.Strings(mismatchFields)
	parity.Matches = matches
	parity.Mismatches = len(comparisons) - matches

	turnsCompared := maxInt(len(surfaceA.stageOutcomes), len(surfaceB.stageOutcomes), len(surfaceA.turnDigests), len(surfaceB.turnDigests))

	if parity.Mismatches > 0 {
		issue := contracts.NewIssue(codes.StageReplay, codes.EReplayEquivalenceFailed, "/run_a/turn_digests",
			"Run parity mismatch.", map[string]any{"matches": parity.Matches, "mismatches": parity.Mismatches, "mismatch_fields": mismatchFields})
		return buildReplayReport("compare_runs", contracts.OutcomeFail, []contracts.Issue{issue},
			[]string{event.Format(event.LevelError, codes.StageReplay, codes.EReplayEquivalenceFailed, "/run_a/turn_digests", "Replay equivalence failed.", nil)},
			parity, 2, turnsCompared), nil
	}

	return buildReplayReport("compare_runs", contracts.OutcomePass, []contracts.Issue{},
		[]string{event.Format(event.LevelInfo, codes.StageReplay, codes.IGatekeeperPass, "/run_a/turn_digests", "Replay equivalence passed.", nil)},
		parity, 2, len(surfaceA.turnDigests)), nil
}

func maxInt(values ...int) int {
	m := 0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

func errContractVersion() error {
	return fmt.Errorf("contract_version must be %s", ContractVersion)
}

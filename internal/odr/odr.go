// Package odr implements the Deterministic Reactor: a bounded refinement
// loop stepping through (architect_raw, auditor_raw) text pairs with a
// code-leak gate, structured section parsing, and floor/circularity stop
// conditions. Grounded on
// original_source/orket/kernel/v1/odr/core.py, extended to run the
// leak_policy.py gate as its code-leak detector: balanced_v1 by default,
// or strict mode over the configured regex patterns.
package odr

// ReactorConfig bounds a reactor run.
type ReactorConfig struct {
	MaxRounds        int
	DiffFloorPct     float64
	StableRounds     int
	ShingleK         int
	Margin           float64
	MinLoopSim       float64
	LeakGateMode     LeakGateMode
	CodeLeakPatterns []string
}

// DefaultReactorConfig mirrors the Python original's dataclass defaults.
func DefaultReactorConfig() ReactorConfig {
	return ReactorConfig{
		MaxRounds:    8,
		DiffFloorPct: 0.05,
		StableRounds: 2,
		ShingleK:     3,
		Margin:       0.02,
		MinLoopSim:   0.65,
		LeakGateMode: DefaultLeakGateMode,
	}
}

// AsMap renders cfg for stamping into a round record's run_config field.
func (c ReactorConfig) AsMap() map[string]any {
	patterns := c.CodeLeakPatterns
	if patterns == nil {
		patterns = DefaultCodeLeakPatterns
	}
	return map[string]any{
		"max_rounds":         c.MaxRounds,
		"diff_floor_pct":     c.DiffFloorPct,
		"stable_rounds":      c.StableRounds,
		"shingle_k":          c.ShingleK,
		"margin":             c.Margin,
		"min_loop_sim":       c.MinLoopSim,
		"leak_gate_mode":     string(c.LeakGateMode),
		"code_leak_patterns": append([]string{}, patterns...),
	}
}

// RoundMetrics is a round record's metrics block.
type RoundMetrics struct {
	CodeLeakHit bool
	N           int
	DiffRatio   *float64
	SimPrev     *float64
	SimLoop     *float64
	StableCount int
}

// RoundParseError is one architect/auditor parse failure attributed to its
// source within a round record.
type RoundParseError struct {
	Source  string
	Code    string
	Message string
}

// RoundRecord is one step of reactor history.
type RoundRecord struct {
	Round            int
	RunConfig        map[string]any
	ArchitectRaw     string
	AuditorRaw       string
	ArchitectParsed  *ArchitectSections
	AuditorParsed    *AuditorSections
	ParseErrors      []RoundParseError
	LeakTrace        map[string]any
	Metrics          RoundMetrics
	StopReason       string
}

// ReactorState is the reactor's accumulated history across rounds.
type ReactorState struct {
	HistoryV      []string
	HistoryRounds []RoundRecord
	StableCount   int
	StopReason    string
}

func baseMetrics(n int, codeLeakHit bool, stableCount int) RoundMetrics {
	return RoundMetrics{CodeLeakHit: codeLeakHit, N: n, StableCount: stableCount}
}

// RunRound advances state by one round, mutating and returning it. Once
// state.StopReason is set, further calls are no-ops, matching the Python
// original's "after a stop, further calls are no-ops" contract.
func RunRound(state *ReactorState, architectRaw, auditorRaw string, cfg ReactorConfig) *ReactorState {
	if state.StopReason != "" {
		return state
	}

	normalizedArchitect := normalizeNewlines(architectRaw)
	normalizedAuditor := normalizeNewlines(auditorRaw)
	roundIdx := len(state.HistoryRounds) + 1
	attemptedN := len(state.HistoryV) + 1
	runConfig := cfg.AsMap()

	detection := DetectCodeLeak(normalizedArchitect, normalizedAuditor, cfg.LeakGateMode, cfg.CodeLeakPatterns)
	if detection.HardLeak {
		record := RoundRecord{
			Round:        roundIdx,
			RunConfig:    runConfig,
			ArchitectRaw: normalizedArchitect,
			AuditorRaw:   normalizedAuditor,
			LeakTrace:    detection.TraceFields(),
			Metrics:      baseMetrics(attemptedN, true, state.StableCount),
			StopReason:   "CODE_LEAK",
		}
		state.HistoryRounds = append(state.HistoryRounds, record)
		state.StopReason = "CODE_LEAK"
		return state
	}

	architectParse, architectErr := ParseArchitect(normalizedArchitect)
	auditorParse, auditorErr := ParseAuditor(normalizedAuditor)

	var parseErrors []RoundParseError
	if architectErr != nil {
		parseErrors = append(parseErrors, RoundParseError{Source: "architect", Code: architectErr.Code, Message: architectErr.Message})
	}
	if auditorErr != nil {
		parseErrors = append(parseErrors, RoundParseError{Source: "auditor", Code: auditorErr.Code, Message: auditorErr.Message})
	}
	if len(parseErrors) > 0 {
		record := RoundRecord{
			Round:        roundIdx,
			RunConfig:    runConfig,
			ArchitectRaw: normalizedArchitect,
			AuditorRaw:   normalizedAuditor,
			ParseErrors:  parseErrors,
			LeakTrace:    detection.TraceFields(),
			Metrics:      baseMetrics(attemptedN, false, state.StableCount),
			StopReason:   "SHAPE_VIOLATION",
		}
		state.HistoryRounds = append(state.HistoryRounds, record)
		state.StopReason = "SHAPE_VIOLATION"
		return state
	}

	currentRequirement := architectParse.Requirement
	state.HistoryV = append(state.HistoryV, currentRequirement)
	n := len(state.HistoryV)

	metrics := baseMetrics(n, false, state.StableCount)

	diffHit := false
	if n >= 2 {
		prev := state.HistoryV[n-2]
		ratio := diffRatio(currentRequirement, prev)
		metrics.DiffRatio = &ratio
		if ratio < cfg.DiffFloorPct {
			state.StableCount++
		} else {
			state.StableCount = 0
		}
		metrics.StableCount = state.StableCount
		diffHit = state.StableCount >= cfg.StableRounds
	}

	circHit := false
	if n >= 3 {
		simPrev := jaccardSim(state.HistoryV[n-1], state.HistoryV[n-2], cfg.ShingleK)
		simLoop := jaccardSim(state.HistoryV[n-1], state.HistoryV[n-3], cfg.ShingleK)
		metrics.SimPrev = &simPrev
		metrics.SimLoop = &simLoop
		circHit = simLoop > simPrev+cfg.Margin && simLoop >= cfg.MinLoopSim
	}

	maxHit := n == cfg.MaxRounds
	stopReason := ""
	switch {
	case maxHit:
		stopReason = "MAX_ROUNDS"
	case diffHit:
		stopReason = "DIFF_FLOOR"
	case circHit:
		stopReason = "CIRCULARITY"
	}

	record := RoundRecord{
		Round:           roundIdx,
		RunConfig:       runConfig,
		ArchitectRaw:    normalizedArchitect,
		AuditorRaw:      normalizedAuditor,
		ArchitectParsed: &architectParse,
		AuditorParsed:   &auditorParse,
		LeakTrace:       detection.TraceFields(),
		Metrics:         metrics,
		StopReason:      stopReason,
	}
	state.HistoryRounds = append(state.HistoryRounds, record)
	if stopReason != "" {
		state.StopReason = stopReason
	}
	return state
}

package kernel

import (
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/McElyea/orket-kernel/internal/kernel/codes"
)

// DefaultCapabilityPolicySource and DefaultCapabilityPolicyVersion stamp a
// capability decision's evidence block when no policy file is loaded (or
// the file doesn't override them).
const (
	DefaultCapabilityPolicySource  = "policy://orket/kernel/v1/default"
	DefaultCapabilityPolicyVersion = "v1"
)

// CapabilityPolicy is the static (role, task) -> permissions table consulted
// by resolve_capability and authorize_tool_call, with a role-independent
// default fallback. Authored as YAML, per the teacher's config-file
// conventions (internal/config uses viper over YAML/env; this table is a
// sibling artifact, loaded directly with yaml.v3 since it is not part of
// process configuration).
type CapabilityPolicy struct {
	PolicySource        string                         `yaml:"policy_source"`
	PolicyVersion        string                         `yaml:"policy_version"`
	RoleTaskPermissions  map[string]map[string][]string `yaml:"role_task_permissions"`
	DefaultPermissions   []string                       `yaml:"default_permissions"`
}

// LoadCapabilityPolicy reads a CapabilityPolicy from path. A missing file or
// malformed YAML degrades to an empty policy (every lookup then falls
// through to DefaultPermissions, itself empty) rather than failing process
// start, mirroring the Python original's lru_cache wrapper swallowing
// FileNotFoundError/JSONDecodeError.
func LoadCapabilityPolicy(path string) CapabilityPolicy {
	if path == "" {
		return CapabilityPolicy{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("capability policy unreadable, falling back to empty policy", "path", path, "error", err)
		}
		return CapabilityPolicy{}
	}
	var policy CapabilityPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		slog.Warn("capability policy malformed, falling back to empty policy", "path", path, "error", err)
		return CapabilityPolicy{}
	}
	return policy
}

func dedupSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// permissions resolves the (role, task) grant: an explicit context override
// wins outright, then the policy table's role/task cell, then the policy's
// default_permissions.
func (p CapabilityPolicy) permissions(role, task string, contextPermissions []string) []string {
	if contextPermissions != nil {
		return dedupSorted(contextPermissions)
	}
	if byTask, ok := p.RoleTaskPermissions[role]; ok {
		if perms, ok := byTask[task]; ok {
			return dedupSorted(perms)
		}
	}
	return dedupSorted(p.DefaultPermissions)
}

// evidence resolves the policy_ref/capability_source/capability_version
// trio recorded on every capability decision's evidence block.
func (p CapabilityPolicy) evidence(ctx CapabilityContext) CapabilityEvidence {
	source := ctx.PolicySource
	if source == "" {
		source = p.PolicySource
	}
	if source == "" {
		source = ctx.PolicyRef
	}
	if source == "" {
		source = DefaultCapabilityPolicySource
	}
	version := ctx.PolicyVersion
	if version == "" {
		version = p.PolicyVersion
	}
	if version == "" {
		version = DefaultCapabilityPolicyVersion
	}
	ref := ctx.PolicyRef
	if ref == "" {
		ref = source
	}
	return CapabilityEvidence{PolicyRef: ref, CapabilitySource: source, CapabilityVersion: version}
}

// decide runs the shared DENY/GRANT decision logic used by execute_turn's
// tool_call handling, resolve_capability, and authorize_tool_call.
func (p CapabilityPolicy) decide(ctx CapabilityContext, tool ToolCall) CapabilityDecision {
	subject := ctx.subjectOrUnknown()
	action := tool.action()
	resource := tool.resource()
	ev := p.evidence(ctx)
	allowed := p.permissions(ctx.Role, ctx.Task, ctx.Permissions)

	result, reasonCode := func() (string, string) {
		switch {
		case !ctx.resolved():
			return "DENY", codes.ECapabilityNotResolved
		case !tool.sideEffectsDeclared():
			return "DENY", codes.ESideEffectUndeclared
		case tool.RequestedPermissions != nil && tool.DeclaredPermissions != nil && !isSubset(tool.RequestedPermissions, tool.DeclaredPermissions):
			return "DENY", codes.EPermissionDenied
		case ctx.allowToolCall() || contains(allowed, action):
			return "GRANT", codes.IGatekeeperPass
		default:
			return "DENY", codes.ECapabilityDenied
		}
	}()

	return CapabilityDecision{
		ContractVersion: ContractVersion,
		Subject:         subject,
		Action:          action,
		Resource:        resource,
		Result:          result,
		ReasonCode:      reasonCode,
		Evidence:        ev,
	}
}

func isSubset(requested, declared []string) bool {
	declaredSet := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		declaredSet[d] = struct{}{}
	}
	for _, r := range requested {
		if _, ok := declaredSet[r]; !ok {
			return false
		}
	}
	return true
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

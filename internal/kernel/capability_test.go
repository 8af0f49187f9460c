package kernel

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/McElyea/orket-kernel/internal/kernel/codes"
)

func TestLoadCapabilityPolicy_MissingFileReturnsEmptyPolicy(t *testing.T) {
	policy := LoadCapabilityPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Empty(t, policy.RoleTaskPermissions)
	assert.Empty(t, policy.DefaultPermissions)
}

func TestLoadCapabilityPolicy_EmptyPathReturnsEmptyPolicy(t *testing.T) {
	policy := LoadCapabilityPolicy("")
	assert.Empty(t, policy.RoleTaskPermissions)
}

func TestResolveCapability_UsesRoleTaskPermissionsCell(t *testing.T) {
	v := NewValidator(CapabilityPolicy{
		RoleTaskPermissions: map[string]map[string][]string{
			"architect": {"design": {"fs.read", "fs.write"}},
		},
	}, "")

	resp, err := v.ResolveCapability(ResolveCapabilityRequest{
		ContractVersion: ContractVersion,
		Role:            "architect",
		Task:            "design",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fs.read", "fs.write"}, resp.CapabilityPlan.Permissions)
}

func TestResolveCapability_FallsBackToDefaultPermissions(t *testing.T) {
	v := NewValidator(CapabilityPolicy{DefaultPermissions: []string{"fs.read"}}, "")

	resp, err := v.ResolveCapability(ResolveCapabilityRequest{
		ContractVersion: ContractVersion,
		Role:            "auditor",
		Task:            "review",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fs.read"}, resp.CapabilityPlan.Permissions)
}

func TestAuthorizeToolCall_DeniesWhenSideEffectsUndeclared(t *testing.T) {
	v := NewValidator(CapabilityPolicy{}, "")

	resp, err := v.AuthorizeToolCall(AuthorizeToolCallRequest{
		ContractVersion: ContractVersion,
		Context:         CapabilityContext{AllowToolCall: boolPtr(true)},
		ToolRequest:     ToolCall{Action: "write", Resource: "fs", SideEffectsDeclared: boolPtr(false)},
	})
	require.NoError(t, err)
	assert.Equal(t, "DENY", resp.Decision.Result)
	assert.Equal(t, codes.ESideEffectUndeclared, resp.Decision.ReasonCode)
}

func TestAuthorizeToolCall_DeniesWhenRequestedExceedsDeclared(t *testing.T) {
	v := NewValidator(CapabilityPolicy{}, "")

	resp, err := v.AuthorizeToolCall(AuthorizeToolCallRequest{
		ContractVersion: ContractVersion,
		Context:         CapabilityContext{AllowToolCall: boolPtr(true)},
		ToolRequest: ToolCall{
			Action:               "write",
			Resource:             "fs",
			RequestedPermissions: []string{"fs.write", "fs.delete"},
			DeclaredPermissions:  []string{"fs.write"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "DENY", resp.Decision.Result)
	assert.Equal(t, codes.EPermissionDenied, resp.Decision.ReasonCode)
}

func TestAuthorizeToolCall_GrantsWhenActionInResolvedPermissions(t *testing.T) {
	v := NewValidator(CapabilityPolicy{}, "")

	resp, err := v.AuthorizeToolCall(AuthorizeToolCallRequest{
		ContractVersion: ContractVersion,
		Context:         CapabilityContext{Permissions: []string{"fs.write"}},
		ToolRequest:     ToolCall{Action: "fs.write", Resource: "fs"},
	})
	require.NoError(t, err)
	assert.Equal(t, "GRANT", resp.Decision.Result)
}

func TestAuthorizeToolCall_DeniesWhenActionNotGranted(t *testing.T) {
	v := NewValidator(CapabilityPolicy{}, "")

	resp, err := v.AuthorizeToolCall(AuthorizeToolCallRequest{
		ContractVersion: ContractVersion,
		Context:         CapabilityContext{Permissions: []string{"fs.read"}},
		ToolRequest:     ToolCall{Action: "fs.write", Resource: "fs"},
	})
	require.NoError(t, err)
	assert.Equal(t, "DENY", resp.Decision.Result)
	assert.Equal(t, codes.ECapabilityDenied, resp.Decision.ReasonCode)
}

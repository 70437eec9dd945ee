// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/access"
	"github.com/holomush/warden/pkg/errutil"
)

func TestGenerateSchema(t *testing.T) {
	data, err := access.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, access.SchemaID, schema["$id"])
	assert.Equal(t, "Warden Access Policy", schema["title"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "roles")
	assert.Contains(t, props, "anonymous_role_create")
	assert.Contains(t, props, "restrict_registration_roles")
	assert.Contains(t, schema["required"], "roles")
}

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "valid policy",
			yaml: `
roles:
  Admin: ["role:*", "account:read"]
  User: ["account:read"]
anonymous_role_create: false
`,
		},
		{
			name: "empty role list",
			yaml: "roles:\n  Guest: []\n",
		},
		{
			name:    "missing roles",
			yaml:    "anonymous_role_create: true\n",
			wantErr: true,
		},
		{
			name:    "unknown key",
			yaml:    "roles: {}\nsuperuser: true\n",
			wantErr: true,
		},
		{
			name:    "pattern is not a string",
			yaml:    "roles:\n  Admin: [42]\n",
			wantErr: true,
		},
		{
			name:    "flag is not a bool",
			yaml:    "roles: {}\nanonymous_role_create: sometimes\n",
			wantErr: true,
		},
		{
			name:    "not yaml",
			yaml:    "roles: [unclosed",
			wantErr: true,
		},
		{
			name:    "empty",
			yaml:    "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := access.ValidateSchema([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "POLICY_INVALID")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := access.ParsePolicy([]byte(`
roles:
  Moderator: ["role:assign", "role:revoke"]
restrict_registration_roles: false
`))
	require.NoError(t, err)
	assert.True(t, p.Allowed([]string{"MODERATOR"}, "role:assign"))
	assert.False(t, p.Allowed([]string{"moderator"}, "role:delete"))
	assert.False(t, p.RestrictRegistrationRoles(), "explicit opt-out is honoured")
	assert.Equal(t, []string{"Moderator"}, p.Roles())
}

func TestParsePolicy_BadGlob(t *testing.T) {
	_, err := access.ParsePolicy([]byte("roles:\n  Admin: [\"role:{create\"]\n"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_PERMISSION_PATTERN")
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  Admin: [\"**\"]\n"), 0o600))

	p, err := access.LoadPolicy(path)
	require.NoError(t, err)
	assert.True(t, p.Allowed([]string{"Admin"}, "role:delete"))
}

func TestLoadPolicy_Missing(t *testing.T) {
	_, err := access.LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "POLICY_READ_FAILED")
}

func TestLoadPolicy_InvalidKeepsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nope: 1\n"), 0o600))

	_, err := access.LoadPolicy(path)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "POLICY_INVALID")
	errutil.AssertErrorContext(t, err, "path", path)
}

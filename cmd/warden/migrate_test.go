// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/store"
	"github.com/holomush/warden/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErrCode string
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "surrounding whitespace is trimmed", input: "  42 ", wantVersion: 42},
		{name: "non-numeric", input: "abc", wantErrCode: "INVALID_VERSION"},
		{name: "trailing characters", input: "3abc", wantErrCode: "INVALID_VERSION"},
		{name: "float", input: "1.5", wantErrCode: "INVALID_VERSION"},
		{name: "negative", input: "-1", wantErrCode: "INVALID_VERSION"},
		{name: "empty", input: "", wantErrCode: "INVALID_VERSION"},
		{name: "whitespace only", input: "   ", wantErrCode: "INVALID_VERSION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)

			if tt.wantErrCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

// fakeMigrator records calls made by the migrate commands.
type fakeMigrator struct {
	calls    []string
	steps    int
	forced   int
	status   *store.Status
	err      error
	closeErr error
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.err
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	return f.err
}

func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return f.err
}

func (f *fakeMigrator) Force(version int) error {
	f.calls = append(f.calls, "force")
	f.forced = version
	return f.err
}

func (f *fakeMigrator) Status() (*store.Status, error) {
	f.calls = append(f.calls, "status")
	return f.status, f.err
}

func (f *fakeMigrator) Close() error {
	f.calls = append(f.calls, "close")
	return f.closeErr
}

func runMigrate(t *testing.T, fake *fakeMigrator, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/warden")
	envFile = ""

	cmd := newMigrateCmd(func(url string) (migrator, error) {
		assert.Equal(t, "postgres://localhost/warden", url)
		return fake, nil
	})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestMigrate_DefaultsToUp(t *testing.T) {
	fake := &fakeMigrator{}
	out, err := runMigrate(t, fake)

	require.NoError(t, err)
	assert.Equal(t, []string{"up", "close"}, fake.calls)
	assert.Contains(t, out, "Migrations completed successfully")
}

func TestMigrate_Up(t *testing.T) {
	fake := &fakeMigrator{}
	_, err := runMigrate(t, fake, "up")

	require.NoError(t, err)
	assert.Equal(t, []string{"up", "close"}, fake.calls)
}

func TestMigrate_UpErrorStillCloses(t *testing.T) {
	fake := &fakeMigrator{err: oops.Code("MIGRATION_UP_FAILED").Errorf("boom")}
	_, err := runMigrate(t, fake, "up")

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
	assert.Equal(t, []string{"up", "close"}, fake.calls)
}

func TestMigrate_CloseErrorSurfaces(t *testing.T) {
	fake := &fakeMigrator{closeErr: errors.New("close failed")}
	_, err := runMigrate(t, fake, "up")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "close failed")
}

func TestMigrate_DownSteps(t *testing.T) {
	fake := &fakeMigrator{}
	out, err := runMigrate(t, fake, "down", "--steps", "2")

	require.NoError(t, err)
	assert.Equal(t, -2, fake.steps)
	assert.Contains(t, out, "Rolled back 2 migration(s)")
}

func TestMigrate_DownAll(t *testing.T) {
	fake := &fakeMigrator{}
	_, err := runMigrate(t, fake, "down", "--all")

	require.NoError(t, err)
	assert.Equal(t, []string{"down", "close"}, fake.calls)
}

func TestMigrate_DownRejectsNonPositiveSteps(t *testing.T) {
	fake := &fakeMigrator{}
	_, err := runMigrate(t, fake, "down", "--steps", "0")

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_STEPS")
	assert.Equal(t, []string{"close"}, fake.calls)
}

func TestMigrate_Status(t *testing.T) {
	fake := &fakeMigrator{status: &store.Status{
		Current: 1,
		Applied: []store.Migration{{Version: 1, Name: "create_users"}},
		Pending: []store.Migration{{Version: 2, Name: "create_roles"}},
	}}
	out, err := runMigrate(t, fake, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 1 (clean)")
	assert.Contains(t, out, "[applied] 000001 create_users")
	assert.Contains(t, out, "[pending] 000002 create_roles")
}

func TestMigrate_Force(t *testing.T) {
	fake := &fakeMigrator{}
	out, err := runMigrate(t, fake, "force", "2")

	require.NoError(t, err)
	assert.Equal(t, 2, fake.forced)
	assert.Contains(t, out, "Forced schema version to 2")
}

func TestMigrate_ForceInvalidVersionSkipsDatabase(t *testing.T) {
	fake := &fakeMigrator{}
	_, err := runMigrate(t, fake, "force", "x")

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
	assert.Empty(t, fake.calls)
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	envFile = ""

	cmd := newMigrateCmd(func(string) (migrator, error) {
		t.Fatal("factory must not be called")
		return nil, nil
	})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"up"})

	err := cmd.Execute()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

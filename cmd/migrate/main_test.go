package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	cases := []struct {
		args    []string
		wantErr bool
	}{
		{args: nil},
		{args: []string{"-cmd=status"}},
		{args: []string{"-cmd=create"}, wantErr: true},
		{args: []string{"-cmd=create", "-name=add_hub_notes"}},
		{args: []string{"-cmd=version"}, wantErr: true},
		{args: []string{"-cmd=redo"}, wantErr: true},
	}
	for _, tc := range cases {
		_, err := parseFlags(tc.args, io.Discard)
		if tc.wantErr {
			assert.ErrorIs(t, err, errUsage, tc.args)
		} else {
			assert.NoError(t, err, tc.args)
		}
	}
}

func TestCreateThenValidate(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"-cmd=create", "-dir=" + dir, "-name=add hub notes"}, &out))
	assert.Contains(t, out.String(), "created migration:")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), "_add_hub_notes.sql"))

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"-cmd=validate", "-dir=" + dir}, &out))
	assert.Equal(t, "migration validation passed\n", out.String())
}

func TestValidateEmbedded(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-cmd=validate"}, &out))
}

func TestValidateReportsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260301090000_broken.sql"), []byte("SELECT 1;\n"), 0o644))
	err := run(context.Background(), []string{"-cmd=validate", "-dir=" + dir}, io.Discard)
	assert.ErrorContains(t, err, "validation failed")
}

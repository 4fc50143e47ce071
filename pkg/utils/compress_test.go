package utils

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alexmullins/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressWithPassword(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "rhacs-verify.adoc")
	require.NoError(t, os.WriteFile(report, []byte("= RHACS Verification Report\n"), 0o600))

	zipPath := filepath.Join(dir, "rhacs-verify.zip")
	require.NoError(t, CompressWithPassword(zipPath, "s3cret", report))

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, 1)
	f := r.File[0]
	assert.Equal(t, "rhacs-verify.adoc", f.Name)
	assert.True(t, f.IsEncrypted())

	f.SetPassword("s3cret")
	rc, err := f.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "= RHACS Verification Report\n", string(data))
}

func TestCompressWithPasswordErrors(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "out.zip")

	assert.Error(t, CompressWithPassword(zipPath, "", "x"))
	assert.Error(t, CompressWithPassword(zipPath, "pw"))
	assert.ErrorContains(t, CompressWithPassword(zipPath, "pw", filepath.Join(dir, "missing")), "failed to open")
}

func TestRandomPassword(t *testing.T) {
	a, err := RandomPassword(16)
	require.NoError(t, err)
	b, err := RandomPassword(16)
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

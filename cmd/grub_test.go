package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terabiome/labkick/pkg/bootcfg"
)

const sampleGrub = `set default="1"
set timeout=60
search --no-floppy --set=root -l 'Lab_Vol_1'
menuentry 'Install' {
	linuxefi /images/pxeboot/vmlinuz inst.stage2=hd:LABEL=Lab_Vol_1 quiet
}
`

func writeGrub(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grub.cfg")
	require.NoError(t, os.WriteFile(path, []byte(sampleGrub), 0o644))
	return path
}

func TestRunGrubPreviewLeavesFileAlone(t *testing.T) {
	path := writeGrub(t)

	var out bytes.Buffer
	require.NoError(t, runGrub(&out, path, false))

	assert.True(t, strings.HasPrefix(out.String(), "label: Lab_Vol_1\n"))
	assert.Contains(t, out.String(), bootcfg.Directive("Lab_Vol_1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleGrub, string(data))
}

func TestRunGrubWrite(t *testing.T) {
	path := writeGrub(t)

	var out bytes.Buffer
	require.NoError(t, runGrub(&out, path, true))
	assert.Contains(t, out.String(), "directive on line 5")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "set timeout=5\n")

	err = runGrub(&out, path, true)
	assert.ErrorIs(t, err, bootcfg.ErrAlreadyRewritten)
}

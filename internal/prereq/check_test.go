package prereq

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terabiome/labkick/pkg/constants"
	"github.com/terabiome/labkick/pkg/executor/executortest"
)

func TestCheckLibvirtTools(t *testing.T) {
	fake := executortest.New().
		On("genisoimage --version", executortest.Response{Stderr: "genisoimage 1.1.11 (Linux)\n"}).
		On("qemu-img --version", executortest.Response{Stdout: "qemu-img version 8.2.2\nCopyright (c) 2003-2023\n"}).
		Fail("virsh", "virsh: command not found")

	results, err := Check(context.Background(), fake, ToolsFor(constants.PLATFORM_LIBVIRT))
	require.NoError(t, err)

	require.Len(t, results.Results, 4)
	assert.Equal(t, "genisoimage 1.1.11 (Linux)", results.Results[0].Version)
	assert.Equal(t, "qemu-img version 8.2.2", results.Results[1].Version)
	assert.False(t, results.Results[3].Found)

	assert.False(t, results.HasErrors(), "virsh is optional")
	assert.NoError(t, results.Error())
}

func TestCheckMissingRequiredTool(t *testing.T) {
	fake := executortest.New().Fail("wsl.exe", "genisoimage: not found")

	results, err := Check(context.Background(), fake, ToolsFor(constants.PLATFORM_HYPERV))
	require.NoError(t, err)

	assert.True(t, results.HasErrors())
	require.Error(t, results.Error())
	assert.Contains(t, results.Error().Error(), "genisoimage (WSL)")

	call, ok := fake.Find("Mount-DiskImage")
	require.True(t, ok)
	assert.Equal(t, "PowerShell", call.Command)
}

func TestCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Check(ctx, executortest.New(), ToolsFor(constants.PLATFORM_LIBVIRT))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteResults(t *testing.T) {
	fake := executortest.New().
		On("qemu-img", executortest.Response{Stdout: "qemu-img version 8.2.2\n"}).
		Fail("genisoimage", "not found").
		Fail("virsh", "not found")

	results, err := Check(context.Background(), fake, ToolsFor(constants.PLATFORM_LIBVIRT))
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, WriteResults(&buf, "localhost", results, false))

	out := buf.String()
	assert.Contains(t, out, "tool check on localhost\n")
	assert.Contains(t, out, "[!!] genisoimage  Builds the per-host installer images\n")
	assert.Contains(t, out, "[OK] qemu-img  qemu-img version 8.2.2\n")
	assert.Contains(t, out, "[??] virsh  Useful for inspecting the created domains (optional)\n")
}

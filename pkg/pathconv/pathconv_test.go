package pathconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWSLToolPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `D:\VM_LAB\`, want: "/mnt/d/VM_LAB/"},
		{in: `D:\VM_LAB\web1.iso`, want: "/mnt/d/VM_LAB/web1.iso"},
		{in: `d:\extracted_iso`, want: "/mnt/d/extracted_iso"},
		{in: `C:`, want: "/mnt/c/"},
		{in: `E:\`, want: "/mnt/e/"},
		{in: `D:/mixed\sep/x`, want: "/mnt/d/mixed/sep/x"},
		{in: "/already/posix", want: "/already/posix"},
		{in: `relative\dir`, want: "relative/dir"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, WSL{}.ToolPath(tt.in))
		})
	}
}

func TestWSLCustomMountRoot(t *testing.T) {
	assert.Equal(t, "/drives/d/lab", WSL{MountRoot: "/drives/"}.ToolPath(`D:\lab`))
}

func TestNativeIsIdentity(t *testing.T) {
	assert.Equal(t, `D:\VM_LAB\web1.iso`, Native{}.ToolPath(`D:\VM_LAB\web1.iso`))
	assert.Equal(t, "/var/lib/lab/web1.iso", Native{}.ToolPath("/var/lib/lab/web1.iso"))
}

func TestForPlatform(t *testing.T) {
	assert.Equal(t, "wsl", ForPlatform(true, "").Name())
	assert.Equal(t, "native", ForPlatform(false, "/mnt").Name())
	assert.Equal(t, "/wsl/d/lab", ForPlatform(true, "/wsl").ToolPath(`D:\lab`))
}

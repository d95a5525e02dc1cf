// Package pathconv translates host paths into the convention expected by a
// tool that runs in a different environment, such as genisoimage running
// under WSL on a Windows host.
package pathconv

import (
	"strings"
)

type Translator interface {
	ToolPath(hostPath string) string
	Name() string
}

// Native passes paths through unchanged.
type Native struct{}

func (Native) Name() string { return "native" }

func (Native) ToolPath(hostPath string) string { return hostPath }

// WSL maps drive-letter paths onto the subsystem's automount root:
// `D:\VM_LAB\web1.iso` becomes `/mnt/d/VM_LAB/web1.iso`.
type WSL struct {
	// MountRoot defaults to /mnt.
	MountRoot string
}

func (WSL) Name() string { return "wsl" }

func (w WSL) ToolPath(hostPath string) string {
	root := w.MountRoot
	if root == "" {
		root = "/mnt"
	}
	root = strings.TrimSuffix(root, "/")

	p := strings.ReplaceAll(hostPath, `\`, "/")

	drive, rest, ok := splitDrive(p)
	if !ok {
		return p
	}

	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return root + "/" + drive + "/"
	}
	return root + "/" + drive + "/" + rest
}

func splitDrive(p string) (drive, rest string, ok bool) {
	if len(p) < 2 || p[1] != ':' {
		return "", "", false
	}
	c := p[0]
	if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
		return "", "", false
	}
	return strings.ToLower(string(c)), p[2:], true
}

// ForPlatform picks the translator a platform's authoring tool needs.
func ForPlatform(wslTool bool, mountRoot string) Translator {
	if wslTool {
		return WSL{MountRoot: mountRoot}
	}
	return Native{}
}

// Package hypervisor creates and starts lab virtual machines on a concrete
// hypervisor.
package hypervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrVMExists = errors.New("virtual machine already exists")

// AutoStopAction is what the hypervisor does with the VM when the host
// shuts down.
type AutoStopAction string

const (
	AutoStopShutdown AutoStopAction = "Shutdown"
	AutoStopTurnOff  AutoStopAction = "TurnOff"
	AutoStopSave     AutoStopAction = "Save"
)

// ParseAutoStopAction accepts the Hyper-V action names in any case. An empty
// value means AutoStopShutdown.
func ParseAutoStopAction(s string) (AutoStopAction, error) {
	if s == "" {
		return AutoStopShutdown, nil
	}
	for _, a := range []AutoStopAction{AutoStopShutdown, AutoStopTurnOff, AutoStopSave} {
		if strings.EqualFold(s, string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown auto-stop action %q (valid: Shutdown, TurnOff, Save)", s)
}

// VMSpec is a fully resolved VM definition.
type VMSpec struct {
	Name           string
	SwitchName     string
	MemoryBytes    uint64
	VCPUs          int
	DiskPath       string
	DiskSizeBytes  uint64
	MediaPath      string
	SecureBoot     bool
	AutoStopAction AutoStopAction
	// Start powers the VM on once defined.
	Start bool
}

type Driver interface {
	Name() string
	// DiskPath returns where the system disk of VM name lives under labDir.
	DiskPath(labDir, name string) string
	Exists(ctx context.Context, name string) (bool, error)
	// Provision creates the VM with media first in the boot order. It fails
	// with ErrVMExists when a VM with the same name is already defined.
	Provision(ctx context.Context, spec VMSpec) error
}

package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/terabiome/labkick/internal/infrastructure/hypervisor"
	"github.com/terabiome/labkick/internal/inventory"
)

// VMPolicy is the hardware profile every lab VM gets.
type VMPolicy struct {
	MemoryBytes    uint64
	VCPUs          int
	DiskSizeBytes  uint64
	SecureBoot     bool
	AutoStopAction hypervisor.AutoStopAction
	Start          bool
}

// DefaultVMPolicy returns 4 GiB of static memory, 8 vCPUs and a 1 TiB
// dynamically expanding disk, with secure boot off, shutdown on host stop
// and the VM started right away.
func DefaultVMPolicy() VMPolicy {
	return VMPolicy{
		MemoryBytes:    4 << 30,
		VCPUs:          8,
		DiskSizeBytes:  1 << 40,
		SecureBoot:     false,
		AutoStopAction: hypervisor.AutoStopShutdown,
		Start:          true,
	}
}

// ProvisionLabParams contains transport-agnostic parameters for a lab run.
type ProvisionLabParams struct {
	ServerListPath        string
	KickstartTemplatePath string
	LabDir                string
	ISOPath               string
	ExtractedISODir       string
	SwitchName            string
	StagingPolicy         StagingPolicy
	VM                    VMPolicy
}

func (p ProvisionLabParams) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"server list", p.ServerListPath},
		{"kickstart template", p.KickstartTemplatePath},
		{"lab directory", p.LabDir},
		{"installer image", p.ISOPath},
		{"extracted image directory", p.ExtractedISODir},
		{"switch", p.SwitchName},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s is required", ErrConfiguration, r.name)
		}
	}

	if p.VM.MemoryBytes == 0 || p.VM.DiskSizeBytes == 0 || p.VM.VCPUs <= 0 {
		return fmt.Errorf("%w: VM memory, disk size and CPU count must be positive", ErrConfiguration)
	}

	return nil
}

// RenderParams contains parameters for rendering kickstarts without
// touching any image or hypervisor.
type RenderParams struct {
	ServerListPath        string
	KickstartTemplatePath string
	OutputDir             string
}

// HostResult is the outcome for one inventory host.
type HostResult struct {
	Host      inventory.HostRecord
	ImagePath string
	Duration  time.Duration
	Err       error
}

func (h HostResult) Failed() bool {
	return h.Err != nil
}

// RunResult summarises a lab run.
type RunResult struct {
	RunID         uuid.UUID
	Platform      string
	StartedAt     time.Time
	FinishedAt    time.Time
	Header        []string
	Label         string
	StagingErr    error
	DescriptorErr error
	Hosts         []HostResult
}

func (r *RunResult) FailedCount() int {
	n := 0
	for _, h := range r.Hosts {
		if h.Failed() {
			n++
		}
	}
	return n
}

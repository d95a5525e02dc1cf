package hypervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/terabiome/labkick/pkg/executor"
	ps "github.com/terabiome/labkick/pkg/executor/powershell"
)

// HyperV drives the Hyper-V PowerShell module.
type HyperV struct {
	exec   executor.Executor
	logger *slog.Logger
}

func NewHyperV(exec executor.Executor, logger *slog.Logger) *HyperV {
	return &HyperV{
		exec:   exec,
		logger: logger.With(slog.String("component", "hypervisor"), slog.String("driver", "hyperv")),
	}
}

func (h *HyperV) Name() string {
	return "hyperv"
}

func (h *HyperV) DiskPath(labDir, name string) string {
	return filepath.Join(labDir, name, name+".vhdx")
}

func (h *HyperV) Exists(ctx context.Context, name string) (bool, error) {
	out, err := ps.Run(ctx, h.exec, "@("+ps.Cmdlet("Get-VM", ps.P("Name", name), ps.Expr("ErrorAction", "SilentlyContinue"))+").Count")
	if err != nil {
		return false, fmt.Errorf("failed to look up VM %s: %w", name, err)
	}

	count, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return false, fmt.Errorf("unexpected Get-VM output %q: %w", strings.TrimSpace(out), err)
	}
	return count > 0, nil
}

type step struct {
	name   string
	script string
}

func (h *HyperV) Provision(ctx context.Context, spec VMSpec) error {
	exists, err := h.Exists(ctx, spec.Name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrVMExists, spec.Name)
	}

	if err := os.MkdirAll(filepath.Dir(spec.DiskPath), 0o755); err != nil {
		return fmt.Errorf("failed to create VM directory for %s: %w", spec.Name, err)
	}

	for _, s := range provisionSteps(spec) {
		h.logger.Info(s.name, slog.String("vm", spec.Name))

		if _, err := ps.Run(ctx, h.exec, s.script); err != nil {
			h.logger.Error("hyper-v step failed",
				slog.String("vm", spec.Name),
				slog.String("step", s.name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%s for %s: %w", s.name, spec.Name, err)
		}
	}

	return nil
}

func provisionSteps(spec VMSpec) []step {
	vm := ps.P("VMName", spec.Name)

	secureBoot := "Off"
	if spec.SecureBoot {
		secureBoot = "On"
	}

	autoStop := spec.AutoStopAction
	if autoStop == "" {
		autoStop = AutoStopShutdown
	}

	steps := []step{
		{"creating VM", ps.Cmdlet("New-VM", ps.P("Name", spec.Name), ps.Expr("Generation", "2"), ps.P("SwitchName", spec.SwitchName))},
		{"creating virtual disk", ps.Cmdlet("New-VHD", ps.P("Path", spec.DiskPath), ps.Switch("Dynamic"), ps.Expr("SizeBytes", strconv.FormatUint(spec.DiskSizeBytes, 10)))},
		{"attaching virtual disk", ps.Cmdlet("Add-VMHardDiskDrive", vm, ps.P("Path", spec.DiskPath))},
		{"setting static memory", ps.Cmdlet("Set-VM", vm, ps.Switch("StaticMemory"))},
		{"setting startup memory", ps.Cmdlet("Set-VM", vm, ps.Expr("MemoryStartupBytes", strconv.FormatUint(spec.MemoryBytes, 10)))},
		{"setting secure boot", ps.Cmdlet("Set-VMFirmware", vm, ps.Expr("EnableSecureBoot", secureBoot))},
		{"setting automatic stop action", ps.Cmdlet("Set-VM", vm, ps.Expr("AutomaticStopAction", string(autoStop)))},
		{"setting processor count", ps.Cmdlet("Set-VM", vm, ps.Expr("ProcessorCount", strconv.Itoa(spec.VCPUs)))},
		{"attaching installer media", ps.Cmdlet("Add-VMDvdDrive", vm, ps.P("Path", spec.MediaPath))},
		{"setting first boot device", ps.Cmdlet("Set-VMFirmware", vm, ps.Expr("FirstBootDevice", "("+ps.Cmdlet("Get-VMDvdDrive", vm)+")"))},
	}

	if spec.Start {
		steps = append(steps, step{"starting VM", ps.Cmdlet("Start-VM", vm)})
	}

	return steps
}

// Package prereq checks that the external tools a platform drives are
// available, on the local machine or on a remote host through an executor.
package prereq

import (
	"context"
	"fmt"
	"strings"

	"github.com/terabiome/labkick/pkg/constants"
	"github.com/terabiome/labkick/pkg/executor"
	ps "github.com/terabiome/labkick/pkg/executor/powershell"
)

type Tool struct {
	Name string
	// Probe is run through the executor; exit code 0 means available.
	Probe       []string
	Required    bool
	Description string
}

// ToolsFor returns the tools the given platform needs.
func ToolsFor(platform constants.Platform) []Tool {
	switch platform {
	case constants.PLATFORM_HYPERV:
		return []Tool{
			{
				Name:        "Hyper-V module",
				Probe:       []string{ps.Binary, "-NoProfile", "-NonInteractive", "-Command", "Get-Command New-VM | Select-Object -ExpandProperty Version"},
				Required:    true,
				Description: "Creates and starts the lab VMs",
			},
			{
				Name:        "Storage module",
				Probe:       []string{ps.Binary, "-NoProfile", "-NonInteractive", "-Command", "Get-Command Mount-DiskImage | Select-Object -ExpandProperty Version"},
				Required:    true,
				Description: "Mounts the installer image",
			},
			{
				Name:        "genisoimage (WSL)",
				Probe:       []string{constants.WSLLauncher, "genisoimage", "--version"},
				Required:    true,
				Description: "Builds the per-host installer images",
			},
		}
	default:
		return []Tool{
			{
				Name:        "genisoimage",
				Probe:       []string{"genisoimage", "--version"},
				Required:    true,
				Description: "Builds the per-host installer images",
			},
			{
				Name:        "qemu-img",
				Probe:       []string{"qemu-img", "--version"},
				Required:    true,
				Description: "Creates the VM disks",
			},
			{
				Name:        "mount",
				Probe:       []string{"mount", "--version"},
				Required:    true,
				Description: "Loop-mounts the installer image",
			},
			{
				Name:        "virsh",
				Probe:       []string{"virsh", "--version"},
				Required:    false,
				Description: "Useful for inspecting the created domains",
			},
		}
	}
}

type CheckResult struct {
	Tool    Tool
	Found   bool
	Version string
}

type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, tool.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Check probes every tool. A cancelled context stops the check early.
func Check(ctx context.Context, exec executor.Executor, tools []Tool) (*CheckResults, error) {
	results := &CheckResults{}

	for _, tool := range tools {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := CheckResult{Tool: tool}

		out, err := executor.RunChecked(ctx, exec, tool.Probe[0], tool.Probe[1:]...)
		if err == nil {
			result.Found = true
			result.Version = firstLine(out.Stdout, out.Stderr)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results, nil
}

func firstLine(outputs ...string) string {
	for _, out := range outputs {
		for _, line := range strings.Split(out, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				return line
			}
		}
	}
	return ""
}

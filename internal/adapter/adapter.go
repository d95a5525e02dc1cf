package adapter

import (
	"fmt"

	"github.com/terabiome/labkick/internal/config"
	"github.com/terabiome/labkick/internal/infrastructure/hypervisor"
	"github.com/terabiome/labkick/internal/service"
)

// LabInputs are the lab paths and switch as given on the command line.
// Empty values fall back to the configuration.
type LabInputs struct {
	ServerList        string
	KickstartTemplate string
	LabDir            string
	ISO               string
	ExtractedISO      string
	Switch            string
	Strict            bool
}

func AdaptProvisionLab(cfg *config.Config, in LabInputs) (service.ProvisionLabParams, error) {
	policy := service.StagingStrict
	if !in.Strict {
		var err error
		if policy, err = service.ParseStagingPolicy(cfg.StagingPolicy); err != nil {
			return service.ProvisionLabParams{}, err
		}
	}

	vm, err := AdaptVMPolicy(cfg)
	if err != nil {
		return service.ProvisionLabParams{}, err
	}

	return service.ProvisionLabParams{
		ServerListPath:        pick(in.ServerList, cfg.ServerList),
		KickstartTemplatePath: pick(in.KickstartTemplate, cfg.KickstartTemplate),
		LabDir:                pick(in.LabDir, cfg.LabDir),
		ISOPath:               pick(in.ISO, cfg.ISO),
		ExtractedISODir:       pick(in.ExtractedISO, cfg.ExtractedISO),
		SwitchName:            pick(in.Switch, cfg.Switch),
		StagingPolicy:         policy,
		VM:                    vm,
	}, nil
}

// AdaptVMPolicy applies the configured sizes on top of the default policy.
func AdaptVMPolicy(cfg *config.Config) (service.VMPolicy, error) {
	vm := service.DefaultVMPolicy()

	memory, err := cfg.VMMemoryBytes()
	if err != nil {
		return vm, fmt.Errorf("%w: %w", service.ErrConfiguration, err)
	}
	disk, err := cfg.VMDiskSizeBytes()
	if err != nil {
		return vm, fmt.Errorf("%w: %w", service.ErrConfiguration, err)
	}

	vm.MemoryBytes = memory
	vm.DiskSizeBytes = disk
	vm.VCPUs = cfg.VMCPUs
	vm.AutoStopAction, err = hypervisor.ParseAutoStopAction(cfg.VMAutoStop)
	if err != nil {
		return vm, fmt.Errorf("%w: %w", service.ErrConfiguration, err)
	}
	return vm, nil
}

func AdaptRender(cfg *config.Config, serverList, kickstartTemplate, outputDir string) service.RenderParams {
	return service.RenderParams{
		ServerListPath:        pick(serverList, cfg.ServerList),
		KickstartTemplatePath: pick(kickstartTemplate, cfg.KickstartTemplate),
		OutputDir:             outputDir,
	}
}

func pick(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

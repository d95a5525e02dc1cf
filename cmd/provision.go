package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/terabiome/labkick/internal/config"
	"github.com/terabiome/labkick/internal/infrastructure/disk"
	"github.com/terabiome/labkick/internal/infrastructure/hypervisor"
	"github.com/terabiome/labkick/internal/infrastructure/isobuild"
	"github.com/terabiome/labkick/internal/infrastructure/staging"
	"github.com/terabiome/labkick/internal/report"
	"github.com/terabiome/labkick/internal/service"
	"github.com/terabiome/labkick/pkg/constants"
	"github.com/terabiome/labkick/pkg/executor"
	pkglibvirt "github.com/terabiome/labkick/pkg/libvirt"
	"github.com/terabiome/labkick/pkg/pathconv"
)

// initLabService wires the platform's engines. The returned cleanup releases
// any hypervisor connection.
func initLabService(cfg *config.Config, log *slog.Logger) (*service.LabService, func(), error) {
	local := executor.NewLocal(log)

	switch constants.Platform(cfg.Platform) {
	case constants.PLATFORM_HYPERV:
		stager := staging.NewManager(staging.NewHyperV(local, log), log)
		builder := isobuild.NewBuilder(
			executor.NewPrefixed(local, constants.WSLLauncher),
			pathconv.ForPlatform(true, cfg.WSLMountRoot),
			cfg.WorkDir,
			log,
		)
		driver := hypervisor.NewHyperV(local, log)
		return service.NewLabService(stager, builder, driver, log), func() {}, nil

	case constants.PLATFORM_LIBVIRT:
		connManager, err := pkglibvirt.NewConnectionManager(cfg.LibvirtURI, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize connection manager: %w", err)
		}
		log.Info("connection manager initialized", slog.String("uri", connManager.GetURI()))

		stager := staging.NewManager(staging.NewLoop(local, cfg.WorkDir, log), log)
		builder := isobuild.NewBuilder(local, pathconv.ForPlatform(false, ""), cfg.WorkDir, log)
		driver := hypervisor.NewLibvirt(connManager, disk.NewManager(local, log), cfg.LibvirtNetworkMode, log)

		cleanup := func() {
			if err := connManager.Close(); err != nil {
				log.Warn("failed to close libvirt connection", slog.String("error", err.Error()))
			}
		}
		return service.NewLabService(stager, builder, driver, log), cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unsupported platform: %s", cfg.Platform)
	}
}

func runProvision(ctx context.Context, cfg *config.Config, log *slog.Logger, params service.ProvisionLabParams, reportPath string) error {
	labService, cleanup, err := initLabService(cfg, log)
	if err != nil {
		return cli.Exit(err.Error(), service.ExitConfiguration)
	}
	defer cleanup()

	log.Info("provisioning lab",
		slog.String("serverlist", params.ServerListPath),
		slog.String("iso", params.ISOPath),
		slog.String("lab_dir", params.LabDir),
		slog.String("switch", params.SwitchName),
		slog.String("staging_policy", string(params.StagingPolicy)),
	)

	result, err := labService.ProvisionLab(ctx, params)
	code := service.ExitCode(result, err)
	if err != nil {
		log.Error("lab run aborted", slog.String("error", err.Error()))
	}

	rep := report.New(result, code)
	for _, h := range rep.Hosts {
		if h.DigestError != "" {
			log.Warn("failed to hash image", slog.String("host", h.Name), slog.String("error", h.DigestError))
		}
	}
	if err := report.WriteSummary(os.Stdout, rep, report.IsTerminal(os.Stdout)); err != nil {
		log.Warn("failed to print summary", slog.String("error", err.Error()))
	}
	if reportPath != "" {
		if err := rep.WriteFile(reportPath); err != nil {
			log.Error("failed to write run report", slog.String("error", err.Error()))
		} else {
			log.Info("wrote run report", slog.String("path", reportPath))
		}
	}

	if code != service.ExitOK {
		return cli.Exit("", code)
	}
	return nil
}

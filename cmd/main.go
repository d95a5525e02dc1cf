package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/terabiome/labkick/internal/adapter"
	"github.com/terabiome/labkick/internal/config"
	"github.com/terabiome/labkick/internal/service"
	"github.com/terabiome/labkick/pkg/constants"
	"github.com/terabiome/labkick/pkg/logger"
	"github.com/terabiome/labkick/pkg/telemetry"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		cfg     *config.Config
		log     = slog.Default()
		tel     *telemetry.Telemetry
		logFile *os.File
	)

	app := &cli.App{
		Name:                 "labkick",
		Usage:                "Provision unattended-install lab VMs from a server list",
		EnableBashCompletion: true,
		ExitErrHandler:       func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file (YAML, TOML or JSON)",
				EnvVars: []string{"LABKICK_CONFIG"},
			},
		},
		Before: func(cliCtx *cli.Context) error {
			var err error
			cfg, err = config.Load(cliCtx.String("config"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("configuration error: %s", err), service.ExitConfiguration)
			}

			var extra []io.Writer
			if cfg.LogFile != "" {
				logFile, err = os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return cli.Exit(fmt.Sprintf("failed to open log file: %s", err), service.ExitConfiguration)
				}
				extra = append(extra, logFile)
			}

			log = logger.New(cfg.LogLevel, cfg.LogFormat, extra...)
			log.Info("labkick starting",
				slog.String("log_level", cfg.LogLevel),
				slog.String("log_format", cfg.LogFormat),
				slog.String("platform", cfg.Platform),
				slog.Bool("telemetry_enabled", cfg.TelemetryEnabled),
			)

			if cfg.TelemetryEnabled {
				tel, err = telemetry.Initialize("labkick", os.Stdout)
				if err != nil {
					return cli.Exit(fmt.Sprintf("failed to initialize telemetry: %s", err), service.ExitConfiguration)
				}
				log.Info("telemetry initialized")
			} else {
				log.Debug("telemetry disabled")
			}
			return nil
		},
		After: func(*cli.Context) error {
			if tel != nil {
				log.Info("shutting down telemetry")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					log.Error("failed to shutdown telemetry", slog.String("error", err.Error()))
				}
			}
			if logFile != nil {
				return logFile.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "provision",
				Usage: "Build one installer image per host and create the lab VMs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "serverlist", Usage: "Server list: header line, then name,ip,mask,gateway,dns per host"},
					&cli.StringFlag{Name: "kickstart-template", Usage: "Kickstart template with <SERVER_NAME>-style tokens"},
					&cli.StringFlag{Name: "lab-dir", Usage: "Directory receiving the built images and VM disks"},
					&cli.StringFlag{Name: "iso", Usage: "Installer image to customize"},
					&cli.StringFlag{Name: "extracted-iso", Usage: "Working directory for the extracted installer tree"},
					&cli.StringFlag{Name: "switch", Usage: "Virtual switch (Hyper-V) or network/bridge (libvirt) for the VMs"},
					&cli.StringFlag{Name: "platform", Usage: "hyperv or libvirt (default from config)"},
					&cli.BoolFlag{Name: "strict", Usage: "Abort when staging or the boot descriptor rewrite fails"},
					&cli.StringFlag{Name: "report", Usage: "Write a YAML run report to this file"},
				},
				Action: func(cliCtx *cli.Context) error {
					if err := applyPlatform(cfg, cliCtx.String("platform")); err != nil {
						return cli.Exit(err.Error(), service.ExitConfiguration)
					}

					params, err := adapter.AdaptProvisionLab(cfg, adapter.LabInputs{
						ServerList:        cliCtx.String("serverlist"),
						KickstartTemplate: cliCtx.String("kickstart-template"),
						LabDir:            cliCtx.String("lab-dir"),
						ISO:               cliCtx.String("iso"),
						ExtractedISO:      cliCtx.String("extracted-iso"),
						Switch:            cliCtx.String("switch"),
						Strict:            cliCtx.Bool("strict"),
					})
					if err != nil {
						return cli.Exit(err.Error(), service.ExitConfiguration)
					}

					return runProvision(ctx, cfg, log, params, cliCtx.String("report"))
				},
			},
			{
				Name:  "render",
				Usage: "Render one kickstart per host without touching images or VMs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "serverlist", Usage: "Server list"},
					&cli.StringFlag{Name: "kickstart-template", Usage: "Kickstart template"},
					&cli.StringFlag{Name: "out", Usage: "Output directory", Required: true},
				},
				Action: func(cliCtx *cli.Context) error {
					params := adapter.AdaptRender(cfg, cliCtx.String("serverlist"), cliCtx.String("kickstart-template"), cliCtx.String("out"))

					files, err := service.RenderLab(ctx, params, log)
					if err != nil {
						return cli.Exit(err.Error(), service.ExitConfiguration)
					}

					for _, f := range files {
						fmt.Fprintln(cliCtx.App.Writer, f.Path)
					}
					return nil
				},
			},
			{
				Name:  "grub",
				Usage: "Show or apply the unattended-install rewrite of a GRUB descriptor",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "Path to EFI/BOOT/grub.cfg", Required: true},
					&cli.BoolFlag{Name: "write", Usage: "Rewrite the file in place"},
				},
				Action: func(cliCtx *cli.Context) error {
					if err := runGrub(cliCtx.App.Writer, cliCtx.String("file"), cliCtx.Bool("write")); err != nil {
						return cli.Exit(err.Error(), service.ExitStaging)
					}
					return nil
				},
			},
			{
				Name:  "doctor",
				Usage: "Check the external tools a platform needs, locally or over SSH",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "platform", Usage: "hyperv or libvirt (default from config)"},
					&cli.StringFlag{Name: "ssh-host", Usage: "Check a remote host instead of this machine"},
					&cli.IntFlag{Name: "ssh-port", Value: 22},
					&cli.StringFlag{Name: "ssh-user", Value: "root"},
					&cli.StringFlag{Name: "ssh-key", Value: "~/.ssh/id_ed25519"},
					&cli.StringFlag{Name: "known-hosts", Usage: "Verify the host key against this file"},
				},
				Action: func(cliCtx *cli.Context) error {
					if err := applyPlatform(cfg, cliCtx.String("platform")); err != nil {
						return cli.Exit(err.Error(), service.ExitConfiguration)
					}

					return runDoctor(ctx, cliCtx.App.Writer, constants.Platform(cfg.Platform), doctorTarget{
						host:       cliCtx.String("ssh-host"),
						port:       cliCtx.Int("ssh-port"),
						user:       cliCtx.String("ssh-user"),
						keyPath:    cliCtx.String("ssh-key"),
						knownHosts: cliCtx.String("known-hosts"),
					}, log)
				},
			},
		},
	}

	if err := app.Run(args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			if msg := err.Error(); msg != "" {
				log.Error(msg)
			}
			return exitErr.ExitCode()
		}
		log.Error("application error", slog.String("error", err.Error()))
		return service.ExitConfiguration
	}
	return service.ExitOK
}

// applyPlatform overrides the configured platform when a flag is given.
func applyPlatform(cfg *config.Config, platform string) error {
	if platform == "" {
		return nil
	}
	cfg.Platform = platform
	return cfg.Validate()
}

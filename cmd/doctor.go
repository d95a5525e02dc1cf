package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/terabiome/labkick/internal/prereq"
	"github.com/terabiome/labkick/internal/report"
	"github.com/terabiome/labkick/internal/service"
	"github.com/terabiome/labkick/pkg/constants"
	"github.com/terabiome/labkick/pkg/executor"
)

type doctorTarget struct {
	host       string
	port       int
	user       string
	keyPath    string
	knownHosts string
}

// runDoctor checks the platform's tools on this machine, or on the SSH
// target when a host is given.
func runDoctor(ctx context.Context, w io.Writer, platform constants.Platform, target doctorTarget, log *slog.Logger) error {
	var exec executor.Executor = executor.NewLocal(log)
	name := "localhost"

	if target.host != "" {
		sshExec, err := executor.NewSSH(executor.SSHConfig{
			Host:           target.host,
			Port:           target.port,
			User:           target.user,
			KeyPath:        target.keyPath,
			KnownHostsPath: target.knownHosts,
		}, log)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to connect to %s: %s", target.host, err), service.ExitConfiguration)
		}
		defer sshExec.Close()

		exec = sshExec
		name = target.user + "@" + target.host
	}

	log.Info("checking tools", slog.String("platform", string(platform)), slog.String("target", name))

	results, err := prereq.Check(ctx, exec, prereq.ToolsFor(platform))
	if err != nil {
		return cli.Exit(err.Error(), service.ExitConfiguration)
	}

	if err := prereq.WriteResults(w, name, results, w == io.Writer(os.Stdout) && report.IsTerminal(os.Stdout)); err != nil {
		return err
	}

	if err := results.Error(); err != nil {
		return cli.Exit(err.Error(), service.ExitConfiguration)
	}
	return nil
}

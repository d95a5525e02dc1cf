package isobuild

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/terabiome/labkick/pkg/executor"
	"github.com/terabiome/labkick/pkg/executor/genisoimage"
	"github.com/terabiome/labkick/pkg/pathconv"
	"github.com/terabiome/labkick/pkg/templator"
)

// PayloadName is the name the installer looks for at the image root.
const PayloadName = "ks.cfg"

// Request describes one host image.
type Request struct {
	StagedDir string
	Label     string
	HostName  string
	Payload   templator.Rendered
	LabDir    string
}

// Builder produces one bootable image per host from the shared staged tree.
type Builder struct {
	exec       executor.Executor
	translator pathconv.Translator
	workDir    string
	logger     *slog.Logger
}

// NewBuilder creates a builder. The payload work file is written to workDir,
// or the system temp directory when it is empty.
func NewBuilder(exec executor.Executor, translator pathconv.Translator, workDir string, logger *slog.Logger) *Builder {
	if workDir == "" {
		workDir = os.TempDir()
	}

	return &Builder{
		exec:       exec,
		translator: translator,
		workDir:    workDir,
		logger:     logger.With(slog.String("component", "isobuild"), slog.String("translator", translator.Name())),
	}
}

// OutputPath returns where the image for name is written.
func OutputPath(labDir, name string) string {
	return filepath.Join(labDir, name+".iso")
}

// Build places the payload at the root of the staged tree and authors the
// image. The staged tree is mutated in place and keeps the payload of the
// last host built.
func (b *Builder) Build(ctx context.Context, req Request) (string, error) {
	if req.HostName == "" {
		return "", errors.New("host name is required")
	}

	workFile := filepath.Join(b.workDir, PayloadName)
	b.logger.Info("writing kickstart payload", slog.String("host", req.HostName), slog.String("path", workFile))
	if err := os.WriteFile(workFile, req.Payload.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write payload %s: %w", workFile, err)
	}

	staged := filepath.Join(req.StagedDir, PayloadName)
	if err := os.Remove(staged); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to remove previous payload %s: %w", staged, err)
	}

	if err := copyFile(workFile, staged); err != nil {
		return "", err
	}
	b.logger.Debug("placed payload in staged tree", slog.String("path", staged))

	output := OutputPath(req.LabDir, req.HostName)
	opts := genisoimage.ISOOptions{
		Label:      req.Label,
		OutputPath: b.translator.ToolPath(output),
		SourceDir:  b.translator.ToolPath(req.StagedDir),
	}

	b.logger.Info("building installer image",
		slog.String("host", req.HostName),
		slog.String("label", req.Label),
		slog.String("output", output),
	)

	err := withWorkingDir(req.StagedDir, func() error {
		return genisoimage.CreateISO(ctx, b.exec, opts)
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image for %s: %w", req.HostName, err)
	}

	b.logger.Info("built installer image", slog.String("host", req.HostName), slog.String("path", output))
	return output, nil
}

// withWorkingDir runs fn with the process working directory set to dir and
// restores the previous one afterwards, whether fn fails or not.
func withWorkingDir(dir string, fn func() error) (err error) {
	prev, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("failed to enter %s: %w", dir, err)
	}
	defer func() {
		if cdErr := os.Chdir(prev); cdErr != nil && err == nil {
			err = fmt.Errorf("failed to restore working directory %s: %w", prev, cdErr)
		}
	}()

	return fn()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}

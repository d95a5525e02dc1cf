package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/terabiome/labkick/pkg/executor"
	ps "github.com/terabiome/labkick/pkg/executor/powershell"
)

var ErrUnexpectedMountOutput = errors.New("unexpected Mount-DiskImage output")

// HyperV mounts images with the Windows Storage cmdlets.
type HyperV struct {
	exec   executor.Executor
	logger *slog.Logger
}

func NewHyperV(exec executor.Executor, logger *slog.Logger) *HyperV {
	return &HyperV{
		exec:   exec,
		logger: logger.With(slog.String("component", "staging"), slog.String("mounter", "hyperv")),
	}
}

func (h *HyperV) Name() string {
	return "hyperv"
}

func (h *HyperV) Mount(ctx context.Context, image string) (Volume, error) {
	script := ps.Cmdlet("Mount-DiskImage", ps.P("ImagePath", image), ps.Switch("PassThru")) + " | Get-Volume"

	out, err := ps.Run(ctx, h.exec, script)
	if err != nil {
		return Volume{}, err
	}

	letter, err := ParseDriveLetter(out)
	if err != nil {
		return Volume{}, err
	}

	return Volume{Root: letter + `:\`}, nil
}

func (h *HyperV) CopyTo(ctx context.Context, vol Volume, dest string) error {
	_, err := ps.Run(ctx, h.exec, ps.Cmdlet("Copy-Item",
		ps.P("Path", vol.Root+"*"),
		ps.P("Destination", dest),
		ps.Switch("Recurse"),
		ps.Switch("Force"),
	))
	return err
}

// Unmount releases the image by path, so it works even when the mount step
// never reported a volume.
func (h *HyperV) Unmount(ctx context.Context, image string, _ Volume) error {
	_, err := ps.Run(ctx, h.exec, ps.Cmdlet("Dismount-DiskImage", ps.P("ImagePath", image)))
	return err
}

// ParseDriveLetter extracts the drive letter from `Get-Volume` table output.
// The DriveLetter column is located by its header; output without a
// recognisable header falls back to the first field of the fourth line,
// where the default table layout puts it.
func ParseDriveLetter(out string) (string, error) {
	lines := strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n")

	for i, line := range lines {
		col := strings.Index(line, "DriveLetter")
		if col < 0 {
			continue
		}

		for _, row := range lines[i+1:] {
			trimmed := strings.TrimSpace(row)
			if trimmed == "" || strings.Trim(trimmed, "- ") == "" {
				continue
			}
			if len(row) <= col {
				return "", fmt.Errorf("%w: volume has no drive letter", ErrUnexpectedMountOutput)
			}
			fields := strings.Fields(row[col:])
			if len(fields) == 0 {
				return "", fmt.Errorf("%w: volume has no drive letter", ErrUnexpectedMountOutput)
			}
			return driveLetter(fields[0])
		}

		return "", fmt.Errorf("%w: no volume row after header", ErrUnexpectedMountOutput)
	}

	if len(lines) > 3 {
		if fields := strings.Fields(lines[3]); len(fields) > 0 {
			return driveLetter(fields[0])
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnexpectedMountOutput, strings.TrimSpace(out))
}

func driveLetter(s string) (string, error) {
	s = strings.TrimSuffix(s, ":")
	if len(s) != 1 {
		return "", fmt.Errorf("%w: %q is not a drive letter", ErrUnexpectedMountOutput, s)
	}
	c := s[0]
	if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
		return "", fmt.Errorf("%w: %q is not a drive letter", ErrUnexpectedMountOutput, s)
	}
	return strings.ToUpper(s), nil
}

package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Volume is a mounted installer image.
type Volume struct {
	// Root is the directory (or drive root) holding the image contents.
	Root string
}

func (v Volume) IsZero() bool {
	return v.Root == ""
}

// Mounter is the platform facility that exposes an image's contents.
type Mounter interface {
	Name() string
	Mount(ctx context.Context, image string) (Volume, error)
	CopyTo(ctx context.Context, vol Volume, dest string) error
	Unmount(ctx context.Context, image string, vol Volume) error
}

var errNoVolume = errors.New("no mounted volume to copy from")

// Manager extracts an installer image into a working tree.
type Manager struct {
	mounter Mounter
	logger  *slog.Logger
}

// NewManager creates a new staging manager.
func NewManager(mounter Mounter, logger *slog.Logger) *Manager {
	return &Manager{
		mounter: mounter,
		logger:  logger.With(slog.String("component", "staging"), slog.String("mounter", mounter.Name())),
	}
}

// Prepare creates the staging directory. An existing directory is fine.
func (m *Manager) Prepare(dir string) error {
	m.logger.Info("creating staging directory", slog.String("path", dir))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory %s: %w", dir, err)
	}
	return nil
}

func (m *Manager) Mount(ctx context.Context, image string) (Volume, error) {
	m.logger.Info("mounting installer image", slog.String("image", image))

	vol, err := m.mounter.Mount(ctx, image)
	if err != nil {
		return Volume{}, fmt.Errorf("failed to mount %s: %w", image, err)
	}

	m.logger.Info("installer image mounted", slog.String("image", image), slog.String("volume", vol.Root))
	return vol, nil
}

func (m *Manager) Copy(ctx context.Context, vol Volume, dir string) error {
	m.logger.Info("copying installer image contents",
		slog.String("volume", vol.Root),
		slog.String("destination", dir),
	)

	if vol.IsZero() {
		return fmt.Errorf("failed to copy to %s: %w", dir, errNoVolume)
	}

	if err := m.mounter.CopyTo(ctx, vol, dir); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", vol.Root, dir, err)
	}

	m.logger.Info("copied installer image contents", slog.String("destination", dir))
	return nil
}

func (m *Manager) Unmount(ctx context.Context, image string, vol Volume) error {
	m.logger.Info("unmounting installer image", slog.String("image", image))

	if err := m.mounter.Unmount(ctx, image, vol); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", image, err)
	}

	m.logger.Info("installer image unmounted", slog.String("image", image))
	return nil
}

// Stage runs prepare, mount, copy and unmount once, in that order.
//
// With stopOnError unset every step is attempted even after a failure and
// all failures are returned joined. With stopOnError set the first failure
// ends the sequence, though a successful mount is always released. Unmount
// failures are logged and never returned.
func (m *Manager) Stage(ctx context.Context, image, dir string, stopOnError bool) error {
	var errs []error

	fail := func(err error) bool {
		m.logger.Error("staging step failed", slog.String("error", err.Error()))
		errs = append(errs, err)
		return stopOnError
	}

	if err := m.Prepare(dir); err != nil && fail(err) {
		return errors.Join(errs...)
	}

	vol, err := m.Mount(ctx, image)
	if err != nil && fail(err) {
		return errors.Join(errs...)
	}

	if err := m.Copy(ctx, vol, dir); err != nil {
		fail(err)
	}

	if err := m.Unmount(ctx, image, vol); err != nil {
		m.logger.Warn("installer image left mounted", slog.String("error", err.Error()))
	}

	return errors.Join(errs...)
}

package genisoimage

import (
	"context"
	"errors"

	"github.com/terabiome/labkick/pkg/executor"
)

// Conventional El Torito entries of RHEL-family installer trees.
const (
	DefaultBootImage    = "isolinux/isolinux.bin"
	DefaultBootCatalog  = "isolinux/boot.cat"
	DefaultEFIBootImage = "images/efiboot.img"
)

type ISOOptions struct {
	// Label is used as volume id, volume set id and application id.
	Label        string
	BootImage    string
	BootCatalog  string
	EFIBootImage string
	OutputPath   string
	SourceDir    string
}

func (o ISOOptions) withDefaults() ISOOptions {
	if o.BootImage == "" {
		o.BootImage = DefaultBootImage
	}
	if o.BootCatalog == "" {
		o.BootCatalog = DefaultBootCatalog
	}
	if o.EFIBootImage == "" {
		o.EFIBootImage = DefaultEFIBootImage
	}
	return o
}

// Args returns the genisoimage command line for a hybrid BIOS/UEFI
// installer image with Rock Ridge and Joliet extensions.
func Args(opts ISOOptions) []string {
	opts = opts.withDefaults()

	return []string{
		"-U", "-r", "-v", "-T", "-J", "-joliet-long",
		"-V", opts.Label,
		"-volset", opts.Label,
		"-A", opts.Label,
		"-b", opts.BootImage,
		"-c", opts.BootCatalog,
		"-no-emul-boot",
		"-boot-load-size", "4",
		"-boot-info-table",
		"-eltorito-alt-boot",
		"-e", opts.EFIBootImage,
		"-no-emul-boot",
		"-o", opts.OutputPath,
		opts.SourceDir,
	}
}

func CreateISO(ctx context.Context, exec executor.Executor, opts ISOOptions) error {
	if opts.Label == "" {
		return errors.New("genisoimage: empty volume label")
	}
	if opts.OutputPath == "" || opts.SourceDir == "" {
		return errors.New("genisoimage: output path and source directory are required")
	}

	_, err := executor.RunChecked(ctx, exec, "genisoimage", Args(opts)...)
	return err
}

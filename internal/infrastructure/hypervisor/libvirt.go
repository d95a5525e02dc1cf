package hypervisor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"
)

// Domains is the part of a libvirt connection the driver needs.
type Domains interface {
	DomainExists(name string) (bool, error)
	DefineDomain(xml string, start bool) error
}

// DiskCreator allocates the system disk, and removes it again when the
// domain cannot be defined.
type DiskCreator interface {
	CreateDisk(ctx context.Context, path string, sizeBytes uint64) error
	RemoveDisk(ctx context.Context, path string) error
}

const (
	NetworkModeNetwork = "network"
	NetworkModeBridge  = "bridge"
)

// Libvirt defines KVM domains through a libvirt connection.
type Libvirt struct {
	domains     Domains
	disks       DiskCreator
	networkMode string
	logger      *slog.Logger
}

// NewLibvirt creates a libvirt driver. The lab switch names a libvirt
// network, or a host bridge when networkMode is NetworkModeBridge.
func NewLibvirt(domains Domains, disks DiskCreator, networkMode string, logger *slog.Logger) *Libvirt {
	if networkMode == "" {
		networkMode = NetworkModeNetwork
	}

	return &Libvirt{
		domains:     domains,
		disks:       disks,
		networkMode: networkMode,
		logger:      logger.With(slog.String("component", "hypervisor"), slog.String("driver", "libvirt")),
	}
}

func (l *Libvirt) Name() string {
	return "libvirt"
}

func (l *Libvirt) DiskPath(labDir, name string) string {
	return filepath.Join(labDir, name, name+".qcow2")
}

func (l *Libvirt) Exists(_ context.Context, name string) (bool, error) {
	return l.domains.DomainExists(name)
}

func (l *Libvirt) Provision(ctx context.Context, spec VMSpec) error {
	exists, err := l.domains.DomainExists(spec.Name)
	if err != nil {
		return fmt.Errorf("failed to look up domain %s: %w", spec.Name, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrVMExists, spec.Name)
	}

	l.logger.Info("creating virtual disk", slog.String("vm", spec.Name), slog.String("path", spec.DiskPath))
	if err := l.disks.CreateDisk(ctx, spec.DiskPath, spec.DiskSizeBytes); err != nil {
		return fmt.Errorf("failed to create disk for %s: %w", spec.Name, err)
	}

	domainXML, err := BuildDomain(spec, uuid.New(), l.networkMode).Marshal()
	if err != nil {
		return fmt.Errorf("could not create libvirt XML for %s: %w", spec.Name, err)
	}
	l.logger.Debug("rendered libvirt XML", slog.String("vm", spec.Name))

	if err := l.domains.DefineDomain(domainXML, spec.Start); err != nil {
		if rmErr := l.disks.RemoveDisk(ctx, spec.DiskPath); rmErr != nil {
			l.logger.Warn("failed to remove orphaned disk",
				slog.String("vm", spec.Name),
				slog.String("path", spec.DiskPath),
				slog.String("error", rmErr.Error()),
			)
		}
		return fmt.Errorf("could not define VM %s: %w", spec.Name, err)
	}

	l.logger.Info("defined VM", slog.String("vm", spec.Name), slog.Bool("started", spec.Start))
	return nil
}

// BuildDomain returns a UEFI q35 domain booting the installer media first.
func BuildDomain(spec VMSpec, id uuid.UUID, networkMode string) *libvirtxml.Domain {
	secureBoot := "no"
	if spec.SecureBoot {
		secureBoot = "yes"
	}

	onPoweroff := "destroy"
	if spec.AutoStopAction == AutoStopSave {
		onPoweroff = "preserve"
	}

	return &libvirtxml.Domain{
		Type: "kvm",
		Name: spec.Name,
		UUID: id.String(),
		Memory: &libvirtxml.DomainMemory{
			Value: uint(spec.MemoryBytes >> 10),
			Unit:  "KiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Value: uint(spec.VCPUs),
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch:    "x86_64",
				Machine: "q35",
				Type:    "hvm",
			},
			Firmware: "efi",
			FirmwareInfo: &libvirtxml.DomainOSFirmwareInfo{
				Features: []libvirtxml.DomainOSFirmwareFeature{
					{Name: "secure-boot", Enabled: secureBoot},
					{Name: "enrolled-keys", Enabled: secureBoot},
				},
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		OnPoweroff: onPoweroff,
		OnReboot:   "restart",
		OnCrash:    "destroy",
		Devices: &libvirtxml.DomainDeviceList{
			Disks: []libvirtxml.DomainDisk{
				{
					Device: "cdrom",
					Driver: &libvirtxml.DomainDiskDriver{Name: "qemu", Type: "raw"},
					Source: &libvirtxml.DomainDiskSource{
						File: &libvirtxml.DomainDiskSourceFile{File: spec.MediaPath},
					},
					Target:   &libvirtxml.DomainDiskTarget{Dev: "sda", Bus: "sata"},
					ReadOnly: &libvirtxml.DomainDiskReadOnly{},
					Boot:     &libvirtxml.DomainDeviceBoot{Order: 1},
				},
				{
					Device: "disk",
					Driver: &libvirtxml.DomainDiskDriver{Name: "qemu", Type: "qcow2"},
					Source: &libvirtxml.DomainDiskSource{
						File: &libvirtxml.DomainDiskSourceFile{File: spec.DiskPath},
					},
					Target: &libvirtxml.DomainDiskTarget{Dev: "vda", Bus: "virtio"},
					Boot:   &libvirtxml.DomainDeviceBoot{Order: 2},
				},
			},
			Interfaces: []libvirtxml.DomainInterface{
				buildNetworkInterface(networkMode, spec.SwitchName),
			},
			Graphics: []libvirtxml.DomainGraphic{
				{
					VNC: &libvirtxml.DomainGraphicVNC{
						Port:     -1,
						AutoPort: "yes",
					},
				},
			},
		},
	}
}

func buildNetworkInterface(mode, switchName string) libvirtxml.DomainInterface {
	iface := libvirtxml.DomainInterface{
		Model: &libvirtxml.DomainInterfaceModel{Type: "virtio"},
	}

	if mode == NetworkModeBridge {
		iface.Source = &libvirtxml.DomainInterfaceSource{
			Bridge: &libvirtxml.DomainInterfaceSourceBridge{Bridge: switchName},
		}
		return iface
	}

	iface.Source = &libvirtxml.DomainInterfaceSource{
		Network: &libvirtxml.DomainInterfaceSourceNetwork{Network: switchName},
	}
	return iface
}

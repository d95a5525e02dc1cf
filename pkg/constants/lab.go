package constants

const (
	TemplateKickstart = "kickstart"
)

type Platform string

const (
	PLATFORM_HYPERV  Platform = "hyperv"
	PLATFORM_LIBVIRT Platform = "libvirt"
)

// WSLLauncher runs Linux tools from a Windows host.
const WSLLauncher = "wsl.exe"

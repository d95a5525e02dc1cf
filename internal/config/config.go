package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/terabiome/labkick/internal/infrastructure/hypervisor"
	"github.com/terabiome/labkick/pkg/constants"
)

type Config struct {
	Platform         string
	LogLevel         string
	LogFormat        string
	LogFile          string
	TelemetryEnabled bool

	LibvirtURI         string
	LibvirtNetworkMode string
	WSLMountRoot       string
	WorkDir            string
	StagingPolicy      string

	VMMemory   string
	VMCPUs     int
	VMDiskSize string
	VMAutoStop string

	// Lab inputs. Command-line flags take precedence.
	ServerList        string
	KickstartTemplate string
	LabDir            string
	ISO               string
	ExtractedISO      string
	Switch            string
}

func defaultPlatform() string {
	if runtime.GOOS == "windows" {
		return string(constants.PLATFORM_HYPERV)
	}
	return string(constants.PLATFORM_LIBVIRT)
}

// Load reads defaults, an optional config file and LABKICK_* environment
// variables, in increasing order of precedence.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("platform", defaultPlatform())
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
	v.SetDefault("telemetry_enabled", false)
	v.SetDefault("libvirt_uri", "qemu:///system")
	v.SetDefault("libvirt_network_mode", "network")
	v.SetDefault("wsl_mount_root", "/mnt")
	v.SetDefault("work_dir", "")
	v.SetDefault("staging_policy", "continue")
	v.SetDefault("vm_memory", "4GiB")
	v.SetDefault("vm_cpus", 8)
	v.SetDefault("vm_disk_size", "1TiB")
	v.SetDefault("vm_auto_stop", "Shutdown")
	for _, key := range []string{"serverlist", "kickstart_template", "lab_dir", "iso", "extracted_iso", "switch"} {
		v.SetDefault(key, "")
	}

	v.SetEnvPrefix("labkick")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Platform:           v.GetString("platform"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
		LogFile:            v.GetString("log_file"),
		TelemetryEnabled:   v.GetBool("telemetry_enabled"),
		LibvirtURI:         v.GetString("libvirt_uri"),
		LibvirtNetworkMode: v.GetString("libvirt_network_mode"),
		WSLMountRoot:       v.GetString("wsl_mount_root"),
		WorkDir:            v.GetString("work_dir"),
		StagingPolicy:      v.GetString("staging_policy"),
		VMMemory:           v.GetString("vm_memory"),
		VMCPUs:             v.GetInt("vm_cpus"),
		VMDiskSize:         v.GetString("vm_disk_size"),
		VMAutoStop:         v.GetString("vm_auto_stop"),
		ServerList:         v.GetString("serverlist"),
		KickstartTemplate:  v.GetString("kickstart_template"),
		LabDir:             v.GetString("lab_dir"),
		ISO:                v.GetString("iso"),
		ExtractedISO:       v.GetString("extracted_iso"),
		Switch:             v.GetString("switch"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.LogFormat)
	}

	switch constants.Platform(c.Platform) {
	case constants.PLATFORM_HYPERV, constants.PLATFORM_LIBVIRT:
	default:
		return fmt.Errorf("invalid platform: %s (valid: hyperv, libvirt)", c.Platform)
	}

	if c.LibvirtNetworkMode != "network" && c.LibvirtNetworkMode != "bridge" {
		return fmt.Errorf("invalid libvirt network mode: %s (valid: network, bridge)", c.LibvirtNetworkMode)
	}

	if c.StagingPolicy != "continue" && c.StagingPolicy != "strict" {
		return fmt.Errorf("invalid staging policy: %s (valid: continue, strict)", c.StagingPolicy)
	}

	if _, err := c.VMMemoryBytes(); err != nil {
		return err
	}
	if _, err := c.VMDiskSizeBytes(); err != nil {
		return err
	}
	if _, err := hypervisor.ParseAutoStopAction(c.VMAutoStop); err != nil {
		return fmt.Errorf("invalid vm_auto_stop: %w", err)
	}
	if c.VMCPUs <= 0 {
		return fmt.Errorf("invalid vm_cpus: %d", c.VMCPUs)
	}

	if c.WorkDir != "" {
		if err := validateDirExists(c.WorkDir); err != nil {
			return fmt.Errorf("work dir: %w", err)
		}
	}

	return nil
}

// VMMemoryBytes parses vm_memory, e.g. "4GiB" or "4096MB".
func (c *Config) VMMemoryBytes() (uint64, error) {
	return parseSize("vm_memory", c.VMMemory)
}

// VMDiskSizeBytes parses vm_disk_size, e.g. "1TiB" or "1024GiB".
func (c *Config) VMDiskSizeBytes() (uint64, error) {
	return parseSize("vm_disk_size", c.VMDiskSize)
}

func parseSize(key, value string) (uint64, error) {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, value)
	}
	return n, nil
}

func validateDirExists(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", path)
	} else if err != nil {
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", path)
	}
	return nil
}

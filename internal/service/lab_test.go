package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terabiome/labkick/internal/infrastructure/hypervisor"
	"github.com/terabiome/labkick/internal/infrastructure/isobuild"
	"github.com/terabiome/labkick/internal/infrastructure/staging"
	"github.com/terabiome/labkick/pkg/bootcfg"
	"github.com/terabiome/labkick/pkg/executor/executortest"
	"github.com/terabiome/labkick/pkg/logger"
	"github.com/terabiome/labkick/pkg/pathconv"
)

const grubCfg = `set default="1"
set timeout=60
search --no-floppy --set=root -l 'OL-9-4-0-BaseOS-x86_64'
menuentry 'Install Oracle Linux 9.4.0' {
	linuxefi /images/pxeboot/vmlinuz inst.stage2=hd:LABEL=OL-9-4-0-BaseOS-x86_64 quiet
}
menuentry 'Test this media & install Oracle Linux 9.4.0' {
	linuxefi /images/pxeboot/vmlinuz inst.stage2=hd:LABEL=OL-9-4-0-BaseOS-x86_64 rd.live.check quiet
}
`

const kickstart = `network --bootproto=static --hostname=<SERVER_NAME> --ip=<IP_ADDRESS> --netmask=<SUBNET_MASK> --gateway=<DEFAULT_GW> --nameserver=<DNS_SERVER>
rootpw --lock
`

type lab struct {
	params ProvisionLabParams
	root   string
}

func newLab(t *testing.T, serverList string) lab {
	t.Helper()
	root := t.TempDir()

	write := func(rel, content string) string {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	params := ProvisionLabParams{
		ServerListPath:        write("serverlist.txt", serverList),
		KickstartTemplatePath: write("ks_template.cfg", kickstart),
		LabDir:                filepath.Join(root, "VM_LAB"),
		ISOPath:               filepath.Join(root, "OL9.iso"),
		ExtractedISODir:       filepath.Join(root, "EXTRACTED_ISO"),
		SwitchName:            "LabSwitch",
		StagingPolicy:         StagingContinue,
		VM:                    DefaultVMPolicy(),
	}
	require.NoError(t, os.MkdirAll(params.LabDir, 0o755))

	return lab{params: params, root: root}
}

// seedStagedTree puts a descriptor where the copy step would have.
func (l lab) seedStagedTree(t *testing.T) {
	t.Helper()
	p := filepath.Join(l.params.ExtractedISODir, "EFI", "BOOT", "grub.cfg")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(grubCfg), 0o444))
}

type fakeStager struct {
	err   error
	calls int
	seed  func()
}

func (f *fakeStager) Stage(_ context.Context, _, _ string, _ bool) error {
	f.calls++
	if f.seed != nil {
		f.seed()
	}
	return f.err
}

type fakeBuilder struct {
	requests []isobuild.Request
	failFor  string
}

func (f *fakeBuilder) Build(_ context.Context, req isobuild.Request) (string, error) {
	f.requests = append(f.requests, req)
	if req.HostName == f.failFor {
		return "", errors.New("genisoimage failed")
	}
	return isobuild.OutputPath(req.LabDir, req.HostName), nil
}

type fakeDriver struct {
	specs   []hypervisor.VMSpec
	failFor string
}

func (f *fakeDriver) Name() string { return "fake" }

func (f *fakeDriver) DiskPath(labDir, name string) string {
	return filepath.Join(labDir, name, name+".img")
}

func (f *fakeDriver) Exists(_ context.Context, _ string) (bool, error) { return false, nil }

func (f *fakeDriver) Provision(_ context.Context, spec hypervisor.VMSpec) error {
	if spec.Name == f.failFor {
		return hypervisor.ErrVMExists
	}
	f.specs = append(f.specs, spec)
	return nil
}

const twoHosts = "name,ip,mask,gw,dns\n" +
	"web1,10.0.0.11,255.255.255.0,10.0.0.1,10.0.0.2\n" +
	"db1,10.0.0.12,255.255.255.0,10.0.0.1,10.0.0.2\n"

func TestProvisionLab(t *testing.T) {
	l := newLab(t, twoHosts)
	stager := &fakeStager{seed: func() { l.seedStagedTree(t) }}
	builder := &fakeBuilder{}
	driver := &fakeDriver{}

	svc := NewLabService(stager, builder, driver, logger.Discard())
	result, err := svc.ProvisionLab(context.Background(), l.params)
	require.NoError(t, err)

	assert.Equal(t, 1, stager.calls)
	assert.Equal(t, "OL-9-4-0-BaseOS-x86_64", result.Label)
	assert.Equal(t, []string{"name", "ip", "mask", "gw", "dns"}, result.Header)
	assert.Equal(t, ExitOK, ExitCode(result, err))
	assert.False(t, result.FinishedAt.Before(result.StartedAt))

	require.Len(t, builder.requests, 2)
	first := builder.requests[0]
	assert.Equal(t, "web1", first.HostName)
	assert.Equal(t, "OL-9-4-0-BaseOS-x86_64", first.Label)
	assert.Equal(t, l.params.ExtractedISODir, first.StagedDir)
	assert.Equal(t,
		"network --bootproto=static --hostname=web1 --ip=10.0.0.11 --netmask=255.255.255.0 --gateway=10.0.0.1 --nameserver=10.0.0.2",
		first.Payload[0],
	)
	assert.Equal(t, "db1", builder.requests[1].HostName)

	require.Len(t, driver.specs, 2)
	spec := driver.specs[0]
	assert.Equal(t, hypervisor.VMSpec{
		Name:           "web1",
		SwitchName:     "LabSwitch",
		MemoryBytes:    4 << 30,
		VCPUs:          8,
		DiskPath:       filepath.Join(l.params.LabDir, "web1", "web1.img"),
		DiskSizeBytes:  1 << 40,
		MediaPath:      filepath.Join(l.params.LabDir, "web1.iso"),
		SecureBoot:     false,
		AutoStopAction: hypervisor.AutoStopShutdown,
		Start:          true,
	}, spec)

	grub, err := os.ReadFile(filepath.Join(l.params.ExtractedISODir, "EFI", "BOOT", "grub.cfg"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(grub), "inst.ks=hd:LABEL=OL-9-4-0-BaseOS-x86_64:/ks.cfg"))
}

func TestProvisionLabHostFailuresDoNotStopBatch(t *testing.T) {
	l := newLab(t, "name,ip,mask,gw,dns\n"+
		"web1,10.0.0.11,255.255.255.0,10.0.0.1,10.0.0.2\n"+
		"web2,10.0.0.12,255.255.255.0,10.0.0.1,10.0.0.2\n"+
		"db1,10.0.0.13,255.255.255.0,10.0.0.1,10.0.0.2\n")
	l.seedStagedTree(t)

	builder := &fakeBuilder{failFor: "web1"}
	driver := &fakeDriver{failFor: "web2"}

	result, err := NewLabService(&fakeStager{}, builder, driver, logger.Discard()).ProvisionLab(context.Background(), l.params)
	require.NoError(t, err)

	require.Len(t, result.Hosts, 3)
	assert.ErrorIs(t, result.Hosts[0].Err, ErrBuild)
	assert.ErrorIs(t, result.Hosts[1].Err, ErrProvision)
	assert.ErrorIs(t, result.Hosts[1].Err, hypervisor.ErrVMExists)
	assert.NoError(t, result.Hosts[2].Err)

	assert.Len(t, builder.requests, 3)
	assert.Len(t, driver.specs, 1)
	assert.Equal(t, 2, result.FailedCount())
	assert.Equal(t, ExitHostFailure, ExitCode(result, err))
}

func TestProvisionLabStrictStagingAborts(t *testing.T) {
	l := newLab(t, twoHosts)
	builder := &fakeBuilder{}

	l.params.StagingPolicy = StagingStrict
	result, err := NewLabService(&fakeStager{err: errors.New("mount failed")}, builder, &fakeDriver{}, logger.Discard()).
		ProvisionLab(context.Background(), l.params)

	require.ErrorIs(t, err, ErrStaging)
	assert.Empty(t, builder.requests)
	assert.Equal(t, ExitStaging, ExitCode(result, err))
}

func TestProvisionLabMissingDescriptorInContinueMode(t *testing.T) {
	l := newLab(t, twoHosts)
	builder := &fakeBuilder{}
	driver := &fakeDriver{}

	result, err := NewLabService(&fakeStager{}, builder, driver, logger.Discard()).
		ProvisionLab(context.Background(), l.params)
	require.ErrorIs(t, err, ErrDescriptorRewrite)

	assert.ErrorIs(t, result.DescriptorErr, ErrDescriptorRewrite)
	assert.Empty(t, builder.requests)
	assert.Empty(t, driver.specs)
	assert.Empty(t, result.Hosts)
	assert.Equal(t, ExitStaging, ExitCode(result, err))
}

func TestProvisionLabDescriptorWithoutLabelInContinueMode(t *testing.T) {
	l := newLab(t, twoHosts)
	p := filepath.Join(l.params.ExtractedISODir, "EFI", "BOOT", "grub.cfg")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("set timeout=60\nmenuentry 'Install' {\n\tlinuxefi /images/pxeboot/vmlinuz quiet\n}\n"), 0o644))

	builder := &fakeBuilder{}
	driver := &fakeDriver{}

	result, err := NewLabService(&fakeStager{}, builder, driver, logger.Discard()).
		ProvisionLab(context.Background(), l.params)
	require.ErrorIs(t, err, ErrDescriptorRewrite)
	assert.ErrorIs(t, err, bootcfg.ErrLabelNotFound)

	assert.Empty(t, result.Label)
	assert.Empty(t, builder.requests)
	assert.Empty(t, driver.specs)
	assert.Equal(t, ExitStaging, ExitCode(result, err))
}

func TestProvisionLabStrictDescriptorFailureAborts(t *testing.T) {
	l := newLab(t, twoHosts)
	l.params.StagingPolicy = StagingStrict
	builder := &fakeBuilder{}

	_, err := NewLabService(&fakeStager{}, builder, &fakeDriver{}, logger.Discard()).
		ProvisionLab(context.Background(), l.params)

	require.ErrorIs(t, err, ErrDescriptorRewrite)
	assert.Empty(t, builder.requests)
}

func TestProvisionLabReusesLabelOfRewrittenDescriptor(t *testing.T) {
	l := newLab(t, twoHosts)
	l.seedStagedTree(t)
	svc := NewLabService(&fakeStager{}, &fakeBuilder{}, &fakeDriver{}, logger.Discard())

	_, err := svc.ProvisionLab(context.Background(), l.params)
	require.NoError(t, err)

	builder := &fakeBuilder{}
	svc = NewLabService(&fakeStager{}, builder, &fakeDriver{}, logger.Discard())
	result, err := svc.ProvisionLab(context.Background(), l.params)
	require.NoError(t, err)

	assert.ErrorIs(t, result.DescriptorErr, ErrDescriptorRewrite)
	require.NotEmpty(t, builder.requests)
	assert.Equal(t, "OL-9-4-0-BaseOS-x86_64", builder.requests[0].Label)
}

func TestProvisionLabConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ProvisionLabParams)
	}{
		{"missing switch", func(p *ProvisionLabParams) { p.SwitchName = "" }},
		{"missing server list", func(p *ProvisionLabParams) { p.ServerListPath = filepath.Join(filepath.Dir(p.ServerListPath), "nope.txt") }},
		{"missing template", func(p *ProvisionLabParams) { p.KickstartTemplatePath = filepath.Join(filepath.Dir(p.KickstartTemplatePath), "nope.cfg") }},
		{"zero memory", func(p *ProvisionLabParams) { p.VM.MemoryBytes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLab(t, twoHosts)
			tt.mutate(&l.params)
			stager := &fakeStager{}

			result, err := NewLabService(stager, &fakeBuilder{}, &fakeDriver{}, logger.Discard()).
				ProvisionLab(context.Background(), l.params)

			require.ErrorIs(t, err, ErrConfiguration)
			assert.Equal(t, 0, stager.calls)
			assert.Equal(t, ExitConfiguration, ExitCode(result, err))
		})
	}
}

func TestProvisionLabShortInventoryLine(t *testing.T) {
	l := newLab(t, "name,ip,mask,gw,dns\nweb1,10.0.0.11\n")

	_, err := NewLabService(&fakeStager{}, &fakeBuilder{}, &fakeDriver{}, logger.Discard()).
		ProvisionLab(context.Background(), l.params)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestProvisionLabCancelled(t *testing.T) {
	l := newLab(t, twoHosts)
	l.seedStagedTree(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	builder := &fakeBuilder{}
	result, err := NewLabService(&fakeStager{}, builder, &fakeDriver{}, logger.Discard()).ProvisionLab(ctx, l.params)
	require.NoError(t, err)

	assert.Empty(t, builder.requests)
	require.Len(t, result.Hosts, 2)
	for _, h := range result.Hosts {
		assert.ErrorIs(t, h.Err, context.Canceled)
	}
}

// A failed mount followed by the copy step in continue mode must not crash
// and still reports the staging failure.
func TestMountFailureThenCopyInContinueMode(t *testing.T) {
	l := newLab(t, twoHosts)
	l.seedStagedTree(t)

	exec := executortest.New().Fail("Mount-DiskImage", "Mount-DiskImage : The system cannot find the file specified.")
	stager := staging.NewManager(staging.NewHyperV(exec, logger.Discard()), logger.Discard())
	builder := isobuild.NewBuilder(exec, pathconv.Native{}, t.TempDir(), logger.Discard())
	driver := &fakeDriver{}

	result, err := NewLabService(stager, builder, driver, logger.Discard()).ProvisionLab(context.Background(), l.params)
	require.NoError(t, err)

	require.ErrorIs(t, result.StagingErr, ErrStaging)
	assert.Contains(t, result.StagingErr.Error(), "cannot find the file")
	assert.NoError(t, result.DescriptorErr)
	assert.Equal(t, ExitStaging, ExitCode(result, err))

	_, copied := exec.Find("Copy-Item")
	assert.False(t, copied)
	_, unmounted := exec.Find("Dismount-DiskImage")
	assert.True(t, unmounted)
	assert.Len(t, driver.specs, 2)
}

func TestRenderLab(t *testing.T) {
	l := newLab(t, twoHosts)
	out := filepath.Join(l.root, "rendered")

	files, err := RenderLab(context.Background(), RenderParams{
		ServerListPath:        l.params.ServerListPath,
		KickstartTemplatePath: l.params.KickstartTemplatePath,
		OutputDir:             out,
	}, logger.Discard())
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(out, "web1_ks.cfg"), files[0].Path)

	data, err := os.ReadFile(files[1].Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "--hostname=db1 --ip=10.0.0.12")
	assert.NotContains(t, string(data), "<")
}

func TestParseStagingPolicy(t *testing.T) {
	p, err := ParseStagingPolicy("")
	require.NoError(t, err)
	assert.Equal(t, StagingContinue, p)

	p, err = ParseStagingPolicy("strict")
	require.NoError(t, err)
	assert.Equal(t, StagingStrict, p)

	_, err = ParseStagingPolicy("yolo")
	assert.ErrorIs(t, err, ErrConfiguration)
}

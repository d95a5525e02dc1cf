package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/terabiome/labkick/internal/infrastructure/hypervisor"
	"github.com/terabiome/labkick/internal/infrastructure/isobuild"
	"github.com/terabiome/labkick/internal/inventory"
	"github.com/terabiome/labkick/pkg/bootcfg"
	"github.com/terabiome/labkick/pkg/constants"
	"github.com/terabiome/labkick/pkg/templator"
)

const tracerName = "labkick/service"

// Stager extracts the installer image into the shared working tree.
type Stager interface {
	Stage(ctx context.Context, image, dir string, stopOnError bool) error
}

// Builder authors one host image from the staged tree.
type Builder interface {
	Build(ctx context.Context, req isobuild.Request) (string, error)
}

// LabService runs the provisioning pipeline: shared preparation once, then
// image build and VM creation once per host, in inventory order.
type LabService struct {
	stager  Stager
	builder Builder
	driver  hypervisor.Driver
	logger  *slog.Logger

	hostProvisioned metric.Int64Counter
	hostFailed      metric.Int64Counter
	buildDuration   metric.Float64Histogram
}

// NewLabService creates a new LabService.
func NewLabService(stager Stager, builder Builder, driver hypervisor.Driver, logger *slog.Logger) *LabService {
	meter := otel.Meter(tracerName)

	hostProvisioned, err := meter.Int64Counter(
		"labkick.host.provisioned",
		metric.WithDescription("Number of hosts provisioned"),
		metric.WithUnit("{host}"),
	)
	if err != nil {
		logger.Warn("failed to create hostProvisioned metric", slog.String("error", err.Error()))
	}

	hostFailed, err := meter.Int64Counter(
		"labkick.host.failed",
		metric.WithDescription("Number of hosts that failed to build or provision"),
		metric.WithUnit("{host}"),
	)
	if err != nil {
		logger.Warn("failed to create hostFailed metric", slog.String("error", err.Error()))
	}

	buildDuration, err := meter.Float64Histogram(
		"labkick.image.build.duration",
		metric.WithDescription("Duration of per-host image builds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create buildDuration metric", slog.String("error", err.Error()))
	}

	return &LabService{
		stager:          stager,
		builder:         builder,
		driver:          driver,
		logger:          logger.With(slog.String("service", "lab")),
		hostProvisioned: hostProvisioned,
		hostFailed:      hostFailed,
		buildDuration:   buildDuration,
	}
}

// ProvisionLab runs a whole lab. The returned error is set only when the run
// stopped before attempting the hosts; per-host failures are in the result.
func (s *LabService) ProvisionLab(ctx context.Context, params ProvisionLabParams) (*RunResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ProvisionLab")
	defer span.End()

	result := &RunResult{
		RunID:     uuid.New(),
		Platform:  s.driver.Name(),
		StartedAt: time.Now(),
	}
	defer func() { result.FinishedAt = time.Now() }()

	span.SetAttributes(
		attribute.String("run.id", result.RunID.String()),
		attribute.String("platform", result.Platform),
	)
	logger := s.logger.With(slog.String("run_id", result.RunID.String()))

	if err := params.Validate(); err != nil {
		return result, err
	}

	inv, engine, err := loadInputs(params.ServerListPath, params.KickstartTemplatePath)
	if err != nil {
		return result, err
	}
	result.Header = inv.Header
	span.SetAttributes(attribute.Int("host.count", len(inv.Hosts)))

	logger.Info("loaded inventory",
		slog.String("path", params.ServerListPath),
		slog.Any("header", inv.Header),
		slog.Int("hosts", len(inv.Hosts)),
	)

	strict := params.StagingPolicy == StagingStrict

	if err := s.stage(ctx, params, strict); err != nil {
		result.StagingErr = err
		if strict {
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}
		logger.Warn("continuing with the existing staged tree", slog.String("path", params.ExtractedISODir))
	}

	label, err := s.rewriteDescriptor(ctx, params.ExtractedISODir)
	result.Label = label
	if err != nil {
		result.DescriptorErr = err
		// Only an earlier run's rewrite leaves a usable label behind.
		if strict || label == "" || !errors.Is(err, bootcfg.ErrAlreadyRewritten) {
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}
		logger.Warn("boot descriptor was already rewritten, reusing its label", slog.String("label", label))
	}

	for i, host := range inv.Hosts {
		if err := ctx.Err(); err != nil {
			logger.Error("run cancelled", slog.Int("remaining_hosts", len(inv.Hosts)-i))
			for _, h := range inv.Hosts[i:] {
				result.Hosts = append(result.Hosts, HostResult{Host: h, Err: err})
			}
			break
		}

		result.Hosts = append(result.Hosts, s.provisionHost(ctx, engine, params, label, host))
	}

	failed := result.FailedCount()
	span.SetAttributes(attribute.Int("host.failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d hosts failed", failed, len(result.Hosts)))
	}

	logger.Info("lab run finished",
		slog.Int("hosts", len(result.Hosts)),
		slog.Int("failed", failed),
		slog.Duration("elapsed", time.Since(result.StartedAt)),
	)

	return result, nil
}

func loadInputs(serverList, templatePath string) (*inventory.Inventory, *templator.Engine, error) {
	inv, err := inventory.Load(serverList)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	engine := templator.NewEngine()
	if err := engine.LoadTemplate(constants.TemplateKickstart, templatePath); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return inv, engine, nil
}

func (s *LabService) stage(ctx context.Context, params ProvisionLabParams, strict bool) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Stage")
	defer span.End()

	span.SetAttributes(
		attribute.String("image", params.ISOPath),
		attribute.String("dir", params.ExtractedISODir),
		attribute.Bool("strict", strict),
	)

	if err := s.stager.Stage(ctx, params.ISOPath, params.ExtractedISODir, strict); err != nil {
		failSpan(span, err, "staging failed")
		return fmt.Errorf("%w: %w", ErrStaging, err)
	}
	return nil
}

// rewriteDescriptor rewrites the boot menu of the staged tree exactly once
// and returns the volume label it found. The label is still returned when
// the descriptor was already rewritten by an earlier run.
func (s *LabService) rewriteDescriptor(ctx context.Context, stagedDir string) (string, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "RewriteDescriptor")
	defer span.End()

	path := filepath.Join(stagedDir, filepath.FromSlash(bootcfg.DescriptorPath))
	s.logger.Info("rewriting boot descriptor", slog.String("path", path))

	result, err := bootcfg.RewriteFile(path)
	if err != nil {
		s.logger.Error("failed to rewrite boot descriptor",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		failSpan(span, err, "rewrite failed")
		return result.Label, fmt.Errorf("%w: %w", ErrDescriptorRewrite, err)
	}

	span.SetAttributes(attribute.String("label", result.Label))
	s.logger.Info("rewrote boot descriptor",
		slog.String("label", result.Label),
		slog.Int("loader_line", result.InjectedLine+1),
	)
	return result.Label, nil
}

func (s *LabService) provisionHost(ctx context.Context, engine *templator.Engine, params ProvisionLabParams, label string, host inventory.HostRecord) HostResult {
	started := time.Now()
	res := HostResult{Host: host}
	logger := s.logger.With(slog.String("host", host.Name))

	finish := func(err error) HostResult {
		res.Err = err
		res.Duration = time.Since(started)
		attrs := metric.WithAttributes(attribute.String("platform", s.driver.Name()))
		if err != nil {
			logger.Error("host failed", slog.String("error", err.Error()))
			if s.hostFailed != nil {
				s.hostFailed.Add(ctx, 1, attrs)
			}
			return res
		}
		if s.hostProvisioned != nil {
			s.hostProvisioned.Add(ctx, 1, attrs)
		}
		logger.Info("host provisioned", slog.Duration("elapsed", res.Duration))
		return res
	}

	logger.Info("rendering kickstart", slog.String("ip", host.IP))
	payload, err := engine.Render(constants.TemplateKickstart, KickstartVars(host))
	if err != nil {
		return finish(fmt.Errorf("%w: %w", ErrBuild, err))
	}

	imagePath, err := s.buildImage(ctx, params, label, host, payload)
	if err != nil {
		return finish(err)
	}
	res.ImagePath = imagePath

	return finish(s.provisionVM(ctx, params, host, imagePath))
}

func (s *LabService) buildImage(ctx context.Context, params ProvisionLabParams, label string, host inventory.HostRecord, payload templator.Rendered) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "BuildImage")
	defer span.End()
	span.SetAttributes(attribute.String("host", host.Name), attribute.String("label", label))

	started := time.Now()
	path, err := s.builder.Build(ctx, isobuild.Request{
		StagedDir: params.ExtractedISODir,
		Label:     label,
		HostName:  host.Name,
		Payload:   payload,
		LabDir:    params.LabDir,
	})
	if s.buildDuration != nil {
		s.buildDuration.Record(ctx, time.Since(started).Seconds(),
			metric.WithAttributes(attribute.Bool("success", err == nil)),
		)
	}
	if err != nil {
		failSpan(span, err, "build failed")
		return "", fmt.Errorf("%w: %w", ErrBuild, err)
	}

	span.SetAttributes(attribute.String("image", path))
	return path, nil
}

func (s *LabService) provisionVM(ctx context.Context, params ProvisionLabParams, host inventory.HostRecord, imagePath string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ProvisionVM")
	defer span.End()
	span.SetAttributes(attribute.String("vm.name", host.Name), attribute.String("driver", s.driver.Name()))

	policy := params.VM
	spec := hypervisor.VMSpec{
		Name:           host.Name,
		SwitchName:     params.SwitchName,
		MemoryBytes:    policy.MemoryBytes,
		VCPUs:          policy.VCPUs,
		DiskPath:       s.driver.DiskPath(params.LabDir, host.Name),
		DiskSizeBytes:  policy.DiskSizeBytes,
		MediaPath:      imagePath,
		SecureBoot:     policy.SecureBoot,
		AutoStopAction: policy.AutoStopAction,
		Start:          policy.Start,
	}

	s.logger.Info("provisioning VM",
		slog.String("vm", spec.Name),
		slog.String("switch", spec.SwitchName),
		slog.String("disk", spec.DiskPath),
	)

	if err := s.driver.Provision(ctx, spec); err != nil {
		failSpan(span, err, "provision failed")
		return fmt.Errorf("%w: %w", ErrProvision, err)
	}
	return nil
}

// KickstartVars maps an inventory host onto the template tokens.
func KickstartVars(host inventory.HostRecord) templator.Vars {
	return templator.Vars{
		ServerName:     host.Name,
		IPAddress:      host.IP,
		SubnetMask:     host.SubnetMask,
		DefaultGateway: host.Gateway,
		DNSServer:      host.DNS,
	}
}

// RenderedKickstart is one payload written by RenderLab.
type RenderedKickstart struct {
	Host inventory.HostRecord
	Path string
}

// RenderLab writes one rendered kickstart per host as `<name>_ks.cfg`.
// It needs neither an installer image nor a hypervisor.
func RenderLab(ctx context.Context, params RenderParams, logger *slog.Logger) ([]RenderedKickstart, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "RenderLab")
	defer span.End()

	if params.ServerListPath == "" || params.KickstartTemplatePath == "" || params.OutputDir == "" {
		return nil, fmt.Errorf("%w: server list, kickstart template and output directory are required", ErrConfiguration)
	}

	inv, engine, err := loadInputs(params.ServerListPath, params.KickstartTemplatePath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(params.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", params.OutputDir, err)
	}

	var out []RenderedKickstart
	var errs []error
	for _, host := range inv.Hosts {
		path := filepath.Join(params.OutputDir, host.Name+"_ks.cfg")
		if err := engine.RenderToFile(constants.TemplateKickstart, path, KickstartVars(host)); err != nil {
			logger.Error("failed to render kickstart", slog.String("host", host.Name), slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		logger.Info("rendered kickstart", slog.String("host", host.Name), slog.String("path", path))
		out = append(out, RenderedKickstart{Host: host, Path: path})
	}

	return out, errors.Join(errs...)
}

func failSpan(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

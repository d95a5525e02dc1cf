// Package report records the outcome of a lab run as YAML and prints a
// short summary to the terminal.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/terabiome/labkick/internal/service"
)

const (
	StatusProvisioned = "provisioned"
	StatusFailed      = "failed"
)

type Report struct {
	RunID           string       `yaml:"run_id"`
	Platform        string       `yaml:"platform"`
	StartedAt       time.Time    `yaml:"started_at"`
	FinishedAt      time.Time    `yaml:"finished_at"`
	Duration        string       `yaml:"duration"`
	Label           string       `yaml:"label,omitempty"`
	StagingError    string       `yaml:"staging_error,omitempty"`
	DescriptorError string       `yaml:"descriptor_error,omitempty"`
	ExitCode        int          `yaml:"exit_code"`
	Hosts           []HostReport `yaml:"hosts"`
}

type HostReport struct {
	Name        string `yaml:"name"`
	IP          string `yaml:"ip"`
	Status      string `yaml:"status"`
	Image       string `yaml:"image,omitempty"`
	ImageBytes  uint64 `yaml:"image_bytes,omitempty"`
	ImageSize   string `yaml:"image_size,omitempty"`
	Digest      string `yaml:"xxhash64,omitempty"`
	DigestError string `yaml:"digest_error,omitempty"`
	Duration    string `yaml:"duration"`
	Error       string `yaml:"error,omitempty"`
}

func (r *Report) Failed() int {
	n := 0
	for _, h := range r.Hosts {
		if h.Status == StatusFailed {
			n++
		}
	}
	return n
}

// New builds the report for a run. Images that exist on the local file
// system are sized and hashed; others are listed by path only. A hashing
// failure is recorded on its host and does not drop the report.
func New(result *service.RunResult, exitCode int) *Report {
	r := &Report{
		RunID:      result.RunID.String(),
		Platform:   result.Platform,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Duration:   result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond).String(),
		Label:      result.Label,
		ExitCode:   exitCode,
		Hosts:      make([]HostReport, 0, len(result.Hosts)),
	}
	if result.StagingErr != nil {
		r.StagingError = result.StagingErr.Error()
	}
	if result.DescriptorErr != nil {
		r.DescriptorError = result.DescriptorErr.Error()
	}

	for _, h := range result.Hosts {
		hr := HostReport{
			Name:     h.Host.Name,
			IP:       h.Host.IP,
			Status:   StatusProvisioned,
			Image:    h.ImagePath,
			Duration: h.Duration.Round(time.Millisecond).String(),
		}
		if h.Err != nil {
			hr.Status = StatusFailed
			hr.Error = h.Err.Error()
		}

		if h.ImagePath != "" {
			digest, size, err := Digest(h.ImagePath)
			switch {
			case err == nil:
				hr.Digest = digest
				hr.ImageBytes = size
				hr.ImageSize = humanize.IBytes(size)
			case !errors.Is(err, fs.ErrNotExist):
				hr.DigestError = err.Error()
			}
		}

		r.Hosts = append(r.Hosts, hr)
	}

	return r
}

// Digest returns the xxhash64 of a file as 16 hex digits, and its size.
func Digest(path string) (string, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return fmt.Sprintf("%016x", h.Sum64()), uint64(n), nil
}

func (r *Report) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Report) WriteFile(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

func exitLabel(code int) string {
	switch code {
	case service.ExitOK:
		return "ok"
	case service.ExitConfiguration:
		return "configuration error"
	case service.ExitStaging:
		return "staging failed"
	case service.ExitHostFailure:
		return "host failures"
	default:
		return "exit " + strconv.Itoa(code)
	}
}

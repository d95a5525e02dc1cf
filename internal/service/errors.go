package service

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrStaging           = errors.New("installer image staging failed")
	ErrDescriptorRewrite = errors.New("boot descriptor rewrite failed")
	ErrBuild             = errors.New("image build failed")
	ErrProvision         = errors.New("VM provisioning failed")
)

// StagingPolicy decides what happens when shared preparation fails.
type StagingPolicy string

const (
	// StagingContinue logs the failure and carries on with whatever the
	// staged tree holds.
	StagingContinue StagingPolicy = "continue"
	// StagingStrict aborts the run at the first staging or descriptor
	// rewrite failure.
	StagingStrict StagingPolicy = "strict"
)

func ParseStagingPolicy(s string) (StagingPolicy, error) {
	switch StagingPolicy(s) {
	case "", StagingContinue:
		return StagingContinue, nil
	case StagingStrict:
		return StagingStrict, nil
	default:
		return "", fmt.Errorf("%w: unknown staging policy %q", ErrConfiguration, s)
	}
}

const (
	ExitOK            = 0
	ExitConfiguration = 1
	ExitStaging       = 2
	ExitHostFailure   = 3
)

// ExitCode maps the outcome of a run to the process exit status. Failed
// shared preparation outranks host failures, even when the run went on.
func ExitCode(result *RunResult, err error) int {
	switch {
	case errors.Is(err, ErrStaging), errors.Is(err, ErrDescriptorRewrite):
		return ExitStaging
	case err != nil:
		return ExitConfiguration
	case result == nil:
		return ExitOK
	case result.StagingErr != nil, result.DescriptorErr != nil:
		return ExitStaging
	case result.FailedCount() > 0:
		return ExitHostFailure
	default:
		return ExitOK
	}
}

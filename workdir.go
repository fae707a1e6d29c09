package matbridge

import (
	"fmt"
	"os"
)

// Pushd switches the process working directory to dir and returns a restore
// function that switches back to the directory that was current when Pushd
// was called. The restore function must be called exactly once, typically
// via defer, and restores the original directory regardless of what happened
// in between.
//
// Engines put their startup directory on the function search path, so
// switching into a toolbox directory before launching a session makes that
// toolbox callable without any engine-side path configuration.
//
// Pushd is not re-entrant and not safe for concurrent use: the working
// directory is process-wide state.
func Pushd(dir string) (func() error, error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("error reading working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("error switching to %s: %w", dir, err)
	}
	return func() error {
		return os.Chdir(prev)
	}, nil
}

// InDir runs fn with the working directory switched to dir, restoring the
// original directory afterwards even when fn returns an error. The error
// from fn takes precedence over a restore failure.
func InDir(dir string, fn func() error) error {
	restore, err := Pushd(dir)
	if err != nil {
		return err
	}
	fnErr := fn()
	if err := restore(); err != nil && fnErr == nil {
		return fmt.Errorf("error restoring working directory: %w", err)
	}
	return fnErr
}

package matbridge

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// EngineKind identifies the flavor of a MATLAB-compatible engine. The two
// flavors take different headless launch flags but speak the same worker
// protocol.
type EngineKind string

const (
	// EngineMatlab is a MathWorks MATLAB installation.
	EngineMatlab EngineKind = "matlab"

	// EngineOctave is a GNU Octave installation.
	EngineOctave EngineKind = "octave"
)

// Engine describes an installed MATLAB-compatible engine executable.
// Create one with NewEngineFromSystem or NewEngineFromExecutable, then start
// sessions against it with NewSession.
type Engine struct {
	// Kind is the engine flavor (matlab or octave).
	Kind EngineKind

	// ExePath is the full path to the engine executable.
	ExePath string

	// Version is the detected engine version. For MATLAB the version is not
	// probed at discovery time (starting MATLAB just to ask costs several
	// seconds); it is reported by the worker when a session starts.
	Version Version
}

// NewEngineFromSystem locates a MATLAB-compatible engine on PATH.
// MATLAB is preferred, then octave-cli, then octave.
// Returns an error if no engine installation is found.
func NewEngineFromSystem() (*Engine, error) {
	for _, name := range []string{"matlab", "octave-cli", "octave"} {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		return NewEngineFromExecutable(path)
	}
	return nil, fmt.Errorf("no MATLAB or Octave executable found on PATH")
}

// NewEngineFromExecutable creates an Engine from an explicit executable path.
// The engine kind is detected from the executable name; Octave installations
// are additionally probed for their version with "--version".
func NewEngineFromExecutable(path string) (*Engine, error) {
	base := strings.ToLower(filepath.Base(path))
	base = strings.TrimSuffix(base, ".exe")

	eng := &Engine{ExePath: path}
	switch {
	case strings.Contains(base, "matlab"):
		eng.Kind = EngineMatlab
	case strings.Contains(base, "octave"):
		eng.Kind = EngineOctave
	default:
		return nil, fmt.Errorf("unrecognized engine executable: %s", path)
	}

	if eng.Kind == EngineOctave {
		out, err := runReadStdout(path, "--version")
		if err != nil {
			return nil, fmt.Errorf("error running octave --version: %w", err)
		}
		eng.Version, err = ParseOctaveVersion(out)
		if err != nil {
			return nil, fmt.Errorf("error parsing octave version: %w", err)
		}
	}

	return eng, nil
}

// launchArgs returns the argv tail that starts the engine headless and
// evaluates boot as its startup code.
func (e *Engine) launchArgs(boot string) []string {
	switch e.Kind {
	case EngineMatlab:
		// -batch implies -nodesktop/-nosplash and exits with the code's status.
		return []string{"-batch", boot}
	default:
		return []string{"--quiet", "--no-gui", "--norc", "--eval", boot}
	}
}

// runReadStdout executes a command and returns its trimmed stdout.
// This is a blocking call that waits for the command to complete.
func runReadStdout(path string, args ...string) (string, error) {
	cmd := exec.Command(path, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

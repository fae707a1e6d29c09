package matbridge

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

//go:embed scripts/worker.m
var workerScript string

// EngineProcess represents a running engine subprocess speaking the worker
// protocol.
//
// The worker script is materialized into a private temporary directory and
// the engine is started with that directory on its path, evaluating "worker"
// as its startup code. The process working directory itself is left to the
// caller (see SessionConfig.Dir), which is how user toolboxes end up on the
// engine's search path.
//
// Communication occurs through the engine's stdio streams:
//   - Stdin/Stdout: length-prefixed protocol frames
//   - Stderr: out-of-band status and error reports as JSON lines; anything
//     that is not a report (engine warnings, prints) is forwarded
type EngineProcess struct {
	// Cmd is the underlying exec.Cmd for the engine process.
	Cmd *exec.Cmd

	// Stdin is the write end of the worker's protocol stream.
	Stdin io.WriteCloser

	// Stdout is the read end of the worker's protocol stream.
	Stdout io.ReadCloser

	// StatusChan receives status reports (e.g., "ready", "exit") from the worker.
	StatusChan chan map[string]interface{}

	// ErrorChan receives engine errors reported outside the call path.
	ErrorChan chan *EngineError

	workerDir   string
	cleanupOnce sync.Once
}

// mEscape escapes a string for inclusion in single-quoted M code.
func mEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// startProcess launches the engine with the embedded worker script.
// The returned process has the worker running but not yet confirmed ready;
// callers wait for the "ready" status on StatusChan.
func (e *Engine) startProcess(dir string, env map[string]string, stderr io.Writer) (*EngineProcess, error) {
	workerDir, err := os.MkdirTemp("", "matbridge-worker-")
	if err != nil {
		return nil, fmt.Errorf("error creating worker directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workerDir, "worker.m"), []byte(workerScript), 0644); err != nil {
		os.RemoveAll(workerDir)
		return nil, fmt.Errorf("error writing worker script: %w", err)
	}

	boot := fmt.Sprintf("addpath('%s'); worker", mEscape(workerDir))
	cmd := exec.Command(e.ExePath, e.launchArgs(boot)...)
	if dir != "" {
		cmd.Dir = dir
	}

	cmd.Env = os.Environ()
	for key, value := range env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		os.RemoveAll(workerDir)
		return nil, err
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(workerDir)
		return nil, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(workerDir)
		return nil, err
	}

	if stderr == nil {
		stderr = os.Stderr
	}

	schan := make(chan map[string]interface{}, 4)
	echan := make(chan *EngineError, 4)
	go func() {
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			line := scanner.Text()
			if report, ok := parseWorkerReport(line); ok {
				switch report["type"] {
				case "status":
					schan <- report
				case "error":
					if engErr, err := NewEngineErrorFromJSON([]byte(line)); err == nil {
						echan <- engErr
					}
				}
				continue
			}
			fmt.Fprintln(stderr, line)
		}
	}()

	if err := cmd.Start(); err != nil {
		os.RemoveAll(workerDir)
		return nil, err
	}

	ep := &EngineProcess{
		Cmd:        cmd,
		Stdin:      stdinPipe,
		Stdout:     stdoutPipe,
		StatusChan: schan,
		ErrorChan:  echan,
		workerDir:  workerDir,
	}

	setupSignalHandler(ep)

	return ep, nil
}

// parseWorkerReport decides whether a stderr line is a worker report.
// Reports are single-line JSON objects with a "type" field; everything else
// is engine output.
func parseWorkerReport(line string) (map[string]interface{}, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var report map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &report); err != nil {
		return nil, false
	}
	if _, ok := report["type"].(string); !ok {
		return nil, false
	}
	return report, true
}

// Wait blocks until the engine process exits and cleans up the worker
// directory. Returns an error if the process was killed or exited with a
// non-zero status.
func (ep *EngineProcess) Wait() error {
	defer ep.cleanup()
	err := ep.Cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if exitErr.ExitCode() == -1 {
				// The child process was killed
				return errors.New("engine process was killed")
			}
		}
		return err
	}
	return nil
}

// Terminate gracefully stops the engine by sending SIGTERM. If the process
// doesn't exit within 5 seconds, it is forcefully killed. Returns nil if the
// process wasn't running or has already finished.
func (ep *EngineProcess) Terminate() error {
	defer ep.cleanup()
	if ep.Cmd.Process == nil {
		return nil // Process hasn't started or has already finished
	}

	// Try to terminate gracefully first
	err := terminateProcess(ep.Cmd.Process)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- ep.Cmd.Wait()
	}()

	select {
	case <-time.After(5 * time.Second):
		// Force kill if it doesn't exit within 5 seconds
		err = ep.Cmd.Process.Kill()
		if err != nil {
			return err
		}
		<-done // Wait for the process to be killed
	case err = <-done:
		// Process exited before timeout
	}

	return err
}

func (ep *EngineProcess) cleanup() {
	ep.cleanupOnce.Do(func() {
		if ep.workerDir != "" {
			os.RemoveAll(ep.workerDir)
		}
	})
}

func setupSignalHandler(ep *EngineProcess) {
	signalChan := make(chan os.Signal, 1)
	setSignalsForChannel(signalChan)

	go func() {
		<-signalChan
		// Terminate the child process when a signal is received
		ep.Terminate()
	}()
}

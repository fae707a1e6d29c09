package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/richinsley/matbridge"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

type rootFlags struct {
	EnginePath string
	Dir        string
	Timeout    time.Duration
	Debug      bool
	LogJSON    bool
}

// Run runs the main application.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	app := kingpin.New("matbridge", "Run MATLAB/Octave engine functions from the command line.")
	app.DefaultEnvars()

	flags := &rootFlags{}
	app.Flag("engine", "Path to the engine executable (default: discover on PATH).").StringVar(&flags.EnginePath)
	app.Flag("dir", "Working directory for the engine (placed on its search path).").StringVar(&flags.Dir)
	app.Flag("timeout", "Per-call timeout (0 waits indefinitely).").Default("0").DurationVar(&flags.Timeout)
	app.Flag("debug", "Enable debug logging.").BoolVar(&flags.Debug)
	app.Flag("log-json", "Log in JSON format.").BoolVar(&flags.LogJSON)

	evalCmd := app.Command("eval", "Evaluate engine code and print its output.")
	evalCode := evalCmd.Arg("code", "Engine code to evaluate.").Required().String()

	callCmd := app.Command("call", "Invoke a named engine function and print its results as JSON.")
	callFn := callCmd.Arg("function", "Function name.").Required().String()
	callArgs := callCmd.Arg("args", "Positional arguments (numbers are passed as doubles, everything else as char).").Strings()
	callNargout := callCmd.Flag("nargout", "Number of output values.").Default("1").Int()

	versionCmd := app.Command("version", "Print matbridge and engine version information.")

	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	logger := getLogger(flags, stderr)

	// The version command only needs discovery, not a session.
	if cmdName == versionCmd.FullCommand() {
		return printVersion(flags, stdout)
	}

	sess, err := newSession(flags, logger, stderr)
	if err != nil {
		return err
	}
	defer sess.Close()

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				select {
				case <-ctx.Done():
					return nil
				default:
				}

				switch cmdName {
				case evalCmd.FullCommand():
					out, err := sess.EvalTimeout(flags.Timeout, *evalCode)
					if err != nil {
						return fmt.Errorf("eval failed: %w", err)
					}
					fmt.Fprint(stdout, out)
					return nil
				case callCmd.FullCommand():
					fnArgs := parseCallArgs(*callArgs)
					results, err := sess.FevalTimeout(flags.Timeout, *callFn, *callNargout, fnArgs...)
					if err != nil {
						return fmt.Errorf("%q call failed: %w", *callFn, err)
					}
					return printJSON(stdout, results)
				}
				return fmt.Errorf("unknown command: %s", cmdName)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

func newSession(flags *rootFlags, logger logrus.FieldLogger, stderr io.Writer) (*matbridge.Session, error) {
	cfg := matbridge.SessionConfig{
		Dir:    flags.Dir,
		Logger: logger,
		Stderr: stderr,
	}
	if flags.EnginePath != "" {
		eng, err := matbridge.NewEngineFromExecutable(flags.EnginePath)
		if err != nil {
			return nil, err
		}
		cfg.Engine = eng
	}
	return matbridge.NewSession(cfg)
}

// parseCallArgs converts CLI argument strings: values parsing as floats are
// passed as doubles, everything else as char arrays.
func parseCallArgs(raw []string) []interface{} {
	out := make([]interface{}, len(raw))
	for i, s := range raw {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			out[i] = f
		} else {
			out[i] = s
		}
	}
	return out
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding results: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printVersion(flags *rootFlags, stdout io.Writer) error {
	fmt.Fprintf(stdout, "matbridge %s\n", Version)

	var eng *matbridge.Engine
	var err error
	if flags.EnginePath != "" {
		eng, err = matbridge.NewEngineFromExecutable(flags.EnginePath)
	} else {
		eng, err = matbridge.NewEngineFromSystem()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "engine: %s (%s)\n", eng.ExePath, eng.Kind)
	if eng.Version.Major > 0 {
		fmt.Fprintf(stdout, "engine version: %s\n", eng.Version.String())
	}
	return nil
}

// getLogger returns the application logger.
func getLogger(flags *rootFlags, stderr io.Writer) logrus.FieldLogger {
	logrusLog := logrus.New()
	logrusLog.Out = stderr // Logs go to stderr so they can split from printed results.

	if flags.Debug {
		logrusLog.SetLevel(logrus.DebugLevel)
	}

	if flags.LogJSON {
		logrusLog.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrusLog.SetFormatter(&logrus.TextFormatter{})
	}

	return logrus.NewEntry(logrusLog).WithField("version", Version)
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

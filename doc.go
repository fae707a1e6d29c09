// Package matbridge drives MATLAB-compatible numerical engines (MATLAB and
// GNU Octave) from Go without requiring any engine-side installation beyond
// the engine itself.
//
// Matbridge launches the engine headless with an embedded worker script and
// communicates over a framed stdio protocol. Named engine functions are
// invoked with positional arguments and return structured results (maps of
// field names to scalars, vectors, and nested maps).
//
// # Engine Discovery
//
// An Engine describes an installed MATLAB or Octave executable:
//
//	// Find MATLAB or Octave on PATH
//	eng, err := matbridge.NewEngineFromSystem()
//
//	// Use a specific installation
//	eng, err := matbridge.NewEngineFromExecutable("/usr/bin/octave-cli")
//
// # Sessions
//
// A Session is a running engine process speaking the worker protocol:
//
//	sess, err := matbridge.NewSession(matbridge.SessionConfig{Engine: eng})
//	defer sess.Close()
//
//	results, err := sess.Feval("svd", 1, matbridge.NewMatrix([][]float64{{1, 2}, {3, 4}}))
//	out, err := sess.Eval("disp(pi)")
//
// The session is launched in a configurable working directory, which places
// that directory on the engine's function search path:
//
//	sess, err := matbridge.NewSession(matbridge.SessionConfig{
//	    Engine: eng,
//	    Dir:    "/path/to/toolbox",
//	})
//
// # Lazy Engines
//
// LazyEngine defers the (expensive) session start until the first call and
// forwards every call to the underlying session afterwards. Close is
// idempotent and safe when the session was never started:
//
//	lazy := matbridge.NewLazyEngine(matbridge.SessionConfig{})
//	defer lazy.Close()
//	results, err := lazy.Feval("version", 1) // engine starts here
//
// # Argument Conversion
//
// Go values convert to engine values automatically: numeric scalars become
// doubles, strings become char arrays, []float64 becomes a column vector,
// [][]float64 a double matrix and [][]bool a logical matrix. Engines reject
// a bare empty array where a matrix is expected, so optional matrix
// arguments use the Empty sentinel, which marshals to the engine's 0x0
// double matrix:
//
//	results, err := sess.Feval("glmnet", 1, x, y, "gaussian", matbridge.Empty())
//
// # Worked Example: glmnet
//
// The package wraps the glmnet regularized-regression toolbox behind a
// package-level lazily-started engine:
//
//	fit, err := matbridge.Glmnet(x, y, "binomial", nil)
//	fmt.Println(fit.Lambda)
//
// # Transcripts
//
// Sessions can record their request/response frames to a MessagePack
// transcript and replay it later, so code built on matbridge can be tested
// without an engine installation. See Recorder and ReplayTransport.
package matbridge

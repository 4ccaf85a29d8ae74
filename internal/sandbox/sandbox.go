// Package sandbox defines the client contract for remote code execution
// services and provides the canonical HTTP-based jobe client.
//
// A sandbox call has two orthogonal failure layers. ErrorKind describes the
// call itself: anything other than ErrOK means the request failed (auth,
// overload, transport) and the rest of the RunResult is meaningless.
// ResultKind describes what happened to the submitted program when the call
// succeeded. Ordinary execution failures such as compile errors and timeouts
// are results, never Go errors.
package sandbox

import (
	"context"
	"fmt"
)

// ErrorKind classifies failures of the sandbox call itself.
type ErrorKind int

const (
	ErrOK ErrorKind = iota
	ErrAuth
	ErrRateLimited
	ErrBadParameter
	ErrUnknownServer
	ErrServerOverload
	ErrUnsupportedLanguage
)

func (e ErrorKind) String() string {
	switch e {
	case ErrOK:
		return "OK"
	case ErrAuth:
		return "access denied by sandbox server"
	case ErrRateLimited:
		return "submission rate limit exceeded"
	case ErrBadParameter:
		return "bad parameter in sandbox request"
	case ErrUnknownServer:
		return "unexpected response from sandbox server"
	case ErrServerOverload:
		return "sandbox server overload"
	case ErrUnsupportedLanguage:
		return "language not supported by sandbox server"
	}
	return fmt.Sprintf("sandbox error %d", int(e))
}

// ResultKind classifies the outcome of a successfully submitted run.
// The numeric values follow the jobe wire protocol.
type ResultKind int

const (
	ResultNoRun               ResultKind = 0
	ResultCompileError        ResultKind = 11
	ResultRuntimeError        ResultKind = 12
	ResultTimeLimit           ResultKind = 13
	ResultSuccess             ResultKind = 15
	ResultMemoryLimit         ResultKind = 17
	ResultIllegalSyscall      ResultKind = 19
	ResultInternalError       ResultKind = 20
	ResultServerOverload      ResultKind = 21
	ResultOutputLimit         ResultKind = 30
	ResultAbnormalTermination ResultKind = 31
)

func (r ResultKind) String() string {
	switch r {
	case ResultNoRun:
		return "No run"
	case ResultCompileError:
		return "Compilation error"
	case ResultRuntimeError:
		return "Runtime error"
	case ResultTimeLimit:
		return "Time limit exceeded"
	case ResultSuccess:
		return "OK"
	case ResultMemoryLimit:
		return "Memory limit exceeded"
	case ResultIllegalSyscall:
		return "Illegal function call"
	case ResultInternalError:
		return "Internal sandbox error"
	case ResultServerOverload:
		return "Sandbox server overload"
	case ResultOutputLimit:
		return "Output limit exceeded"
	case ResultAbnormalTermination:
		return "Abnormal termination"
	}
	return fmt.Sprintf("result %d", int(r))
}

// RunResult is the outcome of one Execute call.
type RunResult struct {
	Error     ErrorKind
	ErrorInfo string // extra transport detail, only meaningful when Error != ErrOK

	Result      ResultKind
	Stdout      string
	Stderr      string
	CompileInfo string
	Signal      int
}

// ErrorString builds the human readable message for a failed call.
func (r *RunResult) ErrorString() string {
	msg := r.Error.String()
	if r.ErrorInfo != "" {
		msg += ": " + r.ErrorInfo
	}
	return msg
}

// Params are per-run resource limits and extras. A nil Params means
// sandbox defaults.
type Params struct {
	CPUTimeSecs    int
	MemoryLimitMB  int
	SourceFilename string
	// Extra is passed through to the service's run parameters verbatim.
	Extra map[string]any
}

// Sandbox is the client contract for a remote execution service. Execute
// never returns a Go error for ordinary execution failures; those are
// encoded in the RunResult.
type Sandbox interface {
	// Execute compiles and runs sourceText with the given stdin and support
	// files. Stdin gains a trailing newline if non-empty and missing one.
	Execute(ctx context.Context, sourceText, language, stdin string, files map[string][]byte, params *Params) *RunResult

	// Languages reports the language identifiers the service supports.
	Languages(ctx context.Context) ([]string, error)

	// Close releases any per-session resource. Safe to call more than once.
	Close()
}

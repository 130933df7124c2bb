package exitcode

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// FindingsThreshold indicates findings at or above the --fail-on severity
	FindingsThreshold = 3

	// InvalidPipeline indicates the pipeline could not be parsed or is structurally broken
	InvalidPipeline = 4

	// SignatureInvalid indicates a report signature did not verify
	SignatureInvalid = 5

	// Interrupted indicates the run was cancelled by SIGINT or SIGTERM
	Interrupted = 130
)

// ExitError carries an explicit exit code through cobra's error return.
// Commands use it when the outcome is not a failure of the tool itself
// (a lint verdict, a failed verification, a severity gate).
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// WithCode returns an ExitError with the given code and message
func WithCode(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch code := errors.CodeOf(err); {
	case strings.HasPrefix(string(code), "PARSE-"), strings.HasPrefix(string(code), "DAG-"):
		return InvalidPipeline
	case strings.HasPrefix(string(code), "SIGN-"):
		return SignatureInvalid
	case strings.HasPrefix(string(code), "CONFIG-"):
		return UsageError
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts") && strings.Contains(errMsg, "arg(s)") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or configuration)"
	case FindingsThreshold:
		return "Findings at or above the failure threshold"
	case InvalidPipeline:
		return "Pipeline could not be parsed or has cyclic dependencies"
	case SignatureInvalid:
		return "Signature missing, malformed or invalid"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}

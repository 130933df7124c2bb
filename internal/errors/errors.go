package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Parse errors (PARSE-001 to PARSE-099)
	ErrCodeParseUnknownProvider ErrorCode = "PARSE-001"
	ErrCodeParseInvalidYAML     ErrorCode = "PARSE-002"
	ErrCodeParseInvalidPipeline ErrorCode = "PARSE-003"

	// DAG errors (DAG-001 to DAG-099)
	ErrCodeDAGCycle             ErrorCode = "DAG-001"
	ErrCodeDAGUnknownDependency ErrorCode = "DAG-002"
	ErrCodeDAGDuplicateJob      ErrorCode = "DAG-003"
	ErrCodeDAGSelfLoop          ErrorCode = "DAG-004"

	// Analysis errors (ANALYSIS-001 to ANALYSIS-099)
	ErrCodeAnalysisFailed ErrorCode = "ANALYSIS-001"

	// Signing errors (SIGN-001 to SIGN-099)
	ErrCodeSignMalformedKey       ErrorCode = "SIGN-001"
	ErrCodeSignMalformedSignature ErrorCode = "SIGN-002"
	ErrCodeSignUnsupportedKey     ErrorCode = "SIGN-003"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid     ErrorCode = "CONFIG-001"
	ErrCodeConfigSizingRules ErrorCode = "CONFIG-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
)

// PipescopeError represents an enhanced error with code, suggestions, and documentation
type PipescopeError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *PipescopeError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			fmt.Fprintf(&b, "\n  • %s", suggestion)
		}
	}

	if e.DocsURL != "" {
		fmt.Fprintf(&b, "\n\nDocumentation: %s", e.DocsURL)
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *PipescopeError) Unwrap() error {
	return e.Cause
}

// New creates a new PipescopeError
func New(code ErrorCode, message string) *PipescopeError {
	return &PipescopeError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new PipescopeError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *PipescopeError {
	return &PipescopeError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *PipescopeError) WithSuggestion(suggestion string) *PipescopeError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *PipescopeError) WithSuggestions(suggestions ...string) *PipescopeError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *PipescopeError) WithDocs(url string) *PipescopeError {
	e.DocsURL = url
	return e
}

// CodeOf returns the code of the first PipescopeError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var pe *PipescopeError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var pe *PipescopeError
		if !stderrors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Cause
	}
	return false
}

const docsBase = "https://github.com/felixgeelhaar/pipescope"

// Common error constructors for frequently used errors

// NewCycleError creates a cyclic dependency error listing the jobs involved
func NewCycleError(jobs []string) *PipescopeError {
	return New(ErrCodeDAGCycle, fmt.Sprintf("cyclic job dependencies: %s", strings.Join(jobs, ", "))).
		WithSuggestion("Check the needs/depends_on/requires declarations of the listed jobs").
		WithSuggestion("Run 'pipescope parse <file>' to inspect the dependency edges").
		WithDocs(docsBase + "#pipeline-graph")
}

// NewUnknownDependencyError creates an error for an edge to a job that does not exist
func NewUnknownDependencyError(job, dependency string) *PipescopeError {
	return New(ErrCodeDAGUnknownDependency, fmt.Sprintf("job %q depends on unknown job %q", job, dependency)).
		WithSuggestion("Check the spelling of the dependency").
		WithSuggestion("Hidden or template jobs cannot be depended on")
}

// NewUnknownProviderError creates an error for a file whose CI provider cannot be detected
func NewUnknownProviderError(path string) *PipescopeError {
	return New(ErrCodeParseUnknownProvider, fmt.Sprintf("cannot detect CI provider for %s", path)).
		WithSuggestion("Pass --provider github-actions|gitlab-ci|circleci|buildkite").
		WithSuggestion("Use the conventional location (.github/workflows, .gitlab-ci.yml, .circleci/config.yml, .buildkite/pipeline.yml)").
		WithDocs(docsBase + "#providers")
}

// NewInvalidPipelineError creates an error for a pipeline that parses as YAML but not as a pipeline
func NewInvalidPipelineError(provider, details string) *PipescopeError {
	return New(ErrCodeParseInvalidPipeline, fmt.Sprintf("invalid %s pipeline: %s", provider, details)).
		WithSuggestion("Run 'pipescope lint <file>' for a detailed list of problems")
}

// NewMalformedKeyError creates an error for key material with wrong encoding or length
func NewMalformedKeyError(kind string, details string) *PipescopeError {
	return New(ErrCodeSignMalformedKey, fmt.Sprintf("malformed %s key: %s", kind, details)).
		WithSuggestion("Keys are hex encoded, 32 bytes (64 hex characters)").
		WithSuggestion("Run 'pipescope keygen' to create a fresh key pair")
}

// NewMalformedSignatureError creates an error for a signature with wrong encoding or length
func NewMalformedSignatureError(details string) *PipescopeError {
	return New(ErrCodeSignMalformedSignature, fmt.Sprintf("malformed signature: %s", details)).
		WithSuggestion("Signatures are hex encoded, 64 bytes (128 hex characters)")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *PipescopeError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *PipescopeError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}

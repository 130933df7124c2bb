package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeDAGCycle, "test error message")

	if err.Code != ErrCodeDAGCycle {
		t.Errorf("expected code %s, got %s", ErrCodeDAGCycle, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeFileReadFailed, "failed to read file", cause)

	if err.Code != ErrCodeFileReadFailed {
		t.Errorf("expected code %s, got %s", ErrCodeFileReadFailed, err.Code)
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *PipescopeError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeParseInvalidYAML, "bad yaml"),
			wantCode: "PARSE-002",
			wantMsg:  "bad yaml",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeFileReadFailed, "read failed", fmt.Errorf("permission denied")),
			wantCode: "IO-002",
			wantMsg:  "permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestSuggestionsAndDocs(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "bad config").
		WithSuggestion("Check field 'analysis'").
		WithSuggestions("Check field 'cost'", "Check field 'sizing'").
		WithDocs("https://example.com/docs")

	if len(err.Suggestions) != 3 {
		t.Errorf("expected 3 suggestions, got %d", len(err.Suggestions))
	}

	errStr := err.Error()
	for _, want := range []string{"Suggestions:", "Check field 'cost'", "Documentation:", "https://example.com/docs"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error string should contain %q, got: %s", want, errStr)
		}
	}
}

func TestNewCycleError(t *testing.T) {
	err := NewCycleError([]string{"build", "test"})

	if err.Code != ErrCodeDAGCycle {
		t.Errorf("expected code %s, got %s", ErrCodeDAGCycle, err.Code)
	}
	if !strings.Contains(err.Message, "build, test") {
		t.Errorf("message should list the jobs, got %s", err.Message)
	}
	if err.DocsURL == "" {
		t.Errorf("expected docs URL to be set")
	}
}

func TestNewMalformedKeyError(t *testing.T) {
	err := NewMalformedKeyError("public", "expected 32 bytes, got 3")

	if err.Code != ErrCodeSignMalformedKey {
		t.Errorf("expected code %s, got %s", ErrCodeSignMalformedKey, err.Code)
	}
	if !strings.Contains(err.Error(), "pipescope keygen") {
		t.Errorf("suggestions should mention keygen")
	}
}

func TestCodeOfAndHasCode(t *testing.T) {
	inner := NewCycleError([]string{"a", "b"})
	outer := Wrap(ErrCodeAnalysisFailed, "analysis failed", inner)
	wrapped := fmt.Errorf("cli: %w", outer)

	if got := CodeOf(wrapped); got != ErrCodeAnalysisFailed {
		t.Errorf("CodeOf = %s, want %s", got, ErrCodeAnalysisFailed)
	}
	if !HasCode(wrapped, ErrCodeDAGCycle) {
		t.Errorf("HasCode should find the nested cycle code")
	}
	if HasCode(wrapped, ErrCodeSignMalformedKey) {
		t.Errorf("HasCode should not report an absent code")
	}
	if CodeOf(fmt.Errorf("plain")) != "" {
		t.Errorf("CodeOf on a plain error should be empty")
	}
}

func TestNewFileUnmarshalError(t *testing.T) {
	cause := fmt.Errorf("invalid YAML syntax at line 5")
	err := NewFileUnmarshalError("/path/to/ci.yml", "YAML", cause)

	if err.Code != ErrCodeFileUnmarshal {
		t.Errorf("expected code %s, got %s", ErrCodeFileUnmarshal, err.Code)
	}
	if errors.Unwrap(err) != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !strings.Contains(err.Message, "/path/to/ci.yml") {
		t.Errorf("error message should contain file path")
	}
}

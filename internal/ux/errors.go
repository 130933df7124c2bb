package ux

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"

	"github.com/felixgeelhaar/pipescope/internal/errors"
)

// hinted is an uncoded error with a recovery hint appended to its message
type hinted struct {
	err  error
	hint string
}

func (e *hinted) Error() string {
	if e.hint == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%v\n\nSuggestion: %s", e.err, e.hint)
}

func (e *hinted) Unwrap() error { return e.err }

// WithHint attaches hint to err. A nil err stays nil.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return &hinted{err: err, hint: hint}
}

var hints = []struct {
	match func(error) bool
	hint  string
}{
	{
		match: func(err error) bool { return stderrors.Is(err, syscall.EISDIR) },
		hint:  "Pass a pipeline file, or run the command without arguments to discover pipelines in the current directory",
	},
	{
		match: func(err error) bool { return stderrors.Is(err, fs.ErrPermission) },
		hint:  "Check that the pipeline, report and key files are readable by the current user",
	},
	{
		match: func(err error) bool { return strings.Contains(err.Error(), "database is locked") },
		hint:  "Another pipescope process is writing the history database; retry when it finishes",
	},
	{
		match: func(err error) bool {
			return stderrors.Is(err, syscall.EMFILE) || strings.Contains(err.Error(), "inotify")
		},
		hint: "Raise the file watch limit (fs.inotify.max_user_watches) or watch fewer files",
	},
}

// EnhanceError adds a hint to uncoded errors whose cause is recognisable.
// Coded errors already carry their own suggestions and are returned as is.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}
	var pe *errors.PipescopeError
	if stderrors.As(err, &pe) {
		return err
	}
	for _, h := range hints {
		if h.match(err) {
			return WithHint(err, h.hint)
		}
	}
	return err
}

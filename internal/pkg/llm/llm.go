package llm

import (
	"context"
	"errors"
)

// ErrUnparseableOutput is returned when the model output is neither valid
// verdict JSON nor matches any heuristic keyword.
var ErrUnparseableOutput = errors.New("llm: unparseable classifier output")

// Completer sends a single prompt to a model and returns its raw text output.
type Completer interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Name identifies the backend in logs.
	Name() string
}

// Verdict is a safety verdict produced by the classifier.
type Verdict struct {
	IsSafe       bool
	Reason       string
	Categories   []string
	BlockedWords []string
	Confidence   float64
	// Heuristic is set when the verdict came from the keyword scan of
	// output that could not be parsed as JSON.
	Heuristic bool
}

package llm

import (
	"context"
	"errors"

	"github.com/go-kratos/kratos/v2/log"
)

// Classifier asks an LLM backend for a safety verdict on a prompt.
type Classifier struct {
	completer Completer
	breaker   *Breaker
	log       *log.Helper
}

// NewClassifier creates a Classifier. breaker may be nil.
func NewClassifier(completer Completer, breaker *Breaker, logger log.Logger) *Classifier {
	return &Classifier{
		completer: completer,
		breaker:   breaker,
		log:       log.NewHelper(log.With(logger, "module", "llm/classifier")),
	}
}

// Name returns the backend name.
func (c *Classifier) Name() string {
	return c.completer.Name()
}

// Classify returns the verdict for text. Transport failures, timeouts and an
// open breaker are returned as errors; output that is not valid JSON goes
// through the keyword heuristic before ErrUnparseableOutput is returned.
func (c *Classifier) Classify(ctx context.Context, text string) (*Verdict, error) {
	var raw string
	err := c.breaker.Execute(func() error {
		var err error
		raw, err = c.completer.Generate(ctx, BuildPrompt(text))
		return err
	})
	if err != nil {
		return nil, err
	}

	verdict, err := ParseVerdict(raw)
	if err == nil {
		return verdict, nil
	}
	c.log.Warnf("%s returned malformed verdict, trying keyword heuristic: %v", c.completer.Name(), err)

	verdict, err = HeuristicVerdict(raw)
	if errors.Is(err, ErrUnparseableOutput) {
		c.log.Warnf("%s output matched no heuristic keyword", c.completer.Name())
	}
	return verdict, err
}

package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"promptguard/internal/biz"
	"promptguard/internal/conf"
	"promptguard/internal/pkg/llm"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
	pingTimeout            = 5 * time.Second
)

// classifierAdapter adapts llm.Classifier to biz.Classifier.
type classifierAdapter struct {
	classifier *llm.Classifier
}

func (a *classifierAdapter) Classify(ctx context.Context, text string) (*biz.ClassifierVerdict, error) {
	v, err := a.classifier.Classify(ctx, text)
	if err != nil {
		return nil, err
	}
	return &biz.ClassifierVerdict{
		IsSafe:       v.IsSafe,
		Reason:       v.Reason,
		Categories:   v.Categories,
		BlockedWords: v.BlockedWords,
		Confidence:   v.Confidence,
	}, nil
}

// pinger is implemented by backends with a cheap reachability check.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewClassifier builds the configured LLM classifier. It returns a nil
// biz.Classifier when no provider is configured or the provider lacks
// credentials, so unseen prompts fail open instead of blocking startup.
func NewClassifier(c *conf.Classifier, logger log.Logger) (biz.Classifier, error) {
	helper := log.NewHelper(log.With(logger, "module", "data/classifier"))
	if c == nil || c.Provider == "" {
		helper.Warn("no classifier provider configured, unseen prompts will fail open")
		return nil, nil
	}
	if strings.EqualFold(c.Provider, "gemini") && (c.Gemini == nil || c.Gemini.APIKey == "") {
		helper.Warn("gemini classifier has no API key, unseen prompts will fail open")
		return nil, nil
	}

	completer, err := newCompleter(c)
	if err != nil {
		return nil, err
	}
	if p, ok := completer.(pinger); ok {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		if err := p.Ping(ctx); err != nil {
			helper.Warnf("%s classifier is unreachable, requests will fail open until it recovers: %v", completer.Name(), err)
		}
		cancel()
	}

	maxFailures := uint32(defaultBreakerFailures)
	openTimeout := defaultBreakerTimeout
	if b := c.Breaker; b != nil {
		if b.MaxFailures > 0 {
			maxFailures = b.MaxFailures
		}
		openTimeout = b.OpenTimeout.Or(openTimeout)
	}
	breaker := llm.NewBreaker(completer.Name(), openTimeout, maxFailures)

	helper.Infof("using %s classifier", completer.Name())
	return &classifierAdapter{classifier: llm.NewClassifier(completer, breaker, logger)}, nil
}

func newCompleter(c *conf.Classifier) (llm.Completer, error) {
	switch strings.ToLower(c.Provider) {
	case "gemini":
		cfg := llm.GeminiConfig{}
		if c.Gemini != nil {
			cfg.APIKey = c.Gemini.APIKey
			cfg.Model = c.Gemini.Model
		}
		return llm.NewGeminiClient(context.Background(), cfg)
	case "ollama":
		cfg := llm.DefaultOllamaConfig()
		cfg.Timeout = c.Timeout.Or(cfg.Timeout)
		if c.Ollama != nil {
			if c.Ollama.BaseURL != "" {
				cfg.BaseURL = c.Ollama.BaseURL
			}
			if c.Ollama.Model != "" {
				cfg.Model = c.Ollama.Model
			}
		}
		return llm.NewOllamaClient(cfg), nil
	case "vllm":
		cfg := llm.DefaultVLLMConfig()
		cfg.Timeout = c.Timeout.Or(cfg.Timeout)
		if c.VLLM != nil {
			if c.VLLM.BaseURL != "" {
				cfg.BaseURL = c.VLLM.BaseURL
			}
			if c.VLLM.Model != "" {
				cfg.Model = c.VLLM.Model
			}
			cfg.APIKey = c.VLLM.APIKey
		}
		return llm.NewVLLMClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", c.Provider)
	}
}

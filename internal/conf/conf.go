package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bootstrap is the root of configs/config.yaml.
type Bootstrap struct {
	Server     *Server     `json:"server"`
	Data       *Data       `json:"data"`
	BlockCache *BlockCache `json:"block_cache"`
	Classifier *Classifier `json:"classifier"`
}

type Server struct {
	HTTP *Server_HTTP `json:"http"`
}

type Server_HTTP struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
}

type Data struct {
	Redis *Data_Redis `json:"redis"`
}

type Data_Redis struct {
	Network      string   `json:"network"`
	Addr         string   `json:"addr"`
	Password     string   `json:"password"`
	DB           int      `json:"db"`
	DialTimeout  Duration `json:"dial_timeout"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

// BlockCache tunes the moderation block-cache. Zero values fall back to the
// defaults in biz.
type BlockCache struct {
	KeyPrefix         string   `json:"key_prefix"`
	WordTTL           Duration `json:"word_ttl"`
	BlockedPromptTTL  Duration `json:"blocked_prompt_ttl"`
	SafePromptTTL     Duration `json:"safe_prompt_ttl"`
	ClassifyTimeout   Duration `json:"classify_timeout"`
	WriteTimeout      Duration `json:"write_timeout"`
	SeedRetryInterval Duration `json:"seed_retry_interval"`
	SeedOnStartup     bool     `json:"seed_on_startup"`
}

// Classifier selects the LLM backend. An empty provider disables the
// classifier and every unseen prompt fails open.
type Classifier struct {
	Provider string              `json:"provider"` // gemini, ollama, vllm
	Timeout  Duration            `json:"timeout"`
	Breaker  *Classifier_Breaker `json:"breaker"`
	Gemini   *Classifier_Gemini  `json:"gemini"`
	Ollama   *Classifier_Ollama  `json:"ollama"`
	VLLM     *Classifier_VLLM    `json:"vllm"`
}

type Classifier_Breaker struct {
	MaxFailures uint32   `json:"max_failures"`
	OpenTimeout Duration `json:"open_timeout"`
}

type Classifier_Gemini struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

type Classifier_Ollama struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

type Classifier_VLLM struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// Duration reads "30s"-style strings or integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		if value == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
	case nil:
		d.Duration = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Or returns d, or def when d is not positive.
func (d Duration) Or(def time.Duration) time.Duration {
	if d.Duration <= 0 {
		return def
	}
	return d.Duration
}

package env

import (
	"time"

	env11 "github.com/caarlos0/env/v11"
	"github.com/matthewmueller/scrape"
)

// Env holds environment configuration for the scraper and providers
type Env struct {
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	Provider     string `env:"SCRAPE_PROVIDER"`
	Model        string `env:"SCRAPE_MODEL"`
	Port         int    `env:"PORT" envDefault:"3001"`

	// Scrape limits. The timeout is in seconds.
	MaxContentSize int `env:"MAX_CONTENT_SIZE" envDefault:"1048576"`
	RequestTimeout int `env:"REQUEST_TIMEOUT" envDefault:"30"`
	MaxRedirects   int `env:"MAX_REDIRECTS" envDefault:"5"`
	MaxTextChars   int `env:"MAX_TEXT_CHARS" envDefault:"10000"`
}

// Load reads environment variables
func Load() (*Env, error) {
	env := new(Env)
	if err := env11.Parse(env); err != nil {
		return nil, err
	}
	return env, nil
}

// ScrapeConfig maps the environment limits onto a scraper config.
func (e *Env) ScrapeConfig() scrape.Config {
	return scrape.Config{
		MaxContentBytes: e.MaxContentSize,
		Timeout:         time.Duration(e.RequestTimeout) * time.Second,
		MaxRedirects:    e.MaxRedirects,
		MaxTextChars:    e.MaxTextChars,
	}
}

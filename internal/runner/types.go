package runner

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultBaseURL         = "http://localhost:8080"
	DefaultAPIKey          = "your-api-key"
	DefaultConcurrentUsers = 50
	DefaultDurationMinutes = 5
	DefaultRequestTimeout  = 30 * time.Second
	DefaultScript          = "health-check-script.ps1"
	DefaultOutputDir       = "reports"
)

// Config describes one test run. It is not modified once the run starts.
type Config struct {
	BaseURL         string
	APIKey          string
	ConcurrentUsers int
	Duration        time.Duration
	RequestTimeout  time.Duration
	Script          string
	OutputDir       string
	InsecureTLS     bool
}

func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		APIKey:          DefaultAPIKey,
		ConcurrentUsers: DefaultConcurrentUsers,
		Duration:        DefaultDurationMinutes * time.Minute,
		RequestTimeout:  DefaultRequestTimeout,
		Script:          DefaultScript,
		OutputDir:       DefaultOutputDir,
		InsecureTLS:     true,
	}
}

// Validate checks the config against the number of scenarios it will drive.
func (c *Config) Validate(scenarios int) error {
	if c.BaseURL == "" {
		return errors.New("api url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api url %q: scheme must be http or https", c.BaseURL)
	}
	if scenarios <= 0 {
		return errors.New("at least one scenario is required")
	}
	if c.ConcurrentUsers < scenarios {
		return fmt.Errorf("concurrent users must be at least %d (one per scenario), got %d", scenarios, c.ConcurrentUsers)
	}
	if c.Duration <= 0 {
		return errors.New("duration must be greater than 0")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request timeout cannot be negative")
	}
	return nil
}

// BatchSize is the number of requests each scenario fires per batch.
func (c *Config) BatchSize(scenarios int) int {
	if scenarios <= 0 {
		return 0
	}
	return c.ConcurrentUsers / scenarios
}

// DurationSeconds is the configured duration in whole seconds.
func (c *Config) DurationSeconds() int64 {
	return int64(c.Duration / time.Second)
}

// APIURL is the base URL without trailing slashes.
func (c *Config) APIURL() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// Scenario is one traffic pattern driven for the whole run.
type Scenario struct {
	Name   string
	Method string
	Path   string
	// InQuery sends the script payload as query parameters instead of a JSON body.
	InQuery  bool
	Interval time.Duration
}

const (
	ScenarioGet           = "GET API"
	ScenarioPost          = "POST API"
	ScenarioBackgroundJob = "Background Job"
)

// DefaultScenarios returns the webhook GET, webhook POST and job enqueue patterns.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Name: ScenarioGet, Method: http.MethodGet, Path: "/webhook/v1", InQuery: true, Interval: 100 * time.Millisecond},
		{Name: ScenarioPost, Method: http.MethodPost, Path: "/webhook/v1", Interval: 100 * time.Millisecond},
		{Name: ScenarioBackgroundJob, Method: http.MethodPost, Path: "/jobs/v1/enqueue", Interval: 67 * time.Millisecond},
	}
}

// ScriptPayload is the body accepted by the webhook and job endpoints.
type ScriptPayload struct {
	Script string `json:"script"`
	Key    string `json:"key"`
}

// Target builds the URL and optional JSON body for the scenario.
func (s Scenario) Target(cfg *Config) (string, []byte, error) {
	payload := ScriptPayload{Script: cfg.Script, Key: cfg.APIKey}
	target := cfg.APIURL() + s.Path

	if s.InQuery {
		q := url.Values{}
		q.Set("script", payload.Script)
		q.Set("key", payload.Key)
		return target + "?" + q.Encode(), nil, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("encode payload for %s: %w", s.Name, err)
	}
	return target, body, nil
}

// ProgressUpdate is published by a scenario driver after every batch.
type ProgressUpdate struct {
	Scenario string
	Elapsed  time.Duration
	Duration time.Duration
	Success  uint64
	Fail     uint64
	Done     bool
}

// ProgressChan carries one update per finished batch. Drivers never block on it;
// updates are dropped while it is full.
type ProgressChan chan ProgressUpdate

// Package llm defines the model-runner seam between the classification
// pipeline and concrete LLM drivers.
package llm

import (
	"context"
	"time"

	"memento/internal/errors"
	"memento/internal/logging"
)

// Usage is the token accounting a driver may report.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Result is the textual model response plus optional usage.
type Result struct {
	Text  string
	Usage *Usage
}

// EngineInfo describes a configured engine for artifact provenance.
type EngineInfo struct {
	Engine   string `json:"engine"`
	Model    string `json:"model"`
	Endpoint string `json:"endpoint"`
}

// Driver is one concrete model backend. Implementations must not insert
// tokens outside the textual response.
type Driver interface {
	Complete(ctx context.Context, prompt string) (*Result, error)
	Info() EngineInfo
}

// Runner is the abstract request/response contract the classifier depends
// on: bounded timeout per call, bounded retries with an unchanged prompt.
type Runner interface {
	Run(ctx context.Context, engineID, prompt string) (*Result, error)
	GetEngineInfo(engineID string) (EngineInfo, error)
}

const (
	// DefaultCallTimeout bounds a single model call.
	DefaultCallTimeout = 3 * time.Minute
	// DefaultMaxRetries re-runs a failed call with the unchanged prompt.
	DefaultMaxRetries = 2
)

// Registry maps engine ids to drivers and applies the timeout/retry
// semantics of the runner contract.
type Registry struct {
	drivers     map[string]Driver
	callTimeout time.Duration
	retry       errors.RetryConfig
	logger      logging.Logger
}

// NewRegistry creates an empty runner registry with default call bounds.
func NewRegistry() *Registry {
	retry := errors.DefaultRetryConfig()
	retry.MaxAttempts = DefaultMaxRetries
	return &Registry{
		drivers:     make(map[string]Driver),
		callTimeout: DefaultCallTimeout,
		retry:       retry,
		logger:      logging.NewComponentLogger("ModelRunner"),
	}
}

// WithCallTimeout overrides the per-call timeout.
func (r *Registry) WithCallTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.callTimeout = d
	}
	return r
}

// Register adds a driver under an engine id.
func (r *Registry) Register(engineID string, driver Driver) {
	r.drivers[engineID] = driver
}

// GetEngineInfo resolves provenance for an engine id.
func (r *Registry) GetEngineInfo(engineID string) (EngineInfo, error) {
	driver, ok := r.drivers[engineID]
	if !ok {
		return EngineInfo{}, errors.InvalidArgumentf("unknown engine: %s", engineID)
	}
	return driver.Info(), nil
}

// Run executes one prompt against the named engine with the per-call timeout
// and retry policy. The prompt is never altered between attempts.
func (r *Registry) Run(ctx context.Context, engineID, prompt string) (*Result, error) {
	driver, ok := r.drivers[engineID]
	if !ok {
		return nil, errors.InvalidArgumentf("unknown engine: %s", engineID)
	}

	started := time.Now()
	result, err := errors.RetryWithResultAndLog(ctx, r.retry, func(ctx context.Context) (*Result, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
		res, err := driver.Complete(callCtx, prompt)
		if err != nil {
			return nil, errors.Upstreamf(err, "model call to %s failed", engineID)
		}
		return res, nil
	}, r.logger)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Engine %s answered in %v (%d chars)", engineID, time.Since(started), len(result.Text))
	return result, nil
}

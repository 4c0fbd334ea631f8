// Package providers wraps external AI backends behind a uniform generate
// contract with per-provider health tracking, and routes calls across them
// with ordered failover.
package providers

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tbaudier/overseer/internal/config"
)

// Status is the health state of a provider.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"
)

// Provider wraps one AI backend behind a uniform generate contract and a
// local health counter. Health is mutated only by the provider's own
// success/failure recorders, so no cross-provider locking exists.
type Provider struct {
	name    string
	cfg     config.ProviderConfig
	factory ModelFactory

	once    sync.Once
	chat    model.ToolCallingChatModel
	initErr error

	mu                  sync.Mutex
	status              Status
	consecutiveFailures int
}

// NewProvider creates a provider binding. factory may be nil, in which case
// the real SDK drivers are used.
func NewProvider(name string, cfg config.ProviderConfig, factory ModelFactory) *Provider {
	if factory == nil {
		factory = CreateChatModel
	}
	return &Provider{
		name:    name,
		cfg:     cfg,
		factory: factory,
		status:  StatusHealthy,
	}
}

// Name returns the provider's configured name.
func (p *Provider) Name() string { return p.name }

// Config returns the provider's configuration.
func (p *Provider) Config() config.ProviderConfig { return p.cfg }

// DefaultModel returns the provider's default model id.
func (p *Provider) DefaultModel() string { return p.cfg.Model }

// Status returns the current health state.
func (p *Provider) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// ConsecutiveFailures returns the current failure streak.
func (p *Provider) ConsecutiveFailures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consecutiveFailures
}

// Model returns the chat model, initializing it lazily.
func (p *Provider) Model(ctx context.Context) (model.ToolCallingChatModel, error) {
	p.once.Do(func() {
		p.chat, p.initErr = p.factory(ctx, p.name, p.cfg)
	})
	return p.chat, p.initErr
}

// GenerateOptions tunes a single generate call.
type GenerateOptions struct {
	Model       string // concrete model id; empty uses the provider default
	Temperature float32
	MaxTokens   int
}

// GenerateResult is the outcome of one backend call.
type GenerateResult struct {
	Content      string
	TokensInput  int
	TokensOutput int
	Duration     time.Duration
}

// Generate performs one call against the backend. Health recording is the
// caller's responsibility (the router records per-candidate outcomes).
func (p *Provider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	chat, err := p.Model(ctx)
	if err != nil {
		return nil, err
	}

	var callOpts []model.Option
	callOpts = append(callOpts, model.WithTemperature(opts.Temperature))
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, model.WithMaxTokens(opts.MaxTokens))
	}
	if opts.Model != "" {
		callOpts = append(callOpts, model.WithModel(opts.Model))
	}

	start := time.Now()
	msg, err := chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, callOpts...)
	if err != nil {
		return nil, HandleError(err)
	}

	result := &GenerateResult{
		Content:  msg.Content,
		Duration: time.Since(start),
	}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		result.TokensInput = msg.ResponseMeta.Usage.PromptTokens
		result.TokensOutput = msg.ResponseMeta.Usage.CompletionTokens
	}
	return result, nil
}

// RecordSuccess resets the failure streak. Returns true if the provider was
// previously degraded or offline and is now recovered.
func (p *Provider) RecordSuccess() (recovered bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	recovered = p.status != StatusHealthy
	p.status = StatusHealthy
	p.consecutiveFailures = 0
	return recovered
}

// RecordFailure increments the failure streak. The provider degrades on the
// first failure and goes offline once the streak reaches MaxRetries.
// Returns true when this failure tripped the offline transition.
func (p *Provider) RecordFailure() (wentOffline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.consecutiveFailures++

	maxRetries := p.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if p.consecutiveFailures >= maxRetries {
		wentOffline = p.status != StatusOffline
		p.status = StatusOffline
		return wentOffline
	}

	p.status = StatusDegraded
	return false
}

// ResetHealth forces the provider back to healthy with a zero streak.
// Used by the router's self-healing pass.
func (p *Provider) ResetHealth() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusHealthy
	p.consecutiveFailures = 0
}

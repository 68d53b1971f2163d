// Package signing executes an approved multi-message transaction with one
// of two strategies: a hardware device that signs and broadcasts messages
// one at a time, or an in-memory key that signs the whole batch at once.
package signing

import (
	"context"
	"errors"
	"sync"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/logging"
	"github.com/ice-blockchain/ion-chrome-wallet/internal/tonconnect"
)

var (
	ErrSigningTimeout         = errors.New("signing: confirmation wait timed out")
	ErrConfirmationRequired   = errors.New("signing: sequential signing not acknowledged")
	ErrPipelineAlreadyRunning = errors.New("signing: pipeline already running")
)

// ProgressFunc reports a message's status change to the approval UI.
type ProgressFunc func(index int, status Status)

// Strategy drives the signing of an approved payload. Implementations
// mutate only the pipeline's status slice, never the payload.
type Strategy interface {
	// Sequential reports whether messages are signed and broadcast one at
	// a time, requiring the extra user acknowledgement for multi-message
	// payloads.
	Sequential() bool
	run(ctx context.Context, p *Pipeline) (string, error)
}

// Pipeline is the per-approval signing state machine. The input payload is
// immutable; progress lives in the parallel status slice so a failed run
// can be retried from the first unconfirmed message.
type Pipeline struct {
	payload tonconnect.TransactionPayload
	origin  string

	estimator  Estimator
	onProgress ProgressFunc

	mu       sync.Mutex
	state    State
	statuses []Status
	fees     *Fees
	acked    bool
	running  bool
}

// Option configures a pipeline.
type Option func(*Pipeline)

// WithEstimator attaches the fee estimator.
func WithEstimator(e Estimator) Option {
	return func(p *Pipeline) { p.estimator = e }
}

// WithProgress attaches the per-message progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.onProgress = fn }
}

// NewPipeline builds a pipeline for an approved payload. The payload must
// already be validated (non-empty) by the broker.
func NewPipeline(payload tonconnect.TransactionPayload, origin string, opts ...Option) *Pipeline {
	p := &Pipeline{
		payload:  payload,
		origin:   origin,
		state:    StatePending,
		statuses: make([]Status, len(payload.Messages)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle position.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Statuses returns a copy of the per-message progress.
func (p *Pipeline) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Status, len(p.statuses))
	copy(out, p.statuses)
	return out
}

// Fees returns the estimate obtained during the run, or nil when the
// estimator was absent or failed.
func (p *Pipeline) Fees() *Fees {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fees
}

// RequiresAck reports whether strat needs the extra sequential-signing
// acknowledgement for this payload.
func (p *Pipeline) RequiresAck(strat Strategy) bool {
	return strat.Sequential() && len(p.payload.Messages) > 1
}

// AcknowledgeSequential records the user's agreement to sign a
// multi-message payload one transfer at a time.
func (p *Pipeline) AcknowledgeSequential() {
	p.mu.Lock()
	p.acked = true
	p.mu.Unlock()
}

// Run executes the payload with the given strategy and returns the signed
// result payload ("" when unavailable). Already-confirmed messages are
// left untouched by failures, so Run may be called again to retry the
// unconfirmed suffix of the same approved payload.
func (p *Pipeline) Run(ctx context.Context, strat Strategy) (string, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return "", ErrPipelineAlreadyRunning
	}
	p.running = true
	p.state = StateEstimating
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.estimate(ctx)

	if p.RequiresAck(strat) {
		p.mu.Lock()
		acked := p.acked
		if !acked {
			p.state = StateConfirming
		}
		p.mu.Unlock()
		if !acked {
			return "", ErrConfirmationRequired
		}
	}

	p.setState(StateSigning)
	result, err := strat.run(ctx, p)
	if err != nil {
		p.resetUnconfirmed()
		p.setState(StateFailed)
		return "", err
	}
	p.setState(StateCompleted)
	return result, nil
}

func (p *Pipeline) estimate(ctx context.Context) {
	if p.estimator == nil {
		return
	}
	fees, err := p.estimator.Estimate(ctx, p.payload)
	if err != nil {
		// Soft failure: the approving party just sees no fee figure.
		logging.Warn("fee estimation unavailable", "origin", p.origin, "error", err)
		return
	}
	p.mu.Lock()
	p.fees = fees
	p.mu.Unlock()
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) setStatus(i int, s Status) {
	p.mu.Lock()
	p.statuses[i] = s
	fn := p.onProgress
	p.mu.Unlock()
	if fn != nil {
		fn(i, s)
	}
}

func (p *Pipeline) status(i int) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statuses[i]
}

// resetUnconfirmed returns sent-but-unconfirmed messages to not-sent.
// Confirmed messages stay confirmed: the pipeline does not know how to
// safely re-send an already-included message.
func (p *Pipeline) resetUnconfirmed() {
	p.mu.Lock()
	var dirty []int
	for i, s := range p.statuses {
		if s == StatusSent {
			p.statuses[i] = StatusNotSent
			dirty = append(dirty, i)
		}
	}
	fn := p.onProgress
	p.mu.Unlock()
	if fn != nil {
		for _, i := range dirty {
			fn(i, StatusNotSent)
		}
	}
}

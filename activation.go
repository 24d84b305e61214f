package gate

import (
	"context"
	"sync"
)

// ActivationOption configures a single activation.
type ActivationOption func(*Activation)

// WithNavigator delivers redirect outcomes as one Replace call. The navigator
// is invoked while the activation's lock is held and must not call back into
// the activation.
func WithNavigator(n Navigator) ActivationOption {
	return func(a *Activation) { a.navigator = n }
}

// Activation is one evaluation of a guarded route. It moves from
// OutcomeChecking to exactly one terminal outcome.
type Activation struct {
	mu        sync.Mutex
	decision  Decision
	done      chan struct{}
	cancel    context.CancelFunc
	navigator Navigator
	onCancel  func(Decision)
}

func newActivation(opts []ActivationOption) *Activation {
	a := &Activation{
		decision: Decision{Outcome: OutcomeChecking},
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Activation) begin(d Decision, cancel context.CancelFunc, onCancel func(Decision)) {
	a.mu.Lock()
	a.decision = d
	a.cancel = cancel
	a.onCancel = onCancel
	a.mu.Unlock()
}

// settle records the terminal decision, delivers any navigation and runs
// observe before Done is closed. It returns false when the activation already
// settled or was cancelled, in which case d is discarded.
func (a *Activation) settle(d Decision, observe func(Decision)) bool {
	a.mu.Lock()
	if a.decision.Outcome.Terminal() {
		a.mu.Unlock()
		return false
	}
	a.decision = d
	if a.navigator != nil && d.Outcome.Redirect() {
		a.navigator.Replace(d.Location)
	}
	a.mu.Unlock()

	if observe != nil {
		observe(d)
	}
	close(a.done)
	return true
}

// State returns the current decision. While the lookup is outstanding the
// outcome is OutcomeChecking.
func (a *Activation) State() Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.decision
}

// Done is closed once the activation reaches a terminal outcome.
func (a *Activation) Done() <-chan struct{} { return a.done }

// Wait blocks until the activation settles or ctx ends.
func (a *Activation) Wait(ctx context.Context) (Decision, error) {
	select {
	case <-a.done:
		return a.State(), nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

// Cancel tears the activation down. An outstanding lookup is aborted and its
// late result never produces a navigation. Cancel after settlement is a no-op.
func (a *Activation) Cancel() {
	a.mu.Lock()
	if a.decision.Outcome.Terminal() {
		a.mu.Unlock()
		return
	}
	d := Decision{
		Outcome: OutcomeCancelled,
		Role:    a.decision.Role,
		Claims:  a.decision.Claims,
		Err:     NewError(CodeCancelled, nil),
	}
	a.decision = d
	cancel, onCancel := a.cancel, a.onCancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if onCancel != nil {
		onCancel(d)
	}
	close(a.done)
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"studyforge/internal/features"
	"studyforge/internal/logging"
	"studyforge/internal/models"
)

// Phase is the lifecycle position of one caller's use of a feature
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

// sideEffectTimeout bounds each detached history/usage write
const sideEffectTimeout = 30 * time.Second

// ControllerState is what a caller sees of a feature
type ControllerState struct {
	Phase     Phase              `json:"phase"`
	Input     any                `json:"input,omitempty"`
	Result    any                `json:"result,omitempty"`
	Rendered  *features.Rendered `json:"rendered,omitempty"`
	Error     string             `json:"error,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

type callerState struct {
	ControllerState
	epoch uint64
}

// historyAppender and usageTracker are the detached side effects of a
// successful generation
type historyAppender interface {
	Append(ctx context.Context, session *models.Session, featureID string, input, output any) (*models.HistoryRecord, error)
}

type usageTracker interface {
	Track(ctx context.Context, userID, featureID string) error
}

// FeatureController runs the submit lifecycle of one feature. State is kept
// per caller: the user id, or a client key for anonymous use.
type FeatureController struct {
	descriptor *features.Descriptor
	generator  Generator
	history    historyAppender
	usage      usageTracker
	set        *ControllerSet

	mu     sync.Mutex
	states map[string]*callerState
}

// Descriptor returns the feature this controller runs
func (c *FeatureController) Descriptor() *features.Descriptor {
	return c.descriptor
}

// State returns a snapshot of the caller's state
func (c *FeatureController) State(caller string) ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[caller]
	if !ok {
		return ControllerState{Phase: PhaseIdle}
	}
	return st.ControllerState
}

// Submit generates a result for raw input. Blank input and a submission
// while the caller's previous one is still running are rejected without
// touching state. On failure the returned state carries only the fixed
// user-facing message; the returned error carries the cause.
func (c *FeatureController) Submit(ctx context.Context, session *models.Session, caller string, raw json.RawMessage) (ControllerState, error) {
	in, err := c.descriptor.ParseInput(raw)
	if err != nil {
		return c.State(caller), err
	}

	epoch, err := c.begin(caller, in.Value())
	if err != nil {
		return c.State(caller), err
	}

	c.set.inFlight.Add(1)
	defer c.set.inFlight.Add(-1)

	logger := logging.WithFeature(caller, c.descriptor.ID)

	// Anything that does not reach success, a panic included, settles as error
	outcome := ControllerState{Phase: PhaseError, Input: in.Value(), Error: UserFacingGenerationError}
	defer func() { c.settle(caller, epoch, outcome) }()

	prompt, err := c.descriptor.BuildPrompt(in)
	if err != nil {
		logger.Error("failed to build prompt", "error", err)
		outcome.UpdatedAt = time.Now()
		return outcome, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	// The call is allowed to finish even if the caller goes away
	start := time.Now()
	result, err := c.generator.Generate(context.WithoutCancel(ctx), prompt, c.descriptor.Response)
	GetMetrics().RecordGeneration(c.descriptor.ID, time.Since(start).Seconds())
	if err != nil {
		logger.Error("generation failed", "error", err)
		outcome.UpdatedAt = time.Now()
		return outcome, err
	}

	outcome = ControllerState{Phase: PhaseSuccess, Input: in.Value(), Result: result}
	if rendered, err := c.descriptor.Render(result); err != nil {
		logger.Warn("failed to render result", "error", err)
	} else {
		outcome.Rendered = &rendered
	}

	if session.Authenticated() {
		c.detach(ctx, session, in.Value(), result)
	}

	outcome.UpdatedAt = time.Now()
	return outcome, nil
}

// begin moves the caller into submitting and returns the epoch the
// submission belongs to
func (c *FeatureController) begin(caller string, input any) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[caller]
	if !ok {
		st = &callerState{}
		c.states[caller] = st
	}
	if st.Phase == PhaseSubmitting {
		return 0, ErrSubmissionInFlight
	}

	st.ControllerState = ControllerState{
		Phase:     PhaseSubmitting,
		Input:     input,
		UpdatedAt: time.Now(),
	}
	return st.epoch, nil
}

// settle records the outcome unless the caller reset since the submission began
func (c *FeatureController) settle(caller string, epoch uint64, outcome ControllerState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[caller]
	if !ok || st.epoch != epoch {
		logging.WithFeature(caller, c.descriptor.ID).Info("discarding result of a reset submission", "phase", outcome.Phase)
		return
	}
	outcome.UpdatedAt = time.Now()
	st.ControllerState = outcome
}

// Reset returns the caller to idle. A submission still running keeps
// running, but its result is discarded.
func (c *FeatureController) Reset(caller string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[caller]
	if !ok {
		return
	}
	st.epoch++
	st.ControllerState = ControllerState{Phase: PhaseIdle, UpdatedAt: time.Now()}
}

// detach launches the history append and usage increment. Each runs on its
// own, logs its own failure and never affects the other or the result.
func (c *FeatureController) detach(ctx context.Context, session *models.Session, input, output any) {
	base := context.WithoutCancel(ctx)
	sess := *session
	featureID := c.descriptor.ID
	logger := logging.WithFeature(sess.UserID, featureID)

	if c.history != nil {
		c.set.launch(base, func(ctx context.Context) {
			if _, err := c.history.Append(ctx, &sess, featureID, input, output); err != nil {
				logger.Error("failed to save history", "error", err)
				GetMetrics().RecordSideEffectFailure("history")
			}
		})
	}
	if c.usage != nil {
		c.set.launch(base, func(ctx context.Context) {
			if err := c.usage.Track(ctx, sess.UserID, featureID); err != nil {
				logger.Error("failed to track usage", "error", err)
				GetMetrics().RecordSideEffectFailure("usage")
			}
		})
	}
}

// prune drops settled states not touched since cutoff
func (c *FeatureController) prune(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for caller, st := range c.states {
		if st.Phase != PhaseSubmitting && st.UpdatedAt.Before(cutoff) {
			delete(c.states, caller)
			removed++
		}
	}
	return removed
}

// ControllerSet holds one controller per catalog feature and tracks the
// detached tasks they launch
type ControllerSet struct {
	controllers map[string]*FeatureController
	tasks       sync.WaitGroup
	inFlight    atomic.Int64
}

// NewControllerSet builds a controller for every feature in the registry.
// history and usage may be nil, which disables that side effect.
func NewControllerSet(registry *features.Registry, generator Generator, history historyAppender, usage usageTracker) *ControllerSet {
	set := &ControllerSet{controllers: make(map[string]*FeatureController, registry.Len())}
	for _, d := range registry.All() {
		set.controllers[d.ID] = &FeatureController{
			descriptor: d,
			generator:  generator,
			history:    history,
			usage:      usage,
			set:        set,
			states:     make(map[string]*callerState),
		}
	}
	return set
}

// Get returns the controller of a feature
func (s *ControllerSet) Get(featureID string) (*FeatureController, error) {
	c, ok := s.controllers[featureID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, featureID)
	}
	return c, nil
}

// InFlight returns the number of submissions waiting on the generator
func (s *ControllerSet) InFlight() int {
	return int(s.inFlight.Load())
}

func (s *ControllerSet) launch(ctx context.Context, task func(ctx context.Context)) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()
		task(ctx)
	}()
}

// Drain waits up to timeout for detached tasks. It reports whether all of
// them finished.
func (s *ControllerSet) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// PruneIdle forgets caller states idle for longer than maxAge
func (s *ControllerSet) PruneIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, c := range s.controllers {
		removed += c.prune(cutoff)
	}
	return removed
}

// IsRejection reports whether err is a no-op rejection rather than a failure
func IsRejection(err error) bool {
	return errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrSubmissionInFlight) || errors.Is(err, ErrInvalidInput)
}

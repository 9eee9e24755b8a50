package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"studyforge/internal/models"
)

type appendCall struct {
	userID    string
	featureID string
	input     any
	output    any
}

type recordingHistory struct {
	mu    sync.Mutex
	calls []appendCall
	err   error
}

func (h *recordingHistory) Append(ctx context.Context, session *models.Session, featureID string, input, output any) (*models.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, appendCall{session.UserID, featureID, input, output})
	if h.err != nil {
		return nil, h.err
	}
	return &models.HistoryRecord{ID: "h1", FeatureID: featureID, Input: input, Output: output, Timestamp: time.Now()}, nil
}

func (h *recordingHistory) snapshot() []appendCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]appendCall(nil), h.calls...)
}

type recordingUsage struct {
	mu     sync.Mutex
	tracks []string
	err    error
}

func (u *recordingUsage) Track(ctx context.Context, userID, featureID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tracks = append(u.tracks, userID+"/"+featureID)
	return u.err
}

func (u *recordingUsage) snapshot() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.tracks...)
}

func rawText(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

var photosynthesis = map[string]any{
	"topic":       "Photosynthesis",
	"analogy":     "A leaf is a solar-powered kitchen.",
	"explanation": "Sunlight is the stove, water and air are the ingredients.",
}

func TestController_SubmitSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	gen := &fakeGenerator{result: photosynthesis}
	history := &recordingHistory{}
	usage := &recordingUsage{}
	set := NewControllerSet(testRegistry(t), gen, history, usage)

	ctrl, err := set.Get("analogy-generator")
	require.NoError(t, err)

	state, err := ctrl.Submit(context.Background(), verifiedSession("u1"), "u1", rawText("Photosynthesis"))
	require.NoError(t, err)
	require.True(t, set.Drain(5*time.Second))

	assert.Equal(t, PhaseSuccess, state.Phase)
	assert.Empty(t, state.Error)
	if diff := cmp.Diff(photosynthesis, state.Result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, state.Rendered)
	assert.Contains(t, state.Rendered.Markdown, "## Analogy")
	assert.Contains(t, state.Rendered.HTML, "A leaf is a solar-powered kitchen.")

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], `"Photosynthesis"`)

	calls := history.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, appendCall{"u1", "analogy-generator", "Photosynthesis", photosynthesis}, calls[0])
	assert.Equal(t, []string{"u1/analogy-generator"}, usage.snapshot())

	assert.Equal(t, PhaseSuccess, ctrl.State("u1").Phase)
	assert.Equal(t, PhaseIdle, ctrl.State("someone-else").Phase)
	assert.Equal(t, 0, set.InFlight())
}

func TestController_GenerationFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	history := &recordingHistory{}
	usage := &recordingUsage{}
	set := NewControllerSet(testRegistry(t), gen, history, usage)
	ctrl, err := set.Get("analogy-generator")
	require.NoError(t, err)

	state, err := ctrl.Submit(context.Background(), verifiedSession("u1"), "u1", rawText("Photosynthesis"))
	require.Error(t, err)
	require.True(t, set.Drain(5*time.Second))

	assert.Equal(t, PhaseError, state.Phase)
	assert.Equal(t, "Something went wrong. Please try again.", state.Error)
	assert.Nil(t, state.Result)
	assert.NotContains(t, state.Error, "quota")

	assert.Empty(t, history.snapshot())
	assert.Empty(t, usage.snapshot())

	// the caller can submit again right away
	gen.err = nil
	gen.result = photosynthesis
	state, err = ctrl.Submit(context.Background(), verifiedSession("u1"), "u1", rawText("Photosynthesis"))
	require.NoError(t, err)
	require.True(t, set.Drain(5*time.Second))
	assert.Equal(t, PhaseSuccess, state.Phase)
	assert.Empty(t, state.Error)
}

func TestController_RejectsWhileSubmitting(t *testing.T) {
	defer goleak.VerifyNone(t)

	gen := &fakeGenerator{
		result:  photosynthesis,
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	set := NewControllerSet(testRegistry(t), gen, nil, nil)
	ctrl, err := set.Get("analogy-generator")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Submit(context.Background(), nil, "client-1", rawText("Photosynthesis"))
		done <- err
	}()
	<-gen.started

	assert.Equal(t, PhaseSubmitting, ctrl.State("client-1").Phase)
	assert.Equal(t, 1, set.InFlight())

	_, err = ctrl.Submit(context.Background(), nil, "client-1", rawText("Gravity"))
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(gen.gate)
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), gen.calls.Load())
	assert.Equal(t, PhaseSuccess, ctrl.State("client-1").Phase)
	assert.Equal(t, 0, set.InFlight())
}

func TestController_SeparateCallersDoNotBlockEachOther(t *testing.T) {
	defer goleak.VerifyNone(t)

	gen := &fakeGenerator{
		result:  photosynthesis,
		gate:    make(chan struct{}),
		started: make(chan struct{}, 2),
	}
	set := NewControllerSet(testRegistry(t), gen, nil, nil)
	ctrl, err := set.Get("analogy-generator")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, caller := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ctrl.Submit(context.Background(), nil, caller, rawText("Photosynthesis"))
			assert.NoError(t, err)
		}()
	}
	<-gen.started
	<-gen.started
	close(gen.gate)
	wg.Wait()

	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestController_EmptyInputIsNoop(t *testing.T) {
	gen := &fakeGenerator{result: photosynthesis}
	set := NewControllerSet(testRegistry(t), gen, nil, nil)
	ctrl, err := set.Get("analogy-generator")
	require.NoError(t, err)

	for _, raw := range []json.RawMessage{nil, json.RawMessage(`null`), rawText(""), rawText("   ")} {
		state, err := ctrl.Submit(context.Background(), nil, "c", raw)
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Equal(t, PhaseIdle, state.Phase)
	}
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestController_SideEffectsAreIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)

	gen := &fakeGenerator{result: photosynthesis}
	history := &recordingHistory{err: errors.New("history down")}
	usage := &recordingUsage{}
	set := NewControllerSet(testRegistry(t), gen, history, usage)
	ctrl, err := set.Get("analogy-generator")
	require.NoError(t, err)

	state, err := ctrl.Submit(context.Background(), verifiedSession("u1"), "u1", rawText("Photosynthesis"))
	require.NoError(t, err)
	require.True(t, set.Drain(5*time.Second))

	assert.Equal(t, PhaseSuccess, state.Phase)
	assert.Len(t, history.snapshot(), 1)
	assert.Equal(t, []string{"u1/analogy-generator"}, usage.snapshot())

	// and the other way round
	history.err = nil
	usage.err = errors.New("usage down")
	state, err = ctrl.Submit(context.Background(), verifiedSession("u1"), "u1", rawText("Photosynthesis"))
	require.NoError(t, err)
	require.True(t, set.Drain(5*time.Second))

	assert.Equal(t, PhaseSuccess, state.Phase)
	assert.Len(t, history.snapshot(), 2)
	assert.Len(t, usage.snapshot(), 2)
}

func TestController_AnonymousSkipsSideEffects(t *testing.T) {
	defer goleak.VerifyNone(t)

	history := &recordingHistory{}
	usage := &recordingUsage{}
	set := NewControllerSet(testRegistry(t), &fakeGenerator{result: photosynthesis}, history, usage)
	ctrl, err := set.Get("analogy-generator")
	require.NoError(t, err)

	state, err := ctrl.Submit(context.Background(), nil, "client-key", rawText("Photosynthesis"))
	require.NoError(t, err)
	require.True(t, set.Drain(5*time.Second))

	assert.Equal(t, PhaseSuccess, state.Phase)
	assert.Empty(t, history.snapshot())
	assert.Empty(t, usage.snapshot())
}

func TestController_ResetDiscardsLateResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	gen := &fakeGenerator{
		result:  photosynthesis,
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	history := &recordingHistory{}
	set := NewControllerSet(testRegistry(t), gen, history, nil)
	ctrl, err := set.Get("analogy-generator")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := ctrl.Submit(context.Background(), verifiedSession("u1"), "u1", rawText("Photosynthesis"))
		assert.NoError(t, err)
	}()
	<-gen.started

	ctrl.Reset("u1")
	assert.Equal(t, PhaseIdle, ctrl.State("u1").Phase)

	close(gen.gate)
	<-done
	require.True(t, set.Drain(5*time.Second))

	assert.Equal(t, PhaseIdle, ctrl.State("u1").Phase)
	// the completed generation is still saved
	assert.Len(t, history.snapshot(), 1)
}

func TestController_PairInput(t *testing.T) {
	gen := &fakeGenerator{result: map[string]any{
		"topicA":              "Jazz",
		"topicB":              "Quantum Physics",
		"connectionNarrative": "Both improvise within rules.",
		"keyBridgingConcepts": []any{"uncertainty"},
	}}
	set := NewControllerSet(testRegistry(t), gen, nil, nil)
	ctrl, err := set.Get("connection-weaver")
	require.NoError(t, err)

	state, err := ctrl.Submit(context.Background(), nil, "c", json.RawMessage(`{"topicA":"Jazz","topicB":"Quantum Physics"}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"topicA": "Jazz", "topicB": "Quantum Physics"}, state.Input)
	require.Len(t, gen.prompts, 1)
	assert.True(t, strings.Contains(gen.prompts[0], `"Jazz" and "Quantum Physics"`), gen.prompts[0])

	_, err = ctrl.Submit(context.Background(), nil, "c", json.RawMessage(`{"topicA":"Jazz"}`))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestControllerSet_UnknownFeature(t *testing.T) {
	set := NewControllerSet(testRegistry(t), &fakeGenerator{}, nil, nil)

	_, err := set.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestControllerSet_PruneIdle(t *testing.T) {
	set := NewControllerSet(testRegistry(t), &fakeGenerator{result: photosynthesis}, nil, nil)
	ctrl, err := set.Get("analogy-generator")
	require.NoError(t, err)

	_, err = ctrl.Submit(context.Background(), nil, "c", rawText("Photosynthesis"))
	require.NoError(t, err)

	assert.Equal(t, 0, set.PruneIdle(time.Hour))
	assert.Equal(t, 1, set.PruneIdle(-time.Second))
	assert.Equal(t, PhaseIdle, ctrl.State("c").Phase)
}

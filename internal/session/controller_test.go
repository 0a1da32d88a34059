package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fancify-backend/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []models.CompletionRequest

	started chan struct{}
	release chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeCompleter) calls() []models.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CompletionRequest(nil), f.requests...)
}

type panicCompleter struct{}

func (panicCompleter) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	panic("boom")
}

type recordingRenderer struct {
	mu    sync.Mutex
	snaps []models.Snapshot
}

func (r *recordingRenderer) Render(ctx context.Context, snap models.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recordingRenderer) all() []models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Snapshot(nil), r.snaps...)
}

type memRecorder struct {
	mu      sync.Mutex
	records []*models.TransformRecord
	err     error
}

func (m *memRecorder) Record(ctx context.Context, rec *models.TransformRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

func newTestController(c Completer) (*Controller, *recordingRenderer, *memRecorder) {
	r := &recordingRenderer{}
	rec := &memRecorder{}
	ctrl := NewController(uuid.New(), Deps{Completer: c, Renderer: r, Recorder: rec})
	return ctrl, r, rec
}

func TestController_InitialSnapshot(t *testing.T) {
	ctrl, _, _ := newTestController(&fakeCompleter{})

	snap := ctrl.Snapshot()
	assert.Equal(t, 5, snap.Rating)
	assert.False(t, snap.Busy)
	assert.Equal(t, "Transform", snap.TriggerLabel)
	assert.False(t, snap.OutputVisible)
	assert.Equal(t, ctrl.ID(), snap.SessionID)
}

func TestController_EmptyInputIsIgnored(t *testing.T) {
	fc := &fakeCompleter{reply: "unused"}
	ctrl, renderer, rec := newTestController(fc)
	before := ctrl.Snapshot()

	for _, text := range []string{"", "   ", "\n\t "} {
		res := ctrl.OnTransformRequested(context.Background(), text)
		assert.Equal(t, StatusIgnored, res.Status)
	}

	assert.Equal(t, before, ctrl.Snapshot())
	assert.Empty(t, fc.calls())
	assert.Empty(t, ctrl.History())
	assert.Empty(t, renderer.all())
	assert.Empty(t, rec.records)
}

func TestController_PlainRewriteScenario(t *testing.T) {
	fc := &fakeCompleter{reply: "I love tacos."}
	ctrl, renderer, rec := newTestController(fc)

	ctrl.OnRatingChange(context.Background(), 2)
	res := ctrl.OnTransformRequested(context.Background(), "i love tacos")

	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "I love tacos.", res.Output)
	assert.Equal(t, "I love tacos.", res.Snapshot.Output)
	assert.True(t, res.Snapshot.OutputVisible)
	assert.False(t, res.Snapshot.Busy, "trigger is re-enabled")
	assert.Equal(t, "Transform", res.Snapshot.TriggerLabel)

	calls := fc.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "simpler")
	assert.Contains(t, calls[0].System, "plain vocabulary")
	assert.Equal(t, 300, calls[0].MaxOutputTokens)
	assert.Equal(t, []models.ChatMessage{{Role: models.RoleUser, Content: "i love tacos"}}, calls[0].Messages)

	assert.Equal(t, []models.ChatMessage{
		{Role: models.RoleUser, Content: "i love tacos"},
		{Role: models.RoleAssistant, Content: "I love tacos."},
	}, ctrl.History())

	snaps := renderer.all()
	require.Len(t, snaps, 3, "rating change, busy, done")
	busy := snaps[1]
	assert.True(t, busy.Busy)
	assert.Equal(t, "Working...", busy.TriggerLabel)
	assert.Empty(t, busy.Output, "output is cleared on entry")
	assert.True(t, busy.OutputVisible)

	require.Len(t, rec.records, 1)
	assert.False(t, rec.records[0].Failed)
	assert.Equal(t, 2, rec.records[0].Rating)
}

func TestController_OrnateScenario(t *testing.T) {
	fc := &fakeCompleter{reply: "The heavens blaze in sapphire."}
	ctrl, _, _ := newTestController(fc)

	ctrl.OnRatingChange(context.Background(), 10)
	ctrl.OnTransformRequested(context.Background(), "the sky is blue")

	calls := fc.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "extravagantly ornate")
	assert.Contains(t, calls[0].System, "You may slightly expand the sentence for elegance.")
}

func TestController_FailureShowsFallback(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("service unavailable")}
	ctrl, _, rec := newTestController(fc)

	res := ctrl.OnTransformRequested(context.Background(), "hello there")

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, FallbackMessage, res.Snapshot.Output)
	assert.False(t, res.Snapshot.Busy)
	assert.Equal(t, "Transform", res.Snapshot.TriggerLabel)

	// only the user message was kept
	assert.Equal(t, []models.ChatMessage{{Role: models.RoleUser, Content: "hello there"}}, ctrl.History())

	require.Len(t, rec.records, 1)
	assert.True(t, rec.records[0].Failed)
	require.NotNil(t, rec.records[0].ErrorMessage)
	assert.Contains(t, *rec.records[0].ErrorMessage, "service unavailable")
}

func TestController_PanickingCompleterIsContained(t *testing.T) {
	ctrl, _, _ := newTestController(panicCompleter{})

	var res Result
	assert.NotPanics(t, func() {
		res = ctrl.OnTransformRequested(context.Background(), "hello")
	})
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, FallbackMessage, res.Output)
	assert.False(t, ctrl.Busy())
}

func TestController_RejectsWhileBusy(t *testing.T) {
	fc := &fakeCompleter{
		reply:   "Done.",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	ctrl, _, _ := newTestController(fc)

	done := make(chan Result)
	go func() {
		done <- ctrl.OnTransformRequested(context.Background(), "first")
	}()
	<-fc.started

	assert.True(t, ctrl.Busy())
	second := ctrl.OnTransformRequested(context.Background(), "second")
	assert.Equal(t, StatusBusy, second.Status)
	assert.True(t, second.Snapshot.Busy)

	close(fc.release)
	first := <-done

	assert.Equal(t, StatusCompleted, first.Status)
	assert.Len(t, fc.calls(), 1, "the rejected trigger issued no request")
	assert.False(t, ctrl.Busy())
}

func TestController_TimeoutFailsTransform(t *testing.T) {
	fc := &fakeCompleter{release: make(chan struct{})}
	ctrl := NewController(uuid.New(), Deps{Completer: fc, Timeout: 10 * time.Millisecond})

	res := ctrl.OnTransformRequested(context.Background(), "slow")

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, FallbackMessage, res.Output)
}

func TestController_ContextIsOnlyLatestMessage(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	ctrl, _, _ := newTestController(fc)

	ctrl.OnTransformRequested(context.Background(), "one")
	ctrl.OnTransformRequested(context.Background(), "two")

	calls := fc.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []models.ChatMessage{{Role: models.RoleUser, Content: "two"}}, calls[1].Messages)
	assert.Len(t, ctrl.History(), 4)
}

func TestController_HistoryIsBounded(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	ctrl, _, _ := newTestController(fc)

	for i := 0; i < 8; i++ {
		ctrl.OnTransformRequested(context.Background(), "again")
	}

	assert.Len(t, ctrl.History(), 10)
}

func TestController_ClearEditCopy(t *testing.T) {
	fc := &fakeCompleter{reply: "A polished line."}
	ctrl, _, _ := newTestController(fc)

	ctrl.OnTransformRequested(context.Background(), "a line")
	assert.Equal(t, "A polished line.", ctrl.OnCopy(context.Background()))

	snap := ctrl.OnEdit(context.Background())
	assert.Equal(t, "A polished line.", snap.Input)
	assert.False(t, snap.OutputVisible)

	snap = ctrl.OnClear(context.Background())
	assert.Empty(t, snap.Input)
	assert.Empty(t, snap.Output)
	assert.False(t, snap.OutputVisible)
	assert.Empty(t, ctrl.OnCopy(context.Background()))
}

func TestController_RatingStepRendersOnlyOnChange(t *testing.T) {
	ctrl, renderer, _ := newTestController(&fakeCompleter{})

	ctrl.OnRatingChange(context.Background(), 10)
	snap := ctrl.OnRatingStep(context.Background(), Right)
	assert.Equal(t, 10, snap.Rating)

	snap = ctrl.OnRatingStep(context.Background(), Left)
	assert.Equal(t, 9, snap.Rating)
	assert.Equal(t, []bool{true, true, true, true, true, true, true, true, true, false}, snap.Stars)

	assert.Len(t, renderer.all(), 2)
}

func TestController_RecorderErrorIsSwallowed(t *testing.T) {
	fc := &fakeCompleter{reply: "fine"}
	rec := &memRecorder{err: errors.New("db down")}
	ctrl := NewController(uuid.New(), Deps{Completer: fc, Recorder: rec})

	res := ctrl.OnTransformRequested(context.Background(), "hi")
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestTransformFailedError_Unwrap(t *testing.T) {
	cause := errors.New("network")
	err := error(&TransformFailedError{Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "transform failed: network")
}

package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fancify-backend/internal/models"
	"fancify-backend/internal/services"
)

// FallbackMessage is shown in place of a result when the completion call fails.
const FallbackMessage = "computer could not fancyifer this. mj will remember this"

const (
	DefaultMaxOutputTokens = 300

	labelIdle = "Transform"
	labelBusy = "Working..."
)

// Completer is the external text-generation service.
type Completer interface {
	Complete(ctx context.Context, req models.CompletionRequest) (string, error)
}

// Renderer receives every state change of a session.
type Renderer interface {
	Render(ctx context.Context, snap models.Snapshot)
}

// Recorder stores finished transforms for diagnostics.
type Recorder interface {
	Record(ctx context.Context, rec *models.TransformRecord) error
}

// Events is the set of UI events a widget surface raises. Transports
// (HTTP, websocket) translate their input into these calls and never touch
// session state directly.
type Events interface {
	OnRatingChange(ctx context.Context, rating int) models.Snapshot
	OnRatingStep(ctx context.Context, d Direction) models.Snapshot
	OnTransformRequested(ctx context.Context, text string) Result
	OnClear(ctx context.Context) models.Snapshot
	OnEdit(ctx context.Context) models.Snapshot
	OnCopy(ctx context.Context) string
	Snapshot() models.Snapshot
	History() []models.ChatMessage
}

type Status string

const (
	StatusIgnored   Status = "ignored"
	StatusBusy      Status = "busy"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Result struct {
	Status   Status
	Output   string
	Snapshot models.Snapshot
}

// Deps are shared by every controller a Manager creates.
type Deps struct {
	Completer       Completer
	Renderer        Renderer
	Recorder        Recorder
	Log             *zap.Logger
	MaxOutputTokens int
	// Timeout bounds one completion call. Zero means no timeout.
	Timeout time.Duration
	Clock   func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.MaxOutputTokens <= 0 {
		d.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

// Controller owns the state of one widget session and runs its transforms.
// At most one transform is in flight; triggers arriving while Busy are
// rejected, not queued.
type Controller struct {
	id   uuid.UUID
	deps Deps

	mu            sync.Mutex
	rating        *RatingState
	history       *ConversationBuffer
	busy          bool
	input         string
	output        string
	outputVisible bool
	lastSeen      time.Time
}

var _ Events = (*Controller)(nil)

func NewController(id uuid.UUID, deps Deps) *Controller {
	deps = deps.withDefaults()
	return &Controller{
		id:       id,
		deps:     deps,
		rating:   NewRatingState(),
		history:  NewConversationBuffer(HistoryLimit),
		lastSeen: deps.Clock(),
	}
}

func (c *Controller) ID() uuid.UUID {
	return c.id
}

func (c *Controller) OnRatingChange(ctx context.Context, rating int) models.Snapshot {
	c.mu.Lock()
	c.touch()
	c.rating.Set(rating)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.render(ctx, snap)
	return snap
}

func (c *Controller) OnRatingStep(ctx context.Context, d Direction) models.Snapshot {
	c.mu.Lock()
	c.touch()
	changed := c.rating.Step(d)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.render(ctx, snap)
	}
	return snap
}

// OnTransformRequested rewrites text at the current rating. Failures of the
// completion service are logged and replaced by FallbackMessage; they are
// never returned.
func (c *Controller) OnTransformRequested(ctx context.Context, text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Status: StatusIgnored, Snapshot: c.Snapshot()}
	}

	c.mu.Lock()
	c.touch()
	if c.busy {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return Result{Status: StatusBusy, Snapshot: snap}
	}

	c.busy = true
	c.input = text
	c.output = ""
	c.outputVisible = true

	rating := c.rating.Value()
	c.history.Append(models.ChatMessage{Role: models.RoleUser, Content: trimmed})
	req := models.CompletionRequest{
		System:          services.BuildSystemPrompt(rating),
		Messages:        c.history.ContextForRequest(),
		MaxOutputTokens: c.deps.MaxOutputTokens,
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.render(ctx, snap)

	start := c.deps.Clock()
	out, err := c.complete(ctx, req)
	elapsed := c.deps.Clock().Sub(start)

	c.mu.Lock()
	status := StatusCompleted
	if err != nil {
		err = &TransformFailedError{Err: err}
		c.deps.Log.Error("transform failed",
			zap.String("session_id", c.id.String()),
			zap.Int("rating", rating),
			zap.Error(err),
		)
		c.output = FallbackMessage
		status = StatusFailed
	} else {
		c.output = out
		c.history.Append(models.ChatMessage{Role: models.RoleAssistant, Content: out})
	}
	c.busy = false
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.render(ctx, snap)
	c.record(ctx, rating, trimmed, snap.Output, err, elapsed)

	return Result{Status: status, Output: snap.Output, Snapshot: snap}
}

// OnClear resets the input and hides the output.
func (c *Controller) OnClear(ctx context.Context) models.Snapshot {
	c.mu.Lock()
	c.touch()
	c.input = ""
	c.output = ""
	c.outputVisible = false
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.render(ctx, snap)
	return snap
}

// OnEdit copies the displayed output back into the input and hides the output.
func (c *Controller) OnEdit(ctx context.Context) models.Snapshot {
	c.mu.Lock()
	c.touch()
	c.input = c.output
	c.outputVisible = false
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.render(ctx, snap)
	return snap
}

// OnCopy returns the displayed output; writing it to the clipboard is the
// surface's job.
func (c *Controller) OnCopy(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	return c.output
}

func (c *Controller) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) History() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Messages()
}

// Busy reports whether a transform is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// LastSeen is the time of the most recent event.
func (c *Controller) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Controller) complete(ctx context.Context, req models.CompletionRequest) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion panicked: %v", r)
		}
	}()

	if c.deps.Completer == nil {
		return "", fmt.Errorf("no completion service configured")
	}

	if c.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.deps.Timeout)
		defer cancel()
	}

	return c.deps.Completer.Complete(ctx, req)
}

func (c *Controller) render(ctx context.Context, snap models.Snapshot) {
	if c.deps.Renderer != nil {
		c.deps.Renderer.Render(ctx, snap)
	}
}

func (c *Controller) record(ctx context.Context, rating int, input, output string, failure error, elapsed time.Duration) {
	if c.deps.Recorder == nil {
		return
	}

	rec := &models.TransformRecord{
		SessionID:  c.id,
		Rating:     rating,
		Input:      input,
		Output:     output,
		Failed:     failure != nil,
		DurationMs: elapsed.Milliseconds(),
	}
	if failure != nil {
		msg := failure.Error()
		rec.ErrorMessage = &msg
	}

	if err := c.deps.Recorder.Record(ctx, rec); err != nil {
		c.deps.Log.Warn("record transform", zap.String("session_id", c.id.String()), zap.Error(err))
	}
}

func (c *Controller) touch() {
	c.lastSeen = c.deps.Clock()
}

func (c *Controller) snapshotLocked() models.Snapshot {
	label := labelIdle
	if c.busy {
		label = labelBusy
	}
	return models.Snapshot{
		SessionID:     c.id,
		Rating:        c.rating.Value(),
		Stars:         c.rating.Stars(),
		Busy:          c.busy,
		TriggerLabel:  label,
		Input:         c.input,
		Output:        c.output,
		OutputVisible: c.outputVisible,
	}
}

package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"loom/internal/domain/chat"
	loomerrors "loom/internal/errors"
	"loom/internal/logging"
	"loom/internal/transport"
)

// defaultRecursionLimit bounds how many graph steps a single submission may
// take before the backend halts it.
const defaultRecursionLimit = 100

// Options configures a Controller.
type Options struct {
	// AssistantConfig is forwarded verbatim with every submission.
	AssistantConfig map[string]any
	// RecursionLimit overrides the default per-submission step bound.
	RecursionLimit int
	Logger         logging.Logger
}

// Controller drives one conversation. All state transitions on the backend
// go through it; it tracks the active checkpoint and the optimistic
// (locally visible, not yet acknowledged) human messages, and pokes the
// thread-list refresher synchronously on every transition.
type Controller struct {
	transport Transport
	refresher ThreadListRefresher
	logger    logging.Logger

	mu         sync.Mutex
	thread     chat.ThreadID
	checkpoint chat.Checkpoint
	optimistic []chat.Message

	assistant      map[string]any
	recursionLimit int
}

// NewController wires a controller to its collaborators. refresher may be
// nil when no external thread list exists.
func NewController(t Transport, refresher ThreadListRefresher, opts Options) *Controller {
	if refresher == nil {
		refresher = nopRefresher{}
	}
	limit := opts.RecursionLimit
	if limit <= 0 {
		limit = defaultRecursionLimit
	}
	return &Controller{
		transport:      t,
		refresher:      refresher,
		logger:         logging.OrNop(opts.Logger),
		thread:         chat.UnboundThread,
		assistant:      opts.AssistantConfig,
		recursionLimit: limit,
	}
}

// BindThread attaches the controller to a backend-assigned thread id.
func (c *Controller) BindThread(thread chat.ThreadID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thread = thread.OrUnbound()
}

// Thread returns the current thread id (possibly the unbound sentinel).
func (c *Controller) Thread() chat.ThreadID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thread
}

// SetActiveCheckpoint records the checkpoint of the currently paused step,
// as reported by the stream.
func (c *Controller) SetActiveCheckpoint(cp chat.Checkpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpoint = cp
}

// ActiveCheckpoint returns the checkpoint of the paused step, if any.
func (c *Controller) ActiveCheckpoint() chat.Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkpoint
}

// OptimisticMessages returns the human messages applied locally ahead of
// backend acknowledgment, in send order.
func (c *Controller) OptimisticMessages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Message, len(c.optimistic))
	copy(out, c.optimistic)
	return out
}

// SendMessage appends a human-authored message, applies it optimistically
// and submits a full autonomous run with subgraph events enabled so
// subagent traffic reaches the demultiplexer.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	msg := chat.NewHumanMessage("human-"+uuid.NewString(), text)

	c.mu.Lock()
	c.optimistic = append(c.optimistic, msg)
	optimistic := make([]chat.Message, len(c.optimistic))
	copy(optimistic, c.optimistic)
	c.mu.Unlock()

	return c.submit(ctx, "send_message", transport.SubmitRequest{
		Messages:         []chat.Message{msg},
		OptimisticValues: map[string]any{"messages": optimistic},
		Config:           c.runConfig(),
		StreamSubgraphs:  true,
	})
}

// StepOptions modify RunSingleStep.
type StepOptions struct {
	// Checkpoint, when set, resumes from that exact point instead of
	// submitting fresh messages.
	Checkpoint chat.Checkpoint
	// RerunningSubagent halts after tools instead of before them, so a
	// re-run delegation's result can be inspected before the parent
	// continues.
	RerunningSubagent bool
	// OptimisticMessages are applied locally alongside the submission.
	OptimisticMessages []chat.Message
}

// RunSingleStep advances the run one agent turn at a time. Without a
// checkpoint it submits fresh messages and halts before executing any tool
// node; with one it resumes from exactly that point, halting before tools —
// or after them when re-running a previously paused subagent step.
func (c *Controller) RunSingleStep(ctx context.Context, messages []chat.Message, opts StepOptions) error {
	req := transport.SubmitRequest{
		Config:          c.runConfig(),
		StreamSubgraphs: true,
	}
	if len(opts.OptimisticMessages) > 0 {
		req.OptimisticValues = map[string]any{"messages": opts.OptimisticMessages}
	}

	if len(opts.Checkpoint) == 0 {
		req.Messages = messages
		req.InterruptBefore = transport.InterruptNodes
		return c.submit(ctx, "run_single_step", req)
	}

	req.Checkpoint = opts.Checkpoint
	if opts.RerunningSubagent {
		req.InterruptAfter = transport.InterruptNodes
	} else {
		req.InterruptBefore = transport.InterruptNodes
	}
	return c.submit(ctx, "run_single_step", req)
}

// ContinueStream resumes the paused run. It halts again before tools unless
// the paused step delegated to a subagent, in which case it halts after
// tools so the delegation's output is observable before the parent proceeds.
func (c *Controller) ContinueStream(ctx context.Context, hasTaskToolCall bool) error {
	req := transport.SubmitRequest{
		Config:          c.runConfig(),
		StreamSubgraphs: true,
	}
	if hasTaskToolCall {
		req.InterruptAfter = transport.InterruptNodes
	} else {
		req.InterruptBefore = transport.InterruptNodes
	}
	return c.submit(ctx, "continue_stream", req)
}

// ResumeInterrupt answers an outstanding backend-side interrupt (a tool
// approval or question prompt) with an arbitrary value.
func (c *Controller) ResumeInterrupt(ctx context.Context, value any) error {
	return c.submit(ctx, "resume_interrupt", transport.SubmitRequest{
		Command:         transport.ResumeCommand(value),
		Config:          c.runConfig(),
		StreamSubgraphs: true,
	})
}

// MarkResolved forces the run to its terminal state unconditionally,
// discarding any pending continuation.
func (c *Controller) MarkResolved(ctx context.Context) error {
	return c.submit(ctx, "mark_resolved", transport.SubmitRequest{
		Command: transport.GotoEndCommand(),
		Config:  c.runConfig(),
	})
}

// Stop cancels the in-flight run. Accumulated message and question state is
// preserved, not rolled back.
func (c *Controller) Stop(ctx context.Context) error {
	defer c.refresher.RefreshThreadList()
	err := c.transport.Stop(ctx, c.Thread())
	if err != nil {
		c.logError("stop_stream", err)
	}
	return err
}

// SetFiles pushes a filename→content mapping into backend-held state
// directly, bypassing the submission path. A no-op before a thread exists.
func (c *Controller) SetFiles(ctx context.Context, files map[string]string) error {
	thread := c.Thread()
	if thread == chat.UnboundThread {
		c.logger.Debug("set_files before thread binding, ignoring")
		return nil
	}
	defer c.refresher.RefreshThreadList()
	err := c.transport.PatchState(ctx, thread, map[string]any{"files": files})
	if err != nil {
		c.logError("set_files", err)
	}
	return err
}

func (c *Controller) runConfig() transport.RunConfig {
	return transport.RunConfig{
		Assistant:      c.assistant,
		RecursionLimit: c.recursionLimit,
	}
}

// submit issues one submission and, win or lose, pokes the thread-list
// refresher before returning.
func (c *Controller) submit(ctx context.Context, op string, req transport.SubmitRequest) error {
	defer c.refresher.RefreshThreadList()
	err := c.transport.Submit(ctx, c.Thread(), req)
	if err != nil {
		c.logError(op, err)
	}
	return err
}

func (c *Controller) logError(op string, err error) {
	if loomerrors.IsTransient(err) {
		c.logger.Warn("%s failed (transient): %v", op, err)
		return
	}
	c.logger.Error("%s failed: %v", op, err)
}

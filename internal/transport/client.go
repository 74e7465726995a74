package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kaptinlin/jsonrepair"
	"golang.org/x/sync/errgroup"

	"loom/internal/domain/chat"
	loomerrors "loom/internal/errors"
	"loom/internal/logging"
)

// ErrClosed is returned when a command is issued on a closed client.
var ErrClosed = errors.New("transport client is closed")

// EventHandler receives each decoded inbound stream event, tagged with the
// thread it belongs to. Handlers run on the read pump goroutine; they must
// not block.
type EventHandler func(thread chat.ThreadID, event chat.StreamEvent)

// InterruptHandler receives backend-initiated pauses: the checkpoint for the
// paused step plus the interrupt value (tool approval request, question
// batch). Runs on the read pump goroutine.
type InterruptHandler func(thread chat.ThreadID, checkpoint chat.Checkpoint, value json.RawMessage)

// eventEnvelope is the inbound wire frame.
type eventEnvelope struct {
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type"`
	Thread     chat.ThreadID     `json:"thread_id,omitempty"`
	Event      *chat.StreamEvent `json:"event,omitempty"`
	Interrupt  json.RawMessage   `json:"interrupt,omitempty"`
	Checkpoint chat.Checkpoint   `json:"checkpoint,omitempty"`
}

const envelopeInterrupt = "interrupt"

// replayCacheSize bounds how many recently seen event ids are remembered so
// a reconnect replaying recent history does not re-feed downstream
// consumers.
const replayCacheSize = 2048

// ClientConfig configures a websocket transport client.
type ClientConfig struct {
	URL          string
	WriteTimeout time.Duration
	Logger       logging.Logger
	// OnInterrupt, when set, receives backend-initiated pauses.
	OnInterrupt InterruptHandler
}

func (c ClientConfig) withDefaults() ClientConfig {
	out := c
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 15 * time.Second
	}
	return out
}

// Client speaks the command/event contract over a single websocket
// connection. It is the concrete realization of the session layer's
// Transport port.
type Client struct {
	cfg    ClientConfig
	logger logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	cancel context.CancelFunc

	handler EventHandler
	seen    *lru.Cache[string, struct{}]
	group   *errgroup.Group
}

// Dial connects to the backend and starts the read pump. The handler is
// invoked for every stream event that survives replay dedup.
func Dial(ctx context.Context, cfg ClientConfig, handler EventHandler) (*Client, error) {
	cfg = cfg.withDefaults()
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, &loomerrors.PermanentError{
				Err:     err,
				Message: fmt.Sprintf("dial %s: status %s", cfg.URL, resp.Status),
			}
		}
		return nil, &loomerrors.TransientError{Err: fmt.Errorf("dial %s: %w", cfg.URL, err)}
	}

	seen, err := lru.New[string, struct{}](replayCacheSize)
	if err != nil {
		// lru.New only errors on non-positive size.
		_ = conn.Close()
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		logger:  logging.OrNop(cfg.Logger),
		conn:    conn,
		handler: handler,
		seen:    seen,
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	group, gctx := errgroup.WithContext(runCtx)
	c.group = group
	group.Go(func() error {
		defer cancel()
		return c.readPump(gctx)
	})
	group.Go(func() error {
		<-gctx.Done()
		return c.Close()
	})
	return c, nil
}

// Submit sends a submission for the given thread.
func (c *Client) Submit(ctx context.Context, thread chat.ThreadID, req SubmitRequest) error {
	payload, err := encodeFrame(frameSubmit, thread, req)
	if err != nil {
		return err
	}
	return c.write(ctx, payload)
}

// PatchState pushes backend-held state values directly, bypassing the
// submission path.
func (c *Client) PatchState(ctx context.Context, thread chat.ThreadID, values map[string]any) error {
	payload, err := encodeFrame(framePatch, thread, statePatch{Values: values})
	if err != nil {
		return err
	}
	return c.write(ctx, payload)
}

// Stop cancels the thread's in-flight run on the backend.
func (c *Client) Stop(ctx context.Context, thread chat.ThreadID) error {
	payload, err := encodeFrame(frameStop, thread, nil)
	if err != nil {
		return err
	}
	return c.write(ctx, payload)
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	return c.conn.Close()
}

// Wait blocks until the pumps exit, returning the first error.
func (c *Client) Wait() error {
	err := c.group.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Client) write(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &loomerrors.TransientError{Err: fmt.Errorf("write command: %w", err)}
	}
	return nil
}

func (c *Client) readPump(ctx context.Context) error {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed || ctx.Err() != nil {
				return nil
			}
			return &loomerrors.TransientError{Err: fmt.Errorf("read event: %w", err)}
		}
		c.dispatch(raw)
	}
}

// dispatch decodes one inbound frame and forwards its event. Malformed
// frames are repaired when possible and otherwise dropped with a log line;
// a bad frame must never take the session down.
func (c *Client) dispatch(raw []byte) {
	envelope, err := decodeEnvelope(raw)
	if err != nil {
		c.logger.Warn("dropping undecodable frame: %v", err)
		return
	}
	if envelope.ID != "" {
		if _, replayed := c.seen.Get(envelope.ID); replayed {
			c.logger.Debug("dropping replayed event %s", envelope.ID)
			return
		}
		c.seen.Add(envelope.ID, struct{}{})
	}
	if envelope.Type == envelopeInterrupt {
		if c.cfg.OnInterrupt != nil {
			c.cfg.OnInterrupt(envelope.Thread, envelope.Checkpoint, envelope.Interrupt)
		}
		return
	}
	if envelope.Event != nil && c.handler != nil {
		c.handler(envelope.Thread, *envelope.Event)
	}
}

// decodeEnvelope parses a frame, falling back to jsonrepair when the
// producer emitted slightly broken JSON.
func decodeEnvelope(raw []byte) (eventEnvelope, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		return envelope, nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(string(raw))
	if repairErr != nil {
		return eventEnvelope{}, fmt.Errorf("unparseable frame: %w", repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), &envelope); err != nil {
		return eventEnvelope{}, fmt.Errorf("frame invalid after repair: %w", err)
	}
	return envelope, nil
}

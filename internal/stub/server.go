package stub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"loom/internal/logging"
)

// threadSummary is what the thread-list refresher fetches.
type threadSummary struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	LastCommand string    `json:"last_command,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Server hosts the stub backend: health and thread-summary HTTP endpoints
// plus the websocket event channel.
type Server struct {
	scenario Scenario
	logger   logging.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	threads map[string]threadSummary
}

// NewServer builds a stub around a scenario.
func NewServer(scenario Scenario, logger logging.Logger) *Server {
	return &Server{
		scenario: scenario,
		logger:   logging.OrNop(logger),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		threads:  make(map[string]threadSummary),
	}
}

// Router assembles the gin handler.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/threads/:id", s.handleThreadSummary)
	router.GET("/ws", s.handleWS)
	return router
}

// Run serves until the context is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.logger.Info("stub backend listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (s *Server) handleThreadSummary(c *gin.Context) {
	s.mu.Lock()
	summary, ok := s.threads[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) noteCommand(thread, command string) {
	if thread == "" {
		return
	}
	status := "running"
	switch command {
	case frameStopType:
		status = "stopped"
	}
	s.mu.Lock()
	s.threads[thread] = threadSummary{
		ID:          thread,
		Status:      status,
		LastCommand: command,
		UpdatedAt:   time.Now(),
	}
	s.mu.Unlock()
}

const frameStopType = "stop"

// inboundFrame mirrors the client's outbound envelope.
type inboundFrame struct {
	Type   string          `json:"type"`
	Thread string          `json:"thread_id"`
	Body   json.RawMessage `json:"body"`
}

// handleWS runs one scripted connection: play connect-triggered steps, then
// answer each inbound command with the next step scripted for its trigger.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	play := newPlayback(s.scenario)
	if err := s.emit(conn, play.take(TriggerConnect)); err != nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Warn("undecodable command: %v", err)
			continue
		}
		s.noteCommand(frame.Thread, frame.Type)
		if err := s.emit(conn, play.take(Trigger(frame.Type))); err != nil {
			return
		}
	}
}

func (s *Server) emit(conn *websocket.Conn, events []ScriptedEvent) error {
	for _, event := range events {
		frame, err := event.wireFrame()
		if err != nil {
			s.logger.Error("bad scripted event %s: %v", event.ID, err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}
	return nil
}

// playback consumes a scenario's steps per connection.
type playback struct {
	mu    sync.Mutex
	steps []Step
}

func newPlayback(scenario Scenario) *playback {
	steps := make([]Step, len(scenario.Steps))
	copy(steps, scenario.Steps)
	return &playback{steps: steps}
}

// take pops the first remaining step for a trigger, returning its events.
func (p *playback) take(trigger Trigger) []ScriptedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, step := range p.steps {
		if step.Trigger == trigger {
			p.steps = append(p.steps[:i], p.steps[i+1:]...)
			return step.Events
		}
	}
	return nil
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"loom/internal/config"
	"loom/internal/demux"
	"loom/internal/domain/chat"
	"loom/internal/logging"
	"loom/internal/prompt"
	"loom/internal/questions"
	"loom/internal/session"
	"loom/internal/transport"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session against the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg, logger)
		},
	}
}

// chatApp wires the session core together for the terminal. The transport
// callbacks run on the read pump, so the controller reference and the bits
// of state that arrive before it exists sit behind a mutex.
type chatApp struct {
	demux *demux.Demux
	queue *questions.Queue

	mu         sync.Mutex
	ctrl       *session.Controller
	thread     chat.ThreadID
	checkpoint chat.Checkpoint
}

func (a *chatApp) onEvent(thread chat.ThreadID, event chat.StreamEvent) {
	a.noteThread(thread)
	a.demux.Ingest(thread, event)
}

func (a *chatApp) onInterrupt(thread chat.ThreadID, checkpoint chat.Checkpoint, value json.RawMessage) {
	a.noteThread(thread)

	a.mu.Lock()
	a.checkpoint = checkpoint
	ctrl := a.ctrl
	a.mu.Unlock()
	if ctrl != nil {
		ctrl.SetActiveCheckpoint(checkpoint)
	}

	if payload, ok := questions.ParseInterrupt(value); ok {
		a.queue.AddFromInterrupt(payload)
	}
}

// noteThread records the first backend-assigned thread id and binds the
// controller to it once available.
func (a *chatApp) noteThread(thread chat.ThreadID) {
	if thread == "" || thread == chat.UnboundThread {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.thread != "" {
		return
	}
	a.thread = thread
	if a.ctrl != nil {
		a.ctrl.BindThread(thread)
	}
}

func (a *chatApp) currentThread() chat.ThreadID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thread.OrUnbound()
}

// setController attaches the controller and replays thread/checkpoint state
// that arrived before it existed.
func (a *chatApp) setController(ctrl *session.Controller) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctrl = ctrl
	if a.thread != "" {
		ctrl.BindThread(a.thread)
	}
	if len(a.checkpoint) > 0 {
		ctrl.SetActiveCheckpoint(a.checkpoint)
	}
}

func runChat(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &chatApp{
		demux: demux.New(logging.NewComponentLogger("demux")),
		queue: questions.NewQueue(logging.NewComponentLogger("questions")),
	}

	client, err := transport.Dial(ctx, transport.ClientConfig{
		URL:          cfg.Backend.URL,
		WriteTimeout: cfg.Backend.WriteTimeout,
		Logger:       logging.NewComponentLogger("transport"),
		OnInterrupt:  app.onInterrupt,
	}, app.onEvent)
	if err != nil {
		return fmt.Errorf("connect to backend: %w", err)
	}
	defer client.Close()

	refresher := newThreadListRefresher(cfg.Backend.ThreadListURL, app.currentThread, logger)
	ctrl := session.NewController(client, refresher, session.Options{
		AssistantConfig: cfg.Assistant,
		RecursionLimit:  cfg.RecursionLimit,
		Logger:          logging.NewComponentLogger("session"),
	})
	app.setController(ctrl)

	// Once nothing blocking is pending, the collected answers resume the
	// backend-side interrupt.
	app.queue.OnResume(func(answers map[string]string) {
		if err := ctrl.ResumeInterrupt(ctx, answers); err != nil {
			logger.Warn("resume after answers failed: %v", err)
		}
	})
	app.queue.OnAnswered(func(q chat.Question) {
		logger.Debug("answered %s", q.ID)
	})

	fmt.Printf("%s connected to %s\n", green("loom"), cfg.Backend.URL)
	fmt.Println(gray("type a message, or /help for commands"))

	asker := prompt.New(cfg.Prompt.Timeout, cfg.Prompt.Color, os.Stdout)
	return repl(ctx, app, ctrl, asker, logger)
}

func repl(ctx context.Context, app *chatApp, ctrl *session.Controller, asker *prompt.Interactive, logger logging.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if ctx.Err() != nil {
			return nil
		}
		drainQuestions(ctx, app.queue, asker)

		fmt.Print(cyan("> "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := ctrl.SendMessage(ctx, line); err != nil {
				logger.Warn("send failed: %v", err)
			}
			continue
		}
		if done := runCommand(ctx, line, app, ctrl, logger); done {
			return nil
		}
	}
}

// drainQuestions surfaces pending questions in urgency order until none
// remain or the operator bails out of one.
func drainQuestions(ctx context.Context, queue *questions.Queue, asker *prompt.Interactive) {
	for {
		pending := queue.Pending()
		if len(pending) == 0 {
			return
		}
		next := pending[0]
		outcome, err := asker.Ask(ctx, next)
		if err != nil {
			return // left pending; surfaced again next round
		}
		if outcome.Skipped {
			queue.Skip(next.ID)
			continue
		}
		queue.Answer(next.ID, outcome.Answer)
	}
}

func runCommand(ctx context.Context, line string, app *chatApp, ctrl *session.Controller, logger logging.Logger) (done bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "/help":
		printHelp()
	case "/step":
		if len(args) > 0 {
			msg := chat.NewHumanMessage("", strings.Join(args, " "))
			err = ctrl.RunSingleStep(ctx, []chat.Message{msg}, session.StepOptions{
				OptimisticMessages: []chat.Message{msg},
			})
		} else {
			err = ctrl.RunSingleStep(ctx, nil, session.StepOptions{
				Checkpoint: ctrl.ActiveCheckpoint(),
			})
		}
	case "/rerun":
		err = ctrl.RunSingleStep(ctx, nil, session.StepOptions{
			Checkpoint:        ctrl.ActiveCheckpoint(),
			RerunningSubagent: true,
		})
	case "/continue":
		err = ctrl.ContinueStream(ctx, len(args) > 0 && args[0] == "task")
	case "/approve":
		err = ctrl.ResumeInterrupt(ctx, map[string]any{"approved": true})
	case "/resolve":
		err = ctrl.MarkResolved(ctx)
	case "/stop":
		err = ctrl.Stop(ctx)
	case "/subagents":
		printSubagents(app)
	case "/questions":
		printQuestions(app.queue)
	case "/quit", "/exit":
		return true
	default:
		fmt.Printf("unknown command %s\n", cmd)
	}
	if err != nil {
		logger.Warn("%s failed: %v", cmd, err)
	}
	return false
}

func printHelp() {
	fmt.Println(gray(`  <text>         send a message and run autonomously
  /step [text]   run one agent turn (halts before tools)
  /rerun         re-run the paused subagent step (halts after tools)
  /continue      resume the paused run (/continue task after a delegation)
  /approve       approve the outstanding tool-use interrupt
  /resolve       force the run to its terminal state
  /stop          cancel the in-flight run
  /subagents     show per-subagent tool calls
  /questions     show the question queue
  /quit          leave`))
}

func printSubagents(app *chatApp) {
	thread := app.currentThread()
	ids := app.demux.SubagentIDs(thread)
	if len(ids) == 0 {
		fmt.Println(gray("no subagent activity yet"))
		return
	}
	for _, id := range ids {
		fmt.Printf("%s %s\n", yellow("subagent"), id)
		for _, call := range app.demux.ToolCallsFor(thread, id) {
			fmt.Printf("  %s %s [%s]\n", cyan(call.Name), gray(call.ID), call.Status)
			if call.Result != "" {
				fmt.Printf("    %s\n", firstLine(call.Result))
			}
		}
	}
}

func printQuestions(queue *questions.Queue) {
	groups := queue.Subjects()
	if len(groups) == 0 {
		fmt.Println(gray("no pending questions"))
	}
	for _, group := range groups {
		fmt.Printf("%s\n", yellow(group.Subject))
		for _, q := range group.Questions {
			fmt.Printf("  [%s] %s\n", q.Priority, q.Text)
		}
	}
	resolved := queue.Resolved()
	if len(resolved) > 0 {
		fmt.Println(gray(fmt.Sprintf("%d resolved", len(resolved))))
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx] + " …"
	}
	return s
}

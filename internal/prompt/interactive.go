// Package prompt is the terminal surface for answering queued questions.
package prompt

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"golang.org/x/term"

	"loom/internal/domain/chat"
)

// SkipWord is the free-text input that skips a question instead of
// answering it.
const SkipWord = "/skip"

// skipLabel is the select entry that skips a multiple-choice question.
const skipLabel = "(skip this question)"

// Outcome is the result of prompting for one question.
type Outcome struct {
	Answer  string
	Skipped bool
}

// IsTTY reports whether an interactive prompt can run at all.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Interactive prompts the operator question by question.
type Interactive struct {
	timeout      time.Duration
	colorEnabled bool
	out          io.Writer
	stdin        io.ReadCloser
}

// New constructs a prompt writing to out (stdout when nil). A zero timeout
// waits indefinitely.
func New(timeout time.Duration, colorEnabled bool, out io.Writer) *Interactive {
	if out == nil {
		out = os.Stdout
	}
	return &Interactive{timeout: timeout, colorEnabled: colorEnabled, out: out}
}

// SetStdin overrides the input stream, for tests.
func (p *Interactive) SetStdin(in io.ReadCloser) { p.stdin = in }

// Ask renders one question and collects an answer or a skip. Empty answers
// are rejected locally and re-prompted; they never reach the backend. The
// context or timeout expiring returns an error with nothing submitted.
func (p *Interactive) Ask(ctx context.Context, question chat.Question) (Outcome, error) {
	fmt.Fprint(p.out, p.renderHeader(question))

	type result struct {
		outcome Outcome
		err     error
	}
	resultChan := make(chan result, 1)
	go func() {
		outcome, err := p.collect(question)
		resultChan <- result{outcome: outcome, err: err}
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	select {
	case r := <-resultChan:
		return r.outcome, r.err
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, p.colorize("No answer given, question left pending", color.FgRed))
		return Outcome{}, ctx.Err()
	}
}

func (p *Interactive) collect(question chat.Question) (Outcome, error) {
	if len(question.Options) > 0 {
		return p.selectOption(question)
	}
	return p.readAnswer()
}

func (p *Interactive) selectOption(question chat.Question) (Outcome, error) {
	items := make([]string, 0, len(question.Options)+1)
	for _, opt := range question.Options {
		label := opt.Label
		if opt.Description != "" {
			label = fmt.Sprintf("%s — %s", opt.Label, opt.Description)
		}
		items = append(items, label)
	}
	items = append(items, skipLabel)

	sel := promptui.Select{
		Label: "Select an answer",
		Items: items,
		Stdin: p.stdin,
	}
	idx, _, err := sel.Run()
	if err != nil {
		return Outcome{}, err
	}
	if idx == len(question.Options) {
		return Outcome{Skipped: true}, nil
	}
	return Outcome{Answer: question.Options[idx].Label}, nil
}

func (p *Interactive) readAnswer() (Outcome, error) {
	prompt := promptui.Prompt{
		Label: fmt.Sprintf("Answer (%s to skip)", SkipWord),
		Stdin: p.stdin,
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("answer must not be empty")
			}
			return nil
		},
	}
	input, err := prompt.Run()
	if err != nil {
		return Outcome{}, err
	}
	input = strings.TrimSpace(input)
	if input == SkipWord {
		return Outcome{Skipped: true}, nil
	}
	return Outcome{Answer: input}, nil
}

// renderHeader formats the question banner: subject, priority tag,
// confidence and the question text, plus any producer context worth showing.
func (p *Interactive) renderHeader(question chat.Question) string {
	var b strings.Builder
	separator := strings.Repeat("─", 72)

	b.WriteString("\n")
	b.WriteString(p.colorize(separator, color.FgCyan))
	b.WriteString("\n")

	subject := question.Subject
	if subject == "" {
		subject = "general"
	}
	b.WriteString(p.colorize(fmt.Sprintf("[%s] ", subject), color.FgCyan))
	b.WriteString(p.priorityTag(question.Priority))
	b.WriteString(p.colorize(fmt.Sprintf("  confidence %.0f%%", question.Confidence*100), color.FgHiBlack))
	b.WriteString("\n\n")
	b.WriteString(p.colorize(question.Text, color.Bold))
	b.WriteString("\n")

	if file, ok := question.Context["file"].(string); ok && file != "" {
		b.WriteString(p.colorize(fmt.Sprintf("  at %s", file), color.FgHiBlack))
		if line, ok := question.Context["line"].(float64); ok {
			b.WriteString(p.colorize(fmt.Sprintf(":%d", int(line)), color.FgHiBlack))
		}
		b.WriteString("\n")
	}

	b.WriteString(p.colorize(separator, color.FgCyan))
	b.WriteString("\n")
	return b.String()
}

func (p *Interactive) priorityTag(priority chat.Priority) string {
	switch priority {
	case chat.PriorityBlocking:
		return p.colorize("BLOCKING", color.FgRed, color.Bold)
	case chat.PriorityHigh:
		return p.colorize("high", color.FgYellow)
	case chat.PriorityNiceToHave:
		return p.colorize("nice to have", color.FgHiBlack)
	default:
		return p.colorize("medium", color.FgWhite)
	}
}

func (p *Interactive) colorize(text string, attrs ...color.Attribute) string {
	if !p.colorEnabled {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

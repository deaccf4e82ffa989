// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// Answers stream to stdout as they arrive. Ctrl+C cancels the answer being
// streamed; Ctrl+C or Ctrl+D at the prompt exits.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/muesli/termenv"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/chat"
	"github.com/MoriitoDev/Ollector/internal/config"
	"github.com/MoriitoDev/Ollector/internal/model"
	"github.com/MoriitoDev/Ollector/internal/session"
	"github.com/MoriitoDev/Ollector/internal/ui/render"
	"github.com/MoriitoDev/Ollector/internal/ui/styles"
	"github.com/MoriitoDev/Ollector/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads the saved history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile, err := config.HistoryPath()
	if err != nil {
		historyFile = ""
	}

	c := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file with 0600 permissions.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "chat",
		Short:       "Start an interactive chat (the default)",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationInteractive: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd)
		},
	}
}

// lineReader reads one line of user input.
type lineReader interface {
	ReadInput(prompt string) (string, error)
}

func (a *app) runChat(cmd *cobra.Command) error {
	if err := requireTerminal("chat"); err != nil {
		return err
	}
	in := NewChatCLI()
	defer in.Close()

	r := a.newREPL(cmd.OutOrStdout(), cmd.ErrOrStderr())
	defer r.close()

	// Interrupts cancel the answer in flight. At the prompt liner reads
	// Ctrl+C as a key instead.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			r.cancelAnswer()
		}
	}()

	return r.run(cmd.Context(), in)
}

// =============================================================================
// REPL
// =============================================================================

// repl is the chat loop, independent of the terminal so it can be driven
// by tests.
type repl struct {
	core    *core
	out     io.Writer
	errOut  io.Writer
	theme   *styles.Theme
	md      *render.Markdown
	printer *answerPrinter
	stats   bool
	server  string

	// listed is the last session list shown, for "/open n".
	listed []model.Session

	mu     sync.Mutex
	cancel context.CancelFunc
	last   *chat.Result
}

func (a *app) newREPL(out, errOut io.Writer) *repl {
	theme := a.theme()
	md := a.markdown(theme)
	r := &repl{
		out:     out,
		errOut:  errOut,
		theme:   theme,
		md:      md,
		printer: newAnswerPrinter(out, md, terminalWidth()),
		stats:   a.cfg.UI.ShowStats,
		server:  a.cfg.Client.ServerURL,
	}
	// A blocking Submit keeps the input gated, so no chat.Input is needed.
	r.core = a.newCore(nil, r.recordResult)
	return r
}

func (r *repl) close() {
	if r.core.arbiter != nil {
		r.core.arbiter.Stop()
	}
}

func (r *repl) recordResult(res chat.Result) {
	r.mu.Lock()
	r.last = &res
	r.mu.Unlock()
}

// cancelAnswer cancels the submission in flight, if any.
func (r *repl) cancelAnswer() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// run reads lines until EOF, an abort or /quit.
func (r *repl) run(ctx context.Context, in lineReader) error {
	r.printWelcome()

	for {
		line, err := in.ReadInput(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if !r.command(ctx, line) {
				return nil
			}
		case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
			return nil
		default:
			r.ask(ctx, line)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) prompt() string {
	name := "new chat"
	if id := r.core.registry.Current(); id != "" {
		name = model.DefaultSessionTitle
		if s, ok := r.core.registry.Lookup(id); ok {
			name = s.DisplayTitle()
		}
	}
	name = util.TruncateWidth(name, 24)
	if att := r.core.coord.Staged(); att != nil {
		name += " +" + att.Name
	}
	return fmt.Sprintf("[%s] > ", name)
}

// ask submits one question and waits for the streamed answer.
func (r *repl) ask(ctx context.Context, text string) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer r.cancelAnswer()

	_, tr := r.core.registry.Active()
	stop := r.printer.Follow(tr)
	defer stop()

	fmt.Fprintln(r.out)
	err := r.core.coord.Submit(ctx, text)
	switch {
	case err == nil:
		r.printStats()
	case errors.Is(err, chat.ErrEmptyInput):
	case errors.Is(err, chat.ErrBusy):
		r.warn("Still answering the previous question.")
	case backend.IsCanceled(err) || errors.Is(err, context.Canceled):
		r.warn("[Cancelled]")
	default:
		fmt.Fprintln(r.errOut, dim(describeError(err)))
	}
	fmt.Fprintln(r.out)
}

func (r *repl) printStats() {
	if !r.stats {
		return
	}
	r.mu.Lock()
	res := r.last
	r.mu.Unlock()
	if res == nil {
		return
	}
	fmt.Fprintln(r.out, dim(formatStats(*res)))
}

// formatStats summarizes a finished answer.
func formatStats(res chat.Result) string {
	s := res.Stats
	return fmt.Sprintf("%s in %s, first words after %s",
		util.FormatBytes(s.Bytes),
		s.Duration().Round(10*time.Millisecond),
		s.TimeToFirstDelta().Round(10*time.Millisecond))
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// command runs a slash command and reports whether the loop continues.
func (r *repl) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	arg := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch name {
	case "help", "h", "?":
		r.printHelp()

	case "new", "n":
		r.core.registry.NewDraft()
		r.info("New chat. Your next question starts it.")

	case "list", "ls", "sessions":
		r.listSessions(ctx)

	case "open", "o":
		if arg == "" {
			r.warn("Usage: /open <n|id>   (see /list)")
			break
		}
		r.openSession(ctx, arg)

	case "history":
		r.printHistory(r.core.registry.View())

	case "attach", "a":
		if arg == "" {
			r.warn("Usage: /attach <file>")
			break
		}
		att, err := backend.LoadAttachment(util.HomePath(arg))
		if err != nil {
			r.fail("Cannot attach: " + err.Error())
			break
		}
		r.core.coord.Stage(att)
		r.info(fmt.Sprintf("Attached %s (%s). It goes with your next question.",
			att.Name, util.FormatBytes(int64(att.Size()))))

	case "detach":
		if r.core.coord.Staged() == nil {
			r.info("Nothing is attached.")
			break
		}
		r.core.coord.Stage(nil)
		r.info("Attachment removed.")

	case "speak", "s":
		r.speak(ctx, arg)

	case "stop":
		if r.core.arbiter != nil {
			r.core.arbiter.Stop()
		}

	case "clear", "c":
		termenv.NewOutput(r.out).ClearScreen()

	case "quit", "q", "exit":
		return false

	default:
		r.warn("Unknown command /" + name + ". Type /help for the list.")
	}
	return true
}

func (r *repl) listSessions(ctx context.Context) {
	sessions, err := r.core.registry.List(ctx)
	if err != nil {
		r.fail("Cannot list chats: " + describeError(err))
		return
	}
	r.listed = sessions
	if len(sessions) == 0 {
		r.info("No chats yet. Ask a question to start one.")
		return
	}
	fmt.Fprint(r.out, formatSessionList(sessions, r.core.registry.Current()))
}

func (r *repl) openSession(ctx context.Context, arg string) {
	id := arg
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(r.listed) {
		id = r.listed[n-1].ID
	}

	err := r.core.registry.Open(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionNotFound):
		r.fail("That chat no longer exists.")
		return
	case errors.Is(err, session.ErrSessionBusy):
		r.warn("That chat is still answering. Try again in a moment.")
		return
	default:
		r.fail("Cannot open chat: " + describeError(err))
		return
	}

	title := model.DefaultSessionTitle
	if s, ok := r.core.registry.Lookup(id); ok {
		title = s.DisplayTitle()
	}
	r.success("Opened " + title)
	r.printHistory(r.core.registry.View())
}

// speak toggles read-aloud of the nth answer, the latest by default.
func (r *repl) speak(ctx context.Context, arg string) {
	if r.core.arbiter == nil {
		r.warn("Read-aloud is disabled.")
		return
	}
	tr := r.core.registry.View()
	answers := answerIndices(tr)
	if len(answers) == 0 {
		r.warn("There is no answer to read yet.")
		return
	}

	idx := answers[len(answers)-1]
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(answers) {
			r.warn(fmt.Sprintf("Pick an answer between 1 and %d.", len(answers)))
			return
		}
		idx = answers[n-1]
	}
	turn, _ := tr.Turn(idx)

	if !r.core.arbiter.State().IsPlaying(idx) {
		fmt.Fprintln(r.errOut, r.theme.Pending.Render(styles.MarkPending+" preparing audio..."))
	}
	if err := r.core.arbiter.Toggle(ctx, idx, turn.Content); err != nil {
		r.fail("Cannot read aloud: " + describeError(err))
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(r.errOut, dim(hint))
		}
		return
	}
	if r.core.arbiter.State().IsPlaying(idx) {
		r.info(styles.MarkSpeaking + " Reading aloud. /stop or /speak again stops it.")
	}
}

// answerIndices returns the indices of the finalized assistant turns.
func answerIndices(tr *model.Transcript) []int {
	var out []int
	turns := tr.Turns()
	for i, t := range turns {
		if t.Role != model.RoleAssistant || t.IsEmpty() {
			continue
		}
		if tr.InProgress() && i == len(turns)-1 {
			continue
		}
		out = append(out, i)
	}
	return out
}

// =============================================================================
// OUTPUT
// =============================================================================

func (r *repl) printWelcome() {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.theme.HeaderTitle.Render("ollector")+"  "+r.theme.Muted.Render(r.server))
	fmt.Fprintln(r.out, r.theme.Muted.Render("Ask a question and press Enter. /help lists commands, Ctrl+D exits."))
	fmt.Fprintln(r.out)
}

func (r *repl) printHelp() {
	commands := []struct {
		cmd  string
		desc string
	}{
		{"/new", "Start a new chat"},
		{"/list", "List your chats"},
		{"/open <n|id>", "Open a chat from the list"},
		{"/history", "Show the current chat"},
		{"/attach <file>", "Send a PDF or text file with the next question"},
		{"/detach", "Drop the attached file"},
		{"/speak [n]", "Read the latest (or nth) answer aloud, again to stop"},
		{"/stop", "Stop reading aloud"},
		{"/clear", "Clear the screen"},
		{"/quit", "Exit"},
	}
	fmt.Fprintln(r.out)
	for _, c := range commands {
		fmt.Fprintf(r.out, "  %s  %s\n",
			r.theme.Prompt.Render(util.PadRight(c.cmd, 16)),
			r.theme.Muted.Render(c.desc))
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.theme.Muted.Render("Ctrl+C cancels the answer being written."))
	fmt.Fprintln(r.out)
}

// printHistory prints every turn of tr, rendering finalized answers.
func (r *repl) printHistory(tr *model.Transcript) {
	turns := tr.Turns()
	if len(turns) == 0 {
		r.info("This chat is empty.")
		return
	}
	fmt.Fprint(r.out, formatTranscript(turns, r.theme, r.md))
}

func (r *repl) info(msg string)    { fmt.Fprintln(r.out, r.theme.Notice.Render(msg)) }
func (r *repl) success(msg string) { fmt.Fprintln(r.out, r.theme.Success.Render(msg)) }
func (r *repl) warn(msg string)    { fmt.Fprintln(r.errOut, r.theme.Warning.Render(msg)) }
func (r *repl) fail(msg string)    { fmt.Fprintln(r.errOut, r.theme.Error.Render(msg)) }

// formatTranscript renders turns the way the REPL prints them.
func formatTranscript(turns []model.Turn, theme *styles.Theme, md *render.Markdown) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString("\n")
		b.WriteString(theme.RoleLabel(t.Role))
		b.WriteString("\n")
		content := t.Content
		if t.Role == model.RoleAssistant && md != nil {
			content = md.Render(content)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// formatSessionList renders a numbered session list, marking current.
func formatSessionList(sessions []model.Session, current string) string {
	var b strings.Builder
	for i, s := range sessions {
		line := fmt.Sprintf("%3d. %s  %s",
			i+1,
			util.PadRight(util.TruncateWidth(s.DisplayTitle(), 40), 40),
			dim(s.UpdatedAt.Local().Format("Jan 02 15:04")))
		if s.HasAttachment {
			line += " [doc]"
		}
		if s.ID == current {
			line += " *"
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

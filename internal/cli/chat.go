// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/app"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

func newChatCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start a line-mode chat session",
		Long: `Start a line-mode chat session with input history.

Commands inside the session:
  /model [id]     show or switch the model
  /models         list selectable models
  /system [text]  show or set the system prompt
  /reset          clear the conversation
  /code           re-print code blocks of the last reply, highlighted
  /quit           leave (also Ctrl+D)

Ctrl+C while a reply is streaming abandons it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}
}

func runChat(cmd *cobra.Command, opts *Options) error {
	env, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	defer env.Close()
	opts.watchConfig(cmd, env)

	var in lineSource
	if opts.stdin == nil && IsTTY() {
		in = newLinerSource()
	} else {
		in = newScannerSource(cmd.InOrStdin())
	}
	defer in.Close()

	r := newREPL(env.app, in, cmd.OutOrStdout())
	if opts.stdin == nil {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		defer signal.Stop(sig)
		r.interrupts = sig
	}
	return r.run(env.cfg.DefaultModel)
}

// =============================================================================
// INPUT SOURCES
// =============================================================================

// lineSource reads one line per prompt. io.EOF ends the session.
type lineSource interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// linerSource provides history and line editing on a terminal.
type linerSource struct {
	line        *liner.State
	historyFile string
}

func newLinerSource() *linerSource {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	s := &linerSource{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(s.historyFile); err == nil {
		s.line.ReadHistory(f)
		f.Close()
	}
	return s
}

func (s *linerSource) Prompt(prompt string) (string, error) {
	text, err := s.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	return text, err
}

func (s *linerSource) AppendHistory(item string) {
	s.line.AppendHistory(item)
}

// Close saves history with 0600 permissions and restores the terminal.
func (s *linerSource) Close() error {
	if err := os.MkdirAll(filepath.Dir(s.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(s.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			s.line.WriteHistory(f)
			f.Close()
		}
	}
	return s.line.Close()
}

// scannerSource reads piped input without editing.
type scannerSource struct {
	scanner *bufio.Scanner
}

func newScannerSource(r io.Reader) *scannerSource {
	return &scannerSource{scanner: bufio.NewScanner(r)}
}

func (s *scannerSource) Prompt(string) (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *scannerSource) AppendHistory(string) {}
func (s *scannerSource) Close() error { return nil }

// =============================================================================
// REPL
// =============================================================================

type repl struct {
	app        *app.App
	in         lineSource
	out        io.Writer
	changes    chan struct{}
	interrupts <-chan os.Signal
	tty        bool
}

func newREPL(a *app.App, in lineSource, out io.Writer) *repl {
	r := &repl{
		app:     a,
		in:      in,
		out:     out,
		changes: make(chan struct{}, 1),
	}
	if f, ok := out.(*os.File); ok && f == os.Stdout {
		r.tty = IsStdoutTTY()
	}
	a.OnChange(func() {
		select {
		case r.changes <- struct{}{}:
		default:
		}
	})
	return r
}

func (r *repl) run(defaultModel string) error {
	fmt.Fprintln(r.out, titleStyle.Render("rigchat")+dimStyle.Render(" - type /help for commands"))
	if defaultModel != "" {
		r.selectModel(defaultModel)
	} else {
		fmt.Fprintln(r.out, dimStyle.Render("No model selected. Use /models and /model <id>."))
	}

	for {
		input, err := r.in.Prompt(promptStyle.Render("you> "))
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.in.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := r.command(input); quit {
				return nil
			}
			continue
		}
		r.send(input)
	}
}

// command handles a slash command and reports whether to quit.
func (r *repl) command(line string) bool {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		r.printHelp()
	case "model":
		if arg == "" {
			fmt.Fprintln(r.out, r.app.Models.State().Summary())
			return false
		}
		r.selectModel(arg)
	case "models":
		r.printModels()
	case "system":
		if arg == "" {
			system, _ := r.app.Settings()
			if system == "" {
				system = "(none)"
			}
			fmt.Fprintln(r.out, dimStyle.Render("system:"), system)
			return false
		}
		r.app.SetSystemPrompt(arg)
		fmt.Fprintln(r.out, successStyle.Render("system prompt updated"))
	case "reset", "clear":
		r.app.Reset()
		fmt.Fprintln(r.out, successStyle.Render("conversation cleared"))
	case "code":
		r.printCode()
	default:
		fmt.Fprintf(r.out, "%s unknown command /%s (try /help)\n", errorStyle.Render("[Error]"), name)
	}
	return false
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, `  /model [id]     show or switch the model
  /models         list selectable models
  /system [text]  show or set the system prompt
  /reset          clear the conversation
  /code           re-print code blocks of the last reply, highlighted
  /quit           leave`)
}

func (r *repl) printModels() {
	current := r.app.Models.State().ModelID
	for _, d := range r.app.Descriptors() {
		marker := "  "
		if d.ID == current {
			marker = "* "
		}
		fmt.Fprintf(r.out, "%s%s %s %s\n", marker, util.PadRight(d.ID, 20), util.PadRight(d.DisplayName(), 24),
			dimStyle.Render(d.Recipe.Backend))
	}
}

func (r *repl) printCode() {
	reply, ok := r.lastReply()
	if !ok {
		fmt.Fprintln(r.out, dimStyle.Render("no reply yet"))
		return
	}
	blocks := extractCodeBlocks(reply.Content)
	if len(blocks) == 0 {
		fmt.Fprintln(r.out, dimStyle.Render("the last reply has no code blocks"))
		return
	}
	for _, b := range blocks {
		fmt.Fprintln(r.out, dimStyle.Render("--- "+b.label()))
		fmt.Fprintln(r.out, highlightCode(b, ColorsEnabled() && r.tty))
	}
}

func (r *repl) lastReply() (model.Message, bool) {
	msgs := r.app.Session.Snapshot()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant && msgs[i].Frozen && !msgs[i].Failed {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}

// =============================================================================
// MODEL LOADING
// =============================================================================

// selectModel starts a load and prints progress until it settles.
func (r *repl) selectModel(id string) {
	if err := r.app.Select(id); err != nil {
		fmt.Fprintf(r.out, "%s %v\n", errorStyle.Render("[Error]"), err)
		return
	}

	last := ""
	for {
		st := r.app.Models.State()
		if st.Status != lifecycle.StatusLoading {
			if r.tty {
				fmt.Fprint(r.out, "\r"+util.PadRight("", GetTerminalWidth()-1)+"\r")
			}
			switch st.Status {
			case lifecycle.StatusReady:
				fmt.Fprintln(r.out, successStyle.Render(st.Summary()))
			case lifecycle.StatusFailed:
				fmt.Fprintln(r.out, errorStyle.Render(st.Summary()))
			default:
				fmt.Fprintln(r.out, st.Summary())
			}
			return
		}

		if r.tty {
			width := GetTerminalWidth() - 1
			if line := st.Summary(); line != last {
				fmt.Fprint(r.out, "\r"+util.PadRight(util.Truncate(line, width), width))
				last = line
			}
		} else if key := progressKey(st); key != last {
			fmt.Fprintln(r.out, dimStyle.Render(st.Summary()))
			last = key
		}
		<-r.changes
	}
}

// progressKey ignores the percentage so piped output gets one line per phase.
func progressKey(st lifecycle.State) string {
	if st.Progress == nil {
		return st.ModelID
	}
	return st.ModelID + "|" + st.Progress.Label
}

// =============================================================================
// GENERATION
// =============================================================================

// send submits input and echoes the reply as it streams.
func (r *repl) send(input string) {
	if err := r.app.Send(input); err != nil {
		fmt.Fprintf(r.out, "%s %v\n", errorStyle.Render("[Error]"), err)
		return
	}
	fmt.Fprint(r.out, assistantStyle.Render("ai> "))

	printed := ""
	for {
		reply, ok := r.inFlightReply()
		if !ok {
			// Cleared by Ctrl+C or a model switch.
			fmt.Fprintln(r.out, "\n"+warningStyle.Render("[abandoned]"))
			return
		}
		switch {
		case strings.HasPrefix(reply.Content, printed):
			fmt.Fprint(r.out, reply.Content[len(printed):])
		case reply.Failed:
			fmt.Fprint(r.out, "\n"+errorStyle.Render(reply.Content))
		default:
			// The final text differs from what streamed.
			fmt.Fprint(r.out, "\n"+reply.Content)
		}
		printed = reply.Content

		if reply.Frozen {
			fmt.Fprintln(r.out)
			if stats := reply.FormatStats(); stats != "" && !reply.Failed {
				fmt.Fprintln(r.out, dimStyle.Render(stats))
			}
			return
		}

		select {
		case <-r.changes:
		case <-r.interrupts:
			r.app.Reset()
		}
	}
}

// inFlightReply returns the reply being generated, or false once the
// conversation no longer ends with an assistant entry.
func (r *repl) inFlightReply() (model.Message, bool) {
	msgs := r.app.Session.Snapshot()
	if n := len(msgs); n > 0 && msgs[n-1].Role == model.RoleAssistant {
		return msgs[n-1], true
	}
	return model.Message{}, false
}

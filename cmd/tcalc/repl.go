package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/tcalc/pkg/config"
	"github.com/lemonberrylabs/tcalc/pkg/expr"
	"github.com/lemonberrylabs/tcalc/pkg/modules"
	"github.com/lemonberrylabs/tcalc/pkg/runtime"
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

const (
	promptMain = "tcalc> "
	promptCont = "  ...> "
)

const helpText = `Enter expressions or statements; results are printed after each line.

  x = 2 * pi          assign a variable
  f(a, b) = a + b     define a function (also: def f(a, b) = a + b)
  import name         load a module from the modules directory

Commands:
  :help               show this help
  :vars               list variables
  :funcs              list functions
  :modules            list importable modules
  :print SOURCE       show the canonical form of SOURCE
  :load FILE          evaluate a program file into this session
  :reset              forget all variables and user functions
  :quit               exit (also Ctrl+D)
`

// session is the state behind one interactive session. It is separate from
// the terminal handling so it can be driven from tests.
type session struct {
	ev      *runtime.Evaluator
	opts    []runtime.Option
	modules *modules.Dir
	out     io.Writer

	value *color.Color
	fail  *color.Color
	note  *color.Color
}

func newSession(out io.Writer, opts []runtime.Option, dir *modules.Dir) *session {
	return &session{
		ev:      runtime.NewEvaluator(opts...),
		opts:    opts,
		modules: dir,
		out:     out,
		value:   color.New(color.FgBlue),
		fail:    color.New(color.FgRed),
		note:    color.New(color.FgGreen),
	}
}

// eval runs src as a program and prints every statement's result.
func (s *session) eval(src string) {
	vs, err := s.ev.EvaluateProgram(src)
	if err != nil {
		s.printError(src, err)
		return
	}
	for _, v := range vs {
		s.value.Fprintln(s.out, types.FormatNumber(v))
	}
}

// printError prints err and, when it has a position, the offending line
// with a caret under the column.
func (s *session) printError(src string, err error) {
	s.fail.Fprintln(s.out, err)
	pos, ok := types.PositionOf(err)
	if !ok {
		return
	}
	lines := strings.Split(src, "\n")
	if pos.Line < 1 || pos.Line > len(lines) {
		return
	}
	line := lines[pos.Line-1]
	fmt.Fprintf(s.out, "  %s\n", line)
	fmt.Fprintf(s.out, "  %s^\n", strings.Repeat(" ", max(pos.Column-1, 0)))
}

// command handles a ':' command and reports whether the session should end.
func (s *session) command(line string) (exit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch strings.ToLower(fields[0]) {
	case ":help":
		fmt.Fprint(s.out, helpText)

	case ":quit", ":exit":
		return true

	case ":reset":
		s.ev = runtime.NewEvaluator(s.opts...)
		s.note.Fprintln(s.out, "session reset.")

	case ":vars":
		vars := s.ev.Variables()
		names := make([]string, 0, len(vars))
		for name := range vars {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(s.out, "%s = %s\n", name, types.FormatNumber(vars[name]))
		}

	case ":funcs":
		for _, name := range s.ev.Functions() {
			desc, _ := s.ev.Describe(name)
			fmt.Fprintln(s.out, desc)
		}

	case ":modules":
		if s.modules == nil {
			s.note.Fprintln(s.out, "no modules directory configured (use --modules-dir)")
			return false
		}
		names, err := s.modules.List()
		if err != nil {
			s.fail.Fprintln(s.out, err)
			return false
		}
		for _, name := range names {
			fmt.Fprintln(s.out, name)
		}

	case ":print":
		if rest == "" {
			fmt.Fprintln(s.out, "usage: :print SOURCE")
			return false
		}
		prog, err := s.ev.Parser().ParseProgram(rest)
		if err != nil {
			s.printError(rest, err)
			return false
		}
		fmt.Fprintln(s.out, expr.Format(prog))

	case ":load":
		if rest == "" {
			fmt.Fprintln(s.out, "usage: :load FILE")
			return false
		}
		src, err := os.ReadFile(rest)
		if err != nil {
			s.fail.Fprintf(s.out, "cannot read %s: %v\n", rest, err)
			return false
		}
		s.eval(string(src))

	default:
		fmt.Fprintln(s.out, "unknown command. Type :help for help.")
	}
	return false
}

// incomplete reports whether err means src ended before the statement did,
// so the REPL should read a continuation line.
func incomplete(src string, err error) bool {
	if !types.IsKind(err, types.KindParse) {
		return false
	}
	pos, ok := types.PositionOf(err)
	if !ok {
		return false
	}
	return pos.Offset >= len(strings.TrimRight(src, " \t\r\n"))
}

func runREPL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.NoColor {
		color.NoColor = true
	}

	opts, dir := evaluatorOptions(cfg)
	s := newSession(cmd.OutOrStdout(), opts, dir)

	fmt.Fprintf(s.out, "tcalc %s. Type :help for help.\n", version)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(func(line string) []string {
		return complete(s.ev, line)
	})

	loadHistory(ln, cfg)
	defer saveHistory(ln, cfg)

	for {
		src, ok := readStatement(ln, s.ev.Parser())
		if !ok {
			fmt.Fprintln(s.out)
			return nil
		}
		if strings.TrimSpace(src) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			if s.command(src) {
				return nil
			}
			continue
		}
		s.eval(src)
	}
}

// readStatement reads lines until the buffer parses or fails for a reason
// other than running out of input.
func readStatement(ln *liner.State, p *expr.Parser) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl+C drops the pending input.
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, err := p.ParseProgram(src); err != nil && incomplete(src, err) {
			continue
		}
		return src, true
	}
}

// complete offers function, variable and command names for the identifier
// under the cursor.
func complete(ev *runtime.Evaluator, line string) []string {
	if strings.HasPrefix(line, ":") {
		var out []string
		for _, c := range []string{":help", ":vars", ":funcs", ":modules", ":print", ":load", ":reset", ":quit"} {
			if strings.HasPrefix(c, line) {
				out = append(out, c)
			}
		}
		return out
	}

	start := len(line)
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	prefix, word := line[:start], line[start:]
	if word == "" {
		return nil
	}

	var out []string
	for _, name := range ev.Functions() {
		if strings.HasPrefix(name, word) {
			out = append(out, prefix+name+"(")
		}
	}
	names := make([]string, 0)
	for name := range ev.Variables() {
		names = append(names, name)
	}
	for name := range ev.Constants() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.HasPrefix(name, word) {
			out = append(out, prefix+name)
		}
	}
	return out
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func loadHistory(ln *liner.State, cfg config.Config) {
	if cfg.HistoryFile == "" {
		return
	}
	if f, err := os.Open(cfg.HistoryFile); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
}

func saveHistory(ln *liner.State, cfg config.Config) {
	if cfg.HistoryFile == "" {
		return
	}
	if f, err := os.Create(cfg.HistoryFile); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
}

package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// CancelAnswer dismisses a terminal prompt.
const CancelAnswer = "."

// Terminal is a line-oriented console. It notifies by printing and prompts
// by reading the next input line, so the command loop and the prompts share
// one reader.
type Terminal struct {
	mu    sync.Mutex
	lines *bufio.Scanner
	out   io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{lines: bufio.NewScanner(in), out: out}
}

func (t *Terminal) Info(msg string) {
	t.Printf("[info] %s\n", msg)
}

func (t *Terminal) Error(msg string) {
	t.Printf("[error] %s\n", msg)
}

func (t *Terminal) Printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// ReadLine prints prompt and returns the next line. ok is false at end of
// input.
func (t *Terminal) ReadLine(prompt string) (string, bool, error) {
	t.Printf("%s", prompt)
	if !t.lines.Scan() {
		return "", false, t.lines.Err()
	}
	return strings.TrimSpace(t.lines.Text()), true, nil
}

// Prompt asks question on its own line. Answering CancelAnswer or ending the
// input dismisses it.
func (t *Terminal) Prompt(ctx context.Context, question string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	answer, ok, err := t.ReadLine(fmt.Sprintf("%s [%s to cancel]\n> ", question, CancelAnswer))
	if err != nil || !ok {
		return "", false, err
	}
	if answer == CancelAnswer {
		return "", false, nil
	}
	return answer, true, nil
}

package review

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter asks an operator to confirm each repair on a line-oriented terminal.
// Only "y" and "yes" (any case) accept; anything else declines.
//
// A single goroutine reads the input for the Prompter's lifetime, so a line
// typed after a cancelled Decide is handed to the next call.
type Prompter struct {
	mu     sync.Mutex
	in     *bufio.Reader
	out    io.Writer
	styles Styles

	start sync.Once
	lines chan answer
	err   error // sticky once the input fails
}

// NewPrompter creates a Prompter reading answers from in and writing prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:     bufio.NewReader(in),
		out:    out,
		styles: NewStyles(out),
		lines:  make(chan answer),
	}
}

type answer struct {
	line string
	err  error
}

// read feeds lines until the input fails.
func (p *Prompter) read() {
	for {
		line, err := p.in.ReadString('\n')
		p.lines <- answer{line: line, err: err}
		if err != nil {
			close(p.lines)
			return
		}
	}
}

// Decide implements Decider. It blocks until a line is read or ctx is done.
// A closed input is an error: declining silently would skip every remaining
// field without the operator seeing it.
func (p *Prompter) Decide(ctx context.Context, req Request) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return false, p.err
	}
	p.start.Do(func() { go p.read() })

	fmt.Fprint(p.out, p.styles.FieldDiff(req.Identity, req.Path, req.Original, req.Candidate))
	fmt.Fprint(p.out, "Apply this repair? [y/N] ")

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case a, ok := <-p.lines:
		if !ok {
			a.err = io.EOF
		}
		if a.err != nil && !(errors.Is(a.err, io.EOF) && a.line != "") {
			p.err = fmt.Errorf("read confirmation: %w", a.err)
			return false, p.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

func (p *Prompter) showsDiff() {}

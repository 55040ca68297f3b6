package credential

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const maxEmptyPrompts = 3

// Terminal prompts on a terminal with echo disabled.
type Terminal struct {
	fd  int
	out io.Writer

	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
}

// NewTerminal prompts on in and writes prompts to out.
func NewTerminal(in *os.File, out io.Writer) *Terminal {
	return &Terminal{
		fd:           int(in.Fd()),
		out:          out,
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
	}
}

func (t *Terminal) Name() string { return "terminal" }

// Password implements Source. Without a terminal it returns ErrUnavailable.
// Surrounding whitespace is trimmed and empty answers are asked again.
func (t *Terminal) Password(req Request) (*Password, error) {
	if !t.isTerminal(t.fd) {
		return nil, ErrUnavailable
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = "Configuration password"
	}

	first, err := t.readNonEmpty(prompt)
	if err != nil {
		return nil, err
	}
	pw, err := NewPassword(first, t.Name(), false)
	if err != nil {
		return nil, err
	}
	if req.Confirm {
		second, err := t.readNonEmpty("Confirm " + strings.ToLower(prompt[:1]) + prompt[1:])
		if err != nil {
			pw.Destroy()
			return nil, err
		}
		if !pw.Matches(second) {
			pw.Destroy()
			return nil, ErrMismatch
		}
	}
	return pw, nil
}

func (t *Terminal) readNonEmpty(prompt string) (string, error) {
	for i := 0; i < maxEmptyPrompts; i++ {
		fmt.Fprintf(t.out, "%s: ", prompt)
		raw, err := t.readPassword(t.fd)
		fmt.Fprintln(t.out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		if value := strings.TrimSpace(string(raw)); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("password is empty")
}

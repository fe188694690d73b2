package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers line by line. Passwords are masked when stdin is a
// terminal.
type prompter struct {
	in  io.Reader
	out io.Writer
	sc  *bufio.Scanner
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out, sc: bufio.NewScanner(in)}
}

// line prints label and returns the trimmed answer. io.EOF means the input
// was closed.
func (p *prompter) line(label string) (string, error) {
	if label != "" {
		fmt.Fprint(p.out, label)
	}
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.sc.Text()), nil
}

// password reads a secret with masking.
func (p *prompter) password(label string) (string, error) {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.line(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(p.out) // newline after masked input
	return strings.TrimSpace(string(b)), nil
}

// orAsk returns v, or prompts for it when v is empty.
func (p *prompter) orAsk(v, label string) (string, error) {
	if strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	return p.line(label)
}

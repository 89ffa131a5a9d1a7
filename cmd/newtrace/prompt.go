package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter asks for values the user did not give on the command line.
type prompter struct {
	reader *bufio.Reader
	out    io.Writer
	// fd is the terminal used for echo-free password entry; -1 reads the
	// password as a plain line.
	fd int
}

func newPrompter(out io.Writer) *prompter {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fd = -1
	}
	return &prompter{reader: bufio.NewReader(os.Stdin), out: out, fd: fd}
}

// ask returns value if set, else prompts. def is offered and used on an
// empty answer.
func (p *prompter) ask(label, value, def string) (string, error) {
	if value != "" {
		return value, nil
	}
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		if def == "" {
			return "", fmt.Errorf("%s is required", strings.ToLower(label))
		}
		return def, nil
	}
	return line, nil
}

// password reads a password without echo when stdin is a terminal.
func (p *prompter) password(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	if p.fd < 0 {
		line, err := p.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	pw, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

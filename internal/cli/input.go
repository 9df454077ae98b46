package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads interactive input.
type Prompter interface {
	// Password reads a line without echoing it.
	Password(prompt string) (string, error)
	// Input reads a line of regular input.
	Input(prompt string) (string, error)
}

type terminalPrompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

// newTerminalPrompter prompts on out and reads from in. When in is not a
// terminal, passwords are read as plain lines so scripts can pipe them.
func newTerminalPrompter(in io.Reader, out io.Writer) Prompter {
	return &terminalPrompter{in: in, out: out, reader: bufio.NewReader(in)}
}

// Password prompts for a password without echoing to terminal
func (p *terminalPrompter) Password(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)

	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out) // Print newline after password input
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	line, err := p.readLine()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return line, nil
}

// Input prompts for regular input
func (p *terminalPrompter) Input(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)

	line, err := p.readLine()
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (p *terminalPrompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptNewPassword prompts for a password and confirmation
func promptNewPassword(p Prompter, prompt string) (string, error) {
	password, err := p.Password(prompt)
	if err != nil {
		return "", err
	}

	confirm, err := p.Password("Confirm password: ")
	if err != nil {
		return "", err
	}

	if password != confirm {
		return "", errors.New("passwords do not match")
	}

	return password, nil
}

// promptConfirm prompts for yes/no confirmation
func promptConfirm(p Prompter, prompt string, defaultYes bool) (bool, error) {
	var suffix string
	if defaultYes {
		suffix = " [Y/n]: "
	} else {
		suffix = " [y/N]: "
	}

	input, err := p.Input(prompt + suffix)
	if err != nil {
		return false, err
	}

	input = strings.ToLower(strings.TrimSpace(input))

	if input == "" {
		return defaultYes, nil
	}

	return input == "y" || input == "yes", nil
}

package notify

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Console writes messages to out and reads answers from in
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

func (c *Console) Notify(title, message string) error {
	_, err := fmt.Fprintf(c.out, "%s: %s\n", title, message)
	return err
}

// Confirm prompts with [y/N]; anything but y or yes is no
func (c *Console) Confirm(title, message string) (bool, error) {
	if _, err := fmt.Fprintf(c.out, "%s [y/N] ", message); err != nil {
		return false, err
	}

	line, err := c.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

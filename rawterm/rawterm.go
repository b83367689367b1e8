//go:build linux || darwin

// Package rawterm puts the controlling terminal in raw mode for the
// interactive examples.
//
// Newlines are always LF. Terminals send CR for the enter key and expect CRLF
// on output; Getchar and Putchar translate.
package rawterm

import (
	"io"
	"os"

	"golang.org/x/crypto/ssh/terminal"
)

// Terminal is a raw terminal on a pair of file descriptors.
type Terminal struct {
	in    *os.File
	out   io.Writer
	state *terminal.State
}

// Open switches stdin to raw mode. Close restores it:
//
//	term, err := rawterm.Open()
//	if err != nil {
//		return err
//	}
//	defer term.Close()
func Open() (*Terminal, error) {
	t := &Terminal{in: os.Stdin, out: os.Stdout}
	if !terminal.IsTerminal(int(t.in.Fd())) {
		// Piped input needs no mode switch.
		return t, nil
	}
	state, err := terminal.MakeRaw(int(t.in.Fd()))
	if err != nil {
		return nil, err
	}
	t.state = state
	return t, nil
}

// Close restores the terminal state saved by Open.
func (t *Terminal) Close() error {
	if t.state == nil {
		return nil
	}
	return terminal.Restore(int(t.in.Fd()), t.state)
}

// Getchar returns the next input byte. CR is returned as LF.
func (t *Terminal) Getchar() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(t.in, b[:]); err != nil {
		return 0, err
	}
	if b[0] == '\r' {
		return '\n', nil
	}
	return b[0], nil
}

// Putchar writes a byte, expanding LF to CRLF.
func (t *Terminal) Putchar(ch byte) {
	if ch == '\n' {
		t.Putchar('\r')
	}
	t.out.Write([]byte{ch})
}

// Print writes s with Putchar.
func (t *Terminal) Print(s string) {
	for i := 0; i < len(s); i++ {
		t.Putchar(s[i])
	}
}

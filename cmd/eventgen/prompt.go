package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// promptPassword reads a password without echo. ok is false when stdin is
// not a terminal.
func promptPassword(username string) (password string, ok bool, err error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", false, nil
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", false, err
	}
	return string(pw), true, nil
}

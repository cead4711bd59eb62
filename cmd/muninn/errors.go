package main

import (
	"errors"
	"fmt"
	"strings"
)

// usageError marks a rejected argument shape or invalid entity reference:
// exit code 1, versus 2 for internal failures.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// exitCodeFor maps an Execute error to the CLI exit-code contract:
// 1 for user errors (bad args, unknown commands/flags), 2 otherwise.
func exitCodeFor(err error) int {
	var uerr *usageError
	if errors.As(err, &uerr) {
		return 1
	}
	msg := err.Error()
	if strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "accepts") && strings.Contains(msg, "arg(s)") ||
		strings.HasPrefix(msg, "required flag") {
		return 1
	}
	return 2
}

package main

import (
	"fmt"

	"mcpbridge/internal/domain"
)

const (
	exitFailure     = 1
	exitUsage       = 2
	exitUnreachable = 3
)

type exitError struct {
	code    int
	message string
	silent  bool
}

func (e exitError) Error() string {
	return e.message
}

func exitSilent(code int) error {
	return exitError{code: code, silent: true}
}

func exitCodeFor(err error) int {
	code, ok := domain.CodeFrom(err)
	if !ok {
		return exitFailure
	}
	switch code {
	case domain.CodeInvalidArgument:
		return exitUsage
	case domain.CodeUnavailable:
		return exitUnreachable
	default:
		return exitFailure
	}
}

func describeError(err error) string {
	code, ok := domain.CodeFrom(err)
	if !ok {
		return err.Error()
	}
	return fmt.Sprintf("[%s] %s", code, err.Error())
}

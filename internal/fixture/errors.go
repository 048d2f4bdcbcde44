package fixture

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSetup is matched by every *SetupError. A failed setup is fatal to the run.
	ErrSetup = errors.New("fixture setup failed")
	// ErrTeardown is matched by every *TeardownError. Teardown failures are non-fatal.
	ErrTeardown = errors.New("fixture teardown failed")
	// ErrClosed is returned by Acquire once Close has started.
	ErrClosed = errors.New("fixture closed")
	// ErrFixtureBusy is returned when another fixture is already ready.
	ErrFixtureBusy = errors.New("another fixture is ready")
)

// SetupError describes the step at which setup failed.
type SetupError struct {
	RunID string
	Step  string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("fixture %s: %s: %v", e.RunID, e.Step, e.Err)
}

func (e *SetupError) Unwrap() []error {
	return []error{ErrSetup, e.Err}
}

// TeardownError collects every failure seen while tearing down.
type TeardownError struct {
	RunID string
	Errs  []error
}

func (e *TeardownError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("fixture %s teardown: %s", e.RunID, strings.Join(msgs, "; "))
}

func (e *TeardownError) Unwrap() []error {
	return append([]error{ErrTeardown}, e.Errs...)
}

package console

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks. Every typed error below unwraps to one
// of these.
var (
	ErrDuplicateName         = errors.New("duplicate command name")
	ErrNotFound              = errors.New("command not found")
	ErrInvalidDefinition     = errors.New("invalid command definition")
	ErrUnknownArgument       = errors.New("unknown argument")
	ErrDuplicateArgument     = errors.New("duplicate argument")
	ErrMissingRequired       = errors.New("missing required argument")
	ErrExclusiveConflict     = errors.New("exclusive arguments conflict")
	ErrNoArguments           = errors.New("no arguments supplied")
	ErrUnexpectedToken       = errors.New("unexpected token")
	ErrInvalidValue          = errors.New("invalid argument value")
	ErrValidationFailed      = errors.New("validation failed")
	ErrStatusAlreadyTerminal = errors.New("status already terminal")
	ErrInvocationNotFound    = errors.New("invocation not found")
)

// DuplicateNameError is returned when registering a name twice.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("command %q is already registered", e.Name)
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }

// NotFoundError is returned when no definition matches a command name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown command: %s", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidDefinitionError rejects a malformed definition at registration.
type InvalidDefinitionError struct {
	Name   string
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	return fmt.Sprintf("invalid definition %q: %s", e.Name, e.Reason)
}

func (e *InvalidDefinitionError) Unwrap() error { return ErrInvalidDefinition }

// UnknownArgumentError names an argument the definition does not declare.
type UnknownArgumentError struct {
	Command  string
	Argument string
}

func (e *UnknownArgumentError) Error() string {
	return fmt.Sprintf("%s: unknown argument --%s", e.Command, e.Argument)
}

func (e *UnknownArgumentError) Unwrap() error { return ErrUnknownArgument }

// DuplicateArgumentError is returned on a second occurrence of a single-valued argument.
type DuplicateArgumentError struct {
	Command  string
	Argument string
}

func (e *DuplicateArgumentError) Error() string {
	return fmt.Sprintf("%s: argument --%s can only be used once", e.Command, e.Argument)
}

func (e *DuplicateArgumentError) Unwrap() error { return ErrDuplicateArgument }

// MissingRequiredArgumentError names the first required argument not supplied.
type MissingRequiredArgumentError struct {
	Command  string
	Argument string
}

func (e *MissingRequiredArgumentError) Error() string {
	return fmt.Sprintf("%s: missing required argument --%s", e.Command, e.Argument)
}

func (e *MissingRequiredArgumentError) Unwrap() error { return ErrMissingRequired }

// ExclusiveArgumentConflictError lists the members of one exclusive-or group
// that were supplied together.
type ExclusiveArgumentConflictError struct {
	Command   string
	Group     string
	Arguments []string
}

func (e *ExclusiveArgumentConflictError) Error() string {
	flags := make([]string, len(e.Arguments))
	for i, name := range e.Arguments {
		flags[i] = "--" + name
	}
	return fmt.Sprintf("%s: only one of %s may be used", e.Command, strings.Join(flags, ", "))
}

func (e *ExclusiveArgumentConflictError) Unwrap() error { return ErrExclusiveConflict }

// NoArgumentsSuppliedError is returned when MustHaveArgs is set and no argument was given.
type NoArgumentsSuppliedError struct {
	Command string
}

func (e *NoArgumentsSuppliedError) Error() string {
	return fmt.Sprintf("%s: at least one argument must be used", e.Command)
}

func (e *NoArgumentsSuppliedError) Unwrap() error { return ErrNoArguments }

// UnexpectedTokenError is a bare value that does not belong to any argument.
type UnexpectedTokenError struct {
	Command string
	Token   string
}

func (e *UnexpectedTokenError) Error() string {
	return fmt.Sprintf("%s: unexpected value %q", e.Command, e.Token)
}

func (e *UnexpectedTokenError) Unwrap() error { return ErrUnexpectedToken }

// InvalidArgumentValueError reports a value missing or not castable to the argument type.
type InvalidArgumentValueError struct {
	Command  string
	Argument string
	Value    string
	Err      error
}

func (e *InvalidArgumentValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: invalid value for --%s: %v", e.Command, e.Argument, e.Err)
	}
	return fmt.Sprintf("%s: invalid value for --%s: %q", e.Command, e.Argument, e.Value)
}

func (e *InvalidArgumentValueError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidValue}
	}
	return []error{ErrInvalidValue, e.Err}
}

// ValidationFailedError carries the message of the first failed validator.
// Argument is empty when the whole-command validator failed.
type ValidationFailedError struct {
	Command  string
	Argument string
	Message  string
}

func (e *ValidationFailedError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("%s: invalid argument --%s: %s", e.Command, e.Argument, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

func (e *ValidationFailedError) Unwrap() error { return ErrValidationFailed }

// StatusTransitionError reports a rejected status change.
type StatusTransitionError struct {
	From Status
	To   Status
	Err  error
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("status %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *StatusTransitionError) Unwrap() error { return e.Err }

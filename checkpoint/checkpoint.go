// Package checkpoint decorates errors with the location they passed through,
// which results in something similar to a stacktrace.
// Every error attached to a checkpoint stays visible to errors.Is and errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps err in a checkpoint which records the location of the caller.
// It returns nil if err == nil.
func From(err error) error {
	if err == nil {
		return nil
	}
	// io.EOF must be returned as io.EOF directly
	// https://github.com/golang/go/issues/39155
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}

	return newCheckpoint(nil, err, 2)
}

// Wrap records the caller location for prev and attaches err as a further description.
// Both prev and err can be found by errors.Is afterwards:
//  var ErrChainBroken = errors.New("chain broken")
//
//  func walk() error {
//  	err := readTable()
//  	return checkpoint.Wrap(err, ErrChainBroken)
//  }
// Wrap returns nil if prev == nil, so it can be used directly on the result of a call.
func Wrap(prev, err error) error {
	if prev == nil {
		return nil
	}
	if prev == io.EOF {
		return io.EOF
	}

	return newCheckpoint(err, prev, 2)
}

// Newf creates a checkpoint for the sentinel err with a formatted detail message.
// In contrast to Wrap it always returns an error.
func Newf(err error, format string, args ...interface{}) error {
	return newCheckpoint(err, detail{msg: fmt.Sprintf(format, args...)}, 2)
}

// detail is the leaf of a checkpoint created by Newf.
type detail struct {
	msg string
}

func (d detail) Error() string {
	return d.msg
}

type checkpoint struct {
	err  error
	prev error

	callerOk bool
	file     string
	line     int
}

func newCheckpoint(err, prev error, skip int) *checkpoint {
	_, file, line, ok := runtime.Caller(skip)
	return &checkpoint{
		err:      err,
		prev:     prev,
		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

func (e *checkpoint) location() string {
	if !e.callerOk {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", e.file, e.line)
}

func (e *checkpoint) Error() string {
	var b strings.Builder
	b.WriteString("File: ")
	b.WriteString(e.location())
	if e.err != nil {
		b.WriteString("\n\t")
		b.WriteString(e.err.Error())
	}

	if _, ok := e.prev.(*checkpoint); ok {
		b.WriteString("\n")
		b.WriteString(e.prev.Error())
		return b.String()
	}

	// The end of the chain is a plain error without location.
	b.WriteString("\n\t")
	b.WriteString(strings.ReplaceAll(e.prev.Error(), "\n", "\n\t"))
	return b.String()
}

func (e *checkpoint) Unwrap() error {
	return e.prev
}

func (e *checkpoint) Is(target error) bool {
	return e.err != nil && errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return e.err != nil && errors.As(e.err, target)
}

// Package faults classifies the errors that stop a whole operation.
// Per-item problems (a bad unit name, an absent backend reply) are not
// represented here; they are logged and the batch continues.
package faults

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CodeSourceUnreadable = "SOURCE_UNREADABLE"
	CodeExtractFailed    = "EXTRACT_FAILED"
	CodeMergeFailed      = "MERGE_FAILED"
	CodeConfigInvalid    = "CONFIG_INVALID"
)

// SourceUnreadable reports a table or directory that cannot be opened.
func SourceUnreadable(path string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryCommand, fmt.Sprintf("source unreadable: %s", path)).
		WithTextCode(CodeSourceUnreadable)
}

// ExtractFailed reports a failure while persisting extracted units.
func ExtractFailed(path string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryCommand, fmt.Sprintf("extract failed: %s", path)).
		WithTextCode(CodeExtractFailed)
}

// MergeFailed reports a failure while mutating or persisting the merge
// target. addr is the cell being written, or empty.
func MergeFailed(path, addr string, err error) error {
	msg := fmt.Sprintf("merge failed: %s", path)
	if addr != "" {
		msg = fmt.Sprintf("merge failed: %s at %s", path, addr)
	}
	return goerrors.Wrap(err, goerrors.CategoryCommand, msg).
		WithTextCode(CodeMergeFailed)
}

// InvalidConfig reports configuration that failed validation.
func InvalidConfig(err error) error {
	if goerrors.IsWrapped(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration").
		WithTextCode(CodeConfigInvalid)
}

// Is reports whether err carries the given text code.
func Is(err error, code string) bool {
	var e *goerrors.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.TextCode == code
}

// Describe renders err with its underlying cause for terminal output.
func Describe(err error) string {
	var e *goerrors.Error
	if errors.As(err, &e) && e.Source != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Source)
	}
	return err.Error()
}

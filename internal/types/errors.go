// ABOUTME: Error taxonomy shared by every effector component
// ABOUTME: Kind is the stable string reported in traces; Error wraps an optional cause

package types

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable error class reported in result traces.
type Kind string

// Sandbox errors.
const (
	KindOutsideSafeRoots    Kind = "outside_safe_roots"
	KindDisallowedExtension Kind = "disallowed_extension"
	KindInvalidPath         Kind = "invalid_path"
)

// Mutation errors.
const (
	KindFileExists           Kind = "file_exists"
	KindFileNotFound         Kind = "file_not_found"
	KindNotADirectory        Kind = "not_a_directory"
	KindAnchorRequired       Kind = "anchor_required"
	KindAnchorNotFound       Kind = "anchor_not_found"
	KindMarkersRequired      Kind = "markers_required"
	KindStartMarkerNotFound  Kind = "start_marker_not_found"
	KindEndMarkerNotFound    Kind = "end_marker_not_found"
	KindUnsupportedPatchOp   Kind = "unsupported_patch_op"
	KindContentTooLarge      Kind = "content_too_large"
	KindSyntaxValidation     Kind = "syntax_validation_failed"
	KindSourceNotFound       Kind = "source_not_found"
	KindDestinationExists    Kind = "destination_exists"
	KindDestinationRequired  Kind = "destination_required"
	KindPathExists           Kind = "path_exists"
)

// Command errors.
const (
	KindCommandNotAllowed  Kind = "command_not_allowed"
	KindInvalidArguments   Kind = "invalid_arguments"
	KindNoCurrentProject   Kind = "no_current_project"
	KindEmptyCommitMessage Kind = "empty_commit_message"
	KindCommandFailed      Kind = "command_failed"
)

// Approval, recovery, and executor errors.
const (
	KindUserDenied        Kind = "user_denied"
	KindNoBackupAvailable Kind = "no_backup_available"
	KindProjectNotFound   Kind = "project_not_found"
	KindUnknownAction     Kind = "unknown_action"
	KindInvalidPlan       Kind = "invalid_plan"
	KindNotConfigured     Kind = "not_configured"
	KindToolException     Kind = "tool_exception"
)

// Error is a classified failure. Err, when set, is the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, types.ErrOf(types.KindFileExists)) matches any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// Detail returns the human-readable part of the error without the kind prefix.
func (e *Error) Detail() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return ""
	}
}

// ErrOf returns a bare error of the given kind, for use with errors.Is.
func ErrOf(kind Kind) error {
	return &Error{Kind: kind}
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind with an optional message.
func Wrap(kind Kind, err error, msg string) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err. Unclassified errors are tool exceptions.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindToolException
}

// DetailOf returns the message of a classified error or err.Error() otherwise.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail()
	}
	return err.Error()
}

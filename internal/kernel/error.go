// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kernel

import "fmt"

// Kind classifies a kernel error so that dispatchers and transports
// can make programmatic decisions (retry, fix input, escalate)
// without parsing message text.
type Kind string

const (
	// KindInvalidArgument means an argument failed schema, bounds,
	// enum, or grammar checks. Surfaced verbatim with the offending
	// field name; not retryable without changing the input.
	KindInvalidArgument Kind = "invalid_argument"

	// KindRecipientNotFound means send_mail's recipient is unknown.
	// Not retryable without changing input.
	KindRecipientNotFound Kind = "recipient_not_found"

	// KindReplyTargetNotFound means reply_to does not reference an
	// existing message.
	KindReplyTargetNotFound Kind = "reply_target_not_found"

	// KindNotAuthorized means the operation would mutate a message
	// whose recipient is not self, or would access a reply target not
	// visible to self.
	KindNotAuthorized Kind = "not_authorized"

	// KindNotFound means the requested message or thread does not
	// exist or is not visible to self. Deliberately indistinguishable
	// from "exists but not yours" to avoid an existence oracle (P10).
	KindNotFound Kind = "not_found"

	// KindStorageFailure means the underlying store failed. Transient;
	// the caller may retry.
	KindStorageFailure Kind = "storage_failure"
)

// Retryable reports whether repeating the same call might succeed
// without any change to arguments.
func (k Kind) Retryable() bool {
	return k == KindStorageFailure
}

// Error is a categorized kernel error. It wraps an inner error,
// preserving the chain for errors.Is/errors.As while adding the kind
// needed for callers to branch without parsing strings.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// InvalidArgument builds a KindInvalidArgument error naming the
// offending field.
func InvalidArgument(format string, args ...any) *Error {
	return newError(KindInvalidArgument, format, args...)
}

// RecipientNotFound builds a KindRecipientNotFound error.
func RecipientNotFound(format string, args ...any) *Error {
	return newError(KindRecipientNotFound, format, args...)
}

// ReplyTargetNotFound builds a KindReplyTargetNotFound error.
func ReplyTargetNotFound(format string, args ...any) *Error {
	return newError(KindReplyTargetNotFound, format, args...)
}

// NotAuthorized builds a KindNotAuthorized error.
func NotAuthorized(format string, args ...any) *Error {
	return newError(KindNotAuthorized, format, args...)
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// StorageFailure builds a KindStorageFailure error. The detail should
// be short and MUST NOT include message bodies; wrap the underlying
// storage error for the chain but do not let its text leak beyond a
// generic summary at the transport boundary.
func StorageFailure(format string, args ...any) *Error {
	return newError(KindStorageFailure, format, args...)
}

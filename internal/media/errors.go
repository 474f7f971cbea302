package media

import (
	"errors"
	"fmt"
)

// Reason classifies a media resolution failure for HTTP mapping.
type Reason string

const (
	ReasonNotFound       Reason = "not_found"
	ReasonUnsupported    Reason = "unsupported"
	ReasonDownloadFailed Reason = "download_failed"
	ReasonDecodeFailed   Reason = "decode_failed"
)

func (r Reason) phrase() string {
	switch r {
	case ReasonNotFound:
		return "media not found"
	case ReasonUnsupported:
		return "unsupported media reference"
	case ReasonDownloadFailed:
		return "media download failed"
	case ReasonDecodeFailed:
		return "media decode failed"
	}
	return "media error"
}

// Error is a media resolution failure. Ref is the offending reference as the
// client supplied it (clipped when huge, e.g. data URIs).
type Error struct {
	Reason Reason
	Ref    string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Reason.phrase(), clipRef(e.Ref))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(reason Reason, ref, detail string, cause error) *Error {
	return &Error{Reason: reason, Ref: ref, Detail: detail, Err: cause}
}

// clipRef keeps error messages readable when the reference is an inline
// payload rather than a path.
func clipRef(ref string) string {
	const max = 120
	if len(ref) <= max {
		return ref
	}
	return ref[:max] + "..."
}

// IsError reports whether err is any media resolution failure.
func IsError(err error) bool {
	var me *Error
	return errors.As(err, &me)
}

func hasReason(err error, r Reason) bool {
	var me *Error
	return errors.As(err, &me) && me.Reason == r
}

// IsNotFound reports a reference to a nonexistent local file.
func IsNotFound(err error) bool { return hasReason(err, ReasonNotFound) }

// IsUnsupported reports a reference in a form or format the server rejects.
func IsUnsupported(err error) bool { return hasReason(err, ReasonUnsupported) }

// IsDownloadFailed reports a remote fetch failure.
func IsDownloadFailed(err error) bool { return hasReason(err, ReasonDownloadFailed) }

// IsDecodeFailed reports bytes that could not be decoded as claimed.
func IsDecodeFailed(err error) bool { return hasReason(err, ReasonDecodeFailed) }

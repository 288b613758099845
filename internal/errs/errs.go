package errs

import (
	"errors"
	"fmt"
)

type Code string

const (
	TierUnavailable     Code = "TIER_UNAVAILABLE"
	ArtifactInvalid     Code = "ARTIFACT_INVALID"
	StorageUnsupported  Code = "STORAGE_UNSUPPORTED"
	StorageEntryCorrupt Code = "STORAGE_ENTRY_CORRUPT"
	RunSkipped          Code = "RUN_SKIPPED"
	UpstreamTimeout     Code = "UPSTREAM_TIMEOUT"

	InvalidFlags    Code = "INVALID_FLAGS"
	InvalidArgument Code = "INVALID_ARGUMENT"
)

var messages = map[Code]string{
	TierUnavailable:     "tier %s unavailable",
	ArtifactInvalid:     "artifact from %s rejected: %d bytes outside accepted range [%d, %d]",
	StorageUnsupported:  "storage backend %q does not support range/size queries",
	StorageEntryCorrupt: "cache entry %q could not be processed",
	RunSkipped:          "maintenance already running",
	UpstreamTimeout:     "upstream %s did not answer within %s",
	InvalidFlags:        "invalid flag combination: %s",
	InvalidArgument:     "invalid argument %q: %s",
}

func Msg(code Code, a ...any) string {
	msg := messages[code]
	if msg == "" {
		msg = string(code)
	}
	return fmt.Sprintf(msg, a...)
}

// Error is a classified failure. Cause may be nil.
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error carrying the same code, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code && t.Msg == ""
	}
	return false
}

func New(code Code, cause error, a ...any) *Error {
	return &Error{Code: code, Msg: Msg(code, a...), Cause: cause}
}

var (
	ErrTierUnavailable     = &Error{Code: TierUnavailable}
	ErrArtifactInvalid     = &Error{Code: ArtifactInvalid}
	ErrStorageUnsupported  = &Error{Code: StorageUnsupported}
	ErrStorageEntryCorrupt = &Error{Code: StorageEntryCorrupt}
	ErrRunSkipped          = &Error{Code: RunSkipped}
	ErrUpstreamTimeout     = &Error{Code: UpstreamTimeout}
)

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

package engine

import (
	"errors"
	"fmt"
)

// Status is the engine's native return code. Zero means success.
type Status uint32

// Native status codes (see the engine's error.h). Values are part of the
// engine ABI and must not be renumbered.
const (
	StatusNone                 Status = 0
	StatusFailed               Status = 1
	StatusDrop                 Status = 2
	StatusNoBufs               Status = 3
	StatusNoRoute              Status = 4
	StatusBusy                 Status = 5
	StatusParse                Status = 6
	StatusInvalidArgs          Status = 7
	StatusSecurity             Status = 8
	StatusAddressQuery         Status = 9
	StatusNoAddress            Status = 10
	StatusAbort                Status = 11
	StatusNotImplemented       Status = 12
	StatusInvalidState         Status = 13
	StatusNoAck                Status = 14
	StatusChannelAccessFailure Status = 15
	StatusDetached             Status = 16
	StatusFCS                  Status = 17
	StatusNoFrameReceived      Status = 18
	StatusNotFound             Status = 23
	StatusAlready              Status = 24
	StatusNotCapable           Status = 27
	StatusResponseTimeout      Status = 28
	StatusDuplicated           Status = 29
	StatusRejected             Status = 37
)

var statusNames = map[Status]string{
	StatusNone:                 "none",
	StatusFailed:               "failed",
	StatusDrop:                 "drop",
	StatusNoBufs:               "no-bufs",
	StatusNoRoute:              "no-route",
	StatusBusy:                 "busy",
	StatusParse:                "parse",
	StatusInvalidArgs:          "invalid-args",
	StatusSecurity:             "security",
	StatusAddressQuery:         "address-query",
	StatusNoAddress:            "no-address",
	StatusAbort:                "abort",
	StatusNotImplemented:       "not-implemented",
	StatusInvalidState:         "invalid-state",
	StatusNoAck:                "no-ack",
	StatusChannelAccessFailure: "channel-access-failure",
	StatusDetached:             "detached",
	StatusFCS:                  "fcs",
	StatusNoFrameReceived:      "no-frame-received",
	StatusNotFound:             "not-found",
	StatusAlready:              "already",
	StatusNotCapable:           "not-capable",
	StatusResponseTimeout:      "response-timeout",
	StatusDuplicated:           "duplicated",
	StatusRejected:             "rejected",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint32(s))
}

// InternalError wraps a non-zero engine status. The code is surfaced
// verbatim; this layer never interprets or retries on it.
type InternalError struct {
	Code Status
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("engine: internal error %d (%s)", uint32(e.Code), e.Code)
}

// Is reports whether target is an InternalError with the same code.
func (e *InternalError) Is(target error) bool {
	var other *InternalError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Check converts a native status into an error.
func Check(s Status) error {
	if s == StatusNone {
		return nil
	}
	return &InternalError{Code: s}
}

// StatusOf extracts the native status from err. Errors that did not come
// from the engine report StatusFailed.
func StatusOf(err error) Status {
	if err == nil {
		return StatusNone
	}
	var ie *InternalError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return StatusFailed
}

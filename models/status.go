package models

import (
	"strings"
	"time"
)

// StatusKind enumerates the migration lifecycle of a device. The platform
// stores this as a free-form string in custom property slot 8; the typed form
// exists so internal code can switch exhaustively instead of comparing
// prefixes everywhere.
type StatusKind int

const (
	StatusUnset StatusKind = iota
	StatusTrigger
	StatusManual
	StatusSent
	StatusSuccess
	StatusFailed
)

const (
	statusPrefix  = "MIG:"
	triggerValue  = "MIGRATE"
	manualValue   = "MIG:MANUAL"
	sentValue     = "MIG:SENT"
	successValue  = "MIG:SUCCESS"
	failedValue   = "MIG:FAILED"
	sentTimestamp = time.RFC3339
)

// Status is the parsed value of the migration status property. SentAt is only
// meaningful for StatusSent and may be zero when the stored value carried no
// timestamp suffix.
type Status struct {
	Kind   StatusKind
	SentAt time.Time
}

// ParseStatus maps a stored property value to its typed form. Unrecognized
// values parse as StatusUnset so a manually edited slot never wedges a device.
func ParseStatus(raw string) Status {
	switch {
	case raw == "":
		return Status{Kind: StatusUnset}
	case raw == triggerValue:
		return Status{Kind: StatusTrigger}
	case raw == manualValue:
		return Status{Kind: StatusManual}
	case raw == successValue:
		return Status{Kind: StatusSuccess}
	case raw == failedValue:
		return Status{Kind: StatusFailed}
	case raw == sentValue:
		return Status{Kind: StatusSent}
	case strings.HasPrefix(raw, sentValue+":"):
		s := Status{Kind: StatusSent}
		if ts, err := time.Parse(sentTimestamp, strings.TrimPrefix(raw, sentValue+":")); err == nil {
			s.SentAt = ts
		}
		return s
	default:
		return Status{Kind: StatusUnset}
	}
}

// String renders the wire form stored on the platform.
func (s Status) String() string {
	switch s.Kind {
	case StatusTrigger:
		return triggerValue
	case StatusManual:
		return manualValue
	case StatusSent:
		if s.SentAt.IsZero() {
			return sentValue
		}
		return sentValue + ":" + s.SentAt.UTC().Format(sentTimestamp)
	case StatusSuccess:
		return successValue
	case StatusFailed:
		return failedValue
	default:
		return ""
	}
}

func Sent(at time.Time) Status { return Status{Kind: StatusSent, SentAt: at} }

func Manual() Status { return Status{Kind: StatusManual} }

func ResultStatus(ok bool) Status {
	if ok {
		return Status{Kind: StatusSuccess}
	}
	return Status{Kind: StatusFailed}
}

// IsMigrating reports whether a raw property value marks a device already in
// the pipeline. The operator trigger value MIGRATE does not count; devices
// carrying it are still waiting to be picked up.
func IsMigrating(raw string) bool {
	return strings.HasPrefix(raw, statusPrefix)
}

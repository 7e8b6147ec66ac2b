// Package jaderr defines the typed error kinds the archival daemon classifies
// failures into (see §7 of the design: malformed input is quarantined, disk
// corruption is fatal, template failures degrade gracefully).
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package jaderr

import "fmt"

type (
	// ErrChecksum is raised whenever a recomputed digest disagrees with the
	// digest recorded for a file pair. Always fatal.
	ErrChecksum struct {
		Expected string
		Actual   string
		Path     string
	}

	// ErrIO wraps a filesystem-layer failure that is not itself a checksum
	// mismatch (copy, fsync, mkdir, rename, stat).
	ErrIO struct {
		Op  string
		Err error
	}

	// ErrDatabase wraps a failure from the relational index.
	ErrDatabase struct {
		Op  string
		Err error
	}

	// ErrJSON wraps a marshal/unmarshal failure of a sidecar, label, or
	// configuration side-file.
	ErrJSON struct {
		Op  string
		Err error
	}

	// ErrMail wraps an SMTP transport failure.
	ErrMail struct {
		Op  string
		Err error
	}

	// ErrTemplate wraps an e-mail template render failure. Per design,
	// this is never fatal on its own: the caller substitutes a sentinel body
	// and still sends the mail.
	ErrTemplate struct {
		Name string
		Err  error
	}

	// ErrAddress wraps a malformed e-mail address.
	ErrAddress struct {
		Address string
		Err     error
	}

	// ErrCritical is the explicit FULL_STOP signal: once raised by any
	// subsystem, the orchestrator must stop the work loop.
	ErrCritical struct {
		Msg string
	}

	// ErrOther wraps a failure that fits no other kind.
	ErrOther struct {
		Err error
	}
)

func (e *ErrChecksum) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

func (e *ErrIO) Error() string { return fmt.Sprintf("io error during %s: %v", e.Op, e.Err) }
func (e *ErrIO) Unwrap() error { return e.Err }

func (e *ErrDatabase) Error() string { return fmt.Sprintf("database error during %s: %v", e.Op, e.Err) }
func (e *ErrDatabase) Unwrap() error { return e.Err }

func (e *ErrJSON) Error() string { return fmt.Sprintf("json error during %s: %v", e.Op, e.Err) }
func (e *ErrJSON) Unwrap() error { return e.Err }

func (e *ErrMail) Error() string { return fmt.Sprintf("mail error during %s: %v", e.Op, e.Err) }
func (e *ErrMail) Unwrap() error { return e.Err }

func (e *ErrTemplate) Error() string {
	return fmt.Sprintf("template %q failed to render: %v", e.Name, e.Err)
}
func (e *ErrTemplate) Unwrap() error { return e.Err }

func (e *ErrAddress) Error() string {
	return fmt.Sprintf("invalid e-mail address %q: %v", e.Address, e.Err)
}
func (e *ErrAddress) Unwrap() error { return e.Err }

func (e *ErrCritical) Error() string { return "critical: " + e.Msg }

func (e *ErrOther) Error() string { return fmt.Sprintf("error: %v", e.Err) }
func (e *ErrOther) Unwrap() error { return e.Err }

// IsFatal reports whether err must trigger FULL_STOP per §7: checksum
// mismatches, database faults, and anything explicitly marked critical.
func IsFatal(err error) bool {
	switch err.(type) {
	case *ErrChecksum, *ErrDatabase, *ErrCritical:
		return true
	default:
		return false
	}
}

func NewCritical(format string, a ...any) *ErrCritical {
	return &ErrCritical{Msg: fmt.Sprintf(format, a...)}
}

package storage

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Kind classifies engine failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindKeyInitialization
	KindNotInitialized
	KindDecryption
	KindSerialization
	KindBackupNotFound
	KindMigration
	KindIO
	KindInvalidKey
)

var kindInfo = map[Kind]struct {
	code, name, message string
}{
	KindUnknown:           {"LB-GEN-5000", "unknown", "storage failure"},
	KindKeyInitialization: {"LB-KEY-5000", "key_initialization", "key material unavailable"},
	KindNotInitialized:    {"LB-ENG-4090", "not_initialized", "engine not initialized"},
	KindDecryption:        {"LB-ENC-4220", "decryption", "decryption failed"},
	KindSerialization:     {"LB-SER-4000", "serialization", "serialization failed"},
	KindBackupNotFound:    {"LB-BAK-4040", "backup_not_found", "backup not found"},
	KindMigration:         {"LB-MIG-5000", "migration", "migration failed"},
	KindIO:                {"LB-IO-5000", "io", "storage i/o failed"},
	KindInvalidKey:        {"LB-KEY-4000", "invalid_key", "invalid key"},
}

func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Code returns the stable error code for k.
func (k Kind) Code() string {
	if info, ok := kindInfo[k]; ok {
		return info.code
	}
	return kindInfo[KindUnknown].code
}

// Error is the error type returned by every Engine operation.
type Error struct {
	Kind    Kind
	Op      string // e.g. "load", "restore_backup"
	Message string
	Cause   error

	// Trace is the stack at the failure site, captured only when
	// Config.CaptureTrace is set.
	Trace string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = kindInfo[e.Kind].message
	}
	s := fmt.Sprintf("[%s] %s", e.Kind.Code(), msg)
	if e.Op != "" {
		s = fmt.Sprintf("[%s] %s: %s", e.Kind.Code(), e.Op, msg)
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrDecryption)
// works regardless of Op and Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Code returns the error code.
func (e *Error) Code() string {
	return e.Kind.Code()
}

// Sentinels for errors.Is.
var (
	ErrKeyInitialization = &Error{Kind: KindKeyInitialization}
	ErrNotInitialized    = &Error{Kind: KindNotInitialized}
	ErrDecryption        = &Error{Kind: KindDecryption}
	ErrSerialization     = &Error{Kind: KindSerialization}
	ErrBackupNotFound    = &Error{Kind: KindBackupNotFound}
	ErrMigration         = &Error{Kind: KindMigration}
	ErrIO                = &Error{Kind: KindIO}
	ErrInvalidKey        = &Error{Kind: KindInvalidKey}
)

// KindOf returns the Kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// CodeOf returns the error code of err, or "" when err is not an *Error.
func CodeOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return ""
}

func newError(kind Kind, op, message string, cause error, trace bool) *Error {
	e := &Error{Kind: kind, Op: op, Message: message, Cause: cause}
	if trace {
		e.Trace = string(debug.Stack())
	}
	return e
}

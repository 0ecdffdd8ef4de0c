package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Sentinel errors — use with errors.Is(). Structured errors below wrap
// exactly one of these via Unwrap so callers can branch on kind without
// inspecting strings (spec §9, "Error-via-dict-return").
var (
	ErrInputValidation    = errors.New("input validation failed")
	ErrLifecycleViolation = errors.New("lifecycle violation")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrUniquenessConflict = errors.New("uniqueness conflict")
	ErrTransient          = errors.New("transient store fault")
	ErrPersistence        = errors.New("persistence error")
	ErrTimeout            = errors.New("operation timed out")
	ErrNothingToRelease   = errors.New("nothing to release")
)

// ValidationError carries the offending field and reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInputValidation }

// LifecycleError carries the entity, the attempted action, and a
// human-readable reason (spec §7: "surfaced with a human-readable reason").
type LifecycleError struct {
	EntityType string
	EntityID   int64
	Action     string
	Reason     string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("cannot %s %s %d: %s", e.Action, e.EntityType, e.EntityID, e.Reason)
}

func (e *LifecycleError) Unwrap() error { return ErrLifecycleViolation }

// InsufficientStockLine describes one failing product within a larger
// request (Reserve/Outbound may touch several line items at once).
type InsufficientStockLine struct {
	ProductID int64
	Available decimal.Decimal
	Required  decimal.Decimal
}

// InsufficientStockError carries every failing line so the caller can
// report a complete picture in one round trip (spec §4.5.2 step 2).
type InsufficientStockError struct {
	Lines []InsufficientStockLine
}

func (e *InsufficientStockError) Error() string {
	if len(e.Lines) == 1 {
		l := e.Lines[0]
		return fmt.Sprintf("insufficient stock for product %d: available %s, required %s",
			l.ProductID, l.Available.String(), l.Required.String())
	}
	return fmt.Sprintf("insufficient stock for %d product(s)", len(e.Lines))
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// UniquenessConflictError is retried internally by re-minting a fresh
// identifier (spec §7); it only escapes the Coordinator if retries are
// exhausted.
type UniquenessConflictError struct {
	Field string
	Value string
}

func (e *UniquenessConflictError) Error() string {
	return fmt.Sprintf("%s %q already in use", e.Field, e.Value)
}

func (e *UniquenessConflictError) Unwrap() error { return ErrUniquenessConflict }

// PersistenceError wraps an underlying store failure with operation context.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistence }

// TimeoutError reports which operation's deadline expired.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Op)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// IsRetryable reports whether the Coordinator should retry the enclosing
// statement (spec §5/§7: only Transient and UniquenessConflict are retried).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrUniquenessConflict)
}

// transientPatterns are substrings of driver errors that indicate a
// connection fault rather than a genuine application error (spec §5).
var transientPatterns = []string{
	"closed SSL",
	"connection reset",
	"connection refused",
	"server closed",
	"broken pipe",
	"i/o timeout",
}

// uniqueViolationDetail pulls the constraint's column and colliding value
// out of Postgres's "Key (col)=(val) already exists." detail message.
var uniqueViolationDetail = regexp.MustCompile(`Key \(([^)]+)\)=\(([^)]+)\)`)

const pgUniqueViolation = "23505"

// classifyConnFault maps a driver error onto the taxonomy in §7. A Postgres
// unique-violation (SQLSTATE 23505) — the safety net behind MintIdentifier's
// scan-then-insert race (spec §4.1) — becomes a UniquenessConflictError so
// withRetry re-mints instead of surfacing a raw persistence failure.
// Anything else matching transientPatterns is ErrTransient; everything else
// is wrapped as a PersistenceError.
func classifyConnFault(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		field, value := pgErr.ConstraintName, pgErr.Detail
		if m := uniqueViolationDetail.FindStringSubmatch(pgErr.Detail); m != nil {
			field, value = m[1], m[2]
		}
		return &UniquenessConflictError{Field: field, Value: value}
	}

	msg := strings.ToLower(err.Error())
	for _, pat := range transientPatterns {
		if strings.Contains(msg, strings.ToLower(pat)) {
			return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
		}
	}
	return &PersistenceError{Op: op, Err: err}
}

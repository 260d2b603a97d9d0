package entity

import (
	"errors"
	"fmt"
	"time"
)

// ViolationKind は不変条件違反の種類です。
type ViolationKind string

const (
	KindEmptySymbol        ViolationKind = "empty_symbol"
	KindNonPositivePrice   ViolationKind = "non_positive_price"
	KindHighBelowLow       ViolationKind = "high_below_low"
	KindHighBelowOpenClose ViolationKind = "high_below_open_close"
	KindLowAboveOpenClose  ViolationKind = "low_above_open_close"
	KindNegativeVolume     ViolationKind = "negative_volume"
)

// Violation は1件の不変条件違反です。
type Violation struct {
	Kind    ViolationKind
	Message string
}

var (
	// ErrValidation matches any *ValidationError via errors.Is.
	ErrValidation = errors.New("bar validation failed")

	// ErrParse matches any *ParseError via errors.Is.
	ErrParse = errors.New("bar parse failed")
)

// ValidationError はバーが構造的な不変条件を満たさないことを表します。
type ValidationError struct {
	Symbol  string
	Time    time.Time
	Kind    ViolationKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bar %s at %s: %s (%s)", e.Symbol, e.Time.Format(TimestampLayout), e.Message, e.Kind)
}

// Is は errors.Is(err, ErrValidation) を成立させます。
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ParseError は入力レコードの欠損・書式不正を表します。
// Err が nil の場合はフィールドの欠損です。
type ParseError struct {
	Symbol string
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse %s for %s: missing field", e.Field, e.Symbol)
	}
	return fmt.Sprintf("parse %s %q for %s: %v", e.Field, e.Value, e.Symbol, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is は errors.Is(err, ErrParse) を成立させます。
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

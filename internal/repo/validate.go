package repo

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// validator accumulates field-level problems for one entity.
// The first problem recorded for a field wins.
type validator struct {
	err *ValidationError
}

func newValidator(entity string) *validator {
	return &validator{err: &ValidationError{Entity: entity, Fields: make(map[string]string)}}
}

func (v *validator) addError(field, message string) {
	if _, exists := v.err.Fields[field]; exists {
		return
	}
	v.err.Fields[field] = message
	v.err.order = append(v.err.order, field)
}

func (v *validator) check(ok bool, field, message string) {
	if !ok {
		v.addError(field, message)
	}
}

func (v *validator) required(field, value string) {
	v.check(strings.TrimSpace(value) != "", field, "must be provided")
}

func (v *validator) maxLength(field, value string, max int) {
	v.check(utf8.RuneCountInString(value) <= max, field, fmt.Sprintf("must not be more than %d characters", max))
}

func (v *validator) valid() bool {
	return len(v.err.Fields) == 0
}

// result returns nil when no problem was recorded
func (v *validator) result() error {
	if v.valid() {
		return nil
	}
	return v.err
}

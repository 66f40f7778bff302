package message

import (
	"fmt"
	"regexp"

	apperrors "github.com/arielkovacs/msgbus/internal/errors"
)

// Validator is the per-property constraint sum type: a predicate
// function, a regular expression, or a literal allow-list.
type Validator interface {
	Validate(name string, value any) error
}

// PredicateFunc is a caller-supplied validation function.
type PredicateFunc func(value any) bool

type predicateValidator struct {
	fn PredicateFunc
}

// Predicate builds a Validator from an arbitrary predicate function.
func Predicate(fn PredicateFunc) Validator {
	return predicateValidator{fn: fn}
}

func (p predicateValidator) Validate(name string, value any) error {
	if !p.fn(value) {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("property %q failed predicate validation", name), nil)
	}
	return nil
}

type regexValidator struct {
	re *regexp.Regexp
}

// Regex builds a Validator requiring a string value to match pattern.
func Regex(pattern string) (Validator, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "invalid property validator pattern", err)
	}
	return regexValidator{re: re}, nil
}

// MustRegex is Regex, panicking on an invalid pattern. Intended for
// descriptor definitions built from compile-time-known patterns.
func MustRegex(pattern string) Validator {
	v, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return v
}

func (r regexValidator) Validate(name string, value any) error {
	s, ok := value.(string)
	if !ok {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("property %q must be a string to match its pattern", name), nil)
	}
	if !r.re.MatchString(s) {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("property %q does not match required pattern", name), nil)
	}
	return nil
}

type oneOfValidator struct {
	allowed []any
}

// OneOf builds a Validator accepting only the listed values.
func OneOf(allowed ...any) Validator {
	return oneOfValidator{allowed: allowed}
}

func (o oneOfValidator) Validate(name string, value any) error {
	for _, a := range o.allowed {
		if a == value {
			return nil
		}
	}
	return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("property %q is not one of the allowed values", name), nil)
}

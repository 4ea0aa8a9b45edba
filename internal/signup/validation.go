package signup

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ValidationError carries one message per rejected field, keyed by the
// field's Go name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the message for field, or "".
func (e *ValidationError) Field(field string) string {
	return e.Fields[field]
}

func newValidator(now func() time.Time) *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})

	v.RegisterValidation("notfuture", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		return ok && t.Before(now())
	})

	// minage compares calendar years only: someone born in December of
	// the cutoff year passes in January.
	v.RegisterValidation("minage", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		if !ok {
			return false
		}
		min, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return now().Year()-t.Year() >= min
	})

	return v
}

func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		if _, seen := out.Fields[fe.StructField()]; seen {
			continue
		}
		out.Fields[fe.StructField()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	label := fe.Field()

	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.Struct {
			return "Please select your " + strings.ToLower(label)
		}
		return label + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "email":
		return "Enter an email address"
	case "oneof":
		return "You must select a " + strings.ToLower(label) + " to continue"
	case "eqfield":
		return "Password confirm mismatch"
	case "notfuture":
		return label + " cannot be in the future"
	case "minage":
		return "You must be at least " + fe.Param() + " years old"
	default:
		return label + " is invalid"
	}
}

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
)

// DateLayout is the wire format for calendar dates on the intake forms.
const DateLayout = "2006-01-02"

var (
	defaultValidator = newValidator()
	personName       = regexp.MustCompile(`^[\p{L}\s]+$`)
	mobileSeparators = strings.NewReplacer(" ", "", "-", "")
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("adult", func(fl validator.FieldLevel) bool {
		birth, err := time.Parse(DateLayout, strings.TrimSpace(fl.Field().String()))
		if err != nil {
			return false
		}
		return domain.IsOver18(birth, time.Now())
	})
	_ = v.RegisterValidation("plausibleage", func(fl validator.FieldLevel) bool {
		birth, err := time.Parse(DateLayout, strings.TrimSpace(fl.Field().String()))
		if err != nil {
			return false
		}
		now := time.Now()
		return !birth.After(now) && domain.AgeInYears(birth, now) <= domain.MaxPlausibleAge
	})
	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personName.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	// Ten-digit mobile number; spaces and dashes are ignored.
	_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		n := mobileSeparators.Replace(fl.Field().String())
		if len(n) != 10 {
			return false
		}
		for _, r := range n {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	})
	_ = v.RegisterValidation("pastdate", func(fl validator.FieldLevel) bool {
		d, err := time.Parse(DateLayout, strings.TrimSpace(fl.Field().String()))
		if err != nil {
			return false
		}
		return !d.After(time.Now())
	})
	return v
}

// FieldError is a single violated rule, keyed by the JSON field name.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Errors collects every violation found on a request.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil for an empty set, otherwise a validation domain error
// wrapping e.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return dErrors.Wrap(e, dErrors.CodeValidation, e.Error())
}

// Validate validates a struct using the default validator and returns a domain error
// wrapping Errors.
func Validate(req any) error {
	return Check(req).Err()
}

// Check runs the struct rules and returns the violations, nil when valid.
// Callers with cross-field rules append to the result before calling Err.
func Check(req any) Errors {
	if err := defaultValidator.Struct(req); err != nil {
		return Collect(err)
	}
	return nil
}

// Collect converts a validator error into field errors, one per violated rule.
func Collect(err error) Errors {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return Errors{{Message: "invalid request body"}}
	}
	out := make(Errors, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, FieldError{Field: fe.Field(), Message: ErrorMessage(fe)})
	}
	return out
}

// Fields extracts field errors from an error returned by Validate.
func Fields(err error) Errors {
	var errs Errors
	if errors.As(err, &errs) {
		return errs
	}
	return nil
}

// ErrorMessage converts a single validator failure into a human-readable message.
func ErrorMessage(fe validator.FieldError) string {
	field := fe.Field()
	if field == "" {
		field = fe.StructField()
	}

	switch fe.ActualTag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		other, value, _ := strings.Cut(fe.Param(), " ")
		return fmt.Sprintf("%s is required when %s is %q", field, lowerFirst(other), value)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must contain only digits", field)
	case "eq":
		return fmt.Sprintf("%s must be accepted", field)
	case "adult":
		return fmt.Sprintf("%s must be a valid date of an applicant aged 18 or over", field)
	case "plausibleage":
		return fmt.Sprintf("%s must be a past date within the last %d years", field, domain.MaxPlausibleAge)
	case "personname":
		return fmt.Sprintf("%s may only contain letters and spaces", field)
	case "mobile":
		return fmt.Sprintf("%s must be a 10-digit mobile number", field)
	case "pastdate":
		return fmt.Sprintf("%s must be a valid date not in the future", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

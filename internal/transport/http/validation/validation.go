package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/arklim/storefront-auth/internal/infra/security"
)

// Rule binds a request field to a validator tag string.
type Rule struct {
	Field string
	Tags  string
}

// Table is the ordered rule set of one request DTO.
type Table []Rule

var (
	RegisterRules = Table{
		{Field: "username", Tags: "required,min=3,max=20"},
		{Field: "email", Tags: "required,email"},
		{Field: "password", Tags: "required,min=8,max=100,password_strength"},
	}

	VerifyOTPRules = Table{
		{Field: "email", Tags: "required,email"},
		{Field: "otp", Tags: "required,len=6,numeric"},
	}

	EmailRules = Table{
		{Field: "email", Tags: "required,email"},
	}

	UsernameRules = Table{
		{Field: "username", Tags: "required,min=3,max=20"},
	}

	LoginRules = Table{
		{Field: "credential", Tags: "required,email_or_username"},
		{Field: "password", Tags: "required"},
	}

	ResetPasswordRules = Table{
		{Field: "token", Tags: "required,hexadecimal"},
		{Field: "password", Tags: "required,min=8,max=100,password_strength"},
	}

	UpdateUserRules = Table{
		{Field: "fullName", Tags: "omitempty,min=3,max=100"},
		{Field: "username", Tags: "omitempty,min=3,max=100"},
	}

	ListQueryRules = Table{
		{Field: "limit", Tags: "omitempty,number"},
		{Field: "page", Tags: "omitempty,number"},
		{Field: "sortBy", Tags: "omitempty,max=50"},
		{Field: "sortOrder", Tags: "omitempty,oneof=asc desc"},
	}
)

const (
	weakPasswordMessage    = "password too weak"
	emailOrUsernameMessage = "Credential must be a valid email or username (alphanumeric, 3-20 characters)"
	passwordStrengthTag    = "password_strength"
	emailOrUsernameTag     = "email_or_username"
	minUsernameLen         = 3
	maxUsernameLen         = 20
)

// Error reports the first field that failed its rules.
type Error struct {
	Field   string
	Tag     string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Validator evaluates rule tables against request values.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator with the storefront custom tags registered.
func New() (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustom(v); err != nil {
		return nil, err
	}
	return &Validator{v: v}, nil
}

// RegisterCustom installs password_strength and email_or_username on v.
func RegisterCustom(v *validator.Validate) error {
	if err := v.RegisterValidation(passwordStrengthTag, func(fl validator.FieldLevel) bool {
		return security.MixedCase(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("register %s: %w", passwordStrengthTag, err)
	}
	if err := v.RegisterValidation(emailOrUsernameTag, func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if v.Var(value, "email") == nil {
			return true
		}
		return isUsername(value)
	}); err != nil {
		return fmt.Errorf("register %s: %w", emailOrUsernameTag, err)
	}
	return nil
}

// Check validates values against table in order and returns the first failure as *Error.
func (val *Validator) Check(table Table, values map[string]string) error {
	for _, rule := range table {
		err := val.v.Var(values[rule.Field], rule.Tags)
		if err == nil {
			continue
		}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return &Error{
				Field:   rule.Field,
				Tag:     fieldErrs[0].Tag(),
				Message: message(rule.Field, fieldErrs[0]),
			}
		}
		return fmt.Errorf("validate %s: %w", rule.Field, err)
	}
	return nil
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " should not be empty"
	case "min":
		return fmt.Sprintf("%s must be longer than or equal to %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be shorter than or equal to %s characters", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters long", field, fe.Param())
	case "email":
		return field + " must be an email"
	case "numeric", "number":
		return field + " must be a number"
	case "hexadecimal":
		return field + " is malformed"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case passwordStrengthTag:
		return weakPasswordMessage
	case emailOrUsernameTag:
		return emailOrUsernameMessage
	default:
		return field + " is invalid"
	}
}

func isUsername(value string) bool {
	if len(value) < minUsernameLen || len(value) > maxUsernameLen {
		return false
	}
	for _, r := range value {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

package security

const (
	defaultMinPasswordLength = 8
	defaultMaxPasswordLength = 100
)

// DefaultPasswordValidator returns the storefront password policy: 8-100 characters,
// mixed case with a digit or symbol, and, when minScore > 0, a minimum zxcvbn score.
func DefaultPasswordValidator(minScore int, userInputs ...string) *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(defaultMinPasswordLength),
		MaxLengthRule(defaultMaxPasswordLength),
		MixedCaseRule(),
		RequirePasswordStrengthRule(minScore, userInputs...),
	)
}

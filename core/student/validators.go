package student

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/credential"
)

const PasswordMinLen = 8

var (
	aadhaarTag   = "aadhaar"
	aadhaarText  = "Aadhaar must be exactly 12 digits"
	aadhaarRegex = regexp.MustCompile(`^\d{12}$`)

	apaarTag   = "apaar"
	apaarText  = "APAAR ID must be exactly 12 letters or digits"
	apaarRegex = regexp.MustCompile(`^[A-Za-z0-9]{12}$`)

	// rules, in evaluation order
	ErrPasswordModeInvalid    = errors.New("invalid password mode")
	ErrPasswordRequired       = errors.New("password required")
	ErrPasswordTooShort       = errors.New("password too short")
	ErrPasswordMismatch       = errors.New("password mismatch")
	ErrParentPasswordTooShort = errors.New("parent password too short")
	ErrParentPasswordMismatch = errors.New("parent password mismatch")
	ErrAadhaarRequired        = errors.New("Aadhaar required")
	ErrAadhaarInvalid         = errors.New("Aadhaar invalid")
	ErrParentRoleInvalid      = errors.New("invalid parent account role")
	ErrParentEmailMissing     = errors.New("missing parent email")

	// strict password policy
	ErrPasswordWhitespace = errors.New("password must not contain whitespace")
	ErrPasswordAllNumeric = errors.New("password cannot be entirely numeric")
	ErrPasswordComplexity = errors.New("password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character")
	ErrPasswordTooSimilar = errors.New("password cannot be similar to the student's name or email")

	pwdMaxSim    = .7
	specialRegex = regexp.MustCompile("[^A-Za-z0-9]")
)

// InitValidators registers the student validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(aadhaarTag, aadhaarValidation)
	core.RegisterCustomTranslation(validate, translator, aadhaarTag, aadhaarText)

	_ = validate.RegisterValidation(apaarTag, apaarValidation)
	core.RegisterCustomTranslation(validate, translator, apaarTag, apaarText)
}

// Check is everything the enrollment form validation looks at.
type Check struct {
	Draft           Draft
	Passwords       credential.PasswordPolicy
	ParentAccount   ParentRole
	NewEnrollment   bool
	StrictPasswords bool
}

// Validate returns the first violated rule as a *core.ValidationError, or nil.
// It has no side effects.
func Validate(validate *validator.Validate, translator ut.Translator, c Check) error {
	d := c.Draft
	pwds := c.Passwords

	if mode, ok := credential.ParseMode(string(pwds.Mode)); ok {
		pwds.Mode = mode
	} else if c.NewEnrollment {
		return ruleErr(ErrPasswordModeInvalid, "passwords.mode")
	}

	if c.NewEnrollment && pwds.Custom() {
		// 1. student password
		switch {
		case pwds.StudentPassword == "":
			return ruleErr(ErrPasswordRequired, "passwords.student_password")
		case len(pwds.StudentPassword) < PasswordMinLen:
			return ruleErr(ErrPasswordTooShort, "passwords.student_password")
		case pwds.StudentPassword != pwds.StudentPasswordConfirm:
			return ruleErr(ErrPasswordMismatch, "passwords.student_password_confirm")
		}

		// 2. parent password, when supplied
		if pwds.HasParentPassword() {
			if len(pwds.ParentPassword) < PasswordMinLen {
				return ruleErr(ErrParentPasswordTooShort, "passwords.parent_password")
			}
			if pwds.ParentPassword != pwds.ParentPasswordConfirm {
				return ruleErr(ErrParentPasswordMismatch, "passwords.parent_password_confirm")
			}
		}
	}

	// 3. Aadhaar, new enrollments only
	if c.NewEnrollment {
		aadhaar := strings.ReplaceAll(strings.TrimSpace(d.AadhaarNumber), " ", "")
		if aadhaar == "" {
			return ruleErr(ErrAadhaarRequired, "aadhaar_number")
		}
		if !aadhaarRegex.MatchString(aadhaar) {
			return ruleErr(ErrAadhaarInvalid, "aadhaar_number", aadhaarText)
		}
	}

	// 4. parent account holder's email, when accounts are created
	if c.NewEnrollment && pwds.Mode != credential.ModeNone && c.ParentAccount != ParentNone {
		if !c.ParentAccount.Valid() {
			return ruleErr(ErrParentRoleInvalid, "parent_account")
		}
		if d.ParentEmail(c.ParentAccount) == "" {
			return core.NewValidationError(ErrParentEmailMissing, core.FieldError{
				Field: string(c.ParentAccount) + ".email",
				Error: fmt.Sprintf("missing parent email for role %s", c.ParentAccount),
			})
		}
	}

	// field formats
	if err := validate.Struct(d); err != nil {
		return core.TranslateValidationErrors(err, translator)
	}

	if c.NewEnrollment && pwds.Custom() && c.StrictPasswords {
		if err := checkPasswordStrength(pwds.StudentPassword, d.FullName(), d.Email); err != nil {
			return ruleErr(err, "passwords.student_password")
		}
		if pwds.HasParentPassword() {
			if err := checkPasswordStrength(pwds.ParentPassword, d.FullName(), d.Email); err != nil {
				return ruleErr(err, "passwords.parent_password")
			}
		}
	}
	return nil
}

func ruleErr(err error, field string, msg ...string) error {
	text := err.Error()
	if len(msg) > 0 {
		text = msg[0]
	}
	return core.NewValidationError(err, core.FieldError{Field: field, Error: text})
}

// checkPasswordStrength applies the strict password policy:
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no similarity to the student's name or email
func checkPasswordStrength(pwd string, attrs ...string) error {
	var (
		digitCount         int
		hasUpper, hasLower bool
	)
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			return ErrPasswordWhitespace
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == len([]rune(pwd)) {
		return ErrPasswordAllNumeric
	}
	if !(hasUpper && hasLower && digitCount > 0 && specialRegex.MatchString(pwd)) {
		return ErrPasswordComplexity
	}

	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		attr = strings.ToLower(attr)
		if attr == "" {
			continue
		}
		ratio := difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(attr, "")).QuickRatio()
		if ratio >= pwdMaxSim {
			return ErrPasswordTooSimilar
		}
	}
	return nil
}

// Custom Validators

func aadhaarValidation(fl validator.FieldLevel) bool {
	return aadhaarRegex.MatchString(fl.Field().String())
}

func apaarValidation(fl validator.FieldLevel) bool {
	return apaarRegex.MatchString(fl.Field().String())
}

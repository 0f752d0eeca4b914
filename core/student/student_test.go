package student

import (
	"errors"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/credential"
)

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate, translator
}

func validDraft() Draft {
	return Draft{
		FirstName:     "Asha",
		LastName:      "Rao",
		Email:         "asha@school.test",
		DateOfBirth:   "2015-04-12",
		ClassID:       "7",
		SectionID:     "A",
		AadhaarNumber: "123456789012",
		Father:        Parent{Name: "Farid Rao", Email: "farid@home.test"},
	}
}

func custom(pwd, confirm string) credential.PasswordPolicy {
	return credential.PasswordPolicy{Mode: credential.ModeCustom, StudentPassword: pwd, StudentPasswordConfirm: confirm}
}

func TestValidate(t *testing.T) {
	validate, translator := newValidator()

	noAadhaar := validDraft()
	noAadhaar.AadhaarNumber = ""
	shortAadhaar := validDraft()
	shortAadhaar.AadhaarNumber = "12345678901"
	alphaAadhaar := validDraft()
	alphaAadhaar.AadhaarNumber = "12345678901A"
	spacedAadhaar := validDraft()
	spacedAadhaar.AadhaarNumber = "1234 5678 9012"
	noFatherEmail := validDraft()
	noFatherEmail.Father.Email = ""
	badApaar := validDraft()
	badApaar.ApaarID = "ABC"
	goodApaar := validDraft()
	goodApaar.ApaarID = "AB12CD34EF56"
	badEmail := validDraft()
	badEmail.Mother.Email = "not-an-email"
	badDob := validDraft()
	badDob.DateOfBirth = "12/04/2015"
	noName := validDraft()
	noName.FirstName = ""

	parentPwd := custom("student1", "student1")
	parentPwd.ParentPassword = "parent"
	parentPwd.ParentPasswordConfirm = "parent"
	parentMismatch := custom("student1", "student1")
	parentMismatch.ParentPassword = "parent11"
	parentMismatch.ParentPasswordConfirm = "parent12"

	tests := []struct {
		name      string
		check     Check
		wantErr   error
		wantField string
	}{
		{name: "valid generate", check: Check{Draft: validDraft(), NewEnrollment: true}},
		{name: "valid custom", check: Check{Draft: validDraft(), Passwords: custom("student1", "student1"), NewEnrollment: true}},
		{name: "custom: no password", check: Check{Draft: validDraft(), Passwords: custom("", ""), NewEnrollment: true}, wantErr: ErrPasswordRequired},
		{name: "custom: too short", check: Check{Draft: validDraft(), Passwords: custom("short", "short"), NewEnrollment: true}, wantErr: ErrPasswordTooShort},
		{name: "custom: mismatch", check: Check{Draft: validDraft(), Passwords: custom("student1", "student2"), NewEnrollment: true}, wantErr: ErrPasswordMismatch},
		{name: "custom: parent too short", check: Check{Draft: validDraft(), Passwords: parentPwd, NewEnrollment: true}, wantErr: ErrParentPasswordTooShort},
		{name: "custom: parent mismatch", check: Check{Draft: validDraft(), Passwords: parentMismatch, NewEnrollment: true}, wantErr: ErrParentPasswordMismatch},
		{name: "password rule before aadhaar rule", check: Check{Draft: noAadhaar, Passwords: custom("short", "short"), NewEnrollment: true}, wantErr: ErrPasswordTooShort},
		{name: "aadhaar required", check: Check{Draft: noAadhaar, NewEnrollment: true}, wantErr: ErrAadhaarRequired, wantField: "aadhaar_number"},
		{name: "aadhaar 11 digits", check: Check{Draft: shortAadhaar, NewEnrollment: true}, wantErr: ErrAadhaarInvalid},
		{name: "aadhaar not numeric", check: Check{Draft: alphaAadhaar, NewEnrollment: true}, wantErr: ErrAadhaarInvalid},
		{name: "aadhaar with spaces", check: Check{Draft: spacedAadhaar, NewEnrollment: true}},
		{name: "edit: aadhaar unchecked", check: Check{Draft: shortAadhaar}},
		{name: "edit: passwords unchecked", check: Check{Draft: validDraft(), Passwords: custom("x", "y")}},
		{name: "parent email missing", check: Check{Draft: noFatherEmail, ParentAccount: ParentFather, NewEnrollment: true}, wantErr: ErrParentEmailMissing, wantField: "father.email"},
		{name: "mother account without email", check: Check{Draft: validDraft(), ParentAccount: ParentMother, NewEnrollment: true}, wantErr: ErrParentEmailMissing},
		{name: "father account", check: Check{Draft: validDraft(), ParentAccount: ParentFather, NewEnrollment: true}},
		{name: "unknown parent role", check: Check{Draft: validDraft(), ParentAccount: "uncle", NewEnrollment: true}, wantErr: ErrParentRoleInvalid},
		{name: "aadhaar before parent email", check: Check{Draft: func() Draft { d := noFatherEmail; d.AadhaarNumber = ""; return d }(), ParentAccount: ParentFather, NewEnrollment: true}, wantErr: ErrAadhaarRequired},
		{name: "valid apaar", check: Check{Draft: goodApaar, NewEnrollment: true}},
		{name: "unknown password mode", check: Check{Draft: validDraft(), Passwords: credential.PasswordPolicy{Mode: "custm"}, NewEnrollment: true}, wantErr: ErrPasswordModeInvalid, wantField: "passwords.mode"},
		{name: "mode checked before passwords", check: Check{Draft: noAadhaar, Passwords: credential.PasswordPolicy{Mode: "sms", StudentPassword: "x"}, NewEnrollment: true}, wantErr: ErrPasswordModeInvalid},
		{name: "upper case custom: mismatch", check: Check{Draft: validDraft(), Passwords: credential.PasswordPolicy{Mode: "CUSTOM", StudentPassword: "student1", StudentPasswordConfirm: "student2"}, NewEnrollment: true}, wantErr: ErrPasswordMismatch},
		{name: "edit: mode unchecked", check: Check{Draft: validDraft(), Passwords: credential.PasswordPolicy{Mode: "custm"}}},
		{name: "none: parent email unchecked", check: Check{Draft: noFatherEmail, Passwords: credential.PasswordPolicy{Mode: credential.ModeNone}, ParentAccount: ParentFather, NewEnrollment: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(validate, translator, tt.check)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)

			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Len(t, vErr.Fields, 1)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
			}
		})
	}

	// field format rules
	formatTests := []struct {
		name      string
		draft     Draft
		wantField string
	}{
		{name: "bad apaar", draft: badApaar, wantField: "apaar_id"},
		{name: "bad parent email", draft: badEmail, wantField: "mother.email"},
		{name: "bad date of birth", draft: badDob, wantField: "date_of_birth"},
		{name: "no first name", draft: noName, wantField: "first_name"},
	}
	for _, tt := range formatTests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(validate, translator, Check{Draft: tt.draft, NewEnrollment: true})
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
			assert.NotEmpty(t, vErr.Fields[0].Error)
		})
	}
}

func TestValidate_parentEmailMessage(t *testing.T) {
	validate, translator := newValidator()
	d := validDraft()
	d.Guardian.Name = "Gita"

	err := Validate(validate, translator, Check{Draft: d, ParentAccount: ParentGuardian, NewEnrollment: true})
	require.Error(t, err)
	assert.Equal(t, "missing parent email for role guardian", err.Error())
}

func TestValidate_strictPasswords(t *testing.T) {
	validate, translator := newValidator()

	tests := []struct {
		name    string
		pwd     string
		wantErr error
	}{
		{name: "whitespace", pwd: "pass word1!A", wantErr: ErrPasswordWhitespace},
		{name: "all numeric", pwd: "12345678", wantErr: ErrPasswordAllNumeric},
		{name: "no complexity", pwd: "abcdefgh", wantErr: ErrPasswordComplexity},
		{name: "similar to name", pwd: "AshaRao1!", wantErr: ErrPasswordTooSimilar},
		{name: "strong", pwd: "Tr0ub4dor&3x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(validate, translator, Check{
				Draft:           validDraft(),
				Passwords:       custom(tt.pwd, tt.pwd),
				NewEnrollment:   true,
				StrictPasswords: true,
			})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestNextRoll(t *testing.T) {
	assert.Equal(t, "7A-004", NextRoll(ClassSequence{Prefix: "7A-", Next: 4, Width: 3}))
	assert.Equal(t, "12", NextRoll(ClassSequence{Next: 12}))
	assert.Equal(t, "R1", NextRoll(ClassSequence{Prefix: "R"}))

	d := Draft{ClassID: "7"}
	assert.True(t, d.ApplyRoll(ClassSequence{ClassID: "7", Next: 3, Width: 2}))
	assert.Equal(t, "03", d.RollNumber)
	assert.False(t, d.ApplyRoll(ClassSequence{ClassID: "7", Next: 9}), "an existing roll number is kept")

	other := Draft{ClassID: "8"}
	assert.False(t, other.ApplyRoll(ClassSequence{ClassID: "7", Next: 1}))
}

func TestDraft_CleanAndParents(t *testing.T) {
	d := Draft{
		FirstName:     "  Asha ",
		Email:         " ASHA@School.Test ",
		AadhaarNumber: " 1234 5678 9012 ",
		Guardian:      Guardian{Parent: Parent{Email: " G@Home.Test"}, Relation: " aunt "},
	}
	d.Clean()
	assert.Equal(t, "Asha", d.FirstName)
	assert.Equal(t, "asha@school.test", d.Email)
	assert.Equal(t, "123456789012", d.AadhaarNumber)
	assert.Equal(t, "g@home.test", d.ParentEmail(ParentGuardian))
	assert.Equal(t, "aunt", d.Guardian.Relation)
	assert.Equal(t, "", d.ParentEmail(ParentNone))

	s := Student{ID: "s1", FirstName: "Asha", ClassID: "7", IsActive: true, Draft: &Draft{AadhaarNumber: "123456789012"}}
	hydrated := FromStudent(s)
	assert.Equal(t, "Asha", hydrated.FirstName)
	assert.Equal(t, "123456789012", hydrated.AadhaarNumber)
	require.NotNil(t, hydrated.IsActive)
	assert.True(t, *hydrated.IsActive)
	assert.Equal(t, "7", hydrated.Patch().ClassID)
}

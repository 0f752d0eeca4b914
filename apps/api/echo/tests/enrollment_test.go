package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core/audit"
	"github.com/trezcool/registrar/core/credential"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/student"
)

type enrollmentResponse struct {
	enrollment.Outcome
	ShowCredentials bool `json:"show_credentials"`
}

func submission(pwds credential.PasswordPolicy) enrollment.Submission {
	return enrollment.Submission{
		Draft: student.Draft{
			FirstName:     "Asha",
			LastName:      "Verma",
			Email:         "asha@school.test",
			ClassID:       "7",
			AadhaarNumber: "1234 5678 9012",
			Father:        student.Parent{Name: "Ravi", Email: "ravi@mail.test"},
		},
		Passwords:     pwds,
		ParentAccount: student.ParentFather,
	}
}

func custom(pwd string) credential.PasswordPolicy {
	return credential.PasswordPolicy{Mode: credential.ModeCustom, StudentPassword: pwd, StudentPasswordConfirm: pwd}
}

func Test_enrollmentApi_create(t *testing.T) {
	ta := newTestApp(t)
	sub := submission(custom("Secret123"))
	sub.Documents = map[student.DocumentKind]enrollment.Document{
		student.DocBirthCertificate: {Filename: "birth.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")},
	}

	rec := ta.serve(http.MethodPost, "/v1/enrollments", ta.token, marshallObj(t, sub))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res enrollmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.ShowCredentials)
	assert.Equal(t, enrollment.StateCredentialsReady, res.State)
	assert.Equal(t, "stu-1", res.Student.ID)
	assert.Equal(t, "7A-004", res.Student.RollNumber, "roll number from the class sequence")
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []credential.Issued{
		{Email: "asha@school.test", Password: "Secret123", Role: "student", DisplayName: "Asha Verma"},
		{Email: "ravi@mail.test", Password: "Secret123", Role: "father", DisplayName: "Ravi"},
	}, res.Credentials, "blank parent password reuses the student's")

	require.Len(t, ta.api.Uploads(), 1)
	assert.Equal(t, "birth.pdf", ta.api.Uploads()[0].Filename)

	// journal and summary never carry the passwords
	entries, err := ta.auditRepo.FilterEntries(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionEnrolled, entries[0].Action)
	assert.Equal(t, "Asha Verma; account student <asha@school.test>; account father <ravi@mail.test>", entries[0].Detail)
	assert.Equal(t, "op-1", entries[0].ActorID)

	sent := ta.mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "office@school.test", sent[0].To[0].Address)
	assert.Equal(t, "registrar@school.test", sent[0].Cc[0].Address)
	assert.Contains(t, sent[0].TextContent, "Asha Verma has been enrolled")
	assert.NotContains(t, sent[0].TextContent+sent[0].HTMLContent, "Secret123")
}

func Test_enrollmentApi_createErrors(t *testing.T) {
	ta := newTestApp(t)

	badAadhaar := submission(credential.PasswordPolicy{Mode: credential.ModeGenerate})
	badAadhaar.Draft.AadhaarNumber = "1234"
	noMotherEmail := submission(credential.PasswordPolicy{Mode: credential.ModeGenerate})
	noMotherEmail.ParentAccount = student.ParentMother
	typoMode := submission(credential.PasswordPolicy{Mode: "genrate"})
	upperCustom := submission(credential.PasswordPolicy{Mode: "CUSTOM", StudentPassword: "Secret123", StudentPasswordConfirm: "Secret124"})

	tests := []httpTest{
		{
			name: "unknown password mode", method: http.MethodPost, path: "/v1/enrollments",
			body: marshallObj(t, typoMode), token: ta.token, wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"passwords.mode": "invalid password mode"}),
		},
		{
			name: "upper case custom mode", method: http.MethodPost, path: "/v1/enrollments",
			body: marshallObj(t, upperCustom), token: ta.token, wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"passwords.student_password_confirm": "password mismatch"}),
		},
		{
			name: "short password", method: http.MethodPost, path: "/v1/enrollments",
			body: marshallObj(t, submission(custom("short"))), token: ta.token, wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"passwords.student_password": "password too short"}),
		},
		{
			name: "invalid aadhaar", method: http.MethodPost, path: "/v1/enrollments",
			body: marshallObj(t, badAadhaar), token: ta.token, wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"aadhaar_number": "Aadhaar must be exactly 12 digits"}),
		},
		{
			name: "missing parent email", method: http.MethodPost, path: "/v1/enrollments",
			body: marshallObj(t, noMotherEmail), token: ta.token, wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"mother.email": "missing parent email for role mother"}),
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/v1/enrollments",
			body: []byte(`{"student": `), token: ta.token, wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ta.serve(tt.method, tt.path, tt.token, tt.body)
			if tt.wantData == nil {
				assert.Equal(t, tt.wantCode, rec.Code)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
	assert.Empty(t, ta.api.Requests(), "rejected submissions never reach the school API")
}

func Test_enrollmentApi_createFailed(t *testing.T) {
	ta := newTestApp(t)
	ta.api.Fail(http.MethodPost, "/students/create-with-credentials", http.StatusConflict, "admission number already in use")

	rec := ta.serve(http.MethodPost, "/v1/enrollments", ta.token, marshallObj(t, submission(custom("Secret123"))))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadGateway,
		wantData: marshallObj(t, httpErr{Error: "admission number already in use"}),
	}, rec)

	entries, _ := ta.auditRepo.FilterEntries(context.Background(), audit.Filter{})
	assert.Empty(t, entries)
}

func Test_enrollmentApi_uploadWarning(t *testing.T) {
	ta := newTestApp(t)
	ta.api.Fail(http.MethodPost, "/students/:id/documents/:kind", http.StatusRequestEntityTooLarge, "file too large")

	sub := submission(credential.PasswordPolicy{Mode: credential.ModeNone})
	sub.ParentAccount = student.ParentNone
	sub.Documents = map[student.DocumentKind]enrollment.Document{
		student.DocAadhaar: {Filename: "aadhaar.jpg", Content: []byte{0xff, 0xd8}},
	}

	rec := ta.serve(http.MethodPost, "/v1/enrollments", ta.token, marshallObj(t, sub))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res enrollmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.ShowCredentials)
	assert.Equal(t, enrollment.StateDone, res.State)
	assert.Equal(t, []enrollment.Warning{{Step: "upload:aadhaar", Message: "file too large"}}, res.Warnings)
}

func Test_enrollmentApi_update(t *testing.T) {
	ta := newTestApp(t)
	ta.api.AddStudent(student.Student{ID: "stu-9", FirstName: "Old", IsActive: true})

	sub := submission(custom("ignored"))
	inactive := false
	sub.Draft.IsActive = &inactive
	sub.Draft.AadhaarNumber = ""

	rec := ta.serve(http.MethodPut, "/v1/students/stu-9", ta.token, marshallObj(t, sub))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res enrollmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, enrollment.StateDone, res.State)
	assert.Empty(t, res.Credentials)
	assert.False(t, res.ShowCredentials)

	s, ok := ta.api.Student("stu-9")
	require.True(t, ok)
	assert.Equal(t, "Asha", s.FirstName)
	assert.False(t, s.IsActive)

	assert.False(t, res.Student.IsActive)
	assert.Equal(t, 1, ta.api.Count(http.MethodGet, "/students/:id"), "record read back")

	rec = ta.serve(http.MethodPut, "/v1/students/missing", ta.token, marshallObj(t, sub))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_enrollmentApi_updateKeepsStatus(t *testing.T) {
	ta := newTestApp(t)
	ta.api.AddStudent(student.Student{ID: "stu-9", FirstName: "Old", IsActive: true})

	// only the name changes; is_active is not in the body
	body := []byte(`{"student": {"first_name": "Asha", "last_name": "Verma", "class_id": "7"}}`)
	rec := ta.serve(http.MethodPut, "/v1/students/stu-9", ta.token, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res enrollmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Student.IsActive)
	assert.Zero(t, ta.api.Count(http.MethodPatch, "/students/:id/status"))

	s, _ := ta.api.Student("stu-9")
	assert.Equal(t, "Asha", s.FirstName)
	assert.True(t, s.IsActive)
}

func Test_enrollmentApi_show(t *testing.T) {
	ta := newTestApp(t)
	ta.api.AddStudent(student.Student{
		ID:         "stu-9",
		FirstName:  "Asha",
		LastName:   "Verma",
		ClassID:    "7",
		RollNumber: "7A-009",
		Draft: &student.Draft{
			AadhaarNumber: "123456789012",
			Father:        student.Parent{Name: "Ravi", Email: "ravi@mail.test"},
		},
	})

	rec := ta.serve(http.MethodGet, "/v1/students/stu-9", ta.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		ID      string        `json:"id"`
		Student student.Draft `json:"student"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "stu-9", res.ID)
	assert.Equal(t, "Asha", res.Student.FirstName)
	assert.Equal(t, "7A-009", res.Student.RollNumber)
	assert.Equal(t, "123456789012", res.Student.AadhaarNumber)
	assert.Equal(t, "ravi@mail.test", res.Student.Father.Email)
	require.NotNil(t, res.Student.IsActive)
	assert.False(t, *res.Student.IsActive)

	// the hydrated draft goes straight back to update
	rec = ta.serve(http.MethodPut, "/v1/students/stu-9", ta.token, marshallObj(t, enrollment.Submission{Draft: res.Student}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patch, ok := ta.api.Patch("stu-9")
	require.True(t, ok)
	assert.Equal(t, "ravi@mail.test", patch.Father.Email)

	rec = ta.serve(http.MethodGet, "/v1/students/missing", ta.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_enrollmentApi_lookup(t *testing.T) {
	ta := newTestApp(t)
	ta.api.Accounts["ravi@mail.test"] = enrollment.Account{ID: "u-3", Name: "Ravi", Email: "ravi@mail.test", Roles: []string{"parent"}}

	tests := []httpTest{
		{
			name: "existing", method: http.MethodGet, path: "/v1/accounts/lookup?email=Ravi@Mail.test", token: ta.token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"email": "ravi@mail.test", "exists": true, "account": {"id": "u-3", "name": "Ravi", "roles": ["parent"]}}`),
		},
		{
			name: "unknown", method: http.MethodGet, path: "/v1/accounts/lookup?email=nobody@mail.test", token: ta.token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"email": "nobody@mail.test", "exists": false}`),
		},
		{
			name: "missing email", method: http.MethodGet, path: "/v1/accounts/lookup", token: ta.token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email": "this field is required"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, ta.serve(tt.method, tt.path, tt.token, tt.body))
		})
	}
}

func Test_enrollmentApi_checkAccounts(t *testing.T) {
	ta := newTestApp(t)
	ta.api.Accounts["ravi@mail.test"] = enrollment.Account{ID: "u-3", Name: "Ravi Verma", Email: "ravi@mail.test"}

	rec := ta.serve(http.MethodPost, "/v1/enrollments/check-accounts", ta.token, marshallObj(t, submission(custom("Secret123"))))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marshallObj(t, []enrollment.Notice{{Field: "father.email", Message: "ravi@mail.test already belongs to Ravi Verma"}}),
	}, rec)
}

func Test_enrollmentApi_quote(t *testing.T) {
	ta := newTestApp(t)

	tests := []httpTest{
		{
			name: "sibling discount", method: http.MethodPost, path: "/v1/fees/quote", token: ta.token,
			body:     []byte(`{"admission_fee": "2000", "apply_sibling_discount": true, "due_date": "2026-11-01T00:00:00Z"}`),
			wantCode: http.StatusOK,
			wantData: []byte(`{"student_id": "", "items": [{"name": "Admission Fee", "amount": "2000"}], "gross": "2000", "discount": "200", "total": "1800", "due_date": "2026-11-01"}`),
		},
		{
			name: "discount too large", method: http.MethodPost, path: "/v1/fees/quote", token: ta.token,
			body:     []byte(`{"admission_fee": "100", "discount": "150"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"fee.discount": "discount cannot exceed the total of the fee items"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, ta.serve(tt.method, tt.path, tt.token, tt.body))
		})
	}
	assert.Empty(t, ta.api.Requests(), "quotes are computed locally")
}

func TestNoSecretsInAudit(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.serve(http.MethodPost, "/v1/enrollments", ta.token, marshallObj(t, submission(custom("Secret123"))))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ta.serve(http.MethodGet, "/v1/audit", ta.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "Secret123"))
	assert.Contains(t, rec.Body.String(), `"action":"student.enrolled"`)
}

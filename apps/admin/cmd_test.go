package main

import (
	"bytes"
	"context"
	"net/http"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/audit"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/leave"
	"github.com/trezcool/registrar/core/student"
	clipboardsvc "github.com/trezcool/registrar/services/clipboard"
	emailsvc "github.com/trezcool/registrar/services/email"
	"github.com/trezcool/registrar/services/schoolapi"
	"github.com/trezcool/registrar/storage/database"
	inmemdb "github.com/trezcool/registrar/storage/database/inmem"
	testutil "github.com/trezcool/registrar/tests"
)

func TestMain(m *testing.M) {
	core.ParseEmailTemplates(&nopLogger{})
	os.Exit(m.Run())
}

type nopLogger struct{}

func (*nopLogger) Debug(string, ...interface{}) {}
func (*nopLogger) Info(string, ...interface{})  {}
func (*nopLogger) Warn(string, ...interface{})  {}
func (*nopLogger) Error(string, ...interface{}) {}
func (*nopLogger) Fatal(string, ...interface{}) {}

type testCLI struct {
	*commandLine
	api       *testutil.FakeSchoolAPI
	out       *bytes.Buffer
	clip      *clipboardsvc.Memory
	mailer    *emailsvc.ConsoleServiceMock
	auditRepo audit.Repository
}

func setup(t *testing.T, input string) *testCLI {
	t.Helper()

	token := testutil.NewToken(t, core.Session{
		UserID:   "op-1",
		Name:     "Front Office",
		Email:    "office@school.test",
		SchoolID: "sch-1",
		Roles:    []string{"admin"},
	})
	api := testutil.NewFakeSchoolAPI(t)
	api.Token = token
	api.Sequences["7"] = student.ClassSequence{ClassID: "7", Prefix: "7A-", Next: 4, Width: 3}

	conf := &core.Config{
		AppName:          "Registrar",
		TestMode:         true,
		FrontendBaseURL:  "https://portal.school.test",
		DefaultFromEmail: mail.Address{Name: "Registrar", Address: "noreply@school.test"},
		API:              api.APIConfig(),
		Enrollment: core.EnrollmentConfig{
			SiblingDiscountPercent:        10,
			FeeDueDays:                    7,
			ReuseStudentPasswordForParent: true,
			OperatorEmail:                 "registrar@school.test",
		},
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	student.InitValidators(validate, translator)

	auditRepo := inmemdb.NewAuditRepository(inmemdb.Open())
	mailer := emailsvc.NewConsoleServiceMock(conf, &nopLogger{})
	clip := new(clipboardsvc.Memory)
	out := new(bytes.Buffer)

	return &testCLI{
		commandLine: &commandLine{
			conf:       conf,
			logger:     &nopLogger{},
			api:        schoolapi.NewClient(conf.API, &nopLogger{}),
			audit:      audit.NewService(auditRepo, &nopLogger{}),
			notifier:   enrollment.NewSummaryNotifier(mailer, conf.Enrollment.OperatorEmail),
			clip:       clip,
			validate:   validate,
			translator: translator,
			in:         strings.NewReader(input),
			out:        out,
		},
		api:       api,
		out:       out,
		clip:      clip,
		mailer:    mailer,
		auditRepo: auditRepo,
	}
}

func (tc *testCLI) run(args ...string) error {
	return tc.commandLine.run(append([]string{"admin"}, args...))
}

// writeFile writes content under dir and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const submissionYAML = `
student:
  first_name: Asha
  last_name: Verma
  email: asha@school.test
  class_id: "7"
  aadhaar_number: "1234 5678 9012"
  father:
    name: Ravi
    email: ravi@mail.test
parent_account: father
passwords:
  mode: %s
`

func submissionFor(mode string) string {
	return strings.Replace(submissionYAML, "%s", mode, 1)
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_usage(t *testing.T) {
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "enroll: no file", args: []string{"enroll"}, wantErr: errHelp},
		{name: "enroll: unknown flag", args: []string{"enroll", "-lol"}, wantErr: errHelp},
		{name: "update: no id", args: []string{"update", "-file", "x.yaml"}, wantErr: errHelp},
		{name: "update: no file", args: []string{"update", "-id", "stu-1"}, wantErr: errHelp},
		{name: "show: no id", args: []string{"show"}, wantErr: errHelp},
		{name: "lookup: no email", args: []string{"lookup"}, wantErr: errHelp},
		{name: "leaves: no subcommand", args: []string{"leaves"}, wantErr: errHelp},
		{name: "leaves: unknown subcommand", args: []string{"leaves", "lol"}, wantErr: errHelp},
		{name: "leaves: approve without key", args: []string{"leaves", "approve"}, wantErr: errHelp},
		{name: "migrate: no direction", args: []string{"migrate"}, wantErr: errHelp},
		{name: "migrate: unknown direction", args: []string{"migrate", "sideways"}, wantErr: errHelp},
		{name: "enroll: missing file", args: []string{"enroll", "-file", "does-not-exist.yaml"}, wantErrStr: "reading submission"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := setup(t, "")
			err := tc.run(tt.args...)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrStr)
			}
		})
	}
}

func Test_commandLine_session(t *testing.T) {
	tc := setup(t, "")
	tc.conf.Env = "DEV"
	tc.conf.API.Token = ""

	err := tc.run("lookup", "-email", "ravi@mail.test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set DEV_API_TOKEN")
	assert.Empty(t, tc.api.Requests())
}

func Test_commandLine_enroll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "birth.pdf", "%PDF-1.4")
	path := writeFile(t, dir, "asha.yaml", submissionFor("generate")+"documents:\n  birth-certificate: birth.pdf\n")

	tc := setup(t, "reveal 1\ncopy 2 password\ncopy 9\ndone\n")
	require.NoError(t, tc.run("enroll", "-file", path))

	out := tc.out.String()
	assert.Contains(t, out, "Asha Verma [id stu-1] roll 7A-004: credentials_ready")
	assert.Contains(t, out, "gen-stu-1", "revealed")
	assert.Contains(t, out, "copied password of ravi@mail.test")
	assert.Contains(t, out, "error: no row 9")
	assert.Contains(t, out, "Credentials closed.")

	text, err := tc.clip.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "gen-parent-stu-1", text)

	uploads := tc.api.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, student.DocBirthCertificate, uploads[0].Kind)
	assert.Equal(t, "birth.pdf", uploads[0].Filename)
	assert.Equal(t, "application/pdf", uploads[0].ContentType)

	entries, err := tc.auditRepo.FilterEntries(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionEnrolled, entries[0].Action)
	assert.NotContains(t, entries[0].Detail, "gen-")

	sent := tc.mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.NotContains(t, sent[0].TextContent, "gen-stu-1")
}

func Test_commandLine_enroll_closedOnEOF(t *testing.T) {
	path := writeFile(t, t.TempDir(), "asha.yaml", submissionFor("generate"))

	tc := setup(t, "")
	require.NoError(t, tc.run("enroll", "-file", path))

	out := tc.out.String()
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "gen-stu-1", "masked until revealed")
	assert.Contains(t, out, "Credentials closed.")
}

func Test_commandLine_enroll_customPasswords(t *testing.T) {
	defer func(fn func(int) ([]byte, error)) { readPasswordFunc = fn }(readPasswordFunc)

	type extra struct {
		mode string
		pwds []string
	}
	tests := []cliTest{
		{name: "prompted", extra: extra{mode: "custom", pwds: []string{"Secret123", "Secret123", ""}}},
		{name: "prompted for mixed case mode", extra: extra{mode: "Custom", pwds: []string{"Secret123", "Secret123", ""}}},
		{name: "mismatch", extra: extra{mode: "custom", pwds: []string{"Secret123", "Secret124", ""}}, wantErr: student.ErrPasswordMismatch},
		{name: "mismatch with upper case mode", extra: extra{mode: "CUSTOM", pwds: []string{"Secret123", "Secret124", ""}}, wantErr: student.ErrPasswordMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode := tt.extra.(extra).mode
			pwds := tt.extra.(extra).pwds
			readPasswordFunc = func(fd int) ([]byte, error) {
				if len(pwds) == 0 {
					return nil, errors.New("no more input")
				}
				pwd := pwds[0]
				pwds = pwds[1:]
				return []byte(pwd), nil
			}

			path := writeFile(t, t.TempDir(), "asha.yaml", submissionFor(mode))
			tc := setup(t, "done\n")
			err := tc.run("enroll", "-file", path)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, enrollment.IsKind(err, enrollment.ValidationFailed))
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Contains(t, tc.out.String(), "The submission has errors:")
				assert.Empty(t, tc.api.Created(), "nothing reaches the school API")
				return
			}

			require.NoError(t, err)
			created := tc.api.Created()
			require.Len(t, created, 1)
			assert.Equal(t, "Secret123", created[0].Passwords.StudentPassword)
			assert.Equal(t, "Secret123", created[0].Passwords.ParentPassword, "blank parent password reuses the student's")
			assert.NotContains(t, tc.out.String(), "Secret123")
		})
	}
}

func Test_commandLine_update(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "edit.yaml", `
student:
  first_name: Asha
  last_name: Sharma
  class_id: "7"
  roll_number: 7A-001
fee:
  admission_fee: "2000"
`)

	tc := setup(t, "")
	tc.api.AddStudent(student.Student{ID: "stu-9", FirstName: "Asha", LastName: "Verma", IsActive: true})

	require.NoError(t, tc.run("update", "-id", "stu-9", "-file", path))
	assert.Contains(t, tc.out.String(), ": done")

	patch, ok := tc.api.Patch("stu-9")
	require.True(t, ok)
	assert.Equal(t, "Sharma", patch.LastName)
	assert.Empty(t, tc.api.Fees(), "no fee on updates")

	s, _ := tc.api.Student("stu-9")
	assert.True(t, s.IsActive, "status untouched when the file has no is_active")
	assert.Zero(t, tc.api.Count(http.MethodPatch, "/students/:id/status"))

	err := tc.run("update", "-id", "missing", "-file", path)
	require.Error(t, err)
	assert.True(t, enrollment.IsKind(err, enrollment.UpdateFailed))
	assert.True(t, core.IsNotFound(err))
}

func Test_commandLine_show(t *testing.T) {
	tc := setup(t, "")
	tc.api.AddStudent(student.Student{
		ID:         "stu-9",
		FirstName:  "Asha",
		LastName:   "Verma",
		ClassID:    "7",
		RollNumber: "7A-009",
		IsActive:   true,
		Draft:      &student.Draft{AadhaarNumber: "123456789012", Mother: student.Parent{Name: "Meera", Email: "meera@mail.test"}},
	})

	require.NoError(t, tc.run("show", "-id", "stu-9"))
	out := tc.out.String()
	assert.Contains(t, out, "mode: edit")
	assert.Contains(t, out, "first_name: Asha")
	assert.Contains(t, out, "is_active: true")
	assert.NotContains(t, out, "student_password")

	// the printed file is a valid update
	path := writeFile(t, t.TempDir(), "stu-9.yaml", out)
	sub, err := loadSubmission(path)
	require.NoError(t, err)
	assert.Equal(t, "7A-009", sub.Draft.RollNumber)
	assert.Equal(t, "meera@mail.test", sub.Draft.Mother.Email)

	require.NoError(t, tc.run("update", "-id", "stu-9", "-file", path))
	patch, ok := tc.api.Patch("stu-9")
	require.True(t, ok)
	assert.Equal(t, "123456789012", patch.AadhaarNumber)

	err = tc.run("show", "-id", "missing")
	assert.True(t, core.IsNotFound(err))
}

func Test_commandLine_lookup(t *testing.T) {
	tc := setup(t, "")
	tc.api.Accounts["ravi@mail.test"] = enrollment.Account{ID: "u-3", Name: "Ravi", Email: "ravi@mail.test", Roles: []string{"parent"}}

	require.NoError(t, tc.run("lookup", "-email", " Ravi@Mail.test "))
	require.NoError(t, tc.run("lookup", "-email", "nobody@mail.test"))

	assert.Equal(t, "ravi@mail.test belongs to Ravi [id u-3, roles parent]\nnobody@mail.test has no portal account\n", tc.out.String())
}

func Test_commandLine_leaves(t *testing.T) {
	tc := setup(t, "")
	tc.api.StudentLeaves = []leave.StudentLeave{
		{Details: leave.Details{ID: "11", Type: "sick", StartDate: "2026-10-20", EndDate: "2026-10-21"}, StudentID: "s-1", StudentName: "Asha Verma"},
	}
	tc.api.TeacherLeaves = []leave.TeacherLeave{
		{Details: leave.Details{StartDate: "2026-10-19", EndDate: "2026-10-19"}, TeacherID: "t-2"},
	}

	require.NoError(t, tc.run("leaves", "list"))
	assert.Contains(t, tc.out.String(), "student:11")
	assert.Contains(t, tc.out.String(), "teacher:t-2:2026-10-19:2026-10-19 (read only)")

	tests := []cliTest{
		{name: "reject without reason", args: []string{"leaves", "reject", "-key", "student:11"}, wantErrStr: "a reason is required"},
		{name: "invalid key", args: []string{"leaves", "approve", "-key", "lol:1"}, wantErr: leave.ErrInvalidKey},
		{name: "no identifier", args: []string{"leaves", "approve", "-key", "teacher:t-2:2026-10-19:2026-10-19"}, wantErr: leave.ErrNoIdentifier},
		{name: "approve", args: []string{"leaves", "approve", "-key", "student:11", "-note", "get well soon"}},
		{name: "already decided", args: []string{"leaves", "approve", "-key", "student:11"}, wantErr: leave.ErrNotPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tc.run(tt.args...)
			switch {
			case tt.wantErr != nil:
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}

	assert.Equal(t, []testutil.Decision{{Kind: "students", ID: "11", Action: "approve", Comment: "get well soon"}}, tc.api.Decisions())

	tc.out.Reset()
	require.NoError(t, tc.run("audit", "-action", audit.ActionLeaveApproved))
	assert.Contains(t, tc.out.String(), "leave.approved")
	assert.Contains(t, tc.out.String(), "op-1")
}

func Test_commandLine_audit(t *testing.T) {
	tc := setup(t, "")
	require.NoError(t, tc.run("audit"))
	assert.Equal(t, "no journal entries\n", tc.out.String())
}

func Test_commandLine_migrate(t *testing.T) {
	defer func(fn func(*core.Config, string) error) { migrateFunc = fn }(migrateFunc)

	var ran []string
	migrateFunc = func(conf *core.Config, direction string) error {
		ran = append(ran, direction)
		return nil
	}

	tc := setup(t, "")
	assert.Equal(t, errNoDatabase, tc.run("migrate", "up"))

	tc.conf.Database.Name = "registrar"
	tests := []cliTest{
		{name: "up", args: []string{"migrate", "up"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "unknown", args: []string{"migrate", "redo"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tc.run(tt.args...))
		})
	}
	assert.Equal(t, []string{database.MigrateUp, database.MigrateDown, database.MigrateStatus}, ran)
}

package testutil

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/credential"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/leave"
	"github.com/trezcool/registrar/core/student"
)

// NewToken signs a session token the way the school API does. Tests only parse it, so the key does not matter.
func NewToken(t *testing.T, sess core.Session) string {
	t.Helper()
	claims := core.Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   sess.UserID,
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		},
		Name:     sess.Name,
		Email:    sess.Email,
		SchoolID: sess.SchoolID,
		Roles:    sess.Roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("NewToken() failed: %v", err)
	}
	return token
}

type (
	RecordedRequest struct {
		Method        string
		Route         string
		RequestID     string
		Authorization string
	}

	Upload struct {
		StudentID   string
		Kind        student.DocumentKind
		Filename    string
		ContentType string
		Content     []byte
	}

	Decision struct {
		Kind    string
		ID      string
		Action  string
		Comment string
	}

	failure struct {
		status  int
		message string
	}
)

// FakeSchoolAPI is an in-process school API. Exported fields may be seeded before the first request;
// read them back through the accessor methods.
type FakeSchoolAPI struct {
	Token         string // when set, requests must carry it
	Accounts      map[string]enrollment.Account
	Sequences     map[string]student.ClassSequence
	StudentLeaves []leave.StudentLeave
	TeacherLeaves []leave.TeacherLeave

	mu        sync.Mutex
	server    *httptest.Server
	nextID    int
	failures  map[string]failure
	requests  []RecordedRequest
	students  map[string]student.Student
	created   []enrollment.CreateRequest
	patches   map[string]student.Patch
	uploads   []Upload
	fees      []fee.Payload
	decisions []Decision
}

func NewFakeSchoolAPI(t *testing.T) *FakeSchoolAPI {
	t.Helper()
	f := &FakeSchoolAPI{
		Accounts:  make(map[string]enrollment.Account),
		Sequences: make(map[string]student.ClassSequence),
		failures:  make(map[string]failure),
		students:  make(map[string]student.Student),
		patches:   make(map[string]student.Patch),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(f.middleware)

	e.POST("/students/create-with-credentials", f.createStudent)
	e.GET("/students/:id", f.getStudent)
	e.PATCH("/students/:id", f.patchStudent)
	e.PATCH("/students/:id/status", f.updateStatus)
	e.POST("/students/:id/documents/:kind", f.uploadDocument)
	e.POST("/fees/admission", f.createFee)
	e.GET("/users/lookup", f.lookupUser)
	e.GET("/classes/:id/roll-sequence", f.rollSequence)
	e.GET("/leaves/students/pending", f.pendingStudentLeaves)
	e.GET("/leaves/teachers/pending", f.pendingTeacherLeaves)
	e.POST("/leaves/:kind/:id/:action", f.decideLeave)

	f.server = httptest.NewServer(e)
	t.Cleanup(f.server.Close)
	return f
}

func (f *FakeSchoolAPI) URL() string { return f.server.URL }

// APIConfig points a client at the fake.
func (f *FakeSchoolAPI) APIConfig() core.APIConfig {
	return core.APIConfig{BaseURL: f.server.URL, Token: f.Token, Timeout: 5 * time.Second}
}

// Fail makes every request to the route (eg. "/students/:id/documents/:kind") fail with the status and message.
func (f *FakeSchoolAPI) Fail(method, route string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+route] = failure{status, message}
}

// SetToken replaces the accepted token, as if the operator had signed in again.
func (f *FakeSchoolAPI) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Token = token
}

// AddStudent seeds an existing student.
func (f *FakeSchoolAPI) AddStudent(s student.Student) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.students[s.ID] = s
}

func (f *FakeSchoolAPI) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// Count returns the number of requests made to the route.
func (f *FakeSchoolAPI) Count(method, route string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Method == method && r.Route == route {
			n++
		}
	}
	return n
}

func (f *FakeSchoolAPI) Student(id string) (student.Student, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	return s, ok
}

func (f *FakeSchoolAPI) Created() []enrollment.CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enrollment.CreateRequest(nil), f.created...)
}

func (f *FakeSchoolAPI) Patch(id string) (student.Patch, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patches[id]
	return p, ok
}

func (f *FakeSchoolAPI) Uploads() []Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Upload(nil), f.uploads...)
}

func (f *FakeSchoolAPI) Fees() []fee.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fee.Payload(nil), f.fees...)
}

func (f *FakeSchoolAPI) Decisions() []Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Decision(nil), f.decisions...)
}

func (f *FakeSchoolAPI) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method:        req.Method,
			Route:         c.Path(),
			RequestID:     req.Header.Get("X-Request-ID"),
			Authorization: req.Header.Get("Authorization"),
		})
		fail, failing := f.failures[req.Method+" "+c.Path()]
		token := f.Token
		f.mu.Unlock()

		if token != "" && req.Header.Get("Authorization") != "Bearer "+token {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid token"})
		}
		if failing {
			return c.JSON(fail.status, echo.Map{"error": fail.message})
		}
		return next(c)
	}
}

func (f *FakeSchoolAPI) createStudent(c echo.Context) error {
	var req enrollment.CreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("stu-%d", f.nextID)
	d := req.Student
	s := student.Student{
		ID:              id,
		AdmissionNumber: fmt.Sprintf("ADM-%04d", f.nextID),
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		Email:           d.Email,
		ClassID:         d.ClassID,
		SectionID:       d.SectionID,
		RollNumber:      d.RollNumber,
		IsActive:        true,
	}
	details := d
	details.IsActive = nil
	stored := s
	stored.Draft = &details
	f.students[id] = stored
	f.created = append(f.created, req)

	res := enrollment.CreateResult{Student: s, CredentialsCreated: make([]credential.Issued, 0)}
	if req.Passwords.CreateAccounts {
		email := d.Email
		if email == "" {
			email = id + "@students.test"
		}
		pwd := req.Passwords.StudentPassword
		if req.Passwords.Generate {
			pwd = "gen-" + id
		}
		if req.Notify.Student {
			pwd = ""
		}
		res.CredentialsCreated = append(res.CredentialsCreated, credential.Issued{
			Email: email, Password: pwd, Role: credential.RoleStudent, DisplayName: s.FullName(),
		})

		if req.ParentAccount != student.ParentNone {
			parent, _ := d.ParentFor(req.ParentAccount)
			pwd := req.Passwords.ParentPassword
			if pwd == "" && (req.Passwords.Generate || req.Passwords.GenerateParent) {
				pwd = "gen-parent-" + id
			}
			if req.Notify.Parents {
				pwd = ""
			}
			res.CredentialsCreated = append(res.CredentialsCreated, credential.Issued{
				Email: parent.Email, Password: pwd, Role: string(req.ParentAccount), DisplayName: parent.Name,
			})
		}
	}
	return c.JSON(http.StatusCreated, res)
}

func (f *FakeSchoolAPI) getStudent(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "student not found"})
	}
	return c.JSON(http.StatusOK, s)
}

func (f *FakeSchoolAPI) patchStudent(c echo.Context) error {
	var patch student.Patch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "student not found"})
	}
	f.patches[s.ID] = patch
	if patch.FirstName != "" {
		s.FirstName = patch.FirstName
	}
	if patch.LastName != "" {
		s.LastName = patch.LastName
	}
	if patch.ClassID != "" {
		s.ClassID = patch.ClassID
	}
	if patch.SectionID != "" {
		s.SectionID = patch.SectionID
	}
	if patch.RollNumber != "" {
		s.RollNumber = patch.RollNumber
	}
	f.students[s.ID] = s
	return c.JSON(http.StatusOK, s)
}

func (f *FakeSchoolAPI) updateStatus(c echo.Context) error {
	var body struct {
		IsActive bool `json:"is_active"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "student not found"})
	}
	s.IsActive = body.IsActive
	f.students[s.ID] = s
	return c.NoContent(http.StatusNoContent)
}

func (f *FakeSchoolAPI) uploadDocument(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file is required"})
	}
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	content, err := ioutil.ReadAll(src)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, Upload{
		StudentID:   c.Param("id"),
		Kind:        student.DocumentKind(c.Param("kind")),
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     content,
	})
	return c.NoContent(http.StatusCreated)
}

func (f *FakeSchoolAPI) createFee(c echo.Context) error {
	var payload fee.Payload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fees = append(f.fees, payload)
	return c.JSON(http.StatusCreated, echo.Map{"id": fmt.Sprintf("fee-%d", len(f.fees))})
}

func (f *FakeSchoolAPI) lookupUser(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.Accounts[c.QueryParam("email")]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "not found"})
	}
	return c.JSON(http.StatusOK, acct)
}

func (f *FakeSchoolAPI) rollSequence(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq, ok := f.Sequences[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "class not found"})
	}
	return c.JSON(http.StatusOK, seq)
}

func (f *FakeSchoolAPI) pendingStudentLeaves(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return c.JSON(http.StatusOK, append([]leave.StudentLeave{}, f.StudentLeaves...))
}

// pendingTeacherLeaves answers with an envelope, like the paginated endpoints of the school API.
func (f *FakeSchoolAPI) pendingTeacherLeaves(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return c.JSON(http.StatusOK, echo.Map{"data": append([]leave.TeacherLeave{}, f.TeacherLeaves...)})
}

func (f *FakeSchoolAPI) decideLeave(c echo.Context) error {
	var body struct {
		Note   string `json:"note"`
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	kind, id, action := c.Param("kind"), c.Param("id"), c.Param("action")
	if action != "approve" && action != "reject" {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "not found"})
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	found := false
	switch kind {
	case "students":
		for i, l := range f.StudentLeaves {
			if l.ID == id {
				f.StudentLeaves = append(f.StudentLeaves[:i], f.StudentLeaves[i+1:]...)
				found = true
				break
			}
		}
	case "teachers":
		for i, l := range f.TeacherLeaves {
			if l.ID == id {
				f.TeacherLeaves = append(f.TeacherLeaves[:i], f.TeacherLeaves[i+1:]...)
				found = true
				break
			}
		}
	}
	if !found {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "leave request is not pending"})
	}

	comment := body.Note
	if action == "reject" {
		comment = body.Reason
	}
	f.decisions = append(f.decisions, Decision{Kind: kind, ID: id, Action: action, Comment: comment})
	return c.NoContent(http.StatusNoContent)
}

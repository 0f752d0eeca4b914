package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core/audit"
	"github.com/trezcool/registrar/core/leave"
	testutil "github.com/trezcool/registrar/tests"
)

func seedLeaves(api *testutil.FakeSchoolAPI) {
	api.StudentLeaves = []leave.StudentLeave{
		{Details: leave.Details{ID: "11", Type: "sick", StartDate: "2026-10-20", EndDate: "2026-10-21", Status: leave.StatusPending}, StudentID: "s-1", StudentName: "Asha Verma"},
		{Details: leave.Details{ID: "12", StartDate: "2026-10-18", EndDate: "2026-10-18", Status: leave.StatusApproved}, StudentID: "s-2"},
	}
	api.TeacherLeaves = []leave.TeacherLeave{
		{Details: leave.Details{ID: "21", StartDate: "2026-10-22", EndDate: "2026-10-23"}, TeacherID: "t-1", TeacherName: "R. Iyer"},
		{Details: leave.Details{StartDate: "2026-10-19", EndDate: "2026-10-19"}, TeacherID: "t-2"},
	}
}

func decodeViews(t *testing.T, body []byte) []string {
	t.Helper()
	var views []leave.View
	require.NoError(t, json.Unmarshal(body, &views))
	keys := make([]string, 0, len(views))
	for _, v := range views {
		keys = append(keys, v.Key)
	}
	return keys
}

func Test_leaveApi_list(t *testing.T) {
	ta := newTestApp(t)
	seedLeaves(ta.api)

	rec := ta.serve(http.MethodGet, "/v1/leaves", ta.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"teacher:t-2:2026-10-19:2026-10-19", "student:11", "teacher:21"}, decodeViews(t, rec.Body.Bytes()))

	var views []leave.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.False(t, views[0].Actionable, "no identifier")
	assert.True(t, views[1].Actionable)
	assert.Equal(t, "Asha Verma", views[1].SubjectName)
}

func Test_leaveApi_decide(t *testing.T) {
	ta := newTestApp(t)
	seedLeaves(ta.api)

	// approving before listing loads the queue first
	rec := ta.serve(http.MethodPost, "/v1/leaves/students/11/approve", ta.token, []byte(`{"note": "get well soon"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"teacher:t-2:2026-10-19:2026-10-19", "teacher:21"}, decodeViews(t, rec.Body.Bytes()))

	tests := []httpTest{
		{
			name: "already decided", method: http.MethodPost, path: "/v1/leaves/students/11/approve", token: ta.token,
			body: []byte(`{}`), wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "leave request is not pending"}),
		},
		{
			name: "reject without reason", method: http.MethodPost, path: "/v1/leaves/teachers/21/reject", token: ta.token,
			body: []byte(`{"reason": "  "}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"reason": "a reason is required to reject a leave request"}`),
		},
		{
			name: "unknown kind", method: http.MethodPost, path: "/v1/leaves/parents/1/approve", token: ta.token,
			body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "invalid leave key"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, ta.serve(tt.method, tt.path, tt.token, tt.body))
		})
	}

	rec = ta.serve(http.MethodPost, "/v1/leaves/teachers/21/reject", ta.token, []byte(`{"reason": "exams week"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"teacher:t-2:2026-10-19:2026-10-19"}, decodeViews(t, rec.Body.Bytes()))

	assert.Equal(t, []testutil.Decision{
		{Kind: "students", ID: "11", Action: "approve", Comment: "get well soon"},
		{Kind: "teachers", ID: "21", Action: "reject", Comment: "exams week"},
	}, ta.api.Decisions(), "each leave decided exactly once")

	entries, err := ta.auditRepo.FilterEntries(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionLeaveRejected, entries[0].Action)
	assert.Equal(t, "teacher:21", entries[0].SubjectID)
	assert.Equal(t, audit.ActionLeaveApproved, entries[1].Action)
}

func Test_leaveApi_newSession(t *testing.T) {
	ta := newTestApp(t)
	seedLeaves(ta.api)

	rec := ta.serve(http.MethodGet, "/v1/leaves", ta.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// same operator, signed in again: the old token is no longer accepted
	sess := ta.sess
	sess.Name = "Front Office Desk"
	fresh := testutil.NewToken(t, sess)
	require.NotEqual(t, ta.token, fresh)
	ta.api.SetToken(fresh)

	rec = ta.serve(http.MethodPost, "/v1/leaves/students/11/approve", fresh, []byte(`{}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"teacher:t-2:2026-10-19:2026-10-19", "teacher:21"}, decodeViews(t, rec.Body.Bytes()))

	reqs := ta.api.Requests()
	last := reqs[len(reqs)-1]
	assert.Equal(t, "/leaves/:kind/:id/:action", last.Route)
	assert.Equal(t, "Bearer "+fresh, last.Authorization)

	rec = ta.serve(http.MethodGet, "/v1/leaves", fresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"teacher:t-2:2026-10-19:2026-10-19", "teacher:21"}, decodeViews(t, rec.Body.Bytes()))
}

func Test_leaveApi_sourceFailure(t *testing.T) {
	ta := newTestApp(t)
	seedLeaves(ta.api)
	ta.api.Fail(http.MethodGet, "/leaves/teachers/pending", http.StatusServiceUnavailable, "leave service down")

	rec := ta.serve(http.MethodGet, "/v1/leaves", ta.token)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadGateway,
		wantData: marshallObj(t, httpErr{Error: "leave service down"}),
	}, rec)
}

func Test_auditApi_query(t *testing.T) {
	ta := newTestApp(t)
	seedLeaves(ta.api)
	require.Equal(t, http.StatusOK, ta.serve(http.MethodPost, "/v1/leaves/students/11/approve", ta.token, []byte(`{}`)).Code)
	require.Equal(t, http.StatusOK, ta.serve(http.MethodPost, "/v1/leaves/teachers/21/reject", ta.token, []byte(`{"reason": "exams"}`)).Code)

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantLen  int
	}{
		{"all", "", http.StatusOK, 2},
		{"by action", "?action=leave.approved", http.StatusOK, 1},
		{"by subject", "?subject_id=teacher:21", http.StatusOK, 1},
		{"limit", "?limit=1", http.StatusOK, 1},
		{"since tomorrow", "?since=2999-01-01", http.StatusOK, 0},
		{"bad limit", "?limit=many", http.StatusBadRequest, -1},
		{"bad since", "?since=yesterday", http.StatusBadRequest, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ta.serve(http.MethodGet, "/v1/audit"+tt.query, ta.token)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantLen < 0 {
				return
			}
			var entries []audit.Entry
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
			assert.Len(t, entries, tt.wantLen)
		})
	}
}

package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/registrar/core"
)

func newTestLogger(debug bool) (*RollbarLogger, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	l := NewRollbarLogger(log.New(buf, "", 0), &core.Config{Env: "TEST", TestMode: true, Debug: debug})
	l.Enable(false)
	return l, buf
}

func TestRollbarLogger_print(t *testing.T) {
	l, buf := newTestLogger(true)
	sess := core.Session{UserID: "op-1", SchoolID: "sch-1", Token: "secret-token"}

	l.Warn("fee creation failed", errors.New("fee service down"), map[string]interface{}{"student_id": "stu-1"}, sess)

	out := buf.String()
	assert.Contains(t, out, "[WARN] fee creation failed\n")
	assert.Contains(t, out, "fee service down")
	assert.Contains(t, out, "map[student_id:stu-1]")
	assert.Contains(t, out, "session: user=op-1 school=sch-1")
	assert.NotContains(t, out, "secret-token")
}

func TestRollbarLogger_debugDisabled(t *testing.T) {
	l, buf := newTestLogger(false)
	l.Debug("noisy")
	assert.Empty(t, buf.String())

	l.Info("kept")
	assert.Equal(t, "[INFO] kept\n", buf.String())
}

func TestRollbarLogger_prepare(t *testing.T) {
	l, _ := newTestLogger(true)
	sess := &core.Session{UserID: "op-1"}
	err := errors.New("boom")

	args := l.prepare("msg", []interface{}{err, sess, core.Session{UserID: "op-2"}})
	assert.Equal(t, []interface{}{"msg", err}, args)
}

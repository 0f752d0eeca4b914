package leave

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/registrar/core"
)

var (
	ErrNotPending     = errors.New("leave request is not pending")
	ErrNoIdentifier   = errors.New("leave request has no identifier and cannot be decided")
	ErrReasonRequired = errors.New("a reason is required to reject a leave request")
)

type (
	// API is the part of the school API the leave workflow drives.
	API interface {
		ListPendingStudentLeaves(ctx context.Context) ([]StudentLeave, error)
		ListPendingTeacherLeaves(ctx context.Context, schoolID string) ([]TeacherLeave, error)
		ApproveLeave(ctx context.Context, kind Kind, id, note string) error
		RejectLeave(ctx context.Context, kind Kind, id, reason string) error
	}

	// Recorder journals leave decisions.
	Recorder interface {
		RecordLeaveDecision(ctx context.Context, sess core.Session, d Decision) error
	}
)

// Decision is an approval or rejection that the school API accepted.
type Decision struct {
	Key     Key
	Status  Status
	Comment string
	At      time.Time
}

type QueueOption func(*Queue)

func WithRecorder(r Recorder) QueueOption {
	return func(q *Queue) { q.recorder = r }
}

// Queue is the operator's set of pending leave requests. It is safe for concurrent use.
// Decisions are serialised so that a request is never decided twice.
type Queue struct {
	api      API
	sess     core.Session
	logger   core.Logger
	recorder Recorder

	mu      sync.Mutex
	pending map[Key]Request
}

func NewQueue(api API, sess core.Session, logger core.Logger, opts ...QueueOption) (*Queue, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(api, "api"),
		vala.IsNotNil(logger, "logger"),
	).Check(); err != nil {
		return nil, err
	}

	q := &Queue{
		api:     api,
		sess:    sess,
		logger:  logger,
		pending: make(map[Key]Request),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Use points the queue at the operator's current client and session, eg. after they signed in again.
// The pending set is kept.
func (q *Queue) Use(api API, sess core.Session) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if api != nil {
		q.api = api
	}
	q.sess = sess
}

// Refresh replaces the pending set with the merge of both sources.
// If either source fails the current set is kept and the error is returned.
func (q *Queue) Refresh(ctx context.Context) ([]Request, error) {
	q.mu.Lock()
	api, schoolID := q.api, q.sess.SchoolID
	q.mu.Unlock()

	var (
		students []StudentLeave
		teachers []TeacherLeave
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		students, err = api.ListPendingStudentLeaves(gctx)
		return errors.Wrap(err, "listing student leaves")
	})
	g.Go(func() (err error) {
		teachers, err = api.ListPendingTeacherLeaves(gctx, schoolID)
		return errors.Wrap(err, "listing teacher leaves")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[Key]Request, len(students)+len(teachers))
	add := func(r Request) {
		if r.Leave().Status != "" && r.Leave().Status != StatusPending {
			return
		}
		if _, dup := merged[r.Key()]; !dup {
			merged[r.Key()] = r
		}
	}
	for _, l := range students {
		add(l)
	}
	for _, l := range teachers {
		add(l)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = merged
	return q.sorted(), nil
}

// Pending returns the current pending set, oldest start date first.
func (q *Queue) Pending() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sorted()
}

// Get returns the pending request with the given key.
func (q *Queue) Get(key Key) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.pending[key]
	return r, ok
}

func (q *Queue) Approve(ctx context.Context, key Key, note string) error {
	return q.decide(ctx, key, StatusApproved, core.CleanString(note))
}

func (q *Queue) Reject(ctx context.Context, key Key, reason string) error {
	reason = core.CleanString(reason)
	if reason == "" {
		return core.NewValidationError(ErrReasonRequired, core.FieldError{Field: "reason", Error: ErrReasonRequired.Error()})
	}
	return q.decide(ctx, key, StatusRejected, reason)
}

// decide holds the lock across the API call: a second decision on the same key waits and then finds it gone.
func (q *Queue) decide(ctx context.Context, key Key, status Status, comment string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[key]; !ok {
		return errors.Wrap(ErrNotPending, key.String())
	}
	if !key.HasID() {
		return errors.Wrap(ErrNoIdentifier, key.String())
	}

	var err error
	if status == StatusApproved {
		err = q.api.ApproveLeave(ctx, key.Kind, key.ID, comment)
	} else {
		err = q.api.RejectLeave(ctx, key.Kind, key.ID, comment)
	}
	if err != nil {
		return err
	}
	delete(q.pending, key)

	q.logger.Info("leave "+string(status), map[string]interface{}{"key": key.String()}, q.sess)
	if q.recorder != nil {
		d := Decision{Key: key, Status: status, Comment: comment, At: time.Now().UTC()}
		if err := q.recorder.RecordLeaveDecision(ctx, q.sess, d); err != nil {
			q.logger.Warn("audit record failed", err, q.sess)
		}
	}
	return nil
}

func (q *Queue) sorted() []Request {
	out := make([]Request, 0, len(q.pending))
	for _, r := range q.pending {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Leave().StartDate, out[j].Leave().StartDate
		if si != sj {
			return si < sj
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

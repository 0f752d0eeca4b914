package echoapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/leave"
)

// leaveQueueIdle is how long an operator's queue is kept after their last leave request.
const leaveQueueIdle = time.Hour

// leaveQueues keeps one queue per school and operator. Each request points the queue at the
// request's own token, so decisions always go out with the operator's current session.
type leaveQueues struct {
	mu     sync.Mutex
	queues map[string]*leaveQueue
	now    func() time.Time
}

type leaveQueue struct {
	*leave.Queue
	mu        sync.Mutex
	refreshed bool
	lastUsed  time.Time
}

func (q *leaveQueue) refresh(ctx context.Context) ([]leave.Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	reqs, err := q.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	q.refreshed = true
	return reqs, nil
}

// load refreshes a queue that was never listed.
func (q *leaveQueue) load(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.refreshed {
		return nil
	}
	if _, err := q.Refresh(ctx); err != nil {
		return err
	}
	q.refreshed = true
	return nil
}

func newLeaveQueues() *leaveQueues {
	return &leaveQueues{queues: make(map[string]*leaveQueue), now: time.Now}
}

func (lq *leaveQueues) get(deps ServerDeps, sess core.Session) (*leaveQueue, error) {
	lq.mu.Lock()
	defer lq.mu.Unlock()

	now := lq.now()
	for key, q := range lq.queues {
		if now.Sub(q.lastUsed) > leaveQueueIdle {
			delete(lq.queues, key)
		}
	}

	api := deps.API.WithToken(sess.Token)
	key := sess.SchoolID + "/" + sess.UserID
	if q, ok := lq.queues[key]; ok {
		q.Use(api, sess)
		q.lastUsed = now
		return q, nil
	}
	q, err := leave.NewQueue(api, sess, deps.Logger, leave.WithRecorder(deps.Audit))
	if err != nil {
		return nil, err
	}
	lq.queues[key] = &leaveQueue{Queue: q, lastUsed: now}
	return lq.queues[key], nil
}

// len is the number of cached queues.
func (lq *leaveQueues) len() int {
	lq.mu.Lock()
	defer lq.mu.Unlock()
	return len(lq.queues)
}

type leaveApi struct {
	deps   ServerDeps
	queues *leaveQueues
}

func registerLeaveAPI(g *echo.Group, deps ServerDeps, queues *leaveQueues) {
	api := leaveApi{deps: deps, queues: queues}

	lg := g.Group("/leaves", roleMiddleware(roleAdmin, rolePrincipal))
	lg.GET("", api.list)
	lg.POST("/:kind/:id/approve", api.approve)
	lg.POST("/:kind/:id/reject", api.reject)
}

func (api *leaveApi) queue(ctx echo.Context) (*leaveQueue, error) {
	sess, err := getContextSession(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context session")
	}
	return api.queues.get(api.deps, sess)
}

func (api *leaveApi) list(ctx echo.Context) error {
	q, err := api.queue(ctx)
	if err != nil {
		return errors.Wrap(err, "getting leave queue")
	}
	reqs, err := q.refresh(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, views(reqs))
}

func (api *leaveApi) approve(ctx echo.Context) error {
	var data decisionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to decisionRequest")
	}
	return api.decide(ctx, func(q *leaveQueue, key leave.Key) error {
		return q.Approve(ctx.Request().Context(), key, data.Note)
	})
}

func (api *leaveApi) reject(ctx echo.Context) error {
	var data decisionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to decisionRequest")
	}
	return api.decide(ctx, func(q *leaveQueue, key leave.Key) error {
		return q.Reject(ctx.Request().Context(), key, data.Reason)
	})
}

// decide answers with the remaining pending leaves. A queue that was never listed is loaded first.
func (api *leaveApi) decide(ctx echo.Context, fn func(*leaveQueue, leave.Key) error) error {
	key, err := leave.ParseKey(ctx.Param("kind") + ":" + ctx.Param("id"))
	if err != nil {
		return err
	}
	q, err := api.queue(ctx)
	if err != nil {
		return errors.Wrap(err, "getting leave queue")
	}
	if err = q.load(ctx.Request().Context()); err != nil {
		return err
	}
	if err = fn(q, key); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, views(q.Pending()))
}

func views(reqs []leave.Request) []leave.View {
	out := make([]leave.View, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, leave.NewView(r))
	}
	return out
}

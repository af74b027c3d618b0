package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/clusterforge-backend/internal/data/repos/jobs"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

/*
Context is the execution handle a handler gets for one claimed job run.
It wraps:
	- the run's context.Context (cancelled on shutdown),
	- the gorm handle handlers open their transactions on,
	- the in-memory job_run row and its repo,
	- the event emitter for job_progress notifications.
Handlers never write job_run directly. They report through Progress, Fail
and Succeed so a canceled run is never overwritten.
*/
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *jobs.JobRun
	Repo    jobrepo.JobRunRepo
	Events  *realtime.Emitter
	payload map[string]any
}

/*
NewContext builds the handle for a claimed run and eagerly decodes its
payload. A malformed payload yields an empty map; handlers validate the
fields they need.
*/
func NewContext(ctx context.Context, db *gorm.DB, job *jobs.JobRun, repo jobrepo.JobRunRepo, events *realtime.Emitter) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Events: events,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// applyTraceData carries the request id of the HTTP call that queued the run.
func (c *Context) applyTraceData() {
	if c.Ctx == nil {
		return
	}
	p := c.Payload()
	traceID, _ := p["trace_id"].(string)
	reqID, _ := p["request_id"].(string)
	traceID, reqID = strings.TrimSpace(traceID), strings.TrimSpace(reqID)
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{TraceID: traceID, RequestID: reqID})
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Decode unmarshals the raw payload into a typed DTO.
func (c *Context) Decode(into any) error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return fmt.Errorf("job has no payload")
	}
	if err := json.Unmarshal(c.Job.Payload, into); err != nil {
		return fmt.Errorf("decode %s payload: %w", c.Job.JobType, err)
	}
	return nil
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil || c.Ctx.Err() != nil {
		// Terminal writes still have to land after the run context is done.
		return context.Background()
	}
	return c.Ctx
}

// Canceled re-reads the run and reports whether it was canceled from outside.
func (c *Context) Canceled() (bool, error) {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return false, nil
	}
	row, err := c.Repo.GetByID(dbctx.Context{Ctx: c.ctx()}, c.Job.ID)
	if err != nil {
		return false, err
	}
	return row != nil && row.Status == jobs.StatusCanceled, nil
}

// DefaultHeartbeat is well under the worker's stale-running cutoff.
const DefaultHeartbeat = 10 * time.Second

/*
KeepAlive refreshes the run's heartbeat every interval until ctx is done or
the returned stop is called, so the claim query never treats a long run as
stale. stop waits for the last write to return.
*/
func (c *Context) KeepAlive(ctx context.Context, every time.Duration) (stop func()) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil || every <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				_ = c.Repo.Heartbeat(dbctx.Context{Ctx: ctx}, c.Job.ID)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}

// Update writes arbitrary fields unless the run was canceled.
func (c *Context) Update(updates map[string]interface{}) error {
	if c.Job == nil || c.Job.ID == uuid.Nil {
		return nil
	}
	_, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, []string{jobs.StatusCanceled}, updates)
	return err
}

/*
Progress records a non-terminal stage/progress/message and heartbeat, then
notifies the owner. Nothing is emitted when the run was canceled meanwhile.
*/
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now()
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}
	if c.Job == nil {
		return
	}
	c.Job.Stage = stage
	c.Job.Progress = pct
	c.Job.Message = msg
	c.Job.HeartbeatAt = &now
	c.Job.UpdatedAt = now
	c.Events.Emit(c.ctx(), c.Job.OwnerUserID, realtime.EventJobProgress, jobEvent(c.Job))
}

/*
Fail marks the run failed with err and clears its lock so the claim query
can retry it later (for retryable job types). A canceled run keeps its
status.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
			"status":        jobs.StatusFailed,
			"stage":         stage,
			"message":       "",
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}
	if c.Job == nil {
		return
	}
	c.Job.Status = jobs.StatusFailed
	c.Job.Stage = stage
	c.Job.Message = ""
	c.Job.Error = msg
	c.Job.LastErrorAt = &now
	c.Job.LockedAt = nil
	c.Job.UpdatedAt = now
	c.Events.Emit(c.ctx(), c.Job.OwnerUserID, realtime.EventJobProgress, jobEvent(c.Job))
}

// Succeed marks the run succeeded at 100% and stores result as JSON.
func (c *Context) Succeed(stage string, result any) {
	if c == nil {
		return
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
			"status":       jobs.StatusSucceeded,
			"stage":        stage,
			"progress":     100,
			"message":      "",
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}
	if c.Job == nil {
		return
	}
	c.Job.Status = jobs.StatusSucceeded
	c.Job.Stage = stage
	c.Job.Progress = 100
	c.Job.Message = ""
	c.Job.Error = ""
	c.Job.Result = res
	c.Job.LockedAt = nil
	c.Job.HeartbeatAt = &now
	c.Job.UpdatedAt = now
	c.Events.Emit(c.ctx(), c.Job.OwnerUserID, realtime.EventJobProgress, jobEvent(c.Job))
}

type jobEventData struct {
	JobID    uuid.UUID `json:"job_id"`
	JobType  string    `json:"job_type"`
	Status   string    `json:"status"`
	Stage    string    `json:"stage"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func jobEvent(j *jobs.JobRun) jobEventData {
	return jobEventData{
		JobID:    j.ID,
		JobType:  j.JobType,
		Status:   j.Status,
		Stage:    j.Stage,
		Progress: j.Progress,
		Message:  j.Message,
		Error:    j.Error,
	}
}

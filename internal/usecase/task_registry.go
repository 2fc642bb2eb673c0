package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxRetainedFailures = 50

// TaskInfo describes a background task
type TaskInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// TaskSnapshot is the registry state reported to operators
type TaskSnapshot struct {
	Running   []TaskInfo `json:"running"`
	Failed    []TaskInfo `json:"failed"`
	Completed int64      `json:"completed"`
}

// TaskRegistry supervises detached background work. Tasks run on a context
// owned by the registry, panics and errors are logged, finished tasks are
// pruned and the most recent failures are kept for inspection.
type TaskRegistry struct {
	mu        sync.Mutex
	running   map[string]*TaskInfo
	failed    []TaskInfo
	completed int64
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewTaskRegistry creates an empty registry
func NewTaskRegistry() *TaskRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskRegistry{
		running: make(map[string]*TaskInfo),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Go runs fn in the background under timeout (zero means no timeout)
func (r *TaskRegistry) Go(name string, timeout time.Duration, fn func(ctx context.Context) error) string {
	info := &TaskInfo{ID: uuid.NewString(), Name: name, StartedAt: time.Now()}

	r.mu.Lock()
	r.running[info.ID] = info
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx := r.ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		err := r.run(ctx, fn)
		r.finish(info.ID, err)
	}()

	return info.ID
}

func (r *TaskRegistry) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

func (r *TaskRegistry) finish(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.running[id]
	if !ok {
		return
	}
	delete(r.running, id)
	now := time.Now()
	info.FinishedAt = &now
	r.completed++

	fields := logrus.Fields{"task": info.Name, "task_id": id, "duration": now.Sub(info.StartedAt).String()}
	if err == nil {
		logrus.WithFields(fields).Debug("[TASKS] background task finished")
		return
	}

	info.Error = err.Error()
	r.failed = append(r.failed, *info)
	if len(r.failed) > maxRetainedFailures {
		r.failed = r.failed[len(r.failed)-maxRetainedFailures:]
	}
	logrus.WithFields(fields).WithError(err).Error("[TASKS] background task failed")
}

// Snapshot returns running tasks and recent failures
func (r *TaskRegistry) Snapshot() TaskSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := TaskSnapshot{
		Running:   make([]TaskInfo, 0, len(r.running)),
		Failed:    append([]TaskInfo{}, r.failed...),
		Completed: r.completed,
	}
	for _, info := range r.running {
		snap.Running = append(snap.Running, *info)
	}
	return snap
}

// Drain waits for running tasks. When ctx ends first, the remaining tasks are cancelled.
func (r *TaskRegistry) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.cancel()
		r.mu.Lock()
		pending := len(r.running)
		r.mu.Unlock()
		logrus.WithField("pending", pending).Warn("[TASKS] drain interrupted, cancelling remaining tasks")
		return ctx.Err()
	}
}

package transcode

import (
	"sync"

	"github.com/podible/podible-server/internal/domain"
	"github.com/podible/podible-server/internal/id"
)

// Job is one unit of work for the Worker: normalize source into target,
// carrying the source mtime the job was enqueued against (so a stale
// job can be detected and dropped) and a snapshot of the Book metadata
// needed to promote the result on completion. JobID is an ephemeral
// correlation ID for log lines, not the Book id and never persisted.
type Job struct {
	JobID   string
	Source  string
	Target  string
	MtimeMs int64
	Cover   *CoverRef
	Meta    *domain.BookMeta
}

// CoverRef points at image bytes on disk to attach to the normalized
// output, if any.
type CoverRef struct {
	Path string
	MIME string
}

// Queue is the single-producer/single-consumer unbounded job queue: the
// Scanner pushes, the Worker pops. It is a growable buffer guarded by a
// mutex and condition variable rather than a fixed-capacity channel, so
// the producer never blocks — consumers block when the queue is empty,
// and that is the only backpressure in play.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []Job
	queued  map[string]bool // sources currently queued or being worked
}

// NewQueue constructs an empty Queue.
func NewQueue() *Queue {
	q := &Queue{queued: make(map[string]bool)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a job. If the job's source is already queued or being
// worked, Push is a no-op — the Scanner is expected to check IsActive
// before constructing a job, but Push stays defensive since a rescan
// can race a worker in-flight check.
func (q *Queue) Push(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queued[job.Source] {
		return
	}
	if job.JobID == "" {
		if generated, err := id.Generate("job"); err == nil {
			job.JobID = generated
		}
	}
	q.queued[job.Source] = true
	q.items = append(q.items, job)
	q.cond.Signal()
}

// Pop blocks until a job is available, then returns it.
func (q *Queue) Pop() Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		q.cond.Wait()
	}

	job := q.items[0]
	q.items = q.items[1:]
	return job
}

// Done marks source as no longer queued or being worked, allowing a
// future rescan to requeue it if its mtime has changed. Call this after
// a job reaches a terminal state, whether it succeeded or failed.
func (q *Queue) Done(source string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queued, source)
}

// IsActive reports whether source is currently queued or being worked.
func (q *Queue) IsActive(source string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued[source]
}

// Depth returns the number of jobs currently waiting (not counting the
// job actively being worked, which has already been popped).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

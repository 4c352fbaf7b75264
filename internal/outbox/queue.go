// Package outbox mirrors local documents to the account store asynchronously.
// Jobs carry a snapshot of the document taken at enqueue time; a newer job for
// the same user and document replaces a pending older one.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/workoutsync/internal/progress"
	"github.com/2beens/workoutsync/internal/telemetry/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis_rate/v9"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const (
	KindProgram = "program"
	KindField   = "field"
)

type accountPusher interface {
	PushProgram(ctx context.Context, program progress.Program, userID string) error
	PatchField(ctx context.Context, field, method, userID string, document any) error
}

type accountFetcher interface {
	FetchSettings(ctx context.Context, userID string) (*progress.Settings, error)
}

type rateLimiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

type temporary interface {
	Temporary() bool
}

type Job struct {
	ID         string
	Kind       string
	UserID     string
	Field      string
	Method     string
	Program    progress.Program
	Document   json.RawMessage
	EnqueuedAt time.Time
}

type jobKey struct {
	userID, kind, field string
}

func (j *Job) key() jobKey {
	return jobKey{userID: j.UserID, kind: j.Kind, field: j.Field}
}

type Params struct {
	Account         accountPusher
	RateLimiter     rateLimiter // nil disables rate limiting
	PushesPerMinute int
	MaxRetries      uint64
	InitialInterval time.Duration
	// Interval between drains when no new job arrives.
	PollInterval   time.Duration
	MetricsManager *metrics.Manager
}

type Queue struct {
	account         accountPusher
	limiter         rateLimiter
	pushesPerMinute int
	maxRetries      uint64
	initialInterval time.Duration
	pollInterval    time.Duration
	metricsManager  *metrics.Manager

	mu      sync.Mutex
	pending map[jobKey]*Job
	order   []jobKey
	notify  chan struct{}
}

func NewQueue(params Params) *Queue {
	q := &Queue{
		account:         params.Account,
		limiter:         params.RateLimiter,
		pushesPerMinute: params.PushesPerMinute,
		maxRetries:      params.MaxRetries,
		initialInterval: params.InitialInterval,
		pollInterval:    params.PollInterval,
		metricsManager:  params.MetricsManager,
		pending:         make(map[jobKey]*Job),
		notify:          make(chan struct{}, 1),
	}
	if q.initialInterval <= 0 {
		q.initialInterval = 500 * time.Millisecond
	}
	if q.pollInterval <= 0 {
		q.pollInterval = time.Second
	}
	if q.metricsManager == nil {
		q.metricsManager = metrics.NewTestManager()
	}
	return q
}

// PushProgram enqueues a full program replace for userID.
func (q *Queue) PushProgram(_ context.Context, program progress.Program, userID string) error {
	q.enqueue(&Job{
		Kind:    KindProgram,
		UserID:  userID,
		Program: program.Clone(),
	})
	return nil
}

// PatchField enqueues a field update for userID. The document is serialized
// right away, later changes to it are not pushed by this job.
func (q *Queue) PatchField(_ context.Context, field, method, userID string, document any) error {
	snapshot, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("snapshot [%s]: %w", field, err)
	}
	q.enqueue(&Job{
		Kind:     KindField,
		UserID:   userID,
		Field:    field,
		Method:   method,
		Document: snapshot,
	})
	return nil
}

// FetchSettings passes through to the account client when it can fetch.
func (q *Queue) FetchSettings(ctx context.Context, userID string) (*progress.Settings, error) {
	fetcher, ok := q.account.(accountFetcher)
	if !ok {
		return nil, errors.New("account client cannot fetch settings")
	}
	return fetcher.FetchSettings(ctx, userID)
}

func (q *Queue) enqueue(job *Job) {
	job.ID = uuid.NewString()
	job.EnqueuedAt = time.Now()

	q.mu.Lock()
	key := job.key()
	if _, exists := q.pending[key]; exists {
		q.metricsManager.CounterOutboxCoalescedJobs.Inc()
		log.Tracef("outbox: job [%s] replaces pending %s/%s for user [%s]", job.ID, job.Kind, job.Field, job.UserID)
	} else {
		q.order = append(q.order, key)
	}
	q.pending[key] = job
	q.metricsManager.GaugeOutboxPending.Set(float64(len(q.pending)))
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// requeue puts a job back unless a newer one for the same document arrived.
func (q *Queue) requeue(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := job.key()
	if _, exists := q.pending[key]; exists {
		return
	}
	q.pending[key] = job
	q.order = append(q.order, key)
	q.metricsManager.GaugeOutboxPending.Set(float64(len(q.pending)))
}

func (q *Queue) take() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]*Job, 0, len(q.order))
	for _, key := range q.order {
		jobs = append(jobs, q.pending[key])
	}
	q.pending = make(map[jobKey]*Job)
	q.order = nil
	q.metricsManager.GaugeOutboxPending.Set(0)
	return jobs
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run drains the queue until ctx is done.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	log.Debugln("outbox worker started")
	for {
		select {
		case <-ctx.Done():
			log.Debugf("outbox worker stopped, %d jobs pending", q.Len())
			return
		case <-q.notify:
		case <-ticker.C:
		}
		if err := q.ProcessPending(ctx); err != nil {
			log.Errorf("outbox: %s", err)
		}
	}
}

// ProcessPending pushes every pending job once. Rate limited jobs are put back;
// failed jobs are dropped and their errors returned combined.
func (q *Queue) ProcessPending(ctx context.Context) error {
	var errs error
	for _, job := range q.take() {
		if ctx.Err() != nil {
			q.requeue(job)
			continue
		}

		allowed, err := q.allow(ctx, job.UserID)
		if err != nil {
			log.Errorf("outbox: rate limiter for user [%s]: %s", job.UserID, err)
		}
		if !allowed {
			q.requeue(job)
			q.metricsManager.CounterRemotePushes.WithLabelValues(job.Kind, "rate_limited").Inc()
			continue
		}

		if err := q.push(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("job [%s] %s/%s for user [%s]: %w", job.ID, job.Kind, job.Field, job.UserID, err))
		}
	}
	return errs
}

// allow fails open when the limiter itself errors.
func (q *Queue) allow(ctx context.Context, userID string) (bool, error) {
	if q.limiter == nil || q.pushesPerMinute <= 0 {
		return true, nil
	}
	res, err := q.limiter.Allow(ctx, "outbox::"+userID, redis_rate.PerMinute(q.pushesPerMinute))
	if err != nil {
		return true, err
	}
	return res.Allowed > 0, nil
}

func (q *Queue) push(ctx context.Context, job *Job) error {
	start := time.Now()
	defer func() {
		q.metricsManager.HistRemotePushDuration.WithLabelValues(job.Kind).Observe(time.Since(start).Seconds())
	}()

	operation := func() error {
		var err error
		switch job.Kind {
		case KindProgram:
			err = q.account.PushProgram(ctx, job.Program, job.UserID)
		case KindField:
			err = q.account.PatchField(ctx, job.Field, job.Method, job.UserID, job.Document)
		default:
			return backoff.Permanent(fmt.Errorf("unknown job kind: %s", job.Kind))
		}
		if err == nil {
			return nil
		}
		// transport errors without a status are retried, rejected requests are not
		var tempErr temporary
		if errors.As(err, &tempErr) && !tempErr.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = q.initialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, q.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		log.Warnf("outbox: job [%s] failed, retrying in %s: %s", job.ID, wait, err)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		q.metricsManager.CounterRemotePushes.WithLabelValues(job.Kind, "failed").Inc()
		return err
	}

	q.metricsManager.CounterRemotePushes.WithLabelValues(job.Kind, "ok").Inc()
	log.Tracef("outbox: job [%s] pushed after %s in queue", job.ID, time.Since(job.EnqueuedAt))
	return nil
}

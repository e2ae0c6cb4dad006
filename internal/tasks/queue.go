// Package tasks implements the in-process background queue that decouples
// webhook acknowledgment from update processing. The webhook handler
// enqueues the raw delivery and returns 200 immediately; a fixed pool of
// workers drains the queue and runs the dispatcher.
//
// The queue is bounded. When it is full, Enqueue drops the job and reports
// the drop instead of blocking the HTTP handler; the platform redelivers
// unacknowledged updates anyway, and duplicate protection lives in the
// dispatcher.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	// queueJobs counts terminal job outcomes by result (ok, error, dropped).
	queueJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_total",
			Help: "Total number of background jobs by result.",
		},
		[]string{"result"},
	)

	// queueDepth gauges the number of jobs waiting in the queue.
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current number of queued background jobs.",
		},
	)

	// queueJobDuration records job run time in seconds.
	queueJobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_job_duration_seconds",
			Help:    "Duration of background jobs in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(queueJobs, queueDepth, queueJobDuration)
}

// Job is one unit of background work.
type Job func(ctx context.Context) error

// Queue is a bounded worker pool.
type Queue struct {
	jobs    chan Job
	workers int
	log     zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewQueue builds a queue holding up to size pending jobs, drained by the
// given number of workers. Non-positive arguments fall back to 1.
func NewQueue(workers, size int, log zerolog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	return &Queue{
		jobs:    make(chan Job, size),
		workers: workers,
		log:     log,
	}
}

// Start launches the worker pool. Workers exit when the queue is closed and
// drained, or when ctx is canceled.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx, i)
		}
	})
}

// Enqueue submits a job. It reports false, counts a drop, and logs when the
// queue is full.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		queueDepth.Set(float64(len(q.jobs)))
		return true
	default:
		queueJobs.WithLabelValues("dropped").Inc()
		q.log.Warn().Int("capacity", cap(q.jobs)).Msg("queue full, job dropped")
		return false
	}
}

// Stop closes the queue and waits for the workers to drain it.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.jobs) })
	q.wg.Wait()
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int { return len(q.jobs) }

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			queueDepth.Set(float64(len(q.jobs)))
			q.run(ctx, id, job)
		}
	}
}

func (q *Queue) run(ctx context.Context, id int, job Job) {
	started := time.Now()
	err := job(ctx)
	queueJobDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		queueJobs.WithLabelValues("error").Inc()
		q.log.Error().Err(err).Int("worker", id).Msg("background job failed")
		return
	}
	queueJobs.WithLabelValues("ok").Inc()
}

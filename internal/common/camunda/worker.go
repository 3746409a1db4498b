// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"sync"
	"time"

	"submission-workflow/internal/common/config"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandlerFunc is the signature every task handler exposes as Handle.
type JobHandlerFunc func(client worker.JobClient, job entities.Job)

// WorkerManager opens job workers on a shared Zeebe client and closes them
// together on shutdown.
type WorkerManager struct {
	client   zbc.Client
	logger   logger.Logger
	recorder JobRecorder
	mu       sync.Mutex
	workers  map[string]worker.JobWorker
}

// JobRecorder receives the outcome of every job; observability.Observability
// implements it.
type JobRecorder interface {
	RecordJob(ctx context.Context, taskType, outcome string, duration time.Duration)
}

// NewWorkerManager builds a manager. recorder may be nil.
func NewWorkerManager(client zbc.Client, recorder JobRecorder, log logger.Logger) *WorkerManager {
	return &WorkerManager{
		client:   client,
		logger:   log,
		recorder: recorder,
		workers:  make(map[string]worker.JobWorker),
	}
}

// Start opens a worker for taskType unless it is disabled. It reports
// whether a worker was opened.
func (m *WorkerManager) Start(taskType string, wcfg config.WorkerConfig, handler JobHandlerFunc) bool {
	if !wcfg.Enabled {
		m.logger.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return false
	}

	jobWorker := m.client.NewJobWorker().
		JobType(taskType).
		Handler(Instrument(taskType, m.recorder, handler)).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	m.mu.Lock()
	m.workers[taskType] = jobWorker
	m.mu.Unlock()

	m.logger.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return true
}

// TaskTypes lists the running workers.
func (m *WorkerManager) TaskTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.workers))
	for t := range m.workers {
		out = append(out, t)
	}
	return out
}

// Stop closes every worker. The Zeebe client stays open for its owner.
func (m *WorkerManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for taskType, w := range m.workers {
		m.logger.Info("stopping worker", map[string]interface{}{"taskType": taskType})
		w.Close()
		w.AwaitClose()
	}
	m.workers = make(map[string]worker.JobWorker)
}

// Job outcomes as seen by the broker.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeThrown    = "thrown"
	OutcomeAbandoned = "abandoned"
)

// Instrument wraps a handler with the worker metrics. The outcome is taken
// from the last command the handler created on the job client.
func Instrument(taskType string, recorder JobRecorder, handler JobHandlerFunc) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
		defer metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()

		start := time.Now()
		rc := &recordingClient{JobClient: client, outcome: OutcomeAbandoned}
		handler(rc, job)
		elapsed := time.Since(start)

		metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
		if rc.outcome == OutcomeCompleted {
			metrics.WorkerJobsCompleted.WithLabelValues(taskType).Inc()
		} else {
			metrics.WorkerJobsFailed.WithLabelValues(taskType, rc.outcome).Inc()
		}
		if recorder != nil {
			recorder.RecordJob(context.Background(), taskType, rc.outcome, elapsed)
		}
	}
}

type recordingClient struct {
	worker.JobClient
	outcome string
}

func (c *recordingClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	c.outcome = OutcomeCompleted
	return c.JobClient.NewCompleteJobCommand()
}

func (c *recordingClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	c.outcome = OutcomeFailed
	return c.JobClient.NewFailJobCommand()
}

func (c *recordingClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	c.outcome = OutcomeThrown
	return c.JobClient.NewThrowErrorCommand()
}

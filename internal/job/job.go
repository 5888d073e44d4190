// Package job tracks download/assembly invocations and projects their
// low-level state into a UI-consumable status.
package job

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/mediasieve/mediasieve/internal/media"
)

// State is the externally visible lifecycle of one download job.
type State string

const (
	StatePending     State = "pending"
	StateInProgress  State = "in_progress"
	StateComplete    State = "complete"
	StateInterrupted State = "interrupted"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateInterrupted
}

// Progress is either a percentage, when the total amount of work is
// known, or a raw completed-segment count when it is not.
type Progress struct {
	// Percent is 0-100, meaningful only when TotalKnown.
	Percent int `json:"percent"`

	// Segments counts completed segments for open-ended assemblies.
	Segments int `json:"segments"`

	// TotalKnown selects which of the two numbers consumers display.
	TotalKnown bool `json:"totalKnown"`
}

// Job is one in-flight or finished download operation. Owned by the
// Manager; snapshots of it are what cross the API boundary.
type Job struct {
	ID          string             `json:"id"`
	AssetKey    string             `json:"assetKey"`
	TabID       int                `json:"tabId"`
	Kind        media.DeliveryKind `json:"kind"`
	State       State              `json:"state"`
	Progress    Progress           `json:"progress"`
	ResultPaths []string           `json:"resultPaths,omitempty"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"startedAt"`
	FinishedAt  time.Time          `json:"finishedAt,omitempty"`
}

// Manager owns all jobs for the process lifetime.
type Manager struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	order    []string
	onUpdate func(Job)
	logger   hclog.Logger
}

// NewManager creates an empty job manager.
func NewManager(logger hclog.Logger) *Manager {
	return &Manager{
		jobs:   make(map[string]*Job),
		logger: logger,
	}
}

// SetUpdateCallback registers a callback invoked with a snapshot after
// every job mutation. Intended for push-style consumers; polling through
// Snapshot is the primary contract.
func (m *Manager) SetUpdateCallback(fn func(Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// Create registers a new pending job for an asset and returns its ID.
func (m *Manager) Create(asset *media.MediaAsset) string {
	job := &Job{
		ID:        uuid.NewString(),
		AssetKey:  asset.Key,
		TabID:     asset.TabID,
		Kind:      asset.Kind,
		State:     StatePending,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	snapshot := *job
	fn := m.onUpdate
	m.mu.Unlock()

	m.logger.Debug("job created", "job", job.ID, "asset", job.AssetKey, "kind", job.Kind)
	if fn != nil {
		fn(snapshot)
	}
	return job.ID
}

// Start marks a job in progress.
func (m *Manager) Start(id string) {
	m.update(id, func(j *Job) {
		j.State = StateInProgress
	})
}

// SetPercent records percentage progress for jobs with a known total.
func (m *Manager) SetPercent(id string, percent int) {
	m.update(id, func(j *Job) {
		j.Progress = Progress{Percent: percent, TotalKnown: true}
	})
}

// SetSegments records raw completed-segment progress for jobs with an
// unknown total.
func (m *Manager) SetSegments(id string, segments int) {
	m.update(id, func(j *Job) {
		j.Progress = Progress{Segments: segments}
	})
}

// AddResult appends a finished output path.
func (m *Manager) AddResult(id string, path string) {
	m.update(id, func(j *Job) {
		j.ResultPaths = append(j.ResultPaths, path)
	})
}

// Complete marks a job finished successfully.
func (m *Manager) Complete(id string) {
	m.update(id, func(j *Job) {
		j.State = StateComplete
		if j.Progress.TotalKnown {
			j.Progress.Percent = 100
		}
		j.FinishedAt = time.Now()
	})
	m.logger.Info("job complete", "job", id)
}

// Interrupt marks a job failed with a short human-readable message.
func (m *Manager) Interrupt(id string, msg string) {
	m.update(id, func(j *Job) {
		j.State = StateInterrupted
		j.Error = msg
		j.FinishedAt = time.Now()
	})
	m.logger.Warn("job interrupted", "job", id, "error", msg)
}

// Get returns a snapshot of one job.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Snapshot returns copies of all jobs in creation order.
func (m *Manager) Snapshot() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Job, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.jobs[id])
	}
	return out
}

// Counts returns the number of active and finished jobs.
func (m *Manager) Counts() (active, finished int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.jobs {
		if j.State.Terminal() {
			finished++
		} else {
			active++
		}
	}
	return active, finished
}

func (m *Manager) update(id string, mutate func(*Job)) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	mutate(j)
	snapshot := *j
	fn := m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

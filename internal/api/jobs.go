package api

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a conversion job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobResult is the payload of a completed job. Cached reports whether the
// Markdown came from the rendering cache or the store instead of a fresh
// conversion.
type JobResult struct {
	Markdown string `json:"markdown"`
	Hash     string `json:"hash"`
	Cached   bool   `json:"cached,omitempty"`
}

// Job is one asynchronous conversion. Timestamps are RFC 3339 strings so
// the struct encodes directly. Result is assigned once at completion and
// never mutated afterwards, which makes the shallow copies handed out by
// JobStore safe to encode concurrently.
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	SourceName  string     `json:"source_name"`
	SizeBytes   int64      `json:"size_bytes"`
	Result      *JobResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
	CompletedAt string     `json:"completed_at,omitempty"`
}

// JobStore tracks conversion jobs in memory. Accessors return copies;
// callers never hold a pointer into the store.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobStore creates an empty job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
	}
}

// Create registers a pending job for the named source and returns a copy.
func (s *JobStore) Create(sourceName string, sizeBytes int64) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	job := &Job{
		ID:         uuid.New().String(),
		Status:     JobStatusPending,
		SourceName: sourceName,
		SizeBytes:  sizeBytes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.jobs[job.ID] = job
	return *job
}

// Get returns a copy of the job with the given id.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Update applies fn to the job under the store lock, stamps UpdatedAt, and
// stamps CompletedAt the first time the job reaches a terminal status. It
// returns the updated copy.
func (s *JobStore) Update(id string, fn func(*Job)) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}

	fn(job)
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	terminal := job.Status == JobStatusCompleted || job.Status == JobStatusFailed
	if terminal && job.CompletedAt == "" {
		job.CompletedAt = job.UpdatedAt
	}
	return *job, true
}

// List returns copies of all jobs, newest first. Ties on the
// second-resolution timestamp are broken by id so the order is stable.
func (s *JobStore) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt != jobs[j].CreatedAt {
			return jobs[i].CreatedAt > jobs[j].CreatedAt
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

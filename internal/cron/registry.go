package cron

import (
	"sync"
	"time"

	"github.com/google/uuid"
	cronv3 "github.com/robfig/cron/v3"
)

// Entry pairs a job with its registry ID.
type Entry struct {
	ID  string
	Job *Job
}

// Registry is the in-memory collection of scheduled jobs. IDs are fresh
// uuids, unique for the process lifetime and never reused; persisted IDs
// from a previous process are meaningless and must be rebuilt via Clear
// plus re-adds at startup.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: map[string]*Job{}}
}

// AddDaily registers a job firing every day at hour:minute.
func (r *Registry) AddDaily(hour, minute int, action Action) string {
	return r.add(newDaily(hour, minute, action))
}

// AddWeekly registers a job firing every week on day at hour:minute.
func (r *Registry) AddWeekly(day time.Weekday, hour, minute int, action Action) string {
	return r.add(newWeekly(day, hour, minute, action))
}

// AddCron registers a job driven by a standard 5-field cron expression.
func (r *Registry) AddCron(spec string, action Action) (string, error) {
	sched, err := cronv3.ParseStandard(spec)
	if err != nil {
		return "", err
	}
	return r.add(newCron(sched, action)), nil
}

func (r *Registry) add(j *Job) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()
	return id
}

// Remove deletes a job. Removing an absent ID is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// Clear empties the registry. Called once at startup before jobs are
// re-created from persisted configuration, so reconnects never duplicate.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.jobs = map[string]*Job{}
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Snapshot returns a copy of the current entries, safe to iterate while
// command handlers mutate the registry concurrently.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.jobs))
	for id, j := range r.jobs {
		out = append(out, Entry{ID: id, Job: j})
	}
	return out
}

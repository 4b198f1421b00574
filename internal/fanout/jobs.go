package fanout

import (
	"sort"
	"sync"
	"time"
)

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCanceled  JobStatus = "canceled"
)

// Job is the status record of one broadcast run. Finished jobs stay in the
// ledger until PruneJobs removes them.
type Job struct {
	ID         int64
	GuildID    string
	RoleID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     JobStatus
	Report     Report
}

type jobLedger struct {
	mu   sync.Mutex
	seq  int64
	jobs map[int64]*Job
}

func (l *jobLedger) begin(guildID, roleID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jobs == nil {
		l.jobs = map[int64]*Job{}
	}
	l.seq++
	l.jobs[l.seq] = &Job{
		ID:        l.seq,
		GuildID:   guildID,
		RoleID:    roleID,
		StartedAt: time.Now(),
		Status:    JobRunning,
	}
	return l.seq
}

func (l *jobLedger) finish(id int64, rep Report, status JobStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[id]
	if !ok {
		return
	}
	j.FinishedAt = time.Now()
	j.Status = status
	j.Report = rep
}

// Jobs returns a snapshot of the ledger, oldest first.
func (d *Dispatcher) Jobs() []Job {
	d.jobs.mu.Lock()
	defer d.jobs.mu.Unlock()
	out := make([]Job, 0, len(d.jobs.jobs))
	for _, j := range d.jobs.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// PruneJobs drops finished jobs older than maxAge and reports how many were
// removed. Running jobs are never pruned.
func (d *Dispatcher) PruneJobs(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	d.jobs.mu.Lock()
	defer d.jobs.mu.Unlock()
	removed := 0
	for id, j := range d.jobs.jobs {
		if j.Status == JobRunning {
			continue
		}
		if j.FinishedAt.Before(cutoff) {
			delete(d.jobs.jobs, id)
			removed++
		}
	}
	return removed
}

// Package fanout implements the mass-DM dispatcher: enumerate current
// holders of a role, drop bots and blacklisted recipients, and deliver the
// payload sequentially under a rate pacer. Individual send failures are
// counted, never escalated; only structural problems abort a run.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"fangate/internal/platform"
	"fangate/internal/store"
	logx "fangate/pkg/logx"
)

var ErrEmptyPayload = errors.New("empty payload")

// Pacer gates the delivery loop. *rate.Limiter satisfies it; tests inject a
// no-op so runs don't sleep.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NewPacer returns the production pacer: one send per interval, no burst.
func NewPacer(interval time.Duration) Pacer {
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Exclusions is the slice of the store the dispatcher needs.
type Exclusions interface {
	Blacklist() store.Blacklist
}

// Report is the outcome of one broadcast run. Holders is the snapshot size;
// Success+Failed+Excluded equals Holders minus bot accounts.
type Report struct {
	Holders  int
	Success  int
	Failed   int
	Excluded int
	Took     time.Duration
}

type Dispatcher struct {
	gw    platform.Gateway
	msg   platform.Messenger
	st    Exclusions
	pacer Pacer
	log   logx.Logger
	jobs  jobLedger
}

func New(gw platform.Gateway, msg platform.Messenger, st Exclusions, pacer Pacer, log logx.Logger) *Dispatcher {
	if pacer == nil {
		pacer = NewPacer(time.Second)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{gw: gw, msg: msg, st: st, pacer: pacer, log: log}
}

// Broadcast delivers p to every current holder of roleID in guildID.
//
// The member list is a snapshot at call time; joins and leaves during the run
// are not tracked. The run never aborts on a per-recipient failure and
// reports counts once every recipient has been attempted.
func (d *Dispatcher) Broadcast(ctx context.Context, guildID, roleID string, p platform.Payload) (Report, error) {
	if p.Empty() {
		return Report{}, ErrEmptyPayload
	}

	if _, err := d.gw.ResolveRole(ctx, guildID, roleID); err != nil {
		return Report{}, fmt.Errorf("role %s: %w", roleID, err)
	}

	// Warm the member cache. Best-effort: a huge guild can fail mid-chunk and
	// the run proceeds with whatever membership is known.
	if err := d.gw.FetchAllMembers(ctx, guildID); err != nil {
		d.log.Warn("member fetch incomplete; using cached membership", logx.String("guild", guildID), logx.Err(err))
	}

	members, err := d.gw.RoleMembers(ctx, guildID, roleID)
	if err != nil {
		return Report{}, fmt.Errorf("role members %s: %w", roleID, err)
	}

	bl := d.st.Blacklist()
	start := time.Now()
	rep := Report{Holders: len(members)}
	jobID := d.jobs.begin(guildID, roleID)

	d.log.Info("broadcast started", logx.String("guild", guildID), logx.String("role", roleID), logx.Int("holders", rep.Holders), logx.Int64("job", jobID))

	for _, m := range members {
		if m.Bot {
			continue
		}
		if excluded(m, bl) {
			rep.Excluded++
			continue
		}

		if err := d.pacer.Wait(ctx); err != nil {
			// Context canceled mid-run: report what was done so far.
			rep.Took = time.Since(start)
			d.jobs.finish(jobID, rep, JobCanceled)
			return rep, err
		}
		if err := d.msg.SendPrivate(ctx, m.UserID, p); err != nil {
			rep.Failed++
			d.log.Debug("broadcast send failed", logx.String("user", m.UserID), logx.Err(err))
			continue
		}
		rep.Success++
	}

	rep.Took = time.Since(start)
	d.jobs.finish(jobID, rep, JobCompleted)
	fields := []logx.Field{
		logx.String("guild", guildID),
		logx.String("role", roleID),
		logx.Int("sent", rep.Success),
		logx.Int("failed", rep.Failed),
		logx.Int("excluded", rep.Excluded),
		logx.Duration("took", rep.Took),
	}
	if rep.Failed > 0 {
		d.log.Warn("broadcast finished with failures", fields...)
	} else {
		d.log.Info("broadcast finished", fields...)
	}
	return rep, nil
}

// excluded applies the blacklist: a match on either the user list or any
// held role excludes the member.
func excluded(m platform.Member, bl store.Blacklist) bool {
	for _, id := range bl.Users {
		if id == m.UserID {
			return true
		}
	}
	for _, rid := range bl.Roles {
		if m.HasRole(rid) {
			return true
		}
	}
	return false
}

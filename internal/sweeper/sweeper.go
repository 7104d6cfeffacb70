package sweeper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/homeledger/memberships/internal/models"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSchedule  = "@hourly"
	defaultBatchSize = 500
)

// DueLister returns memberships that need a sweeper decision.
type DueLister interface {
	ListDueMemberships(ctx context.Context, now time.Time, limit int) ([]models.Membership, error)
}

// Transitioner applies the lifecycle transitions the sweeper drives.
type Transitioner interface {
	Expire(ctx context.Context, contractorID, membershipID string) (bool, error)
	AutoRenew(ctx context.Context, contractorID, membershipID string) (*models.Membership, bool, error)
	MarkReminderSent(ctx context.Context, contractorID, membershipID string) (bool, error)
}

// Observer receives per-pass counts.
type Observer interface {
	ObserveSweep(expired, renewed, reminded int, took time.Duration)
}

// Result counts the transitions made by one pass.
type Result struct {
	Expired  int
	Renewed  int
	Reminded int
}

// Options configures a Sweeper.
type Options struct {
	Schedule  string
	BatchSize int
	Now       func() time.Time
	Observer  Observer
}

// Sweeper expires, auto-renews and flags reminders for memberships across
// all contractors on a cron schedule.
type Sweeper struct {
	lister    DueLister
	lifecycle Transitioner
	schedule  string
	batchSize int
	now       func() time.Time
	observer  Observer

	mu   sync.Mutex
	cron *cron.Cron
}

// New constructs a Sweeper. It returns nil when a collaborator is missing.
func New(lister DueLister, lifecycle Transitioner, opts Options) *Sweeper {
	if lister == nil || lifecycle == nil {
		return nil
	}
	s := &Sweeper{
		lister:    lister,
		lifecycle: lifecycle,
		schedule:  strings.TrimSpace(opts.Schedule),
		batchSize: opts.BatchSize,
		now:       opts.Now,
		observer:  opts.Observer,
	}
	if s.schedule == "" {
		s.schedule = defaultSchedule
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Start registers the pass on the cron schedule and stops it when ctx ends.
func (s *Sweeper) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("sweeper: already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, errAdd := c.AddFunc(s.schedule, func() { s.run(ctx) }); errAdd != nil {
		return fmt.Errorf("sweeper: invalid schedule %q: %w", s.schedule, errAdd)
	}
	c.Start()
	s.cron = c
	log.Infof("membership sweeper started (schedule=%s)", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	log.Info("membership sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.SweepOnce(ctx)
	if err != nil {
		log.WithError(err).Warn("membership sweeper: pass failed")
		return
	}
	log.WithFields(log.Fields{
		"expired":  res.Expired,
		"renewed":  res.Renewed,
		"reminded": res.Reminded,
	}).Info("membership sweeper: pass finished")
}

// SweepOnce makes one pass over due memberships. Individual failures are
// logged and skipped so one bad row does not block the rest.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	var res Result
	if s == nil {
		return res, fmt.Errorf("sweeper: nil sweeper")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	now := s.now().UTC()

	due, errList := s.lister.ListDueMemberships(ctx, now, s.batchSize)
	if errList != nil {
		return res, fmt.Errorf("sweeper: list due: %w", errList)
	}

	for i := range due {
		if errCtx := ctx.Err(); errCtx != nil {
			return res, errCtx
		}
		m := &due[i]
		entry := log.WithFields(log.Fields{
			"contractor_id": m.ContractorID,
			"membership_id": m.ID,
		})

		switch {
		case m.EndDate.Before(now) && m.AutoRenew:
			renewed, ok, errRenew := s.lifecycle.AutoRenew(ctx, m.ContractorID, m.ID)
			if errRenew != nil {
				entry.WithError(errRenew).Warn("membership sweeper: auto-renew failed")
				continue
			}
			if ok {
				res.Renewed++
				entry.WithField("end_date", renewed.EndDate.Format(time.DateOnly)).Info("membership auto-renewed")
			}
		case m.EndDate.Before(now):
			expired, errExpire := s.lifecycle.Expire(ctx, m.ContractorID, m.ID)
			if errExpire != nil {
				entry.WithError(errExpire).Warn("membership sweeper: expire failed")
				continue
			}
			if expired {
				res.Expired++
				entry.Info("membership expired")
			}
		default:
			marked, errMark := s.lifecycle.MarkReminderSent(ctx, m.ContractorID, m.ID)
			if errMark != nil {
				entry.WithError(errMark).Warn("membership sweeper: reminder failed")
				continue
			}
			if marked {
				res.Reminded++
				entry.WithFields(log.Fields{
					"customer_email": m.CustomerEmail,
					"renewal_date":   m.RenewalDate.Format(time.DateOnly),
				}).Info("membership renewal reminder due")
			}
		}
	}

	if s.observer != nil {
		s.observer.ObserveSweep(res.Expired, res.Renewed, res.Reminded, time.Since(started))
	}
	return res, nil
}

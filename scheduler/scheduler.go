package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"fitness-crm/monitoring"
)

const (
	JobCampaignPoll     = "campaign_poll"
	JobMembershipExpiry = "membership_expiry"
	JobLimiterCleanup   = "login_limiter_cleanup"
)

type CampaignDispatcher interface {
	DispatchDue(ctx context.Context) (int, error)
}

type MembershipExpirer interface {
	ExpireLapsed(ctx context.Context) (int, error)
}

type Cleaner interface {
	Cleanup()
}

type Config struct {
	CampaignPollSpec     string
	MembershipExpirySpec string
	CleanupSpec          string
	JobTimeout           time.Duration
}

// Scheduler runs the periodic back-office jobs. A job that is still running
// when its next tick comes is skipped; a panicking job is logged and the
// scheduler keeps going.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	log     logrus.FieldLogger
}

type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}

// New registers the jobs. A nil dependency or an empty spec leaves its job out.
func New(cfg Config, campaigns CampaignDispatcher, memberships MembershipExpirer, limiter Cleaner, log logrus.FieldLogger) (*Scheduler, error) {
	log = log.WithField("component", "scheduler")
	clog := cronLogger{log: log}

	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(clog),
			// Recover sits inside SkipIfStillRunning so a panic still frees the slot.
			cron.WithChain(cron.SkipIfStillRunning(clog), cron.Recover(clog)),
		),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		log:     log,
	}

	if campaigns != nil && cfg.CampaignPollSpec != "" {
		err := s.add(cfg.CampaignPollSpec, JobCampaignPoll, func(ctx context.Context) (int, error) {
			return campaigns.DispatchDue(ctx)
		})
		if err != nil {
			cancel()
			return nil, err
		}
	}

	if memberships != nil && cfg.MembershipExpirySpec != "" {
		if err := s.add(cfg.MembershipExpirySpec, JobMembershipExpiry, memberships.ExpireLapsed); err != nil {
			cancel()
			return nil, err
		}
	}

	if limiter != nil && cfg.CleanupSpec != "" {
		err := s.add(cfg.CleanupSpec, JobLimiterCleanup, func(context.Context) (int, error) {
			limiter.Cleanup()
			return 0, nil
		})
		if err != nil {
			cancel()
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) add(spec, name string, job func(ctx context.Context) (int, error)) error {
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

func (s *Scheduler) run(name string, job func(ctx context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := job(ctx)
	log := s.log.WithFields(logrus.Fields{"job": name, "duration": time.Since(start).String()})

	if err != nil {
		monitoring.ScheduledJobRuns.WithLabelValues(name, "error").Inc()
		log.WithError(err).Error("scheduled job failed")
		return
	}

	monitoring.ScheduledJobRuns.WithLabelValues(name, "ok").Inc()
	if n > 0 {
		log.WithField("affected", n).Info("scheduled job finished")
	}
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("jobs", s.Jobs()).Info("scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

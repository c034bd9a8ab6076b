// Package icron runs periodic maintenance jobs on standard five-field cron
// expressions.
package icron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/movie-dubber/pkg/log"
)

type TriggerInfo struct {
	Next       time.Time
	Expression string

	TimeUntilNext time.Duration
}

func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	next := schedule.Next(refTime)
	return &TriggerInfo{
		Expression:    cronExpr,
		Next:          next,
		TimeUntilNext: next.Sub(refTime),
	}, nil
}

// Job is one maintenance run. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under name. Overlapping runs of the same job are skipped.
func (s *Scheduler) Add(name, cronExpr string, job Job) error {
	info, err := GetTriggerInfo(cronExpr, time.Now())
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.run(name, job)
	}))
	if _, err := s.cron.AddJob(cronExpr, wrapped); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	log.Info("scheduled %s (%s), next run in %s", name, cronExpr, info.TimeUntilNext.Round(time.Second))
	return nil
}

// RunNow runs a registered job body immediately on the caller's goroutine.
func (s *Scheduler) RunNow(name string, job Job) {
	s.run(name, job)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("%s panicked: %v", name, r)
		}
	}()
	start := time.Now()
	if err := job(s.ctx); err != nil {
		log.Error("%s failed: %v", name, err)
		return
	}
	log.Debug("%s finished in %s", name, time.Since(start))
}

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/oddsflow/collector/internal/model"
)

// RunFunc performs one collection run when a schedule fires
type RunFunc func(ctx context.Context)

// CronRunner triggers collection runs on cron schedules. Each fired
// job is wrapped with panic recovery so a bad run never kills the
// cron loop.
type CronRunner struct {
	logger    *zap.Logger
	cron      *cron.Cron
	run       RunFunc
	schedules sync.Map
	entryIDs  sync.Map
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewCronRunner creates a runner invoking run on every fired schedule
func NewCronRunner(run RunFunc, logger *zap.Logger) *CronRunner {
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronLogger)),
	}

	return &CronRunner{
		logger: logger.Named("cron-runner"),
		cron:   cron.New(cronOptions...),
		run:    run,
	}
}

// Start starts the cron loop
func (r *CronRunner) Start(ctx context.Context) error {
	r.logger.Info("Starting cron runner")
	r.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for in-flight jobs
func (r *CronRunner) Stop() {
	r.logger.Info("Stopping cron runner")
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// AddSchedule registers a new collection schedule
func (r *CronRunner) AddSchedule(ctx context.Context, schedule *model.CollectionSchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now()
	}
	schedule.UpdatedAt = time.Now()

	specParser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	spec, err := specParser.Parse(schedule.Expression)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	r.schedules.Store(schedule.ID, schedule)

	entryID, err := r.cron.AddJob(schedule.Expression, &collectionJob{
		runner:   r,
		schedule: schedule,
		ctx:      ctx,
	})
	if err != nil {
		r.schedules.Delete(schedule.ID)
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	r.entryIDs.Store(schedule.ID, entryID)

	next := spec.Next(time.Now())
	schedule.NextRunTime = &next

	r.logger.Info("Added schedule",
		zap.String("id", schedule.ID),
		zap.String("name", schedule.Name),
		zap.String("expression", schedule.Expression),
		zap.Time("next_run", next))

	return nil
}

// RemoveSchedule removes a schedule
func (r *CronRunner) RemoveSchedule(id string) error {
	entryIDVal, ok := r.entryIDs.Load(id)
	if !ok {
		return fmt.Errorf("schedule not found: %s", id)
	}

	r.cron.Remove(entryIDVal.(cron.EntryID))
	r.entryIDs.Delete(id)
	r.schedules.Delete(id)

	r.logger.Info("Removed schedule", zap.String("id", id))
	return nil
}

// GetSchedule gets a schedule by ID
func (r *CronRunner) GetSchedule(id string) (*model.CollectionSchedule, error) {
	val, ok := r.schedules.Load(id)
	if !ok {
		return nil, fmt.Errorf("schedule not found: %s", id)
	}
	return val.(*model.CollectionSchedule), nil
}

// ListSchedules lists all schedules
func (r *CronRunner) ListSchedules() []*model.CollectionSchedule {
	var schedules []*model.CollectionSchedule
	r.schedules.Range(func(key, value interface{}) bool {
		schedules = append(schedules, value.(*model.CollectionSchedule))
		return true
	})
	return schedules
}

// collectionJob implements cron.Job
type collectionJob struct {
	runner   *CronRunner
	schedule *model.CollectionSchedule
	ctx      context.Context
}

// Run implements cron.Job
func (j *collectionJob) Run() {
	now := time.Now()
	j.schedule.LastRunTime = &now

	specParser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	spec, err := specParser.Parse(j.schedule.Expression)
	if err == nil {
		next := spec.Next(now)
		j.schedule.NextRunTime = &next
	}

	j.runner.logger.Info("Schedule fired",
		zap.String("id", j.schedule.ID),
		zap.String("name", j.schedule.Name),
		zap.Time("fired_at", now))

	j.runner.run(j.ctx)
}

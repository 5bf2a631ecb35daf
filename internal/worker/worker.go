package worker

import (
	"context"
	"log/slog"
	"time"

	"tutor-service/internal/config"
	"tutor-service/internal/lock"
	"tutor-service/internal/metrics"
	"tutor-service/internal/service"
	"tutor-service/pkg/sl"

	"github.com/robfig/cron/v3"
)

// Worker drives the three periodic jobs: expand rules into lessons,
// plan reminders, dispatch due reminders. Each tick grabs a per-job
// redis lock so overlapping runs skip instead of piling up; the jobs
// themselves are idempotent, the lock only saves wasted work.
type Worker struct {
	log    *slog.Logger
	svc    *service.Service
	locker lock.Locker
	cfg    config.Jobs
	cron   *cron.Cron
}

func New(log *slog.Logger, svc *service.Service, locker lock.Locker, cfg config.Jobs) *Worker {
	return &Worker{
		log:    log,
		svc:    svc,
		locker: locker,
		cfg:    cfg,
		cron:   cron.New(),
	}
}

func (w *Worker) Start() error {
	const op = "worker.Start"

	specs := []struct {
		spec string
		name string
		run  func(ctx context.Context) error
	}{
		{"@every " + w.cfg.GenerateEvery.String(), "generate_lessons", w.runGenerate},
		{"@every " + w.cfg.PlanEvery.String(), "plan_notifications", w.runPlan},
		{w.cfg.DispatchSpec, "send_notifications", w.runDispatch},
	}

	for _, job := range specs {
		job := job
		if _, err := w.cron.AddFunc(job.spec, func() {
			w.runLocked(job.name, job.run)
		}); err != nil {
			return err
		}
	}

	w.cron.Start()
	w.log.Info("worker started",
		slog.String("op", op),
		slog.String("generate_every", w.cfg.GenerateEvery.String()),
		slog.String("plan_every", w.cfg.PlanEvery.String()),
		slog.String("dispatch_spec", w.cfg.DispatchSpec),
	)

	return nil
}

// Stop waits for any in-flight job to finish its batch; batches are
// never cancelled midway.
func (w *Worker) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.log.Info("worker stopped")
}

func (w *Worker) runLocked(name string, run func(ctx context.Context) error) {
	ctx := context.Background()
	log := w.log.With(slog.String("job", name))

	locked, err := w.locker.TryLock(ctx, name, w.cfg.LockTTL)
	if err != nil {
		log.Error("job lock failed", sl.Err(err))
		metrics.JobRuns.WithLabelValues(name, "lock_error").Inc()
		return
	}
	if !locked {
		log.Debug("previous run still holds the lock, skipping")
		metrics.JobRuns.WithLabelValues(name, "skipped").Inc()
		return
	}
	defer func() {
		_ = w.locker.Unlock(ctx, name)
	}()

	if err := run(ctx); err != nil {
		log.Error("job failed", sl.Err(err))
		metrics.JobRuns.WithLabelValues(name, "error").Inc()
		return
	}

	metrics.JobRuns.WithLabelValues(name, "ok").Inc()
}

func (w *Worker) runGenerate(ctx context.Context) error {
	attempted, err := w.svc.GenerateLessons(ctx, time.Now().UTC(), w.cfg.HorizonDays)
	if err != nil {
		return err
	}

	w.log.Info("lessons generated", slog.Int("candidates_attempted", attempted))

	return nil
}

func (w *Worker) runPlan(ctx context.Context) error {
	planned, err := w.svc.PlanNotifications(ctx, time.Now().UTC(), w.cfg.PlanAheadDays)
	if err != nil {
		return err
	}

	if planned > 0 {
		w.log.Info("notifications planned", slog.Int("planned", planned))
	}

	return nil
}

func (w *Worker) runDispatch(ctx context.Context) error {
	return w.svc.SendNotifications(ctx, time.Now().UTC(), w.cfg.DispatchBatch)
}

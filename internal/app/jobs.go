package app

import (
	"context"
	"errors"
	"time"

	"eventbot/internal/bot"
	"eventbot/internal/delivery"
	"eventbot/internal/event"
	"eventbot/internal/task/engine"
	"eventbot/internal/task/scheduler"
	logx "eventbot/pkg/logx"
)

const jobTimeout = 30 * time.Minute

var jobOpt = scheduler.TaskOptions{Overlap: engine.OverlapSkipIfRunning}

// registerJobs (re)arms the delivery schedule for cal. Names are stable, so
// calling it again after a calendar reload replaces the previous triggers.
func (a *App) registerJobs(cal *event.Calendar) {
	a.once(bot.JobDeliverGreetings, cal.Start, a.jobDeliverGreetings)
	a.once(bot.JobSendReminder, cal.Reminder, a.jobSendReminder)
	a.once(bot.JobMediaCollection, cal.CollectionAt(), a.jobMediaCollection)

	if cal.IsArchive() {
		a.sched.Remove(bot.JobPushNewMedia)
		return
	}
	if cal.PushCron != "" {
		if err := a.sched.AddCron(bot.JobPushNewMedia, cal.PushCron, jobTimeout, jobOpt, a.jobPushNewMedia); err != nil {
			a.log.Error("schedule failed", logx.String("job", bot.JobPushNewMedia), logx.Err(err))
			return
		}
		a.log.Info("job scheduled", logx.String("job", bot.JobPushNewMedia), logx.String("cron", cal.PushCron))
		return
	}
	if err := a.sched.AddInterval(bot.JobPushNewMedia, cal.PushInterval, jobTimeout, jobOpt, a.jobPushNewMedia); err != nil {
		a.log.Error("schedule failed", logx.String("job", bot.JobPushNewMedia), logx.Err(err))
		return
	}
	a.log.Info("job scheduled", logx.String("job", bot.JobPushNewMedia), logx.Duration("every", cal.PushInterval))
}

func (a *App) once(name string, at time.Time, job scheduler.Job) {
	err := a.sched.AddOnce(name, at, jobTimeout, jobOpt, job)
	switch {
	case errors.Is(err, scheduler.ErrMissed):
		a.log.Warn("job missed, not replayed", logx.String("job", name), logx.Time("at", at))
	case err != nil:
		a.log.Error("schedule failed", logx.String("job", name), logx.Err(err))
	default:
		a.log.Info("job scheduled", logx.String("job", name), logx.Time("at", at))
	}
}

// Delivery errors are store or context failures; retrying a half-done
// fan-out would resend to recipients who already got it.

func (a *App) jobDeliverGreetings(ctx context.Context) error {
	rep, err := a.delivery.DeliverGreetings(ctx)
	if err != nil {
		return engine.NoRetry(err)
	}
	a.log.Info("greetings delivered",
		logx.Int("pending", rep.Pending),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
	)
	return nil
}

func (a *App) jobSendReminder(ctx context.Context) error {
	rep, err := a.delivery.SendReminder(ctx)
	if err != nil {
		return engine.NoRetry(err)
	}
	a.log.Info("reminder sent", logx.Int("recipients", rep.Recipients), logx.Int("sent", rep.Sent))
	return nil
}

func (a *App) jobMediaCollection(ctx context.Context) error {
	rep, err := a.delivery.BuildAndSendMediaCollection(ctx, delivery.ModeEveryone)
	if err != nil {
		return engine.NoRetry(err)
	}
	a.log.Info("media collection sent",
		logx.Int("items", rep.Items),
		logx.Int("recipients", rep.Recipients),
		logx.Int64("marked", rep.Marked),
	)
	return nil
}

// jobPushNewMedia is a no-op before the start and unschedules itself once
// the archive date is reached.
func (a *App) jobPushNewMedia(ctx context.Context) error {
	if a.cal.IsArchive() {
		if a.sched.Remove(bot.JobPushNewMedia) {
			a.log.Info("archive mode, push job removed")
		}
		return nil
	}
	if !a.cal.Started() {
		return nil
	}
	rep, err := a.delivery.PushNewMedia(ctx)
	if err != nil {
		return engine.NoRetry(err)
	}
	if rep.Items > 0 {
		a.log.Info("new media pushed", logx.Int("items", rep.Items), logx.Int("recipients", rep.Recipients), logx.Int64("marked", rep.Marked))
	}
	return nil
}

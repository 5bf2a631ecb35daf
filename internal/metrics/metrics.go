package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LessonsAttempted counts candidates offered to the ledger, not rows
// actually inserted; re-runs inflate it.
var (
	LessonsAttempted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutor_lessons_generation_attempted_total",
		Help: "Lesson candidates offered to the ledger by the expander.",
	})

	NotificationsPlanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutor_notifications_planned_total",
		Help: "Reminder entries newly materialized by the planner.",
	})

	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutor_notifications_sent_total",
		Help: "Reminders delivered successfully.",
	})

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutor_notifications_failed_total",
		Help: "Reminders terminally failed (delivery error or missing recipient).",
	})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_job_runs_total",
		Help: "Periodic job invocations by job name and outcome.",
	}, []string{"job", "outcome"})
)

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tutor-service/internal/metrics"
	"tutor-service/internal/models"
	"tutor-service/internal/timeutil"
	"tutor-service/pkg/response"
	"tutor-service/pkg/sl"
)

const (
	// DefaultPlanAheadDays is the planner's look-ahead window over
	// planned lessons.
	DefaultPlanAheadDays = 7

	// DefaultDispatchBatch caps how many due reminders one dispatcher
	// tick works through.
	DefaultDispatchBatch = 50

	maxErrorLen = 2000
)

var leadTimes = []struct {
	kind models.NotificationKind
	lead time.Duration
}{
	{models.NotifyLesson24h, 24 * time.Hour},
	{models.NotifyLesson1h, time.Hour},
}

// PlanNotifications materializes reminder entries for planned lessons
// starting within the look-ahead window. The fire instant is computed
// once here; an instant already in the past is skipped entirely rather
// than fired late. Returns how many entries were newly created.
func (s *Service) PlanNotifications(ctx context.Context, nowUTC time.Time, aheadDays int) (int, error) {
	const op = "service.PlanNotifications"

	horizon := nowUTC.Add(time.Duration(aheadDays) * 24 * time.Hour)

	lessons, err := s.store.ListPlannedLessonsBetween(ctx, nowUTC, horizon)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(lessons) == 0 {
		return 0, nil
	}

	planned := 0

	for _, lesson := range lessons {
		st, err := s.store.GetStudent(ctx, lesson.StudentID)
		if err != nil {
			return planned, fmt.Errorf("%s: %w", op, err)
		}

		recipients := make(map[int64]struct{})
		if st.UserID != nil {
			recipients[*st.UserID] = struct{}{}
		}

		parents, err := s.store.ParentUsersForStudent(ctx, st.ID)
		if err != nil {
			return planned, fmt.Errorf("%s: %w", op, err)
		}
		for _, p := range parents {
			recipients[p.ID] = struct{}{}
		}

		for uid := range recipients {
			for _, lt := range leadTimes {
				sendAt := lesson.StartAt.Add(-lt.lead)
				if !sendAt.After(nowUTC) {
					continue
				}

				inserted, err := s.store.InsertNotificationIfAbsent(ctx, &models.Notification{
					UserID:   uid,
					Type:     lt.kind,
					EntityID: lesson.ID,
					SendAt:   sendAt,
					Status:   models.NotificationPending,
				})
				if err != nil {
					return planned, fmt.Errorf("%s: %w", op, err)
				}
				if inserted {
					planned++
					metrics.NotificationsPlanned.Inc()
				}
			}
		}
	}

	return planned, nil
}

// SendNotifications delivers due reminders, oldest first, up to
// batchSize. Every per-entry problem is terminal for that entry only:
// the row is marked failed with the reason and the batch moves on.
func (s *Service) SendNotifications(ctx context.Context, nowUTC time.Time, batchSize int) error {
	const op = "service.SendNotifications"

	notifs, err := s.store.DueNotifications(ctx, nowUTC, batchSize)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, n := range notifs {
		user, err := s.store.GetUser(ctx, n.UserID)
		if err != nil {
			if errors.Is(err, response.ErrNotFound) {
				// recipient deleted since planning; nothing to retry
				s.failNotification(ctx, n.ID, "user not found")
				continue
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		text, err := s.renderNotification(ctx, n, user)
		if err != nil {
			s.failNotification(ctx, n.ID, truncateError(err.Error()))
			continue
		}

		if err := s.sender.Send(ctx, user.TgID, text); err != nil {
			s.failNotification(ctx, n.ID, truncateError(err.Error()))
			continue
		}

		if err := s.store.MarkNotificationSent(ctx, n.ID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		metrics.NotificationsSent.Inc()
	}

	return nil
}

func (s *Service) renderNotification(ctx context.Context, n *models.Notification, user *models.User) (string, error) {
	switch n.Type {
	case models.NotifyLesson24h, models.NotifyLesson1h:
		lesson, err := s.store.GetLesson(ctx, n.EntityID)
		if err != nil {
			return "", err
		}

		st, err := s.store.GetStudent(ctx, lesson.StudentID)
		if err != nil {
			return "", err
		}

		tz := userTimezone(user)
		when := timeutil.FormatInZone(lesson.StartAt, tz)

		return fmt.Sprintf(
			"Reminder: lesson coming up.\nStudent: %s\nTime: %s (%s)",
			st.FullName, when, tz,
		), nil

	case models.NotifyHWGraded:
		// payload was rendered when the grade was set; send it as is
		if n.Payload != nil && *n.Payload != "" {
			return *n.Payload, nil
		}
		return "Homework has been graded.", nil

	default:
		return "", fmt.Errorf("unknown notification type: %s", n.Type)
	}
}

func (s *Service) failNotification(ctx context.Context, id int64, reason string) {
	if err := s.store.MarkNotificationFailed(ctx, id, reason); err != nil {
		s.log.Error("failed to record notification failure",
			slog.Int64("notification_id", id), sl.Err(err))
		return
	}
	metrics.NotificationsFailed.Inc()
}

// QueueHomeworkGraded enqueues an immediate hw_graded notice for the
// student and every parent; the dispatcher picks it up on its next
// tick.
func (s *Service) QueueHomeworkGraded(ctx context.Context, lessonID int64, text string, nowUTC time.Time) (int, error) {
	const op = "service.QueueHomeworkGraded"

	lesson, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	st, err := s.store.GetStudent(ctx, lesson.StudentID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	recipients := make(map[int64]struct{})
	if st.UserID != nil {
		recipients[*st.UserID] = struct{}{}
	}

	parents, err := s.store.ParentUsersForStudent(ctx, st.ID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	for _, p := range parents {
		recipients[p.ID] = struct{}{}
	}

	queued := 0
	for uid := range recipients {
		payload := text
		inserted, err := s.store.InsertNotificationIfAbsent(ctx, &models.Notification{
			UserID:   uid,
			Type:     models.NotifyHWGraded,
			EntityID: lesson.ID,
			SendAt:   nowUTC,
			Payload:  &payload,
			Status:   models.NotificationPending,
		})
		if err != nil {
			return queued, fmt.Errorf("%s: %w", op, err)
		}
		if inserted {
			queued++
			metrics.NotificationsPlanned.Inc()
		}
	}

	return queued, nil
}

func userTimezone(u *models.User) string {
	if u.Timezone != nil && *u.Timezone != "" {
		return *u.Timezone
	}
	return timeutil.DefaultTimezone
}

func truncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= maxErrorLen {
		return msg
	}
	return string(runes[:maxErrorLen])
}

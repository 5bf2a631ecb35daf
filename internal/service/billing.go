package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tutor-service/internal/models"
	"tutor-service/internal/timeutil"
	"tutor-service/pkg/response"
	"tutor-service/pkg/sl"

	"github.com/shopspring/decimal"
)

// SubscriptionPackages are the only top-up sizes an operator can sell.
var SubscriptionPackages = []int{8, 12}

// MarkLessonDone transitions a planned lesson to done and applies the
// student's billing policy. The lesson-status compare-and-set is the
// sole idempotence guard: everything after it runs at most once per
// lesson, so a double submit is a harmless no-op.
//
// Returns the charge id while payment is still owed (single mode,
// charge pending), nil otherwise.
func (s *Service) MarkLessonDone(ctx context.Context, lessonID int64) (*int64, error) {
	const op = "service.MarkLessonDone"

	lesson, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	won, err := s.store.MarkLessonDoneIfPlanned(ctx, lessonID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !won {
		return nil, nil
	}

	st, err := s.store.GetStudent(ctx, lesson.StudentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if st.BillingMode == models.BillingSubscription {
		left, clamped, err := s.store.DecrementBalanceClamped(ctx, st.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if clamped {
			// over-drawn: completion still proceeds, but leave a trace
			s.log.Warn("subscription balance was already empty",
				slog.Int64("student_id", st.ID),
				slog.Int64("lesson_id", lessonID))
		} else {
			s.log.Debug("subscription credit consumed",
				slog.Int64("student_id", st.ID),
				slog.Int("lessons_left", left))
		}

		return nil, nil
	}

	// single mode
	if st.PricePerLesson == nil {
		return nil, fmt.Errorf("%s: student %d has no price_per_lesson: %w",
			op, st.ID, response.ErrConfiguration)
	}

	chargeID, created, err := s.store.CreateChargeIfAbsent(ctx, &models.LessonCharge{
		LessonID:  lesson.ID,
		StudentID: st.ID,
		Amount:    *st.PricePerLesson,
		Status:    models.ChargePending,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	charge := &models.LessonCharge{
		ID:     chargeID,
		Amount: *st.PricePerLesson,
		Status: models.ChargePending,
	}
	if !created {
		// pre-paid earlier via PayLessonAnytime; keep it as is
		charge, err = s.store.GetChargeByLesson(ctx, lesson.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	s.notifyParentsLessonDone(ctx, st, lesson, charge)

	if charge.Status == models.ChargePending {
		id := charge.ID
		return &id, nil
	}

	return nil, nil
}

func (s *Service) notifyParentsLessonDone(ctx context.Context, st *models.Student, lesson *models.Lesson, charge *models.LessonCharge) {
	parents, err := s.store.ParentUsersForStudent(ctx, st.ID)
	if err != nil {
		s.log.Error("failed to resolve parents", slog.Int64("student_id", st.ID), sl.Err(err))
		return
	}

	for _, pu := range parents {
		tz := userTimezone(pu)
		when := timeutil.FormatInZone(lesson.StartAt, tz)

		var text string
		if charge.Status == models.ChargePaid {
			text = fmt.Sprintf(
				"Lesson completed.\nStudent: %s\nDate/time: %s (%s)\nPayment received earlier, nothing is due.",
				st.FullName, when, tz,
			)
		} else {
			text = fmt.Sprintf(
				"Lesson completed.\nStudent: %s\nDate/time: %s (%s)\nAmount due: %s",
				st.FullName, when, tz, charge.Amount.StringFixed(2),
			)
		}

		if err := s.sender.Send(ctx, pu.TgID, text); err != nil {
			// billing already settled; a lost notice is not worth failing the call
			s.log.Warn("failed to notify parent",
				slog.Int64("user_id", pu.ID),
				slog.Int64("lesson_id", lesson.ID),
				sl.Err(err))
		}
	}
}

// MarkChargePaid flips a pending charge to paid. Already paid or
// canceled charges are left exactly as they are.
func (s *Service) MarkChargePaid(ctx context.Context, chargeID int64) error {
	const op = "service.MarkChargePaid"

	if _, err := s.store.GetCharge(ctx, chargeID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.store.MarkChargePaidIfPending(ctx, chargeID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// PayLessonAnytime records payment for a lesson regardless of its own
// status, covering parents who pay before the session happens.
func (s *Service) PayLessonAnytime(ctx context.Context, lessonID int64) error {
	const op = "service.PayLessonAnytime"

	lesson, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	st, err := s.store.GetStudent(ctx, lesson.StudentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if st.BillingMode != models.BillingSingle {
		return fmt.Errorf("%s: subscription lessons have nothing to pay: %w", op, response.ErrValidation)
	}

	amount := decimal.Zero
	if st.PricePerLesson != nil {
		amount = *st.PricePerLesson
	}

	if err := s.store.UpsertChargePaid(ctx, lesson.ID, st.ID, amount, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AddSubscriptionPackage tops up a subscription student's balance with
// one of the fixed package sizes and returns the new total.
func (s *Service) AddSubscriptionPackage(ctx context.Context, studentID int64, qty int) (int, error) {
	const op = "service.AddSubscriptionPackage"

	supported := false
	for _, p := range SubscriptionPackages {
		if qty == p {
			supported = true
			break
		}
	}
	if !supported {
		return 0, fmt.Errorf("%s: package must be one of %v lessons: %w",
			op, SubscriptionPackages, response.ErrValidation)
	}

	st, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if st.BillingMode != models.BillingSubscription {
		return 0, fmt.Errorf("%s: packages are only for subscription students: %w", op, response.ErrValidation)
	}

	left, err := s.store.AddBalance(ctx, studentID, qty)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return left, nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"tutor-service/internal/metrics"
	"tutor-service/internal/models"
	"tutor-service/internal/timeutil"
)

// DefaultHorizonDays is how far ahead the expander materializes
// occurrences from active rules.
const DefaultHorizonDays = 60

// GenerateLessons expands every active rule over the horizon. The
// return value counts candidates attempted, not rows inserted: the
// insert is keyed on (student, start_at), so re-runs and coinciding
// rules are absorbed silently.
func (s *Service) GenerateLessons(ctx context.Context, nowUTC time.Time, horizonDays int) (int, error) {
	const op = "service.GenerateLessons"

	rules, err := s.store.ListActiveRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(rules) == 0 {
		return 0, nil
	}

	tzByStudent := make(map[int64]string)
	for _, r := range rules {
		if _, ok := tzByStudent[r.StudentID]; ok {
			continue
		}
		st, err := s.store.GetStudent(ctx, r.StudentID)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		tzByStudent[r.StudentID] = st.Timezone
	}

	return s.expandRules(ctx, op, rules, tzByStudent, nowUTC, horizonDays)
}

// GenerateLessonsForStudent is the single-student variant used when an
// operator just added or changed a rule.
func (s *Service) GenerateLessonsForStudent(ctx context.Context, studentID int64, nowUTC time.Time, horizonDays int) (int, error) {
	const op = "service.GenerateLessonsForStudent"

	st, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	rules, err := s.store.ListActiveRulesForStudent(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(rules) == 0 {
		return 0, nil
	}

	tzByStudent := map[int64]string{studentID: st.Timezone}

	return s.expandRules(ctx, op, rules, tzByStudent, nowUTC, horizonDays)
}

func (s *Service) expandRules(ctx context.Context, op string, rules []*models.ScheduleRule, tzByStudent map[int64]string, nowUTC time.Time, horizonDays int) (int, error) {
	startDay := timeutil.TruncateToDate(nowUTC.UTC(), time.UTC)
	endDay := timeutil.TruncateToDate(nowUTC.UTC().AddDate(0, 0, horizonDays), time.UTC)

	attempted := 0

	for _, r := range rules {
		tz, ok := tzByStudent[r.StudentID]
		if !ok {
			tz = timeutil.DefaultTimezone
		}

		from := timeutil.TruncateToDate(r.StartDate, time.UTC)
		if from.Before(startDay) {
			from = startDay
		}

		to := endDay
		if r.EndDate != nil {
			ruleEnd := timeutil.TruncateToDate(*r.EndDate, time.UTC)
			if ruleEnd.Before(to) {
				to = ruleEnd
			}
		}

		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			if timeutil.RuleWeekday(d.Weekday()) != r.Weekday {
				continue
			}

			startAt, err := timeutil.ToUTC(tz, d, r.TimeLocal)
			if err != nil {
				return attempted, fmt.Errorf("%s: rule %d: %w", op, r.ID, err)
			}

			ruleID := r.ID
			lesson := &models.Lesson{
				StudentID:    r.StudentID,
				StartAt:      startAt,
				DurationMin:  r.DurationMin,
				Status:       models.LessonPlanned,
				SourceRuleID: &ruleID,
			}

			if _, err := s.store.InsertLessonIfAbsent(ctx, lesson); err != nil {
				return attempted, fmt.Errorf("%s: %w", op, err)
			}

			attempted++
			metrics.LessonsAttempted.Inc()
		}
	}

	return attempted, nil
}

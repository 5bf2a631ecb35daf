package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tutor-service/api"
	"tutor-service/internal/models"
	"tutor-service/internal/timeutil"
	"tutor-service/pkg/response"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	log    *slog.Logger
	store  Store
	sender Sender
}

func NewService(log *slog.Logger, store Store, sender Sender) *Service {
	return &Service{log: log, store: store, sender: sender}
}

// Sender is the external messaging client; chatID is the recipient's
// messenger address.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Store interface {
	// Users
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)

	// Students
	CreateStudent(ctx context.Context, st *models.Student) (int64, error)
	GetStudent(ctx context.Context, id int64) (*models.Student, error)
	ListStudents(ctx context.Context) ([]*models.Student, error)
	LinkStudentUser(ctx context.Context, studentID, userID int64) error
	DeleteStudentCascade(ctx context.Context, studentID int64) error

	// Parents
	CreateParent(ctx context.Context, p *models.Parent) (int64, error)
	LinkParentStudent(ctx context.Context, parentID, studentID int64) error
	ParentUsersForStudent(ctx context.Context, studentID int64) ([]*models.User, error)

	// Schedule rules
	CreateRule(ctx context.Context, r *models.ScheduleRule) (int64, error)
	ListActiveRules(ctx context.Context) ([]*models.ScheduleRule, error)
	ListActiveRulesForStudent(ctx context.Context, studentID int64) ([]*models.ScheduleRule, error)
	DeactivateRule(ctx context.Context, id int64) error
	DeleteRule(ctx context.Context, id int64) error

	// Lessons
	InsertLessonIfAbsent(ctx context.Context, l *models.Lesson) (bool, error)
	GetLesson(ctx context.Context, id int64) (*models.Lesson, error)
	ListPlannedLessonsBetween(ctx context.Context, from, to time.Time) ([]*models.Lesson, error)
	MarkLessonDoneIfPlanned(ctx context.Context, id int64, doneAt time.Time) (bool, error)
	CancelLessonIfPlanned(ctx context.Context, id int64) (bool, error)
	DeleteLesson(ctx context.Context, id int64) error

	// Balance
	DecrementBalanceClamped(ctx context.Context, studentID int64) (int, bool, error)
	AddBalance(ctx context.Context, studentID int64, qty int) (int, error)

	// Charges
	CreateChargeIfAbsent(ctx context.Context, ch *models.LessonCharge) (int64, bool, error)
	GetCharge(ctx context.Context, id int64) (*models.LessonCharge, error)
	GetChargeByLesson(ctx context.Context, lessonID int64) (*models.LessonCharge, error)
	MarkChargePaidIfPending(ctx context.Context, id int64, paidAt time.Time) (bool, error)
	UpsertChargePaid(ctx context.Context, lessonID, studentID int64, amount decimal.Decimal, paidAt time.Time) error

	// Notifications
	InsertNotificationIfAbsent(ctx context.Context, n *models.Notification) (bool, error)
	DueNotifications(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error)
	MarkNotificationSent(ctx context.Context, id int64) error
	MarkNotificationFailed(ctx context.Context, id int64, reason string) error

	// Registration keys
	CreateRegistrationKey(ctx context.Context, k *models.RegistrationKey) (int64, error)
	GetRegistrationKey(ctx context.Context, key string) (*models.RegistrationKey, error)
	ConsumeRegistrationKey(ctx context.Context, id int64) (bool, error)
}

// Students

func (s *Service) CreateStudent(ctx context.Context, req *api.StudentCreateRequest) (*api.StudentResponse, error) {
	const op = "service.CreateStudent"

	if req.FullName == "" {
		return nil, fmt.Errorf("%s: full_name is required: %w", op, response.ErrValidation)
	}

	tz := req.Timezone
	if tz == "" {
		tz = timeutil.DefaultTimezone
	}
	// probe the zone now so a typo fails loudly here, not inside a job
	if _, err := timeutil.ToUTC(tz, time.Now(), "00:00"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	mode := models.BillingMode(req.BillingMode)
	if mode == "" {
		mode = models.BillingSubscription
	}
	if mode != models.BillingSubscription && mode != models.BillingSingle {
		return nil, fmt.Errorf("%s: unknown billing_mode %q: %w", op, req.BillingMode, response.ErrValidation)
	}

	st := &models.Student{
		FullName:    req.FullName,
		Timezone:    tz,
		BillingMode: mode,
	}

	if req.PricePerLesson != nil {
		price, err := decimal.NewFromString(*req.PricePerLesson)
		if err != nil || price.IsNegative() {
			return nil, fmt.Errorf("%s: invalid price_per_lesson: %w", op, response.ErrValidation)
		}
		st.PricePerLesson = &price
	}

	if mode == models.BillingSingle && st.PricePerLesson == nil {
		return nil, fmt.Errorf("%s: single billing requires price_per_lesson: %w", op, response.ErrConfiguration)
	}

	id, err := s.store.CreateStudent(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetStudent(ctx, id)
}

func (s *Service) GetStudent(ctx context.Context, id int64) (*api.StudentResponse, error) {
	const op = "service.GetStudent"

	st, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return studentResponse(st), nil
}

func (s *Service) ListStudents(ctx context.Context) ([]*api.StudentResponse, error) {
	const op = "service.ListStudents"

	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.StudentResponse, 0, len(students))
	for _, st := range students {
		result = append(result, studentResponse(st))
	}

	return result, nil
}

func (s *Service) DeleteStudent(ctx context.Context, id int64) error {
	const op = "service.DeleteStudent"

	if err := s.store.DeleteStudentCascade(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func studentResponse(st *models.Student) *api.StudentResponse {
	resp := &api.StudentResponse{
		ID:          st.ID,
		FullName:    st.FullName,
		Timezone:    st.Timezone,
		BillingMode: string(st.BillingMode),
		Registered:  st.UserID != nil,
	}

	if st.PricePerLesson != nil {
		price := st.PricePerLesson.StringFixed(2)
		resp.PricePerLesson = &price
	}

	return resp
}

// Schedule rules

func (s *Service) CreateRule(ctx context.Context, req *api.RuleCreateRequest) (*api.RuleResponse, error) {
	const op = "service.CreateRule"

	if req.Weekday < 0 || req.Weekday > 6 {
		return nil, fmt.Errorf("%s: weekday must be 0..6: %w", op, response.ErrValidation)
	}
	if req.DurationMin <= 0 {
		return nil, fmt.Errorf("%s: duration_min must be positive: %w", op, response.ErrValidation)
	}

	if _, err := time.Parse("15:04", req.TimeLocal); err != nil {
		return nil, fmt.Errorf("%s: invalid time_local: %w", op, response.ErrValidation)
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid start_date: %w", op, response.ErrValidation)
	}

	var endDate *time.Time
	if req.EndDate != nil {
		ed, err := time.Parse("2006-01-02", *req.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid end_date: %w", op, response.ErrValidation)
		}
		if ed.Before(startDate) {
			return nil, fmt.Errorf("%s: end_date before start_date: %w", op, response.ErrValidation)
		}
		endDate = &ed
	}

	st, err := s.store.GetStudent(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// same probe as CreateStudent: the expander must never hit a bad zone
	if _, err := timeutil.ToUTC(st.Timezone, startDate, req.TimeLocal); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rule := &models.ScheduleRule{
		StudentID:   req.StudentID,
		Weekday:     req.Weekday,
		TimeLocal:   req.TimeLocal,
		DurationMin: req.DurationMin,
		StartDate:   startDate,
		EndDate:     endDate,
		Active:      true,
	}

	id, err := s.store.CreateRule(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rule.ID = id

	// materialize occurrences right away so the student's schedule is
	// visible without waiting for the nightly job
	if _, err := s.GenerateLessonsForStudent(ctx, req.StudentID, time.Now().UTC(), DefaultHorizonDays); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ruleResponse(rule), nil
}

func (s *Service) ListRules(ctx context.Context, studentID int64) ([]*api.RuleResponse, error) {
	const op = "service.ListRules"

	if _, err := s.store.GetStudent(ctx, studentID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rules, err := s.store.ListActiveRulesForStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.RuleResponse, 0, len(rules))
	for _, r := range rules {
		result = append(result, ruleResponse(r))
	}

	return result, nil
}

func (s *Service) DeactivateRule(ctx context.Context, id int64) error {
	const op = "service.DeactivateRule"

	if err := s.store.DeactivateRule(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	const op = "service.DeleteRule"

	if err := s.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func ruleResponse(r *models.ScheduleRule) *api.RuleResponse {
	resp := &api.RuleResponse{
		ID:          r.ID,
		StudentID:   r.StudentID,
		Weekday:     r.Weekday,
		TimeLocal:   r.TimeLocal,
		DurationMin: r.DurationMin,
		StartDate:   r.StartDate.Format("2006-01-02"),
		Active:      r.Active,
	}

	if r.EndDate != nil {
		ed := r.EndDate.Format("2006-01-02")
		resp.EndDate = &ed
	}

	return resp
}

// Lessons

// CreateLesson adds a one-off occurrence. The (student, start_at) key
// still applies: colliding with an existing occurrence is a conflict
// the operator has to resolve, not a silent no-op.
func (s *Service) CreateLesson(ctx context.Context, req *api.LessonCreateRequest) (*api.LessonResponse, error) {
	const op = "service.CreateLesson"

	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid start_at: %w", op, response.ErrValidation)
	}

	if !startAt.After(time.Now()) {
		return nil, fmt.Errorf("%s: start_at must be in the future: %w", op, response.ErrValidation)
	}

	duration := req.DurationMin
	if duration == 0 {
		duration = 60
	}
	if duration < 0 {
		return nil, fmt.Errorf("%s: duration_min must be positive: %w", op, response.ErrValidation)
	}

	if _, err := s.store.GetStudent(ctx, req.StudentID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lesson := &models.Lesson{
		StudentID:   req.StudentID,
		StartAt:     startAt.UTC(),
		DurationMin: duration,
		Status:      models.LessonPlanned,
		Topic:       req.Topic,
	}

	inserted, err := s.store.InsertLessonIfAbsent(ctx, lesson)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !inserted {
		return nil, fmt.Errorf("%s: lesson already exists at %s: %w", op, lesson.StartAt, response.ErrConflict)
	}

	return &api.LessonResponse{
		StudentID:   lesson.StudentID,
		StartAt:     lesson.StartAt,
		DurationMin: lesson.DurationMin,
		Status:      string(lesson.Status),
		Topic:       lesson.Topic,
	}, nil
}

// CancelLesson removes a one-off occurrence outright but only flips
// the status of a rule-generated one; a deleted recurring occurrence
// would just be regenerated on the next expander run.
func (s *Service) CancelLesson(ctx context.Context, id int64) error {
	const op = "service.CancelLesson"

	lesson, err := s.store.GetLesson(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if lesson.Status != models.LessonPlanned {
		return fmt.Errorf("%s: lesson is %s: %w", op, lesson.Status, response.ErrConflict)
	}

	if lesson.SourceRuleID == nil {
		if err := s.store.DeleteLesson(ctx, id); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	if _, err := s.store.CancelLessonIfPlanned(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Registration keys

func (s *Service) CreateRegistrationKey(ctx context.Context, req *api.KeyCreateRequest) (*api.KeyResponse, error) {
	const op = "service.CreateRegistrationKey"

	role := models.Role(req.Role)
	if role != models.RoleStudent && role != models.RoleParent {
		return nil, fmt.Errorf("%s: role must be student or parent: %w", op, response.ErrValidation)
	}

	// both roles bind to a student: students get linked to the record,
	// parents get linked as guardians of it
	if req.StudentID == nil {
		return nil, fmt.Errorf("%s: student_id is required: %w", op, response.ErrValidation)
	}
	if _, err := s.store.GetStudent(ctx, *req.StudentID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	maxUses := req.MaxUses
	if maxUses <= 0 {
		maxUses = 1
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		exp, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid expires_at: %w", op, response.ErrValidation)
		}
		expiresAt = &exp
	}

	key := &models.RegistrationKey{
		Key:        uuid.NewString(),
		RoleTarget: role,
		StudentID:  req.StudentID,
		ExpiresAt:  expiresAt,
		MaxUses:    maxUses,
	}

	if _, err := s.store.CreateRegistrationKey(ctx, key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &api.KeyResponse{
		Key:       key.Key,
		Role:      string(key.RoleTarget),
		StudentID: key.StudentID,
		ExpiresAt: key.ExpiresAt,
		MaxUses:   key.MaxUses,
	}, nil
}

// RegisterByKey creates the user behind a key and links it to the
// bound student, either directly or as a parent.
func (s *Service) RegisterByKey(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	const op = "service.RegisterByKey"

	key, err := s.store.GetRegistrationKey(ctx, req.Key)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: key is not valid: %w", op, response.ErrValidation)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	if !key.Active || key.UsedCount >= key.MaxUses ||
		(key.ExpiresAt != nil && !key.ExpiresAt.After(now)) {
		return nil, fmt.Errorf("%s: key is not valid: %w", op, response.ErrValidation)
	}
	if key.StudentID == nil {
		return nil, fmt.Errorf("%s: key is not bound to a student: %w", op, response.ErrConfiguration)
	}

	// burn the use first: the conditional update loses cleanly if a
	// concurrent registration got there before us
	consumed, err := s.store.ConsumeRegistrationKey(ctx, key.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !consumed {
		return nil, fmt.Errorf("%s: key is not valid: %w", op, response.ErrValidation)
	}

	user := &models.User{
		TgID: req.TgID,
		Role: key.RoleTarget,
		Name: req.FullName,
	}

	userID, err := s.store.CreateUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch key.RoleTarget {
	case models.RoleStudent:
		if err := s.store.LinkStudentUser(ctx, *key.StudentID, userID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case models.RoleParent:
		parentID, err := s.store.CreateParent(ctx, &models.Parent{UserID: userID, FullName: req.FullName})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.store.LinkParentStudent(ctx, parentID, *key.StudentID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &api.RegisterResponse{
		UserID: userID,
		Role:   string(key.RoleTarget),
	}, nil
}

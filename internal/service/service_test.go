package service

import (
	"context"
	"errors"
	"testing"

	"tutor-service/api"
	"tutor-service/internal/models"
	"tutor-service/pkg/response"
)

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func TestCreateStudent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		req     api.StudentCreateRequest
		wantErr error
	}{
		{
			name: "subscription defaults",
			req:  api.StudentCreateRequest{FullName: "Anna"},
		},
		{
			name: "single with price",
			req: api.StudentCreateRequest{
				FullName:       "Boris",
				BillingMode:    "single",
				PricePerLesson: strPtr("1200.50"),
			},
		},
		{
			name:    "empty name",
			req:     api.StudentCreateRequest{},
			wantErr: response.ErrValidation,
		},
		{
			name: "bad timezone",
			req: api.StudentCreateRequest{
				FullName: "Clara",
				Timezone: "Mars/Olympus",
			},
			wantErr: response.ErrConfiguration,
		},
		{
			name: "bad billing mode",
			req: api.StudentCreateRequest{
				FullName:    "Dima",
				BillingMode: "barter",
			},
			wantErr: response.ErrValidation,
		},
		{
			name: "single without price",
			req: api.StudentCreateRequest{
				FullName:    "Egor",
				BillingMode: "single",
			},
			wantErr: response.ErrConfiguration,
		},
		{
			name: "negative price",
			req: api.StudentCreateRequest{
				FullName:       "Fedor",
				BillingMode:    "single",
				PricePerLesson: strPtr("-10"),
			},
			wantErr: response.ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, err := svc.CreateStudent(ctx, &tc.req)

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("CreateStudent: %v", err)
			}
			if st.ID == 0 {
				t.Errorf("student id not assigned")
			}
			if st.Timezone == "" {
				t.Errorf("timezone not defaulted")
			}
			if st.Registered {
				t.Errorf("new student reported as registered")
			}
		})
	}
}

func TestCreateRule_Validation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st := seedStudent(t, store, models.BillingSubscription, "")

	valid := api.RuleCreateRequest{
		StudentID:   st.ID,
		Weekday:     0,
		TimeLocal:   "10:00",
		DurationMin: 60,
		StartDate:   "2026-01-05",
	}

	cases := []struct {
		name   string
		mutate func(r *api.RuleCreateRequest)
	}{
		{"weekday too big", func(r *api.RuleCreateRequest) { r.Weekday = 7 }},
		{"weekday negative", func(r *api.RuleCreateRequest) { r.Weekday = -1 }},
		{"zero duration", func(r *api.RuleCreateRequest) { r.DurationMin = 0 }},
		{"bad time", func(r *api.RuleCreateRequest) { r.TimeLocal = "25:99" }},
		{"bad start date", func(r *api.RuleCreateRequest) { r.StartDate = "05.01.2026" }},
		{"end before start", func(r *api.RuleCreateRequest) { r.EndDate = strPtr("2025-12-31") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)

			if _, err := svc.CreateRule(ctx, &req); !errors.Is(err, response.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateRule_MaterializesLessons(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st := seedStudent(t, store, models.BillingSubscription, "")

	rule, err := svc.CreateRule(ctx, &api.RuleCreateRequest{
		StudentID:   st.ID,
		Weekday:     0,
		TimeLocal:   "10:00",
		DurationMin: 60,
		StartDate:   "2026-01-05",
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if !rule.Active {
		t.Errorf("new rule is not active")
	}

	if len(store.lessons) == 0 {
		t.Errorf("no lessons materialized on rule creation")
	}
}

func TestCreateLesson_DuplicateConflicts(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st := seedStudent(t, store, models.BillingSubscription, "")

	req := api.LessonCreateRequest{
		StudentID: st.ID,
		StartAt:   "2100-01-04T07:00:00Z",
	}

	if _, err := svc.CreateLesson(ctx, &req); err != nil {
		t.Fatalf("first CreateLesson: %v", err)
	}

	_, err := svc.CreateLesson(ctx, &req)
	if !errors.Is(err, response.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}

	_, err = svc.CreateLesson(ctx, &api.LessonCreateRequest{
		StudentID: st.ID,
		StartAt:   "2020-01-01T10:00:00Z",
	})
	if !errors.Is(err, response.ErrValidation) {
		t.Errorf("past start: err = %v, want ErrValidation", err)
	}
}

func TestCancelLesson(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st := seedStudent(t, store, models.BillingSubscription, "")

	// one-off lessons disappear on cancel
	oneOff := seedLesson(t, store, st.ID, mustUTC(t, "2026-01-05T07:00:00Z"))
	if err := svc.CancelLesson(ctx, oneOff.ID); err != nil {
		t.Fatalf("cancel one-off: %v", err)
	}
	if _, err := store.GetLesson(ctx, oneOff.ID); !errors.Is(err, response.ErrNotFound) {
		t.Errorf("one-off lesson still exists after cancel")
	}

	// rule-generated lessons only flip status, so the expander does
	// not resurrect them
	ruleID := int64(42)
	recurring := &models.Lesson{
		StudentID:    st.ID,
		StartAt:      mustUTC(t, "2026-01-12T07:00:00Z"),
		DurationMin:  60,
		Status:       models.LessonPlanned,
		SourceRuleID: &ruleID,
	}
	if _, err := store.InsertLessonIfAbsent(ctx, recurring); err != nil {
		t.Fatalf("InsertLessonIfAbsent: %v", err)
	}

	if err := svc.CancelLesson(ctx, recurring.ID); err != nil {
		t.Fatalf("cancel recurring: %v", err)
	}

	got, err := store.GetLesson(ctx, recurring.ID)
	if err != nil {
		t.Fatalf("GetLesson: %v", err)
	}
	if got.Status != models.LessonCanceled {
		t.Errorf("status = %s, want canceled", got.Status)
	}

	// a done lesson cannot be canceled
	if err := svc.CancelLesson(ctx, recurring.ID); !errors.Is(err, response.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestRegisterByKey_Student(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st := seedStudent(t, store, models.BillingSubscription, "")

	key, err := svc.CreateRegistrationKey(ctx, &api.KeyCreateRequest{
		Role:      "student",
		StudentID: int64Ptr(st.ID),
	})
	if err != nil {
		t.Fatalf("CreateRegistrationKey: %v", err)
	}

	resp, err := svc.RegisterByKey(ctx, &api.RegisterRequest{
		TgID:     100,
		FullName: "Anna",
		Key:      key.Key,
	})
	if err != nil {
		t.Fatalf("RegisterByKey: %v", err)
	}
	if resp.Role != "student" {
		t.Errorf("role = %s, want student", resp.Role)
	}

	got, err := store.GetStudent(ctx, st.ID)
	if err != nil {
		t.Fatalf("GetStudent: %v", err)
	}
	if got.UserID == nil || *got.UserID != resp.UserID {
		t.Errorf("student not linked to the new user")
	}

	// a single-use key is burnt
	_, err = svc.RegisterByKey(ctx, &api.RegisterRequest{
		TgID:     101,
		FullName: "Imposter",
		Key:      key.Key,
	})
	if !errors.Is(err, response.ErrValidation) {
		t.Errorf("reuse err = %v, want ErrValidation", err)
	}
}

func TestRegisterByKey_Parent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st := seedStudent(t, store, models.BillingSubscription, "")

	key, err := svc.CreateRegistrationKey(ctx, &api.KeyCreateRequest{
		Role:      "parent",
		StudentID: int64Ptr(st.ID),
		MaxUses:   2,
	})
	if err != nil {
		t.Fatalf("CreateRegistrationKey: %v", err)
	}

	for i, tgID := range []int64{200, 201} {
		resp, err := svc.RegisterByKey(ctx, &api.RegisterRequest{
			TgID:     tgID,
			FullName: "Parent",
			Key:      key.Key,
		})
		if err != nil {
			t.Fatalf("registration %d: %v", i+1, err)
		}
		if resp.Role != "parent" {
			t.Errorf("role = %s, want parent", resp.Role)
		}
	}

	parents, err := store.ParentUsersForStudent(ctx, st.ID)
	if err != nil {
		t.Fatalf("ParentUsersForStudent: %v", err)
	}
	if len(parents) != 2 {
		t.Errorf("student has %d parents, want 2", len(parents))
	}
}

func TestRegisterByKey_Invalid(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.RegisterByKey(context.Background(), &api.RegisterRequest{
		TgID:     100,
		FullName: "Nobody",
		Key:      "no-such-key",
	})
	if !errors.Is(err, response.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestRegisterByKey_Expired(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st := seedStudent(t, store, models.BillingSubscription, "")

	key, err := svc.CreateRegistrationKey(ctx, &api.KeyCreateRequest{
		Role:      "student",
		StudentID: int64Ptr(st.ID),
		ExpiresAt: strPtr("2020-01-01T00:00:00Z"),
	})
	if err != nil {
		t.Fatalf("CreateRegistrationKey: %v", err)
	}

	_, err = svc.RegisterByKey(ctx, &api.RegisterRequest{
		TgID:     100,
		FullName: "Late",
		Key:      key.Key,
	})
	if !errors.Is(err, response.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestCreateRegistrationKey_Validation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	st := seedStudent(t, store, models.BillingSubscription, "")

	if _, err := svc.CreateRegistrationKey(ctx, &api.KeyCreateRequest{
		Role:      "teacher",
		StudentID: int64Ptr(st.ID),
	}); !errors.Is(err, response.ErrValidation) {
		t.Errorf("teacher role: err = %v, want ErrValidation", err)
	}

	if _, err := svc.CreateRegistrationKey(ctx, &api.KeyCreateRequest{
		Role: "student",
	}); !errors.Is(err, response.ErrValidation) {
		t.Errorf("no student: err = %v, want ErrValidation", err)
	}

	if _, err := svc.CreateRegistrationKey(ctx, &api.KeyCreateRequest{
		Role:      "student",
		StudentID: int64Ptr(999),
	}); !errors.Is(err, response.ErrNotFound) {
		t.Errorf("missing student: err = %v, want ErrNotFound", err)
	}
}

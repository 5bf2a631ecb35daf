package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"tutor-service/internal/models"

	"github.com/shopspring/decimal"
)

func newTestService(t *testing.T) (*Service, *mockStore, *fakeSender) {
	t.Helper()

	store := newMockStore()
	sender := newFakeSender()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewService(log, store, sender), store, sender
}

func seedStudent(t *testing.T, store *mockStore, mode models.BillingMode, price string) *models.Student {
	t.Helper()

	st := &models.Student{
		FullName:    "Test Student",
		Timezone:    "Europe/Moscow",
		BillingMode: mode,
	}
	if price != "" {
		p, err := decimal.NewFromString(price)
		if err != nil {
			t.Fatalf("bad price %q: %v", price, err)
		}
		st.PricePerLesson = &p
	}

	id, err := store.CreateStudent(context.Background(), st)
	if err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	st.ID = id

	return st
}

func seedLesson(t *testing.T, store *mockStore, studentID int64, startAt time.Time) *models.Lesson {
	t.Helper()

	lesson := &models.Lesson{
		StudentID:   studentID,
		StartAt:     startAt,
		DurationMin: 60,
		Status:      models.LessonPlanned,
	}

	inserted, err := store.InsertLessonIfAbsent(context.Background(), lesson)
	if err != nil {
		t.Fatalf("InsertLessonIfAbsent: %v", err)
	}
	if !inserted {
		t.Fatalf("lesson at %s already present", startAt)
	}

	return lesson
}

func seedUser(t *testing.T, store *mockStore, role models.Role, tgID int64) *models.User {
	t.Helper()

	u := &models.User{TgID: tgID, Role: role, Name: "Test User"}
	id, err := store.CreateUser(context.Background(), u)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u.ID = id

	return u
}

// seedParent registers a user as a parent of the given student.
func seedParent(t *testing.T, store *mockStore, studentID, tgID int64) *models.User {
	t.Helper()

	u := seedUser(t, store, models.RoleParent, tgID)

	pid, err := store.CreateParent(context.Background(), &models.Parent{UserID: u.ID, FullName: u.Name})
	if err != nil {
		t.Fatalf("CreateParent: %v", err)
	}
	if err := store.LinkParentStudent(context.Background(), pid, studentID); err != nil {
		t.Fatalf("LinkParentStudent: %v", err)
	}

	return u
}

func mustUTC(t *testing.T, value string) time.Time {
	t.Helper()

	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", value, err)
	}

	return ts.UTC()
}

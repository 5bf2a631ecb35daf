package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tutor-service/internal/models"
	"tutor-service/pkg/response"

	"github.com/shopspring/decimal"
)

// mockStore is an in-memory Store with the same uniqueness and
// conditional-update semantics as the SQL implementation.
type mockStore struct {
	mu sync.Mutex

	users    map[int64]*models.User
	students map[int64]*models.Student
	parents  map[int64]*models.Parent
	// parentID -> studentIDs
	parentLinks map[int64][]int64
	rules       map[int64]*models.ScheduleRule
	lessons     map[int64]*models.Lesson
	balances    map[int64]int
	charges     map[int64]*models.LessonCharge
	notifs      map[int64]*models.Notification
	keys        map[int64]*models.RegistrationKey

	nextID int64
}

func newMockStore() *mockStore {
	return &mockStore{
		users:       make(map[int64]*models.User),
		students:    make(map[int64]*models.Student),
		parents:     make(map[int64]*models.Parent),
		parentLinks: make(map[int64][]int64),
		rules:       make(map[int64]*models.ScheduleRule),
		lessons:     make(map[int64]*models.Lesson),
		balances:    make(map[int64]int),
		charges:     make(map[int64]*models.LessonCharge),
		notifs:      make(map[int64]*models.Notification),
		keys:        make(map[int64]*models.RegistrationKey),
	}
}

func (m *mockStore) id() int64 {
	m.nextID++
	return m.nextID
}

// Users

func (m *mockStore) CreateUser(_ context.Context, u *models.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *u
	cp.ID = m.id()
	m.users[cp.ID] = &cp

	return cp.ID, nil
}

func (m *mockStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("mock.GetUser: %w", response.ErrNotFound)
	}

	cp := *u
	return &cp, nil
}

// Students

func (m *mockStore) CreateStudent(_ context.Context, st *models.Student) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *st
	cp.ID = m.id()
	m.students[cp.ID] = &cp

	return cp.ID, nil
}

func (m *mockStore) GetStudent(_ context.Context, id int64) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.students[id]
	if !ok {
		return nil, fmt.Errorf("mock.GetStudent: %w", response.ErrNotFound)
	}

	cp := *st
	return &cp, nil
}

func (m *mockStore) ListStudents(_ context.Context) ([]*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Student, 0, len(m.students))
	for _, st := range m.students {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *mockStore) LinkStudentUser(_ context.Context, studentID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.students[studentID]
	if !ok {
		return fmt.Errorf("mock.LinkStudentUser: %w", response.ErrNotFound)
	}

	uid := userID
	st.UserID = &uid

	return nil
}

func (m *mockStore) DeleteStudentCascade(_ context.Context, studentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.students[studentID]; !ok {
		return fmt.Errorf("mock.DeleteStudentCascade: %w", response.ErrNotFound)
	}

	for id, l := range m.lessons {
		if l.StudentID == studentID {
			delete(m.lessons, id)
		}
	}
	for id, r := range m.rules {
		if r.StudentID == studentID {
			delete(m.rules, id)
		}
	}
	for id, ch := range m.charges {
		if ch.StudentID == studentID {
			delete(m.charges, id)
		}
	}
	delete(m.balances, studentID)
	delete(m.students, studentID)

	return nil
}

// Parents

func (m *mockStore) CreateParent(_ context.Context, p *models.Parent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	cp.ID = m.id()
	m.parents[cp.ID] = &cp

	return cp.ID, nil
}

func (m *mockStore) LinkParentStudent(_ context.Context, parentID, studentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.parentLinks[parentID] = append(m.parentLinks[parentID], studentID)

	return nil
}

func (m *mockStore) ParentUsersForStudent(_ context.Context, studentID int64) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.User
	for pid, sids := range m.parentLinks {
		for _, sid := range sids {
			if sid != studentID {
				continue
			}
			p := m.parents[pid]
			if u, ok := m.users[p.UserID]; ok {
				cp := *u
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// Schedule rules

func (m *mockStore) CreateRule(_ context.Context, r *models.ScheduleRule) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	cp.ID = m.id()
	m.rules[cp.ID] = &cp

	return cp.ID, nil
}

func (m *mockStore) ListActiveRules(_ context.Context) ([]*models.ScheduleRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.ScheduleRule
	for _, r := range m.rules {
		if r.Active {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *mockStore) ListActiveRulesForStudent(_ context.Context, studentID int64) ([]*models.ScheduleRule, error) {
	all, _ := m.ListActiveRules(context.Background())

	var out []*models.ScheduleRule
	for _, r := range all {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}

	return out, nil
}

func (m *mockStore) DeactivateRule(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return fmt.Errorf("mock.DeactivateRule: %w", response.ErrNotFound)
	}
	r.Active = false

	return nil
}

func (m *mockStore) DeleteRule(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return fmt.Errorf("mock.DeleteRule: %w", response.ErrNotFound)
	}
	delete(m.rules, id)

	return nil
}

// Lessons

func (m *mockStore) InsertLessonIfAbsent(_ context.Context, l *models.Lesson) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.lessons {
		if existing.StudentID == l.StudentID && existing.StartAt.Equal(l.StartAt) {
			return false, nil
		}
	}

	cp := *l
	cp.ID = m.id()
	cp.CreatedAt = time.Now().UTC()
	m.lessons[cp.ID] = &cp
	l.ID = cp.ID

	return true, nil
}

func (m *mockStore) GetLesson(_ context.Context, id int64) (*models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lessons[id]
	if !ok {
		return nil, fmt.Errorf("mock.GetLesson: %w", response.ErrNotFound)
	}

	cp := *l
	return &cp, nil
}

func (m *mockStore) ListPlannedLessonsBetween(_ context.Context, from, to time.Time) ([]*models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Lesson
	for _, l := range m.lessons {
		if l.Status != models.LessonPlanned {
			continue
		}
		if l.StartAt.Before(from) || l.StartAt.After(to) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })

	return out, nil
}

func (m *mockStore) MarkLessonDoneIfPlanned(_ context.Context, id int64, doneAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lessons[id]
	if !ok || l.Status != models.LessonPlanned {
		return false, nil
	}

	l.Status = models.LessonDone
	at := doneAt
	l.DoneAt = &at

	return true, nil
}

func (m *mockStore) CancelLessonIfPlanned(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lessons[id]
	if !ok || l.Status != models.LessonPlanned {
		return false, nil
	}
	l.Status = models.LessonCanceled

	return true, nil
}

func (m *mockStore) DeleteLesson(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.lessons, id)

	return nil
}

// Balance

func (m *mockStore) DecrementBalanceClamped(_ context.Context, studentID int64) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.balances[studentID]
	if prev == 0 {
		return 0, true, nil
	}
	m.balances[studentID] = prev - 1

	return prev - 1, false, nil
}

func (m *mockStore) AddBalance(_ context.Context, studentID int64, qty int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[studentID] += qty

	return m.balances[studentID], nil
}

// Charges

func (m *mockStore) CreateChargeIfAbsent(_ context.Context, ch *models.LessonCharge) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.charges {
		if existing.LessonID == ch.LessonID {
			return existing.ID, false, nil
		}
	}

	cp := *ch
	cp.ID = m.id()
	cp.CreatedAt = time.Now().UTC()
	m.charges[cp.ID] = &cp

	return cp.ID, true, nil
}

func (m *mockStore) GetCharge(_ context.Context, id int64) (*models.LessonCharge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.charges[id]
	if !ok {
		return nil, fmt.Errorf("mock.GetCharge: %w", response.ErrNotFound)
	}

	cp := *ch
	return &cp, nil
}

func (m *mockStore) GetChargeByLesson(_ context.Context, lessonID int64) (*models.LessonCharge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.charges {
		if ch.LessonID == lessonID {
			cp := *ch
			return &cp, nil
		}
	}

	return nil, fmt.Errorf("mock.GetChargeByLesson: %w", response.ErrNotFound)
}

func (m *mockStore) MarkChargePaidIfPending(_ context.Context, id int64, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.charges[id]
	if !ok || ch.Status != models.ChargePending {
		return false, nil
	}

	ch.Status = models.ChargePaid
	at := paidAt
	ch.PaidAt = &at

	return true, nil
}

func (m *mockStore) UpsertChargePaid(_ context.Context, lessonID, studentID int64, amount decimal.Decimal, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := paidAt
	for _, ch := range m.charges {
		if ch.LessonID == lessonID {
			ch.Status = models.ChargePaid
			ch.Amount = amount
			ch.PaidAt = &at
			return nil
		}
	}

	id := m.id()
	m.charges[id] = &models.LessonCharge{
		ID:        id,
		LessonID:  lessonID,
		StudentID: studentID,
		Amount:    amount,
		Status:    models.ChargePaid,
		CreatedAt: time.Now().UTC(),
		PaidAt:    &at,
	}

	return nil
}

// Notifications

func (m *mockStore) InsertNotificationIfAbsent(_ context.Context, n *models.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.notifs {
		if existing.UserID == n.UserID && existing.Type == n.Type &&
			existing.EntityID == n.EntityID && existing.SendAt.Equal(n.SendAt) {
			return false, nil
		}
	}

	cp := *n
	cp.ID = m.id()
	m.notifs[cp.ID] = &cp

	return true, nil
}

func (m *mockStore) DueNotifications(_ context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Notification
	for _, n := range m.notifs {
		if n.Status != models.NotificationPending || n.SendAt.After(now) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SendAt.Before(out[j].SendAt) })

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (m *mockStore) MarkNotificationSent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifs[id]
	if !ok {
		return fmt.Errorf("mock.MarkNotificationSent: %w", response.ErrNotFound)
	}
	n.Status = models.NotificationSent

	return nil
}

func (m *mockStore) MarkNotificationFailed(_ context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifs[id]
	if !ok {
		return fmt.Errorf("mock.MarkNotificationFailed: %w", response.ErrNotFound)
	}
	n.Status = models.NotificationFailed
	r := reason
	n.LastError = &r

	return nil
}

// Registration keys

func (m *mockStore) CreateRegistrationKey(_ context.Context, k *models.RegistrationKey) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *k
	cp.ID = m.id()
	cp.Active = true
	cp.CreatedAt = time.Now().UTC()
	m.keys[cp.ID] = &cp
	k.ID = cp.ID
	k.Active = true

	return cp.ID, nil
}

func (m *mockStore) GetRegistrationKey(_ context.Context, key string) (*models.RegistrationKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.Key == key {
			cp := *k
			return &cp, nil
		}
	}

	return nil, fmt.Errorf("mock.GetRegistrationKey: %w", response.ErrNotFound)
}

func (m *mockStore) ConsumeRegistrationKey(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[id]
	if !ok || !k.Active || k.UsedCount >= k.MaxUses {
		return false, nil
	}

	k.UsedCount++
	k.Active = k.UsedCount < k.MaxUses

	return true, nil
}

// fakeSender records outgoing messages and can be set to fail for
// specific chat ids.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[int64]error
}

type sentMessage struct {
	ChatID int64
	Text   string
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFor: make(map[int64]error)}
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failFor[chatID]; ok {
		return err
	}

	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})

	return nil
}

func (f *fakeSender) sentTo(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []sentMessage
	for _, msg := range f.sent {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}

	return out
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

type BillingMode string

const (
	BillingSubscription BillingMode = "subscription"
	BillingSingle       BillingMode = "single"
)

type LessonStatus string

const (
	LessonPlanned  LessonStatus = "planned"
	LessonDone     LessonStatus = "done"
	LessonCanceled LessonStatus = "canceled"
)

type ChargeStatus string

const (
	ChargePending  ChargeStatus = "pending"
	ChargePaid     ChargeStatus = "paid"
	ChargeCanceled ChargeStatus = "canceled"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

type NotificationKind string

const (
	NotifyLesson24h NotificationKind = "lesson_24h"
	NotifyLesson1h  NotificationKind = "lesson_1h"
	NotifyHWGraded  NotificationKind = "hw_graded"
)

// User is a registered messenger account: the teacher, a student
// who activated a key, or a parent.
type User struct {
	ID        int64     `db:"id"`
	TgID      int64     `db:"tg_id"`
	Role      Role      `db:"role"`
	Name      string    `db:"name"`
	Timezone  *string   `db:"timezone"`
	CreatedAt time.Time `db:"created_at"`
}

// Student is the billing/scheduling subject. UserID is nil until the
// student registers with a key.
type Student struct {
	ID             int64            `db:"id"`
	UserID         *int64           `db:"user_id"`
	FullName       string           `db:"full_name"`
	Timezone       string           `db:"timezone"`
	BillingMode    BillingMode      `db:"billing_mode"`
	PricePerLesson *decimal.Decimal `db:"price_per_lesson"`
}

type Parent struct {
	ID       int64  `db:"id"`
	UserID   int64  `db:"user_id"`
	FullName string `db:"full_name"`
}

// ScheduleRule is a weekly repeating lesson slot. Weekday is
// 0=Monday..6=Sunday, matching the stored data.
type ScheduleRule struct {
	ID          int64      `db:"id"`
	StudentID   int64      `db:"student_id"`
	Weekday     int        `db:"weekday"`
	TimeLocal   string     `db:"time_local"` // "15:04"
	DurationMin int        `db:"duration_min"`
	StartDate   time.Time  `db:"start_date"`
	EndDate     *time.Time `db:"end_date"`
	Active      bool       `db:"active"`
}

// Lesson is one concrete occurrence. StartAt is stored in UTC and is
// unique per student.
type Lesson struct {
	ID           int64        `db:"id"`
	StudentID    int64        `db:"student_id"`
	StartAt      time.Time    `db:"start_at"`
	DurationMin  int          `db:"duration_min"`
	Status       LessonStatus `db:"status"`
	SourceRuleID *int64       `db:"source_rule_id"`
	Topic        *string      `db:"topic"`
	DoneAt       *time.Time   `db:"done_at"`
	CreatedAt    time.Time    `db:"created_at"`
}

type StudentBalance struct {
	StudentID   int64     `db:"student_id"`
	LessonsLeft int       `db:"lessons_left"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// LessonCharge is a per-lesson invoice; at most one per lesson.
type LessonCharge struct {
	ID        int64           `db:"id"`
	LessonID  int64           `db:"lesson_id"`
	StudentID int64           `db:"student_id"`
	Amount    decimal.Decimal `db:"amount"`
	Status    ChargeStatus    `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
	PaidAt    *time.Time      `db:"paid_at"`
}

// Notification is a scheduled message, unique per
// (user, type, entity, send_at). SendAt is computed once at planning
// time and never recomputed.
type Notification struct {
	ID        int64              `db:"id"`
	UserID    int64              `db:"user_id"`
	Type      NotificationKind   `db:"type"`
	EntityID  int64              `db:"entity_id"`
	SendAt    time.Time          `db:"send_at"`
	Payload   *string            `db:"payload"`
	Status    NotificationStatus `db:"status"`
	LastError *string            `db:"last_error"`
}

type RegistrationKey struct {
	ID         int64      `db:"id"`
	Key        string     `db:"key"`
	RoleTarget Role       `db:"role_target"`
	StudentID  *int64     `db:"student_id"`
	ExpiresAt  *time.Time `db:"expires_at"`
	MaxUses    int        `db:"max_uses"`
	UsedCount  int        `db:"used_count"`
	Active     bool       `db:"active"`
	CreatedAt  time.Time  `db:"created_at"`
}

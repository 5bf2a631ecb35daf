package api

import "time"

type StudentCreateRequest struct {
	FullName       string  `json:"full_name"`
	Timezone       string  `json:"timezone"`
	BillingMode    string  `json:"billing_mode"`
	PricePerLesson *string `json:"price_per_lesson,omitempty"`
}

type StudentResponse struct {
	ID             int64   `json:"id"`
	FullName       string  `json:"full_name"`
	Timezone       string  `json:"timezone"`
	BillingMode    string  `json:"billing_mode"`
	PricePerLesson *string `json:"price_per_lesson,omitempty"`
	Registered     bool    `json:"registered"`
}

type RuleCreateRequest struct {
	StudentID   int64   `json:"student_id"`
	Weekday     int     `json:"weekday"` // 0=Mon .. 6=Sun
	TimeLocal   string  `json:"time_local"` // "15:04"
	DurationMin int     `json:"duration_min"`
	StartDate   string  `json:"start_date"` // "2006-01-02"
	EndDate     *string `json:"end_date,omitempty"`
}

type RuleResponse struct {
	ID          int64   `json:"id"`
	StudentID   int64   `json:"student_id"`
	Weekday     int     `json:"weekday"`
	TimeLocal   string  `json:"time_local"`
	DurationMin int     `json:"duration_min"`
	StartDate   string  `json:"start_date"`
	EndDate     *string `json:"end_date,omitempty"`
	Active      bool    `json:"active"`
}

type LessonCreateRequest struct {
	StudentID   int64   `json:"student_id"`
	StartAt     string  `json:"start_at"` // RFC3339
	DurationMin int     `json:"duration_min"`
	Topic       *string `json:"topic,omitempty"`
}

type LessonResponse struct {
	ID          int64      `json:"id"`
	StudentID   int64      `json:"student_id"`
	StartAt     time.Time  `json:"start_at"`
	DurationMin int        `json:"duration_min"`
	Status      string     `json:"status"`
	Topic       *string    `json:"topic,omitempty"`
	DoneAt      *time.Time `json:"done_at,omitempty"`
}

type SubscriptionAddRequest struct {
	Qty int `json:"qty"`
}

type KeyCreateRequest struct {
	Role      string  `json:"role"` // student | parent
	StudentID *int64  `json:"student_id,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"` // RFC3339
	MaxUses   int     `json:"max_uses"`
}

type KeyResponse struct {
	Key       string     `json:"key"`
	Role      string     `json:"role"`
	StudentID *int64     `json:"student_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	MaxUses   int        `json:"max_uses"`
}

type RegisterRequest struct {
	TgID     int64  `json:"tg_id"`
	FullName string `json:"full_name"`
	Key      string `json:"key"`
}

type RegisterResponse struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

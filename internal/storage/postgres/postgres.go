package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tutor-service/internal/models"
	"tutor-service/pkg/response"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// InitSchema creates all tables if they do not exist yet. Guarded by
// the auto_init_schema config flag; production schemas are expected to
// be managed outside the process.
func (s *Storage) InitSchema(ctx context.Context) error {
	const op = "storage.postgres.InitSchema"

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			tg_id BIGINT NOT NULL UNIQUE,
			role TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			timezone TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS students (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT UNIQUE REFERENCES users(id) ON DELETE SET NULL,
			full_name TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'Europe/Moscow',
			billing_mode TEXT NOT NULL DEFAULT 'subscription',
			price_per_lesson NUMERIC(10,2)
		)`,
		`CREATE TABLE IF NOT EXISTS parents (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
			full_name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS parent_student (
			id BIGSERIAL PRIMARY KEY,
			parent_id BIGINT NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
			student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			UNIQUE (parent_id, student_id)
		)`,
		`CREATE TABLE IF NOT EXISTS registration_keys (
			id BIGSERIAL PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			role_target TEXT NOT NULL,
			student_id BIGINT REFERENCES students(id) ON DELETE SET NULL,
			expires_at TIMESTAMPTZ,
			max_uses INT NOT NULL DEFAULT 1,
			used_count INT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_rules (
			id BIGSERIAL PRIMARY KEY,
			student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			weekday INT NOT NULL,
			time_local TEXT NOT NULL,
			duration_min INT NOT NULL DEFAULT 60,
			start_date DATE NOT NULL,
			end_date DATE,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS lessons (
			id BIGSERIAL PRIMARY KEY,
			student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			start_at TIMESTAMPTZ NOT NULL,
			duration_min INT NOT NULL DEFAULT 60,
			status TEXT NOT NULL DEFAULT 'planned',
			source_rule_id BIGINT REFERENCES schedule_rules(id) ON DELETE SET NULL,
			topic TEXT,
			done_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (student_id, start_at)
		)`,
		`CREATE TABLE IF NOT EXISTS student_balance (
			student_id BIGINT PRIMARY KEY REFERENCES students(id) ON DELETE CASCADE,
			lessons_left INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS lesson_charges (
			id BIGSERIAL PRIMARY KEY,
			lesson_id BIGINT NOT NULL UNIQUE REFERENCES lessons(id) ON DELETE CASCADE,
			student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			amount NUMERIC(10,2) NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			paid_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			entity_id BIGINT NOT NULL,
			send_at TIMESTAMPTZ NOT NULL,
			payload TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			last_error TEXT,
			UNIQUE (user_id, type, entity_id, send_at)
		)`,
		`CREATE INDEX IF NOT EXISTS notifications_due_idx
			ON notifications (send_at) WHERE status = 'pending'`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

// #### users ####

func (s *Storage) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	const op = "storage.postgres.CreateUser"

	var id int64

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (tg_id, role, name, timezone)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		u.TgID, string(u.Role), u.Name, u.Timezone,
	).Scan(&id)
	if err != nil {
		sqlErr, ok := err.(*pq.Error)
		if ok && sqlErr.Code == "23505" {
			return 0, fmt.Errorf("%s: %w", op, response.ErrConflict)
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.postgres.GetUser"

	var u models.User

	err := s.db.QueryRowContext(ctx,
		`SELECT id, tg_id, role, name, timezone, created_at
		FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.TgID, &u.Role, &u.Name, &u.Timezone, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &u, nil
}

// #### students ####

func (s *Storage) CreateStudent(ctx context.Context, st *models.Student) (int64, error) {
	const op = "storage.postgres.CreateStudent"

	var price decimal.NullDecimal
	if st.PricePerLesson != nil {
		price = decimal.NullDecimal{Decimal: *st.PricePerLesson, Valid: true}
	}

	var id int64

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO students (full_name, timezone, billing_mode, price_per_lesson)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		st.FullName, st.Timezone, string(st.BillingMode), price,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func scanStudent(row *sql.Row) (*models.Student, error) {
	var st models.Student
	var price decimal.NullDecimal

	err := row.Scan(&st.ID, &st.UserID, &st.FullName, &st.Timezone, &st.BillingMode, &price)
	if err != nil {
		return nil, err
	}

	if price.Valid {
		st.PricePerLesson = &price.Decimal
	}

	return &st, nil
}

func (s *Storage) GetStudent(ctx context.Context, id int64) (*models.Student, error) {
	const op = "storage.postgres.GetStudent"

	st, err := scanStudent(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, full_name, timezone, billing_mode, price_per_lesson
		FROM students WHERE id=$1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return st, nil
}

func (s *Storage) ListStudents(ctx context.Context) ([]*models.Student, error) {
	const op = "storage.postgres.ListStudents"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, full_name, timezone, billing_mode, price_per_lesson
		FROM students ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var students []*models.Student
	for rows.Next() {
		var st models.Student
		var price decimal.NullDecimal

		if err := rows.Scan(&st.ID, &st.UserID, &st.FullName, &st.Timezone, &st.BillingMode, &price); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if price.Valid {
			st.PricePerLesson = &price.Decimal
		}

		students = append(students, &st)
	}

	return students, nil
}

func (s *Storage) LinkStudentUser(ctx context.Context, studentID, userID int64) error {
	const op = "storage.postgres.LinkStudentUser"

	res, err := s.db.ExecContext(ctx,
		`UPDATE students SET user_id=$1 WHERE id=$2`, userID, studentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// DeleteStudentCascade removes a student and every dependent row in an
// explicit order, children first, so no FK is left dangling or nulled
// half way. Notifications that reference the student's lessons go
// first since they only carry a bare entity id.
func (s *Storage) DeleteStudentCascade(ctx context.Context, studentID int64) error {
	const op = "storage.postgres.DeleteStudentCascade"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM notifications
			WHERE entity_id IN (SELECT id FROM lessons WHERE student_id=$1)
			AND type IN ('lesson_24h', 'lesson_1h', 'hw_graded')`, []any{studentID}},
		{`DELETE FROM lesson_charges WHERE student_id=$1`, []any{studentID}},
		{`DELETE FROM student_balance WHERE student_id=$1`, []any{studentID}},
		{`DELETE FROM lessons WHERE student_id=$1`, []any{studentID}},
		{`DELETE FROM schedule_rules WHERE student_id=$1`, []any{studentID}},
		{`DELETE FROM parent_student WHERE student_id=$1`, []any{studentID}},
		{`UPDATE registration_keys SET student_id=NULL, active=FALSE WHERE student_id=$1`, []any{studentID}},
	}

	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id=$1`, studentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// #### parents ####

func (s *Storage) CreateParent(ctx context.Context, p *models.Parent) (int64, error) {
	const op = "storage.postgres.CreateParent"

	var id int64

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO parents (user_id, full_name) VALUES ($1, $2) RETURNING id`,
		p.UserID, p.FullName,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) LinkParentStudent(ctx context.Context, parentID, studentID int64) error {
	const op = "storage.postgres.LinkParentStudent"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO parent_student (parent_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		parentID, studentID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ParentUsersForStudent resolves the users behind every parent linked
// to the student.
func (s *Storage) ParentUsersForStudent(ctx context.Context, studentID int64) ([]*models.User, error) {
	const op = "storage.postgres.ParentUsersForStudent"

	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.tg_id, u.role, u.name, u.timezone, u.created_at
		FROM parent_student ps
		JOIN parents p ON p.id = ps.parent_id
		JOIN users u ON u.id = p.user_id
		WHERE ps.student_id=$1`, studentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.TgID, &u.Role, &u.Name, &u.Timezone, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, &u)
	}

	return users, nil
}

// #### schedule rules ####

func (s *Storage) CreateRule(ctx context.Context, r *models.ScheduleRule) (int64, error) {
	const op = "storage.postgres.CreateRule"

	var id int64

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO schedule_rules
		(student_id, weekday, time_local, duration_min, start_date, end_date, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		r.StudentID, r.Weekday, r.TimeLocal, r.DurationMin, r.StartDate, r.EndDate, r.Active,
	).Scan(&id)
	if err != nil {
		sqlErr, ok := err.(*pq.Error)
		if ok && sqlErr.Code == "23503" {
			return 0, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) ListActiveRules(ctx context.Context) ([]*models.ScheduleRule, error) {
	const op = "storage.postgres.ListActiveRules"

	return s.listRules(ctx, op,
		`SELECT id, student_id, weekday, time_local, duration_min, start_date, end_date, active
		FROM schedule_rules WHERE active=TRUE`)
}

func (s *Storage) ListActiveRulesForStudent(ctx context.Context, studentID int64) ([]*models.ScheduleRule, error) {
	const op = "storage.postgres.ListActiveRulesForStudent"

	return s.listRules(ctx, op,
		`SELECT id, student_id, weekday, time_local, duration_min, start_date, end_date, active
		FROM schedule_rules WHERE active=TRUE AND student_id=$1`, studentID)
}

func (s *Storage) listRules(ctx context.Context, op, query string, args ...any) ([]*models.ScheduleRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var rules []*models.ScheduleRule
	for rows.Next() {
		var r models.ScheduleRule
		err := rows.Scan(&r.ID, &r.StudentID, &r.Weekday, &r.TimeLocal,
			&r.DurationMin, &r.StartDate, &r.EndDate, &r.Active)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rules = append(rules, &r)
	}

	return rules, nil
}

func (s *Storage) DeactivateRule(ctx context.Context, id int64) error {
	const op = "storage.postgres.DeactivateRule"

	res, err := s.db.ExecContext(ctx,
		`UPDATE schedule_rules SET active=FALSE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func (s *Storage) DeleteRule(ctx context.Context, id int64) error {
	const op = "storage.postgres.DeleteRule"

	res, err := s.db.ExecContext(ctx, `DELETE FROM schedule_rules WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### lessons ####

// InsertLessonIfAbsent inserts a lesson keyed on (student_id,
// start_at); a duplicate is silently dropped and reported as
// inserted=false. This is what makes the expander re-runnable.
func (s *Storage) InsertLessonIfAbsent(ctx context.Context, l *models.Lesson) (bool, error) {
	const op = "storage.postgres.InsertLessonIfAbsent"

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO lessons (student_id, start_at, duration_min, status, source_rule_id, topic)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, start_at) DO NOTHING`,
		l.StudentID, l.StartAt, l.DurationMin, string(l.Status), l.SourceRuleID, l.Topic,
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func (s *Storage) GetLesson(ctx context.Context, id int64) (*models.Lesson, error) {
	const op = "storage.postgres.GetLesson"

	var l models.Lesson

	err := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, start_at, duration_min, status, source_rule_id, topic, done_at, created_at
		FROM lessons WHERE id=$1`, id).
		Scan(&l.ID, &l.StudentID, &l.StartAt, &l.DurationMin, &l.Status,
			&l.SourceRuleID, &l.Topic, &l.DoneAt, &l.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &l, nil
}

func (s *Storage) ListPlannedLessonsBetween(ctx context.Context, from, to time.Time) ([]*models.Lesson, error) {
	const op = "storage.postgres.ListPlannedLessonsBetween"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, start_at, duration_min, status, source_rule_id, topic, done_at, created_at
		FROM lessons
		WHERE status='planned' AND start_at > $1 AND start_at <= $2
		ORDER BY start_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var lessons []*models.Lesson
	for rows.Next() {
		var l models.Lesson
		err := rows.Scan(&l.ID, &l.StudentID, &l.StartAt, &l.DurationMin, &l.Status,
			&l.SourceRuleID, &l.Topic, &l.DoneAt, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		lessons = append(lessons, &l)
	}

	return lessons, nil
}

// MarkLessonDoneIfPlanned is the compare-and-set that guards billing:
// only a planned lesson transitions, and only one caller wins.
func (s *Storage) MarkLessonDoneIfPlanned(ctx context.Context, id int64, doneAt time.Time) (bool, error) {
	const op = "storage.postgres.MarkLessonDoneIfPlanned"

	res, err := s.db.ExecContext(ctx,
		`UPDATE lessons SET status='done', done_at=$2 WHERE id=$1 AND status='planned'`,
		id, doneAt)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func (s *Storage) CancelLessonIfPlanned(ctx context.Context, id int64) (bool, error) {
	const op = "storage.postgres.CancelLessonIfPlanned"

	res, err := s.db.ExecContext(ctx,
		`UPDATE lessons SET status='canceled' WHERE id=$1 AND status='planned'`, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

func (s *Storage) DeleteLesson(ctx context.Context, id int64) error {
	const op = "storage.postgres.DeleteLesson"

	res, err := s.db.ExecContext(ctx, `DELETE FROM lessons WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### balance ####

// DecrementBalanceClamped lazily creates a zero balance, then takes
// one lesson off it without ever going below zero. Returns the new
// total and whether the floor absorbed the decrement.
func (s *Storage) DecrementBalanceClamped(ctx context.Context, studentID int64) (int, bool, error) {
	const op = "storage.postgres.DecrementBalanceClamped"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO student_balance (student_id, lessons_left)
		VALUES ($1, 0)
		ON CONFLICT (student_id) DO NOTHING`, studentID)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	var left, prev int

	err = s.db.QueryRowContext(ctx,
		`WITH prev AS (
			SELECT lessons_left FROM student_balance WHERE student_id=$1 FOR UPDATE
		)
		UPDATE student_balance b
		SET lessons_left = GREATEST(b.lessons_left - 1, 0), updated_at = NOW()
		FROM prev
		WHERE b.student_id=$1
		RETURNING b.lessons_left, prev.lessons_left`, studentID).
		Scan(&left, &prev)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	return left, prev == 0, nil
}

// AddBalance adds qty to the student's balance, creating the row at
// qty if absent, and returns the new total.
func (s *Storage) AddBalance(ctx context.Context, studentID int64, qty int) (int, error) {
	const op = "storage.postgres.AddBalance"

	var left int

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO student_balance (student_id, lessons_left)
		VALUES ($1, $2)
		ON CONFLICT (student_id) DO UPDATE
		SET lessons_left = student_balance.lessons_left + EXCLUDED.lessons_left,
			updated_at = NOW()
		RETURNING lessons_left`,
		studentID, qty,
	).Scan(&left)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return left, nil
}

// #### charges ####

// CreateChargeIfAbsent inserts a charge unless the lesson already has
// one; the existing charge, whatever its status, is left untouched.
func (s *Storage) CreateChargeIfAbsent(ctx context.Context, ch *models.LessonCharge) (int64, bool, error) {
	const op = "storage.postgres.CreateChargeIfAbsent"

	var id int64

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO lesson_charges (lesson_id, student_id, amount, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lesson_id) DO NOTHING
		RETURNING id`,
		ch.LessonID, ch.StudentID, ch.Amount, string(ch.Status),
	).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	return id, true, nil
}

func (s *Storage) GetCharge(ctx context.Context, id int64) (*models.LessonCharge, error) {
	const op = "storage.postgres.GetCharge"

	return s.getCharge(ctx, op, `SELECT id, lesson_id, student_id, amount, status, created_at, paid_at
		FROM lesson_charges WHERE id=$1`, id)
}

func (s *Storage) GetChargeByLesson(ctx context.Context, lessonID int64) (*models.LessonCharge, error) {
	const op = "storage.postgres.GetChargeByLesson"

	return s.getCharge(ctx, op, `SELECT id, lesson_id, student_id, amount, status, created_at, paid_at
		FROM lesson_charges WHERE lesson_id=$1`, lessonID)
}

func (s *Storage) getCharge(ctx context.Context, op, query string, arg int64) (*models.LessonCharge, error) {
	var ch models.LessonCharge

	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&ch.ID, &ch.LessonID, &ch.StudentID, &ch.Amount, &ch.Status, &ch.CreatedAt, &ch.PaidAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &ch, nil
}

// MarkChargePaidIfPending flips pending to paid; an already-paid or
// canceled charge is a no-op and keeps its paid_at.
func (s *Storage) MarkChargePaidIfPending(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	const op = "storage.postgres.MarkChargePaidIfPending"

	res, err := s.db.ExecContext(ctx,
		`UPDATE lesson_charges SET status='paid', paid_at=$2 WHERE id=$1 AND status='pending'`,
		id, paidAt)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

// UpsertChargePaid records an out-of-band payment: creates the charge
// already paid, or forces an existing one to paid.
func (s *Storage) UpsertChargePaid(ctx context.Context, lessonID, studentID int64, amount decimal.Decimal, paidAt time.Time) error {
	const op = "storage.postgres.UpsertChargePaid"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lesson_charges (lesson_id, student_id, amount, status, paid_at)
		VALUES ($1, $2, $3, 'paid', $4)
		ON CONFLICT (lesson_id) DO UPDATE
		SET status='paid', paid_at=EXCLUDED.paid_at`,
		lessonID, studentID, amount, paidAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// #### notifications ####

func (s *Storage) InsertNotificationIfAbsent(ctx context.Context, n *models.Notification) (bool, error) {
	const op = "storage.postgres.InsertNotificationIfAbsent"

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, entity_id, send_at, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, type, entity_id, send_at) DO NOTHING`,
		n.UserID, string(n.Type), n.EntityID, n.SendAt, n.Payload, string(n.Status),
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return affected > 0, nil
}

func (s *Storage) DueNotifications(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	const op = "storage.postgres.DueNotifications"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, entity_id, send_at, payload, status, last_error
		FROM notifications
		WHERE status='pending' AND send_at <= $1
		ORDER BY send_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var notifs []*models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.EntityID, &n.SendAt,
			&n.Payload, &n.Status, &n.LastError)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		notifs = append(notifs, &n)
	}

	return notifs, nil
}

func (s *Storage) MarkNotificationSent(ctx context.Context, id int64) error {
	const op = "storage.postgres.MarkNotificationSent"

	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status='sent', last_error=NULL WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) MarkNotificationFailed(ctx context.Context, id int64, reason string) error {
	const op = "storage.postgres.MarkNotificationFailed"

	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status='failed', last_error=$2 WHERE id=$1`, id, reason)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// #### registration keys ####

func (s *Storage) CreateRegistrationKey(ctx context.Context, k *models.RegistrationKey) (int64, error) {
	const op = "storage.postgres.CreateRegistrationKey"

	var id int64

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO registration_keys (key, role_target, student_id, expires_at, max_uses)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		k.Key, string(k.RoleTarget), k.StudentID, k.ExpiresAt, k.MaxUses,
	).Scan(&id)
	if err != nil {
		sqlErr, ok := err.(*pq.Error)
		if ok && sqlErr.Code == "23505" {
			return 0, fmt.Errorf("%s: %w", op, response.ErrConflict)
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) GetRegistrationKey(ctx context.Context, key string) (*models.RegistrationKey, error) {
	const op = "storage.postgres.GetRegistrationKey"

	var k models.RegistrationKey

	err := s.db.QueryRowContext(ctx,
		`SELECT id, key, role_target, student_id, expires_at, max_uses, used_count, active, created_at
		FROM registration_keys WHERE key=$1`, key).
		Scan(&k.ID, &k.Key, &k.RoleTarget, &k.StudentID, &k.ExpiresAt,
			&k.MaxUses, &k.UsedCount, &k.Active, &k.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &k, nil
}

// ConsumeRegistrationKey burns one use and deactivates the key when
// the last use is spent. The guard repeats the validity checks so a
// concurrent consumer cannot overdraw the key.
func (s *Storage) ConsumeRegistrationKey(ctx context.Context, id int64) (bool, error) {
	const op = "storage.postgres.ConsumeRegistrationKey"

	res, err := s.db.ExecContext(ctx,
		`UPDATE registration_keys
		SET used_count = used_count + 1,
			active = (used_count + 1 < max_uses)
		WHERE id=$1 AND active=TRUE AND used_count < max_uses`, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tutorhub/internal/models"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrUserNotFound   = errors.New("user not found")
)

// CourseRepository reads courses and their enrollment rosters.
type CourseRepository interface {
	GetCourse(ctx context.Context, courseID string) (models.Course, error)
}

// UserRepository reads user display data.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
}

type CourseRepo struct {
	db *sqlx.DB
}

func NewCourseRepo(db *sqlx.DB) *CourseRepo {
	return &CourseRepo{db: db}
}

type courseRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	TutorID     string         `db:"tutor_id"`
	Enrollments pq.StringArray `db:"enrollments"`
}

// GetCourse loads a course with the ids of its enrolled users.
func (r *CourseRepo) GetCourse(ctx context.Context, courseID string) (models.Course, error) {
	var row courseRow
	err := r.db.GetContext(ctx, &row, `SELECT c.id, c.title, c.tutor_id,
            COALESCE(array_agg(e.user_id ORDER BY e.enrolled_at) FILTER (WHERE e.user_id IS NOT NULL), '{}') AS enrollments
        FROM courses c
        LEFT JOIN course_enrollments e ON e.course_id = c.id
        WHERE c.id = $1
        GROUP BY c.id`, courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Course{}, ErrCourseNotFound
	}
	if err != nil {
		return models.Course{}, fmt.Errorf("get course: %w", err)
	}
	enrollments := []string(row.Enrollments)
	if enrollments == nil {
		enrollments = []string{}
	}
	return models.Course{ID: row.ID, Title: row.Title, TutorID: row.TutorID, Enrollments: enrollments}, nil
}

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser loads a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT id, name FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

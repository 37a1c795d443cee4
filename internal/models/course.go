package models

// Course is the subset of a course record the hub reads.
type Course struct {
	ID          string   `db:"id" json:"id"`
	Title       string   `db:"title" json:"title"`
	TutorID     string   `db:"tutor_id" json:"tutorId"`
	Enrollments []string `db:"-" json:"enrollments"`
}

// User is the subset of a user record the hub reads.
type User struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

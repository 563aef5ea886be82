package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// seed loads a small demo program: one batch, one course with two outcomes
// mapped to two program outcomes, one exam and three students with marks.
// Safe to run once on an empty database only.
func (cli *commandLine) seed() error {
	var count int
	if err := cli.db.Get(&count, `SELECT COUNT(*) FROM program`); err != nil {
		return errors.Wrap(err, "checking for existing data")
	}
	if count > 0 {
		return errors.New("database is not empty; refusing to seed")
	}

	tx, err := cli.db.Beginx()
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	exec := func(query string, args ...interface{}) {
		if err == nil {
			_, err = tx.Exec(query, args...)
		}
	}
	id := func() string { return uuid.New().String() }

	programID, batchID, courseID := id(), id(), id()
	exec(`INSERT INTO program (id, code, name) VALUES ($1, 'CSE', 'Computer Science and Engineering')`, programID)
	exec(`INSERT INTO batch (id, program_id, name, start_year, end_year) VALUES ($1, $2, '2022-2026', 2022, 2026)`,
		batchID, programID)
	exec(`INSERT INTO course (id, batch_id, code, name) VALUES ($1, $2, 'CS201', 'Data Structures')`,
		courseID, batchID)

	co1, co2 := id(), id()
	exec(`INSERT INTO course_outcome (id, course_id, code, description) VALUES ($1, $2, 'CO1', 'Analyze algorithm complexity')`, co1, courseID)
	exec(`INSERT INTO course_outcome (id, course_id, code, description) VALUES ($1, $2, 'CO2', 'Implement linear data structures')`, co2, courseID)

	po1, po2 := id(), id()
	exec(`INSERT INTO program_outcome (id, program_id, code, description) VALUES ($1, $2, 'PO1', 'Engineering knowledge')`, po1, programID)
	exec(`INSERT INTO program_outcome (id, program_id, code, description) VALUES ($1, $2, 'PO2', 'Problem analysis')`, po2, programID)

	exec(`INSERT INTO co_po_mapping (co_id, po_id, level) VALUES ($1, $2, 3)`, co1, po1)
	exec(`INSERT INTO co_po_mapping (co_id, po_id, level) VALUES ($1, $2, 2)`, co1, po2)
	exec(`INSERT INTO co_po_mapping (co_id, po_id, level) VALUES ($1, $2, 2)`, co2, po2)

	examID := id()
	exec(`INSERT INTO assessment (id, course_id, name, type, max_marks) VALUES ($1, $2, 'Midterm', 'exam', 40)`,
		examID, courseID)

	questions := []struct {
		number string
		max    float64
		coID   string
	}{
		{"Q1", 10, co1},
		{"Q2", 10, co1},
		{"Q3", 10, co2},
		{"Q4", 10, co2},
	}
	questionIDs := make([]string, len(questions))
	for i, q := range questions {
		questionIDs[i] = id()
		exec(`INSERT INTO question (id, assessment_id, number, max_marks) VALUES ($1, $2, $3, $4)`,
			questionIDs[i], examID, q.number, q.max)
		exec(`INSERT INTO question_co_mapping (question_id, co_id) VALUES ($1, $2)`, questionIDs[i], q.coID)
	}

	students := []struct {
		name   string
		rollNo string
		marks  []float64 // per question
	}{
		{"Asha Patel", "22CS001", []float64{9, 8, 7, 9}},
		{"Brian Okoth", "22CS002", []float64{6, 5, 8, 7}},
		{"Chen Wei", "22CS003", []float64{4, 3, 5, 4}},
	}
	year := academicYear(time.Now())
	for _, s := range students {
		studentID := id()
		exec(`INSERT INTO student (id, name, roll_no) VALUES ($1, $2, $3)`, studentID, s.name, s.rollNo)
		exec(`INSERT INTO enrollment (student_id, course_id) VALUES ($1, $2)`, studentID, courseID)
		for i, mark := range s.marks {
			exec(`INSERT INTO student_mark (id, question_id, student_id, obtained_marks, max_marks, academic_year)
			      VALUES ($1, $2, $3, $4, $5, $6)`,
				id(), questionIDs[i], studentID, mark, questions[i].max, year)
		}
	}

	if err != nil {
		return errors.Wrap(err, "seeding demo data")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing demo data")
	}

	fmt.Printf("Seeded demo program (course %s, academic year %s)\n", courseID, year)
	return nil
}

// academicYear formats t's academic year, rolling over in July.
func academicYear(t time.Time) string {
	year := t.Year()
	if t.Month() < time.July {
		year--
	}
	return fmt.Sprintf("%d-%d", year, year+1)
}

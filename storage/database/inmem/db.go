package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/ufaulu/core/attainment"
	"github.com/trezcool/ufaulu/core/user"
)

// DB is an in-memory database for tests and local development. Repositories
// over it honor the same contracts as the SQL ones.
type DB struct {
	mutex sync.RWMutex

	programs    map[string]attainment.Program
	batches     map[string]attainment.Batch
	courses     map[string]attainment.Course
	cos         map[string]attainment.CourseOutcome
	assessments map[string]attainment.Assessment
	questions   map[string]attainment.Question
	questionCOs []attainment.QuestionCOMapping
	students    map[string]attainment.Student
	enrollments []attainment.Enrollment
	marks       map[string]attainment.StudentMark // (question, student, year)
	snapshots   map[string]attainment.COSnapshot  // (co, student, year)
	pos         map[string]attainment.ProgramOutcome
	copoMaps    []attainment.COPOMapping
	indirect    map[string]attainment.IndirectConfig // (program, batch)
	users       map[string]user.User
}

func NewDB() *DB {
	return &DB{
		programs:    make(map[string]attainment.Program),
		batches:     make(map[string]attainment.Batch),
		courses:     make(map[string]attainment.Course),
		cos:         make(map[string]attainment.CourseOutcome),
		assessments: make(map[string]attainment.Assessment),
		questions:   make(map[string]attainment.Question),
		students:    make(map[string]attainment.Student),
		marks:       make(map[string]attainment.StudentMark),
		snapshots:   make(map[string]attainment.COSnapshot),
		pos:         make(map[string]attainment.ProgramOutcome),
		indirect:    make(map[string]attainment.IndirectConfig),
		users:       make(map[string]user.User),
	}
}

func newID() string { return uuid.New().String() }

func markKey(questionID, studentID, year string) string {
	return questionID + "\x00" + studentID + "\x00" + year
}

func snapKey(coID, studentID, year string) string {
	return coID + "\x00" + studentID + "\x00" + year
}

func cfgKey(programID, batchID string) string {
	return programID + "\x00" + batchID
}

// Fixture helpers; IDs are generated when empty.

func (db *DB) AddProgram(p attainment.Program) attainment.Program {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if p.ID == "" {
		p.ID = newID()
	}
	db.programs[p.ID] = p
	return p
}

func (db *DB) AddBatch(b attainment.Batch) attainment.Batch {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if b.ID == "" {
		b.ID = newID()
	}
	db.batches[b.ID] = b
	return b
}

func (db *DB) AddCourse(c attainment.Course) attainment.Course {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	if b, ok := db.batches[c.BatchID]; ok && c.ProgramID == "" {
		c.ProgramID = b.ProgramID
	}
	db.courses[c.ID] = c
	return c
}

func (db *DB) AddCourseOutcome(co attainment.CourseOutcome) attainment.CourseOutcome {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if co.ID == "" {
		co.ID = newID()
	}
	db.cos[co.ID] = co
	return co
}

func (db *DB) AddAssessment(a attainment.Assessment) attainment.Assessment {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if a.ID == "" {
		a.ID = newID()
	}
	db.assessments[a.ID] = a
	return a
}

func (db *DB) AddQuestion(q attainment.Question) attainment.Question {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if q.ID == "" {
		q.ID = newID()
	}
	if a, ok := db.assessments[q.AssessmentID]; ok && q.SectionID == "" {
		q.SectionID = a.SectionID
	}
	db.questions[q.ID] = q
	return q
}

func (db *DB) MapQuestionCO(questionID, coID string) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.questionCOs = append(db.questionCOs, attainment.QuestionCOMapping{
		QuestionID: questionID,
		COID:       coID,
		IsActive:   true,
	})
}

func (db *DB) AddStudent(s attainment.Student) attainment.Student {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if s.ID == "" {
		s.ID = newID()
	}
	db.students[s.ID] = s
	return s
}

func (db *DB) Enroll(studentID, courseID string) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.enrollments = append(db.enrollments, attainment.Enrollment{
		StudentID: studentID,
		CourseID:  courseID,
		IsActive:  true,
	})
}

func (db *DB) AddProgramOutcome(po attainment.ProgramOutcome) attainment.ProgramOutcome {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if po.ID == "" {
		po.ID = newID()
	}
	db.pos[po.ID] = po
	return po
}

func (db *DB) MapCOPO(coID, poID string, level int) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.copoMaps = append(db.copoMaps, attainment.COPOMapping{
		COID:     coID,
		POID:     poID,
		Level:    level,
		IsActive: true,
	})
}

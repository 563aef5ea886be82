package attainment_test

import (
	"context"
	"testing"

	"github.com/trezcool/ufaulu/core"
	"github.com/trezcool/ufaulu/core/attainment"
	inmemdb "github.com/trezcool/ufaulu/storage/database/inmem"
)

type testLogger struct {
	t *testing.T
}

func (l testLogger) Enable(bool)                           {}
func (l testLogger) Debug(msg string, args ...interface{}) { l.t.Log(msg, args) }
func (l testLogger) Info(msg string, args ...interface{})  { l.t.Log(msg, args) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.t.Log(msg, args) }
func (l testLogger) Error(msg string, args ...interface{}) { l.t.Log(msg, args) }
func (l testLogger) Fatal(msg string, args ...interface{}) { l.t.Fatal(msg, args) }

func testConfig() *core.Config {
	return &core.Config{
		AppName: "Ufaulu",
		Env:     "TEST",
		Attainment: core.AttainmentConfig{
			DirectWeight:    0.8,
			IndirectWeight:  0.2,
			DefaultIndirect: 2.0,
			DefaultPOTarget: 2.0,
		},
	}
}

// testEnv is a seeded course:
//
//	CO1 <- Q1(10), Q2(10)     CO2 <- Q3(10), Q4(10)     CO3 <- no questions
//	alice: 9, 8, 7, 9   -> CO1 85%, CO2 80%
//	bob:   2, 3, 8, 7   -> CO1 25%, CO2 75%
//
// course settings: target 60%, levels 60/75/85.
type testEnv struct {
	db   *inmemdb.DB
	repo attainment.Repository
	svc  *attainment.Service
	conf *core.Config
	year string

	program attainment.Program
	batch   attainment.Batch
	course  attainment.Course
	co1     attainment.CourseOutcome
	co2     attainment.CourseOutcome
	co3     attainment.CourseOutcome
	exam    attainment.Assessment
	q       []attainment.Question // Q1..Q4
	alice   attainment.Student
	bob     attainment.Student
}

func newTestEnv(t *testing.T) *testEnv {
	db := inmemdb.NewDB()
	conf := testConfig()
	repo := inmemdb.NewAttainmentRepository(db)

	env := &testEnv{
		db:   db,
		repo: repo,
		svc:  attainment.NewService(repo, testLogger{t}, conf),
		conf: conf,
		year: "2024-2025",
	}

	env.program = db.AddProgram(attainment.Program{Code: "CSE", Name: "Computer Science and Engineering"})
	env.batch = db.AddBatch(attainment.Batch{ProgramID: env.program.ID, Name: "2022-2026", StartYear: 2022, EndYear: 2026})
	env.course = db.AddCourse(attainment.Course{
		Code:             "CS201",
		Name:             "Data Structures",
		BatchID:          env.batch.ID,
		Status:           "ACTIVE",
		TargetPercentage: 60,
		Level1Threshold:  60,
		Level2Threshold:  75,
		Level3Threshold:  85,
		IsActive:         true,
	})

	env.co1 = db.AddCourseOutcome(attainment.CourseOutcome{CourseID: env.course.ID, Code: "CO1", IsActive: true})
	env.co2 = db.AddCourseOutcome(attainment.CourseOutcome{CourseID: env.course.ID, Code: "CO2", IsActive: true})
	env.co3 = db.AddCourseOutcome(attainment.CourseOutcome{CourseID: env.course.ID, Code: "CO3", IsActive: true})

	env.exam = db.AddAssessment(attainment.Assessment{
		CourseID: env.course.ID, Name: "Midterm", Type: "exam", MaxMarks: 40, IsActive: true,
	})
	coByQuestion := []string{env.co1.ID, env.co1.ID, env.co2.ID, env.co2.ID}
	for i, number := range []string{"Q1", "Q2", "Q3", "Q4"} {
		q := db.AddQuestion(attainment.Question{AssessmentID: env.exam.ID, Number: number, MaxMarks: 10})
		db.MapQuestionCO(q.ID, coByQuestion[i])
		env.q = append(env.q, q)
	}

	env.alice = db.AddStudent(attainment.Student{Name: "Alice Mwangi", RollNo: "22CS001"})
	env.bob = db.AddStudent(attainment.Student{Name: "Bob Otieno", RollNo: "22CS002"})
	db.Enroll(env.alice.ID, env.course.ID)
	db.Enroll(env.bob.ID, env.course.ID)

	env.setMarks(t, env.alice.ID, 9, 8, 7, 9)
	env.setMarks(t, env.bob.ID, 2, 3, 8, 7)
	return env
}

// setMarks stores one mark per question; NaN-free shorthand for fixtures.
func (env *testEnv) setMarks(t *testing.T, studentID string, marks ...float64) {
	t.Helper()
	rows := make([]attainment.StudentMark, 0, len(marks))
	for i, m := range marks {
		rows = append(rows, attainment.StudentMark{
			QuestionID:    env.q[i].ID,
			StudentID:     studentID,
			ObtainedMarks: m,
			MaxMarks:      env.q[i].MaxMarks,
			AcademicYear:  env.year,
		})
	}
	if _, err := env.repo.UpsertMarks(context.Background(), rows); err != nil {
		t.Fatalf("setMarks() failed: %v", err)
	}
}

func (env *testEnv) opts() attainment.Options {
	return attainment.Options{AcademicYear: env.year}
}

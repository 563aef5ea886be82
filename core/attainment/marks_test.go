package attainment_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ufaulu/core"
	"github.com/trezcool/ufaulu/core/attainment"
)

func TestService_BulkUpsertMarks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("saves valid rows", func(t *testing.T) {
		carol := env.db.AddStudent(attainment.Student{Name: "Carol", RollNo: "22CS003"})
		env.db.Enroll(carol.ID, env.course.ID)

		n, err := env.svc.BulkUpsertMarks(ctx, env.course.ID, env.year, []attainment.NewStudentMark{
			{QuestionID: env.q[0].ID, StudentID: carol.ID, ObtainedMarks: 7},
			{QuestionID: env.q[1].ID, StudentID: carol.ID, ObtainedMarks: 6},
		})
		if err != nil {
			t.Fatalf("BulkUpsertMarks() failed: %v", err)
		}
		if n != 2 {
			t.Errorf("saved = %d; want 2", n)
		}

		// MaxMarks defaulted from the question
		marks, err := env.repo.QueryMarks(ctx, attainment.MarkFilter{
			QuestionIDs: []string{env.q[0].ID}, StudentID: carol.ID, AcademicYear: env.year,
		})
		if err != nil {
			t.Fatalf("QueryMarks() failed: %v", err)
		}
		if len(marks) != 1 || marks[0].MaxMarks != 10 {
			t.Errorf("marks = %+v; want one row with max 10", marks)
		}
	})

	t.Run("rejects questions of another course", func(t *testing.T) {
		other := env.db.AddCourse(attainment.Course{Code: "CS202", Name: "Algorithms", BatchID: env.batch.ID, IsActive: true})
		quiz := env.db.AddAssessment(attainment.Assessment{CourseID: other.ID, Name: "Quiz 1", Type: "quiz", MaxMarks: 10, IsActive: true})
		foreign := env.db.AddQuestion(attainment.Question{AssessmentID: quiz.ID, Number: "Q1", MaxMarks: 10})

		_, err := env.svc.BulkUpsertMarks(ctx, env.course.ID, env.year, []attainment.NewStudentMark{
			{QuestionID: env.q[0].ID, StudentID: env.alice.ID, ObtainedMarks: 5},
			{QuestionID: foreign.ID, StudentID: env.alice.ID, ObtainedMarks: 5},
		})
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("err = %v; want a validation error", err)
		}
		if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "rows[1].question_id" {
			t.Errorf("Fields = %+v; want rows[1].question_id flagged", vErr.Fields)
		}
	})

	t.Run("rejects out-of-bounds marks", func(t *testing.T) {
		_, err := env.svc.BulkUpsertMarks(ctx, env.course.ID, env.year, []attainment.NewStudentMark{
			{QuestionID: env.q[0].ID, StudentID: env.alice.ID, ObtainedMarks: 11},
		})
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("err = %v; want a validation error", err)
		}
		if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "rows[0].obtained_marks" {
			t.Errorf("Fields = %+v; want rows[0].obtained_marks flagged", vErr.Fields)
		}
		if !strings.Contains(vErr.Fields[0].Error, "between 0 and 10") {
			t.Errorf("Error = %q; want bounds in the message", vErr.Fields[0].Error)
		}
	})

	t.Run("last write wins within a batch", func(t *testing.T) {
		n, err := env.svc.BulkUpsertMarks(ctx, env.course.ID, env.year, []attainment.NewStudentMark{
			{QuestionID: env.q[0].ID, StudentID: env.alice.ID, ObtainedMarks: 5},
			{QuestionID: env.q[0].ID, StudentID: env.alice.ID, ObtainedMarks: 8},
		})
		if err != nil {
			t.Fatalf("BulkUpsertMarks() failed: %v", err)
		}
		if n != 1 {
			t.Errorf("saved = %d; want 1 after in-batch dedup", n)
		}

		marks, err := env.repo.QueryMarks(ctx, attainment.MarkFilter{
			QuestionIDs: []string{env.q[0].ID}, StudentID: env.alice.ID, AcademicYear: env.year,
		})
		if err != nil {
			t.Fatalf("QueryMarks() failed: %v", err)
		}
		if len(marks) != 1 || marks[0].ObtainedMarks != 8 {
			t.Errorf("marks = %+v; want the later row (8)", marks)
		}
	})

	t.Run("re-upload overwrites stored rows", func(t *testing.T) {
		if _, err := env.svc.BulkUpsertMarks(ctx, env.course.ID, env.year, []attainment.NewStudentMark{
			{QuestionID: env.q[2].ID, StudentID: env.alice.ID, ObtainedMarks: 4},
		}); err != nil {
			t.Fatalf("BulkUpsertMarks() failed: %v", err)
		}

		marks, err := env.repo.QueryMarks(ctx, attainment.MarkFilter{
			QuestionIDs: []string{env.q[2].ID}, StudentID: env.alice.ID, AcademicYear: env.year,
		})
		if err != nil {
			t.Fatalf("QueryMarks() failed: %v", err)
		}
		if len(marks) != 1 || marks[0].ObtainedMarks != 4 {
			t.Errorf("marks = %+v; want a single overwritten row (4)", marks)
		}
	})

	t.Run("unknown course", func(t *testing.T) {
		_, err := env.svc.BulkUpsertMarks(ctx, "nope", env.year, []attainment.NewStudentMark{
			{QuestionID: env.q[0].ID, StudentID: env.alice.ID, ObtainedMarks: 5},
		})
		if errors.Cause(err) != attainment.ErrCourseNotFound {
			t.Errorf("err = %v; want ErrCourseNotFound", err)
		}
	})
}

func TestService_MarksTemplate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// two-digit question number to pin down the natural ordering
	q10 := env.db.AddQuestion(attainment.Question{AssessmentID: env.exam.ID, Number: "Q10", MaxMarks: 5})
	env.db.MapQuestionCO(q10.ID, env.co1.ID)

	tmpl, err := env.svc.MarksTemplate(ctx, env.course.ID, env.exam.ID)
	if err != nil {
		t.Fatalf("MarksTemplate() failed: %v", err)
	}

	wantStudentCols := []string{"student_id", "roll_no", "student_name"}
	if len(tmpl.StudentColumns) != len(wantStudentCols) {
		t.Fatalf("StudentColumns = %v; want %v", tmpl.StudentColumns, wantStudentCols)
	}
	for i, col := range wantStudentCols {
		if tmpl.StudentColumns[i] != col {
			t.Errorf("StudentColumns[%d] = %q; want %q", i, tmpl.StudentColumns[i], col)
		}
	}

	wantNumbers := []string{"Q1", "Q2", "Q3", "Q4", "Q10"}
	if len(tmpl.Columns) != len(wantNumbers) {
		t.Fatalf("len(Columns) = %d; want %d", len(tmpl.Columns), len(wantNumbers))
	}
	for i, number := range wantNumbers {
		if tmpl.Columns[i].Number != number {
			t.Errorf("Columns[%d].Number = %q; want %q", i, tmpl.Columns[i].Number, number)
		}
	}
	if tmpl.Columns[4].MaxMarks != 5 {
		t.Errorf("Q10 MaxMarks = %v; want 5", tmpl.Columns[4].MaxMarks)
	}
	if tmpl.AssessmentName != "Midterm" {
		t.Errorf("AssessmentName = %q; want Midterm", tmpl.AssessmentName)
	}

	t.Run("assessment of another course", func(t *testing.T) {
		other := env.db.AddCourse(attainment.Course{Code: "CS202", Name: "Algorithms", BatchID: env.batch.ID, IsActive: true})
		quiz := env.db.AddAssessment(attainment.Assessment{CourseID: other.ID, Name: "Quiz 1", Type: "quiz", MaxMarks: 10, IsActive: true})

		_, err := env.svc.MarksTemplate(ctx, env.course.ID, quiz.ID)
		if errors.Cause(err) != attainment.ErrAssessmentNotFound {
			t.Errorf("err = %v; want ErrAssessmentNotFound", err)
		}
	})

	t.Run("unknown assessment", func(t *testing.T) {
		_, err := env.svc.MarksTemplate(ctx, env.course.ID, "nope")
		if errors.Cause(err) != attainment.ErrAssessmentNotFound {
			t.Errorf("err = %v; want ErrAssessmentNotFound", err)
		}
	})
}

func TestBulkMarks_Validate(t *testing.T) {
	validate := validator.New()
	enLoc := en.New()
	translator, _ := ut.New(enLoc, enLoc).GetTranslator("en")
	core.InitValidators(validate, translator)

	rows := []attainment.NewStudentMark{{QuestionID: "q", StudentID: "s", ObtainedMarks: 5}}
	tests := []struct {
		name    string
		bm      attainment.BulkMarks
		wantErr bool
	}{
		{"valid", attainment.BulkMarks{AcademicYear: "2024-2025", Rows: rows}, false},
		{"trims the year", attainment.BulkMarks{AcademicYear: "  2024-2025 ", Rows: rows}, false},
		{"bad year format", attainment.BulkMarks{AcademicYear: "2024/25", Rows: rows}, true},
		{"missing year", attainment.BulkMarks{Rows: rows}, true},
		{"no rows", attainment.BulkMarks{AcademicYear: "2024-2025"}, true},
		{"negative marks", attainment.BulkMarks{
			AcademicYear: "2024-2025",
			Rows:         []attainment.NewStudentMark{{QuestionID: "q", StudentID: "s", ObtainedMarks: -1}},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bm.Validate(validate)
			if gotErr := err != nil; gotErr != tt.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}

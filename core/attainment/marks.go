package attainment

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ufaulu/core"
)

// NewStudentMark is one row of a bulk marks upload, already parsed; CSV/file
// handling belongs to the producer, not this engine.
type NewStudentMark struct {
	QuestionID    string  `json:"question_id" validate:"required"`
	StudentID     string  `json:"student_id" validate:"required"`
	ObtainedMarks float64 `json:"obtained_marks" validate:"min=0"`
	MaxMarks      float64 `json:"max_marks" validate:"omitempty,gt=0"`
}

type BulkMarks struct {
	AcademicYear string           `json:"academic_year" validate:"required,academicyear"`
	Rows         []NewStudentMark `json:"rows" validate:"required,min=1,dive"`
}

func (bm *BulkMarks) Validate(validate *validator.Validate) error {
	bm.AcademicYear = core.CleanString(bm.AcademicYear)
	return validate.Struct(bm)
}

// TemplateColumn describes one question column of the marks upload contract.
type TemplateColumn struct {
	QuestionID string  `json:"question_id"`
	Number     string  `json:"number"`
	MaxMarks   float64 `json:"max_marks"`
}

// MarksTemplate is the column contract the bulk upload UI builds its sheet
// from: fixed student columns followed by one column per question.
type MarksTemplate struct {
	CourseID       string           `json:"course_id"`
	AssessmentID   string           `json:"assessment_id"`
	AssessmentName string           `json:"assessment_name"`
	StudentColumns []string         `json:"student_columns"`
	Columns        []TemplateColumn `json:"columns"`
}

// BulkUpsertMarks validates and stores a batch of marks for a course.
// Duplicate (question, student, academic year) rows are resolved
// last-write-wins, both inside the batch and against stored rows.
func (svc *Service) BulkUpsertMarks(ctx context.Context, courseID, academicYear string, rows []NewStudentMark) (int, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return 0, errors.Wrap(err, "finding course")
	}
	questions, err := svc.repo.QueryCourseQuestions(ctx, courseID)
	if err != nil {
		return 0, errors.Wrap(err, "querying course questions")
	}
	questionsByID := make(map[string]Question, len(questions))
	for _, q := range questions {
		questionsByID[q.ID] = q
	}

	var fldErrs []core.FieldError
	marks := make([]StudentMark, 0, len(rows))
	seen := make(map[string]int) // (question, student) -> index in marks
	for i, row := range rows {
		q, ok := questionsByID[row.QuestionID]
		if !ok {
			fldErrs = append(fldErrs, core.FieldError{
				Field: fmt.Sprintf("rows[%d].question_id", i),
				Error: "question does not belong to this course",
			})
			continue
		}
		maxMarks := row.MaxMarks
		if maxMarks == 0 {
			maxMarks = q.MaxMarks
		}
		if row.ObtainedMarks < 0 || row.ObtainedMarks > maxMarks {
			fldErrs = append(fldErrs, core.FieldError{
				Field: fmt.Sprintf("rows[%d].obtained_marks", i),
				Error: fmt.Sprintf("must be between 0 and %g", maxMarks),
			})
			continue
		}

		mark := StudentMark{
			QuestionID:    row.QuestionID,
			StudentID:     row.StudentID,
			ObtainedMarks: row.ObtainedMarks,
			MaxMarks:      maxMarks,
			AcademicYear:  academicYear,
		}
		key := row.QuestionID + "\x00" + row.StudentID
		if idx, dup := seen[key]; dup {
			marks[idx] = mark // last write wins within the batch
			continue
		}
		seen[key] = len(marks)
		marks = append(marks, mark)
	}
	if len(fldErrs) > 0 {
		return 0, core.NewValidationError(errors.New("invalid marks"), fldErrs...)
	}

	n, err := svc.repo.UpsertMarks(ctx, marks)
	if err != nil {
		return 0, errors.Wrap(err, "upserting marks")
	}
	return n, nil
}

// MarksTemplate returns the upload column contract for one assessment of a course.
func (svc *Service) MarksTemplate(ctx context.Context, courseID, assessmentID string) (*MarksTemplate, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return nil, errors.Wrap(err, "finding course")
	}
	assessment, err := svc.repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "finding assessment")
	}
	if assessment.CourseID != courseID {
		return nil, ErrAssessmentNotFound
	}
	// repositories order questions naturally ("Q2" before "Q10")
	questions, err := svc.repo.QueryAssessmentQuestions(ctx, assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying assessment questions")
	}

	tmpl := &MarksTemplate{
		CourseID:       courseID,
		AssessmentID:   assessment.ID,
		AssessmentName: assessment.Name,
		StudentColumns: []string{"student_id", "roll_no", "student_name"},
		Columns:        make([]TemplateColumn, 0, len(questions)),
	}
	for _, q := range questions {
		tmpl.Columns = append(tmpl.Columns, TemplateColumn{
			QuestionID: q.ID,
			Number:     q.Number,
			MaxMarks:   q.MaxMarks,
		})
	}
	return tmpl, nil
}

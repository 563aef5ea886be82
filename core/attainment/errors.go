package attainment

import "errors"

var (
	ErrCourseNotFound     = errors.New("course not found")
	ErrCONotFound         = errors.New("course outcome not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrProgramNotFound    = errors.New("program not found")
	ErrBatchNotFound      = errors.New("batch not found")
	ErrNoProgramOutcomes  = errors.New("no program outcomes found for this program")
	ErrNoIndirectConfig   = errors.New("no indirect attainment configuration stored")
)

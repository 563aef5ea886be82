package attainment

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ufaulu/core"
)

type (
	// MarkFilter narrows mark queries; QuestionIDs is mandatory, the rest are
	// optional AND filters.
	MarkFilter struct {
		QuestionIDs  []string
		StudentID    string
		AcademicYear string
	}

	Repository interface {
		GetCourse(ctx context.Context, courseID string) (Course, error)
		GetCourseOutcome(ctx context.Context, coID string) (CourseOutcome, error)
		// QueryCourseOutcomes returns the active COs of a course, settings populated.
		QueryCourseOutcomes(ctx context.Context, courseID string) ([]CourseOutcome, error)
		// QueryCOQuestions returns the questions mapped to a CO via active
		// QuestionCOMappings, scoped to assessments of the CO's course. A
		// non-empty sectionID keeps course-wide questions plus those of
		// assessments tagged to that section only.
		QueryCOQuestions(ctx context.Context, coID, sectionID string) ([]Question, error)
		QueryCourseQuestions(ctx context.Context, courseID string) ([]Question, error)
		QueryAssessmentQuestions(ctx context.Context, assessmentID string) ([]Question, error)
		GetAssessment(ctx context.Context, assessmentID string) (Assessment, error)
		QueryMarks(ctx context.Context, filter MarkFilter) ([]StudentMark, error)
		// UpsertMarks overwrites rows sharing (question, student, academic year).
		UpsertMarks(ctx context.Context, marks []StudentMark) (int, error)
		GetStudent(ctx context.Context, studentID string) (Student, error)
		// QueryEnrolledStudents returns actively-enrolled students of a course,
		// optionally restricted to a section.
		QueryEnrolledStudents(ctx context.Context, courseID, sectionID string) ([]Student, error)
		// SaveCOSnapshots transactionally replaces all snapshots for the given
		// course/year scope (delete-then-insert, overwrite semantics).
		SaveCOSnapshots(ctx context.Context, courseID, academicYear string, snaps []COSnapshot) error
		QueryCOSnapshots(ctx context.Context, coID, academicYear string) ([]COSnapshot, error)
	}

	// Options scope a computation; zero values mean "unscoped".
	Options struct {
		AcademicYear string
		SectionID    string
	}

	Service struct {
		repo   Repository
		logger core.Logger
		conf   *core.Config
	}
)

func NewService(repo Repository, logger core.Logger, conf *core.Config) *Service {
	return &Service{repo: repo, logger: logger, conf: conf}
}

// Course returns a course by ID, for callers gating mutations on course data.
func (svc *Service) Course(ctx context.Context, courseID string) (Course, error) {
	return svc.repo.GetCourse(ctx, courseID)
}

// StudentCOAttainment aggregates one student's marks across all questions
// mapped to a CO. Unattempted questions contribute their full max marks to the
// denominator and nothing to the numerator ("no credit for skipped").
func (svc *Service) StudentCOAttainment(ctx context.Context, courseID, coID, studentID string, opts Options) (StudentCOResult, error) {
	co, err := svc.repo.GetCourseOutcome(ctx, coID)
	if err != nil {
		return StudentCOResult{}, errors.Wrap(err, "finding course outcome")
	}
	if co.CourseID != courseID {
		return StudentCOResult{}, ErrCONotFound
	}
	std, err := svc.repo.GetStudent(ctx, studentID)
	if err != nil {
		return StudentCOResult{}, errors.Wrap(err, "finding student")
	}

	questions, err := svc.repo.QueryCOQuestions(ctx, coID, opts.SectionID)
	if err != nil {
		return StudentCOResult{}, errors.Wrap(err, "querying CO questions")
	}
	return svc.studentCOResult(ctx, co, std, questions, opts)
}

// studentCOResult does the per-student aggregation against a pre-fetched
// question set so class rollups fetch questions once per CO.
func (svc *Service) studentCOResult(ctx context.Context, co CourseOutcome, std Student, questions []Question, opts Options) (StudentCOResult, error) {
	res := StudentCOResult{
		StudentID:      std.ID,
		StudentName:    std.Name,
		COID:           co.ID,
		COCode:         co.Code,
		TotalQuestions: len(questions),
	}
	if len(questions) == 0 {
		// "no data" sentinel; callers exclude it from class denominators
		return res, nil
	}

	qIDs := make([]string, 0, len(questions))
	for _, q := range questions {
		res.TotalMaxMarks += q.MaxMarks
		qIDs = append(qIDs, q.ID)
	}

	marks, err := svc.repo.QueryMarks(ctx, MarkFilter{
		QuestionIDs:  qIDs,
		StudentID:    std.ID,
		AcademicYear: opts.AcademicYear,
	})
	if err != nil {
		return StudentCOResult{}, errors.Wrap(err, "querying student marks")
	}
	for _, m := range marks {
		res.TotalObtainedMarks += m.ObtainedMarks
		res.AttemptedQuestions++
	}

	if res.TotalMaxMarks > 0 {
		res.Percentage = core.Round2(res.TotalObtainedMarks / res.TotalMaxMarks * 100)
	}
	res.MetTarget = res.Percentage >= co.TargetPercentage
	return res, nil
}

// ClassCOAttainment rolls StudentCOAttainment up over every actively-enrolled
// student. Students with no mapped-question data are excluded from the
// denominator rather than counted as failing.
func (svc *Service) ClassCOAttainment(ctx context.Context, courseID, coID string, opts Options) (COResult, []StudentCOResult, error) {
	co, err := svc.repo.GetCourseOutcome(ctx, coID)
	if err != nil {
		return COResult{}, nil, errors.Wrap(err, "finding course outcome")
	}
	if co.CourseID != courseID {
		return COResult{}, nil, ErrCONotFound
	}
	return svc.classCOResult(ctx, courseID, co, opts)
}

func (svc *Service) classCOResult(ctx context.Context, courseID string, co CourseOutcome, opts Options) (COResult, []StudentCOResult, error) {
	questions, err := svc.repo.QueryCOQuestions(ctx, co.ID, opts.SectionID)
	if err != nil {
		return COResult{}, nil, errors.Wrap(err, "querying CO questions")
	}
	students, err := svc.repo.QueryEnrolledStudents(ctx, courseID, opts.SectionID)
	if err != nil {
		return COResult{}, nil, errors.Wrap(err, "querying enrolled students")
	}

	res := COResult{
		COID:             co.ID,
		COCode:           co.Code,
		CODescription:    co.Description,
		TargetPercentage: co.TargetPercentage,
		Thresholds: Thresholds{
			Level1: co.Level1Threshold,
			Level2: co.Level2Threshold,
			Level3: co.Level3Threshold,
		},
	}

	studentResults := make([]StudentCOResult, 0, len(students))
	for _, std := range students {
		sres, err := svc.studentCOResult(ctx, co, std, questions, opts)
		if err != nil {
			return COResult{}, nil, err
		}
		studentResults = append(studentResults, sres)

		if sres.TotalQuestions == 0 {
			continue
		}
		res.TotalStudents++
		if sres.MetTarget {
			res.StudentsMeetingTarget++
		}
	}

	if res.TotalStudents > 0 {
		res.PercentageMeetingTarget = core.Round2(float64(res.StudentsMeetingTarget) / float64(res.TotalStudents) * 100)
	}
	res.AttainmentLevel = classifyLevel(res.PercentageMeetingTarget, res.Thresholds)
	return res, studentResults, nil
}

// CourseAttainment computes the class rollup for every active CO of a course,
// with summary aggregates. A non-empty opts.SectionID restricts both the
// student population and the question universe to that section.
func (svc *Service) CourseAttainment(ctx context.Context, courseID string, opts Options) (*CourseResult, error) {
	course, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "finding course")
	}
	cos, err := svc.repo.QueryCourseOutcomes(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course outcomes")
	}

	res := &CourseResult{
		CourseID:     course.ID,
		CourseCode:   course.Code,
		CourseName:   course.Name,
		AcademicYear: opts.AcademicYear,
		SectionID:    opts.SectionID,
		CalculatedAt: time.Now().UTC(),
		Settings: CourseSettings{
			COTarget:        course.TargetPercentage,
			Level1Threshold: course.Level1Threshold,
			Level2Threshold: course.Level2Threshold,
			Level3Threshold: course.Level3Threshold,
		},
	}

	var attainmentSum float64
	for _, co := range cos {
		cres, sres, err := svc.classCOResult(ctx, courseID, co, opts)
		if err != nil {
			return nil, err
		}
		res.COAttainments = append(res.COAttainments, cres)
		res.StudentAttainments = append(res.StudentAttainments, sres...)

		attainmentSum += cres.PercentageMeetingTarget
		if cres.TotalStudents > res.Summary.TotalStudents {
			res.Summary.TotalStudents = cres.TotalStudents
		}
		switch cres.AttainmentLevel {
		case 0:
			res.Summary.LevelDistribution.Level0++
		case 1:
			res.Summary.LevelDistribution.Level1++
		case 2:
			res.Summary.LevelDistribution.Level2++
		case 3:
			res.Summary.LevelDistribution.Level3++
		}
	}
	res.Summary.TotalCOs = len(res.COAttainments)
	if res.Summary.TotalCOs > 0 {
		res.Summary.AverageAttainment = core.Round2(attainmentSum / float64(res.Summary.TotalCOs))
	}
	return res, nil
}

// Calculate recomputes a course's attainment; when save is requested the
// per-student results are persisted as overwrite-upserted snapshots. A save
// failure after a successful computation is reported but non-fatal: the
// computed result is still returned.
func (svc *Service) Calculate(ctx context.Context, courseID string, opts Options, save bool) (*CourseResult, error) {
	res, err := svc.CourseAttainment(ctx, courseID, opts)
	if err != nil {
		return nil, err
	}
	if save {
		if err := svc.saveSnapshots(ctx, courseID, opts.AcademicYear, res.StudentAttainments); err != nil {
			svc.logger.Error("saving CO attainment snapshots", err)
		}
	}
	return res, nil
}

func (svc *Service) saveSnapshots(ctx context.Context, courseID, academicYear string, students []StudentCOResult) error {
	now := time.Now().UTC()
	snaps := make([]COSnapshot, 0, len(students))
	for _, s := range students {
		if s.TotalQuestions == 0 {
			continue // nothing computed, nothing to materialize
		}
		snaps = append(snaps, COSnapshot{
			COID:         s.COID,
			StudentID:    s.StudentID,
			Percentage:   s.Percentage,
			MetTarget:    s.MetTarget,
			AcademicYear: academicYear,
			CalculatedAt: now,
		})
	}
	return svc.repo.SaveCOSnapshots(ctx, courseID, academicYear, snaps)
}

// classifyLevel assigns the ordinal attainment level; highest threshold met wins.
func classifyLevel(pct float64, t Thresholds) int {
	switch {
	case pct >= t.Level3:
		return 3
	case pct >= t.Level2:
		return 2
	case pct >= t.Level1:
		return 1
	default:
		return 0
	}
}

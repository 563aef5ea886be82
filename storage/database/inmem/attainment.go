package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/ufaulu/core/attainment"
)

type attainmentRepository struct {
	db *DB
}

func NewAttainmentRepository(db *DB) attainment.Repository {
	return &attainmentRepository{db: db}
}

func (repo *attainmentRepository) GetCourse(ctx context.Context, courseID string) (attainment.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.courses[courseID]; ok && c.IsActive {
		return c, nil
	}
	return attainment.Course{}, attainment.ErrCourseNotFound
}

func (repo *attainmentRepository) GetCourseOutcome(ctx context.Context, coID string) (attainment.CourseOutcome, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.getCO(coID)
}

func (repo *attainmentRepository) getCO(coID string) (attainment.CourseOutcome, error) {
	co, ok := repo.db.cos[coID]
	if !ok || !co.IsActive {
		return attainment.CourseOutcome{}, attainment.ErrCONotFound
	}
	return repo.withCourseSettings(co), nil
}

// withCourseSettings fills zero-valued CO settings from the owning course.
func (repo *attainmentRepository) withCourseSettings(co attainment.CourseOutcome) attainment.CourseOutcome {
	course, ok := repo.db.courses[co.CourseID]
	if !ok {
		return co
	}
	if co.TargetPercentage == 0 {
		co.TargetPercentage = course.TargetPercentage
	}
	if co.Level1Threshold == 0 {
		co.Level1Threshold = course.Level1Threshold
	}
	if co.Level2Threshold == 0 {
		co.Level2Threshold = course.Level2Threshold
	}
	if co.Level3Threshold == 0 {
		co.Level3Threshold = course.Level3Threshold
	}
	return co
}

func (repo *attainmentRepository) QueryCourseOutcomes(ctx context.Context, courseID string) ([]attainment.CourseOutcome, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cos := make([]attainment.CourseOutcome, 0)
	for _, co := range repo.db.cos {
		if co.CourseID == courseID && co.IsActive {
			cos = append(cos, repo.withCourseSettings(co))
		}
	}
	sort.Slice(cos, func(i, j int) bool { return cos[i].Code < cos[j].Code })
	return cos, nil
}

func (repo *attainmentRepository) QueryCOQuestions(ctx context.Context, coID, sectionID string) ([]attainment.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	mapped := make(map[string]bool)
	for _, m := range repo.db.questionCOs {
		if m.COID == coID && m.IsActive {
			mapped[m.QuestionID] = true
		}
	}

	questions := make([]attainment.Question, 0, len(mapped))
	for id := range mapped {
		q, ok := repo.db.questions[id]
		if !ok {
			continue
		}
		a, ok := repo.db.assessments[q.AssessmentID]
		if !ok || !a.IsActive {
			continue
		}
		// course-wide questions always count; section-tagged ones only for
		// their own section
		if q.SectionID != "" && sectionID != "" && q.SectionID != sectionID {
			continue
		}
		if q.SectionID != "" && sectionID == "" {
			continue
		}
		questions = append(questions, q)
	}
	sortQuestions(questions)
	return questions, nil
}

func (repo *attainmentRepository) QueryCourseQuestions(ctx context.Context, courseID string) ([]attainment.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	questions := make([]attainment.Question, 0)
	for _, q := range repo.db.questions {
		if a, ok := repo.db.assessments[q.AssessmentID]; ok && a.CourseID == courseID && a.IsActive {
			questions = append(questions, q)
		}
	}
	sortQuestions(questions)
	return questions, nil
}

func (repo *attainmentRepository) QueryAssessmentQuestions(ctx context.Context, assessmentID string) ([]attainment.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	questions := make([]attainment.Question, 0)
	for _, q := range repo.db.questions {
		if q.AssessmentID == assessmentID {
			questions = append(questions, q)
		}
	}
	sortQuestions(questions)
	return questions, nil
}

func (repo *attainmentRepository) GetAssessment(ctx context.Context, assessmentID string) (attainment.Assessment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.assessments[assessmentID]; ok && a.IsActive {
		return a, nil
	}
	return attainment.Assessment{}, attainment.ErrAssessmentNotFound
}

func (repo *attainmentRepository) QueryMarks(ctx context.Context, filter attainment.MarkFilter) ([]attainment.StudentMark, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	qIDs := make(map[string]bool, len(filter.QuestionIDs))
	for _, id := range filter.QuestionIDs {
		qIDs[id] = true
	}

	marks := make([]attainment.StudentMark, 0)
	for _, m := range repo.db.marks {
		if !qIDs[m.QuestionID] {
			continue
		}
		if filter.StudentID != "" && m.StudentID != filter.StudentID {
			continue
		}
		if filter.AcademicYear != "" && m.AcademicYear != filter.AcademicYear {
			continue
		}
		marks = append(marks, m)
	}
	return marks, nil
}

func (repo *attainmentRepository) UpsertMarks(ctx context.Context, marks []attainment.StudentMark) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i, m := range marks {
		key := markKey(m.QuestionID, m.StudentID, m.AcademicYear)
		if prev, ok := repo.db.marks[key]; ok {
			m.ID = prev.ID
		} else if m.ID == "" {
			m.ID = newID()
		}
		repo.db.marks[key] = m
		marks[i] = m
	}
	return len(marks), nil
}

func (repo *attainmentRepository) GetStudent(ctx context.Context, studentID string) (attainment.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.students[studentID]; ok {
		return s, nil
	}
	return attainment.Student{}, attainment.ErrStudentNotFound
}

func (repo *attainmentRepository) QueryEnrolledStudents(ctx context.Context, courseID, sectionID string) ([]attainment.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]attainment.Student, 0)
	for _, e := range repo.db.enrollments {
		if e.CourseID != courseID || !e.IsActive {
			continue
		}
		s, ok := repo.db.students[e.StudentID]
		if !ok {
			continue
		}
		if sectionID != "" && s.SectionID != sectionID {
			continue
		}
		students = append(students, s)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].RollNo < students[j].RollNo })
	return students, nil
}

func (repo *attainmentRepository) SaveCOSnapshots(ctx context.Context, courseID, academicYear string, snaps []attainment.COSnapshot) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// replace the course/year scope wholesale
	courseCOs := make(map[string]bool)
	for _, co := range repo.db.cos {
		if co.CourseID == courseID {
			courseCOs[co.ID] = true
		}
	}
	for key, snap := range repo.db.snapshots {
		if courseCOs[snap.COID] && snap.AcademicYear == academicYear {
			delete(repo.db.snapshots, key)
		}
	}
	for _, snap := range snaps {
		if snap.ID == "" {
			snap.ID = newID()
		}
		repo.db.snapshots[snapKey(snap.COID, snap.StudentID, snap.AcademicYear)] = snap
	}
	return nil
}

func (repo *attainmentRepository) QueryCOSnapshots(ctx context.Context, coID, academicYear string) ([]attainment.COSnapshot, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	snaps := make([]attainment.COSnapshot, 0)
	for _, snap := range repo.db.snapshots {
		if snap.COID != coID {
			continue
		}
		if academicYear != "" && snap.AcademicYear != academicYear {
			continue
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].StudentID < snaps[j].StudentID })
	return snaps, nil
}

func sortQuestions(questions []attainment.Question) {
	sort.Slice(questions, func(i, j int) bool {
		if len(questions[i].Number) != len(questions[j].Number) {
			return len(questions[i].Number) < len(questions[j].Number) // "Q2" before "Q10"
		}
		if questions[i].Number != questions[j].Number {
			return questions[i].Number < questions[j].Number
		}
		return questions[i].ID < questions[j].ID
	})
}

// PO repository

type poRepository struct {
	db *DB
}

func NewPORepository(db *DB) attainment.PORepository {
	return &poRepository{db: db}
}

func (repo *poRepository) GetProgram(ctx context.Context, programID string) (string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.programs[programID]; ok {
		return p.ID, nil
	}
	return "", attainment.ErrProgramNotFound
}

func (repo *poRepository) GetBatch(ctx context.Context, batchID string) (string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if b, ok := repo.db.batches[batchID]; ok {
		return b.ID, nil
	}
	return "", attainment.ErrBatchNotFound
}

func (repo *poRepository) QueryProgramOutcomes(ctx context.Context, programID string) ([]attainment.ProgramOutcome, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	pos := make([]attainment.ProgramOutcome, 0)
	for _, po := range repo.db.pos {
		if po.ProgramID == programID && po.IsActive {
			pos = append(pos, po)
		}
	}
	sort.Slice(pos, func(i, j int) bool { return pos[i].Code < pos[j].Code })
	return pos, nil
}

func (repo *poRepository) QueryBatchCourses(ctx context.Context, batchID string) ([]attainment.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]attainment.Course, 0)
	for _, c := range repo.db.courses {
		if c.BatchID == batchID && c.IsActive {
			courses = append(courses, c)
		}
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Code < courses[j].Code })
	return courses, nil
}

func (repo *poRepository) QueryCourseOutcomes(ctx context.Context, courseID string) ([]attainment.CourseOutcome, error) {
	return (&attainmentRepository{db: repo.db}).QueryCourseOutcomes(ctx, courseID)
}

func (repo *poRepository) QueryCOPOMappings(ctx context.Context, programID string) ([]attainment.COPOMapping, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	mappings := make([]attainment.COPOMapping, 0)
	for _, m := range repo.db.copoMaps {
		if !m.IsActive {
			continue
		}
		if po, ok := repo.db.pos[m.POID]; !ok || po.ProgramID != programID {
			continue
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

func (repo *poRepository) GetIndirectConfig(ctx context.Context, programID, batchID string) (attainment.IndirectConfig, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cfg, ok := repo.db.indirect[cfgKey(programID, batchID)]; ok {
		return cfg, nil
	}
	return attainment.IndirectConfig{}, attainment.ErrNoIndirectConfig
}

func (repo *poRepository) SaveIndirectConfig(ctx context.Context, cfg attainment.IndirectConfig) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.indirect[cfgKey(cfg.ProgramID, cfg.BatchID)] = cfg
	return nil
}

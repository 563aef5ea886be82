package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ufaulu/core/attainment"
)

type attainmentRepository struct {
	db *sqlx.DB
}

var _ attainment.Repository = (*attainmentRepository)(nil) // interface compliance check

func NewAttainmentRepository(db *sqlx.DB) *attainmentRepository {
	return &attainmentRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to the domain sentinel
func trapNoRowsErr(err, sentinel error, msg string) error {
	if err == sql.ErrNoRows {
		return sentinel
	}
	return errors.Wrap(err, msg)
}

type courseRow struct {
	ID               string         `db:"id"`
	Code             string         `db:"code"`
	Name             string         `db:"name"`
	BatchID          string         `db:"batch_id"`
	ProgramID        string         `db:"program_id"`
	Status           string         `db:"status"`
	TargetPercentage float64        `db:"target_percentage"`
	Level1Threshold  float64        `db:"level1_threshold"`
	Level2Threshold  float64        `db:"level2_threshold"`
	Level3Threshold  float64        `db:"level3_threshold"`
	IsActive         bool           `db:"is_active"`
	TeacherIDs       pq.StringArray `db:"teacher_ids"`
}

func (r courseRow) course() attainment.Course {
	return attainment.Course{
		ID:               r.ID,
		Code:             r.Code,
		Name:             r.Name,
		BatchID:          r.BatchID,
		ProgramID:        r.ProgramID,
		Status:           r.Status,
		TargetPercentage: r.TargetPercentage,
		Level1Threshold:  r.Level1Threshold,
		Level2Threshold:  r.Level2Threshold,
		Level3Threshold:  r.Level3Threshold,
		TeacherIDs:       r.TeacherIDs,
		IsActive:         r.IsActive,
	}
}

const courseQuery = `
SELECT c.id, c.code, c.name, c.batch_id, b.program_id, c.status,
       c.target_percentage, c.level1_threshold, c.level2_threshold, c.level3_threshold,
       c.is_active,
       COALESCE(ARRAY_AGG(ct.teacher_id::text) FILTER (WHERE ct.teacher_id IS NOT NULL), '{}') AS teacher_ids
FROM course c
JOIN batch b ON b.id = c.batch_id
LEFT JOIN course_teacher ct ON ct.course_id = c.id`

func (repo *attainmentRepository) GetCourse(ctx context.Context, courseID string) (attainment.Course, error) {
	if _, err := uuid.Parse(courseID); err != nil {
		return attainment.Course{}, attainment.ErrCourseNotFound
	}
	var row courseRow
	err := repo.db.GetContext(ctx, &row,
		courseQuery+` WHERE c.id = $1 AND c.is_active GROUP BY c.id, b.program_id`, courseID)
	if err != nil {
		return attainment.Course{}, trapNoRowsErr(err, attainment.ErrCourseNotFound, "finding course")
	}
	return row.course(), nil
}

// course_outcome rows carry their course's settings so callers never re-join.
type coRow struct {
	ID               string      `db:"id"`
	CourseID         string      `db:"course_id"`
	Code             string      `db:"code"`
	Description      null.String `db:"description"`
	TargetPercentage float64     `db:"target_percentage"`
	Level1Threshold  float64     `db:"level1_threshold"`
	Level2Threshold  float64     `db:"level2_threshold"`
	Level3Threshold  float64     `db:"level3_threshold"`
	IsActive         bool        `db:"is_active"`
}

func (r coRow) co() attainment.CourseOutcome {
	return attainment.CourseOutcome{
		ID:               r.ID,
		CourseID:         r.CourseID,
		Code:             r.Code,
		Description:      r.Description.String,
		TargetPercentage: r.TargetPercentage,
		Level1Threshold:  r.Level1Threshold,
		Level2Threshold:  r.Level2Threshold,
		Level3Threshold:  r.Level3Threshold,
		IsActive:         r.IsActive,
	}
}

const coQuery = `
SELECT co.id, co.course_id, co.code, co.description,
       c.target_percentage, c.level1_threshold, c.level2_threshold, c.level3_threshold,
       co.is_active
FROM course_outcome co
JOIN course c ON c.id = co.course_id`

func (repo *attainmentRepository) GetCourseOutcome(ctx context.Context, coID string) (attainment.CourseOutcome, error) {
	if _, err := uuid.Parse(coID); err != nil {
		return attainment.CourseOutcome{}, attainment.ErrCONotFound
	}
	var row coRow
	err := repo.db.GetContext(ctx, &row, coQuery+` WHERE co.id = $1 AND co.is_active`, coID)
	if err != nil {
		return attainment.CourseOutcome{}, trapNoRowsErr(err, attainment.ErrCONotFound, "finding course outcome")
	}
	return row.co(), nil
}

func (repo *attainmentRepository) QueryCourseOutcomes(ctx context.Context, courseID string) ([]attainment.CourseOutcome, error) {
	var rows []coRow
	err := repo.db.SelectContext(ctx, &rows,
		coQuery+` WHERE co.course_id = $1 AND co.is_active ORDER BY co.code`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course outcomes")
	}
	cos := make([]attainment.CourseOutcome, 0, len(rows))
	for _, row := range rows {
		cos = append(cos, row.co())
	}
	return cos, nil
}

type questionRow struct {
	ID           string      `db:"id"`
	AssessmentID string      `db:"assessment_id"`
	Number       string      `db:"number"`
	MaxMarks     float64     `db:"max_marks"`
	SectionID    null.String `db:"section_id"`
}

func (r questionRow) question() attainment.Question {
	return attainment.Question{
		ID:           r.ID,
		AssessmentID: r.AssessmentID,
		Number:       r.Number,
		MaxMarks:     r.MaxMarks,
		SectionID:    r.SectionID.String,
	}
}

func questionSlice(rows []questionRow) []attainment.Question {
	questions := make([]attainment.Question, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, row.question())
	}
	return questions
}

const questionQuery = `
SELECT q.id, q.assessment_id, q.number, q.max_marks, a.section_id::text AS section_id
FROM question q
JOIN assessment a ON a.id = q.assessment_id AND a.is_active`

func (repo *attainmentRepository) QueryCOQuestions(ctx context.Context, coID, sectionID string) ([]attainment.Question, error) {
	q := questionQuery + `
JOIN question_co_mapping m ON m.question_id = q.id AND m.is_active
WHERE m.co_id = $1`
	args := []interface{}{coID}
	if sectionID != "" {
		// course-wide questions plus the section's own
		q += ` AND (a.section_id IS NULL OR a.section_id = $2)`
		args = append(args, sectionID)
	} else {
		q += ` AND a.section_id IS NULL`
	}
	q += ` ORDER BY LENGTH(q.number), q.number`

	var rows []questionRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying CO questions")
	}
	return questionSlice(rows), nil
}

func (repo *attainmentRepository) QueryCourseQuestions(ctx context.Context, courseID string) ([]attainment.Question, error) {
	var rows []questionRow
	err := repo.db.SelectContext(ctx, &rows,
		questionQuery+` WHERE a.course_id = $1 ORDER BY LENGTH(q.number), q.number`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course questions")
	}
	return questionSlice(rows), nil
}

func (repo *attainmentRepository) QueryAssessmentQuestions(ctx context.Context, assessmentID string) ([]attainment.Question, error) {
	var rows []questionRow
	err := repo.db.SelectContext(ctx, &rows,
		questionQuery+` WHERE q.assessment_id = $1 ORDER BY LENGTH(q.number), q.number`, assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying assessment questions")
	}
	return questionSlice(rows), nil
}

type assessmentRow struct {
	ID        string      `db:"id"`
	CourseID  string      `db:"course_id"`
	Name      string      `db:"name"`
	Type      string      `db:"type"`
	MaxMarks  float64     `db:"max_marks"`
	Weightage float64     `db:"weightage"`
	SectionID null.String `db:"section_id"`
	IsActive  bool        `db:"is_active"`
}

func (repo *attainmentRepository) GetAssessment(ctx context.Context, assessmentID string) (attainment.Assessment, error) {
	if _, err := uuid.Parse(assessmentID); err != nil {
		return attainment.Assessment{}, attainment.ErrAssessmentNotFound
	}
	var row assessmentRow
	err := repo.db.GetContext(ctx, &row, `
SELECT id, course_id, name, type, max_marks, weightage, section_id::text AS section_id, is_active
FROM assessment WHERE id = $1 AND is_active`, assessmentID)
	if err != nil {
		return attainment.Assessment{}, trapNoRowsErr(err, attainment.ErrAssessmentNotFound, "finding assessment")
	}
	return attainment.Assessment{
		ID:        row.ID,
		CourseID:  row.CourseID,
		Name:      row.Name,
		Type:      row.Type,
		MaxMarks:  row.MaxMarks,
		Weightage: row.Weightage,
		SectionID: row.SectionID.String,
		IsActive:  row.IsActive,
	}, nil
}

type markRow struct {
	ID            string  `db:"id"`
	QuestionID    string  `db:"question_id"`
	StudentID     string  `db:"student_id"`
	ObtainedMarks float64 `db:"obtained_marks"`
	MaxMarks      float64 `db:"max_marks"`
	AcademicYear  string  `db:"academic_year"`
}

func (repo *attainmentRepository) QueryMarks(ctx context.Context, filter attainment.MarkFilter) ([]attainment.StudentMark, error) {
	if len(filter.QuestionIDs) == 0 {
		return nil, nil
	}

	q := `SELECT id, question_id, student_id, obtained_marks, max_marks, academic_year
FROM student_mark WHERE question_id IN (?)`
	args := []interface{}{filter.QuestionIDs}
	if filter.StudentID != "" {
		q += ` AND student_id = ?`
		args = append(args, filter.StudentID)
	}
	if filter.AcademicYear != "" {
		q += ` AND academic_year = ?`
		args = append(args, filter.AcademicYear)
	}

	q, inArgs, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "binding marks query")
	}
	var rows []markRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), inArgs...); err != nil {
		return nil, errors.Wrap(err, "querying marks")
	}

	marks := make([]attainment.StudentMark, 0, len(rows))
	for _, row := range rows {
		marks = append(marks, attainment.StudentMark(row))
	}
	return marks, nil
}

func (repo *attainmentRepository) UpsertMarks(ctx context.Context, marks []attainment.StudentMark) (int, error) {
	if len(marks) == 0 {
		return 0, nil
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareNamedContext(ctx, `
INSERT INTO student_mark (id, question_id, student_id, obtained_marks, max_marks, academic_year)
VALUES (:id, :question_id, :student_id, :obtained_marks, :max_marks, :academic_year)
ON CONFLICT (question_id, student_id, academic_year)
DO UPDATE SET obtained_marks = EXCLUDED.obtained_marks, max_marks = EXCLUDED.max_marks`)
	if err != nil {
		return 0, errors.Wrap(err, "preparing marks upsert")
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range marks {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if _, err = stmt.ExecContext(ctx, markRow(m)); err != nil {
			return 0, errors.Wrap(err, "upserting mark")
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "committing marks upsert")
	}
	return len(marks), nil
}

type studentRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	RollNo    null.String `db:"roll_no"`
	SectionID null.String `db:"section_id"`
}

func (r studentRow) student() attainment.Student {
	return attainment.Student{
		ID:        r.ID,
		Name:      r.Name,
		RollNo:    r.RollNo.String,
		SectionID: r.SectionID.String,
	}
}

func (repo *attainmentRepository) GetStudent(ctx context.Context, studentID string) (attainment.Student, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return attainment.Student{}, attainment.ErrStudentNotFound
	}
	var row studentRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT id, name, roll_no, section_id::text AS section_id FROM student WHERE id = $1`, studentID)
	if err != nil {
		return attainment.Student{}, trapNoRowsErr(err, attainment.ErrStudentNotFound, "finding student")
	}
	return row.student(), nil
}

func (repo *attainmentRepository) QueryEnrolledStudents(ctx context.Context, courseID, sectionID string) ([]attainment.Student, error) {
	q := `
SELECT s.id, s.name, s.roll_no, s.section_id::text AS section_id
FROM student s
JOIN enrollment e ON e.student_id = s.id AND e.is_active
WHERE e.course_id = $1`
	args := []interface{}{courseID}
	if sectionID != "" {
		q += ` AND s.section_id = $2`
		args = append(args, sectionID)
	}
	q += ` ORDER BY s.roll_no`

	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying enrolled students")
	}
	students := make([]attainment.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, nil
}

type snapshotRow struct {
	ID           string      `db:"id"`
	COID         string      `db:"co_id"`
	StudentID    string      `db:"student_id"`
	Percentage   float64     `db:"percentage"`
	MetTarget    bool        `db:"met_target"`
	AcademicYear string      `db:"academic_year"`
	CalculatedAt null.Time   `db:"calculated_at"`
}

func (repo *attainmentRepository) SaveCOSnapshots(ctx context.Context, courseID, academicYear string, snaps []attainment.COSnapshot) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// overwrite semantics: the course/year scope is replaced wholesale
	_, err = tx.ExecContext(ctx, `
DELETE FROM co_attainment
WHERE academic_year = $2
  AND co_id IN (SELECT id FROM course_outcome WHERE course_id = $1)`, courseID, academicYear)
	if err != nil {
		return errors.Wrap(err, "clearing CO attainment snapshots")
	}

	if len(snaps) > 0 {
		stmt, err := tx.PrepareNamedContext(ctx, `
INSERT INTO co_attainment (id, co_id, student_id, percentage, met_target, academic_year, calculated_at)
VALUES (:id, :co_id, :student_id, :percentage, :met_target, :academic_year, :calculated_at)`)
		if err != nil {
			return errors.Wrap(err, "preparing snapshot insert")
		}
		defer func() { _ = stmt.Close() }()

		for _, snap := range snaps {
			if snap.ID == "" {
				snap.ID = uuid.New().String()
			}
			row := snapshotRow{
				ID:           snap.ID,
				COID:         snap.COID,
				StudentID:    snap.StudentID,
				Percentage:   snap.Percentage,
				MetTarget:    snap.MetTarget,
				AcademicYear: snap.AcademicYear,
				CalculatedAt: null.TimeFrom(snap.CalculatedAt.UTC()),
			}
			if _, err = stmt.ExecContext(ctx, row); err != nil {
				return errors.Wrap(err, "inserting CO attainment snapshot")
			}
		}
	}
	return errors.Wrap(tx.Commit(), "committing CO attainment snapshots")
}

func (repo *attainmentRepository) QueryCOSnapshots(ctx context.Context, coID, academicYear string) ([]attainment.COSnapshot, error) {
	q := `
SELECT id, co_id, student_id, percentage, met_target, academic_year, calculated_at
FROM co_attainment WHERE co_id = $1`
	args := []interface{}{coID}
	if academicYear != "" {
		q += ` AND academic_year = $2`
		args = append(args, academicYear)
	}
	q += ` ORDER BY student_id`

	var rows []snapshotRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying CO attainment snapshots")
	}
	snaps := make([]attainment.COSnapshot, 0, len(rows))
	for _, row := range rows {
		snaps = append(snaps, attainment.COSnapshot{
			ID:           row.ID,
			COID:         row.COID,
			StudentID:    row.StudentID,
			Percentage:   row.Percentage,
			MetTarget:    row.MetTarget,
			AcademicYear: row.AcademicYear,
			CalculatedAt: row.CalculatedAt.Time,
		})
	}
	return snaps, nil
}

// PO repository

type poRepository struct {
	db *sqlx.DB
}

var _ attainment.PORepository = (*poRepository)(nil) // interface compliance check

func NewPORepository(db *sqlx.DB) *poRepository {
	return &poRepository{db: db}
}

func (repo *poRepository) GetProgram(ctx context.Context, programID string) (string, error) {
	if _, err := uuid.Parse(programID); err != nil {
		return "", attainment.ErrProgramNotFound
	}
	var id string
	err := repo.db.GetContext(ctx, &id, `SELECT id FROM program WHERE id = $1`, programID)
	if err != nil {
		return "", trapNoRowsErr(err, attainment.ErrProgramNotFound, "finding program")
	}
	return id, nil
}

func (repo *poRepository) GetBatch(ctx context.Context, batchID string) (string, error) {
	if _, err := uuid.Parse(batchID); err != nil {
		return "", attainment.ErrBatchNotFound
	}
	var id string
	err := repo.db.GetContext(ctx, &id, `SELECT id FROM batch WHERE id = $1`, batchID)
	if err != nil {
		return "", trapNoRowsErr(err, attainment.ErrBatchNotFound, "finding batch")
	}
	return id, nil
}

type poRow struct {
	ID          string      `db:"id"`
	ProgramID   string      `db:"program_id"`
	Code        string      `db:"code"`
	Description null.String `db:"description"`
	TargetLevel float64     `db:"target_level"`
	IsActive    bool        `db:"is_active"`
}

func (repo *poRepository) QueryProgramOutcomes(ctx context.Context, programID string) ([]attainment.ProgramOutcome, error) {
	var rows []poRow
	err := repo.db.SelectContext(ctx, &rows, `
SELECT id, program_id, code, description, target_level, is_active
FROM program_outcome WHERE program_id = $1 AND is_active ORDER BY LENGTH(code), code`, programID)
	if err != nil {
		return nil, errors.Wrap(err, "querying program outcomes")
	}
	pos := make([]attainment.ProgramOutcome, 0, len(rows))
	for _, row := range rows {
		pos = append(pos, attainment.ProgramOutcome{
			ID:          row.ID,
			ProgramID:   row.ProgramID,
			Code:        row.Code,
			Description: row.Description.String,
			TargetLevel: row.TargetLevel,
			IsActive:    row.IsActive,
		})
	}
	return pos, nil
}

func (repo *poRepository) QueryBatchCourses(ctx context.Context, batchID string) ([]attainment.Course, error) {
	var rows []courseRow
	err := repo.db.SelectContext(ctx, &rows,
		courseQuery+` WHERE c.batch_id = $1 AND c.is_active GROUP BY c.id, b.program_id ORDER BY c.code`, batchID)
	if err != nil {
		return nil, errors.Wrap(err, "querying batch courses")
	}
	courses := make([]attainment.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.course())
	}
	return courses, nil
}

func (repo *poRepository) QueryCourseOutcomes(ctx context.Context, courseID string) ([]attainment.CourseOutcome, error) {
	return (&attainmentRepository{db: repo.db}).QueryCourseOutcomes(ctx, courseID)
}

func (repo *poRepository) QueryCOPOMappings(ctx context.Context, programID string) ([]attainment.COPOMapping, error) {
	var rows []struct {
		COID     string `db:"co_id"`
		POID     string `db:"po_id"`
		Level    int    `db:"level"`
		IsActive bool   `db:"is_active"`
	}
	err := repo.db.SelectContext(ctx, &rows, `
SELECT m.co_id, m.po_id, m.level, m.is_active
FROM co_po_mapping m
JOIN program_outcome po ON po.id = m.po_id
WHERE po.program_id = $1 AND m.is_active`, programID)
	if err != nil {
		return nil, errors.Wrap(err, "querying CO-PO mappings")
	}
	mappings := make([]attainment.COPOMapping, 0, len(rows))
	for _, row := range rows {
		mappings = append(mappings, attainment.COPOMapping(row))
	}
	return mappings, nil
}

type indirectRow struct {
	ProgramID           string    `db:"program_id"`
	BatchID             string    `db:"batch_id"`
	DirectWeight        float64   `db:"direct_weight"`
	IndirectWeight      float64   `db:"indirect_weight"`
	IndirectAttainments []byte    `db:"indirect_attainments"`
	UpdatedAt           null.Time `db:"updated_at"`
}

func (repo *poRepository) GetIndirectConfig(ctx context.Context, programID, batchID string) (attainment.IndirectConfig, error) {
	var row indirectRow
	err := repo.db.GetContext(ctx, &row, `
SELECT program_id, batch_id, direct_weight, indirect_weight, indirect_attainments, updated_at
FROM indirect_config WHERE program_id = $1 AND batch_id = $2`, programID, batchID)
	if err != nil {
		return attainment.IndirectConfig{}, trapNoRowsErr(err, attainment.ErrNoIndirectConfig, "finding indirect config")
	}

	cfg := attainment.IndirectConfig{
		ProgramID: row.ProgramID,
		BatchID:   row.BatchID,
		Weights: attainment.Weights{
			DirectWeight:   row.DirectWeight,
			IndirectWeight: row.IndirectWeight,
		},
		UpdatedAt: row.UpdatedAt.Time,
	}
	if err = json.Unmarshal(row.IndirectAttainments, &cfg.IndirectAttainments); err != nil {
		return attainment.IndirectConfig{}, errors.Wrap(err, "decoding indirect attainments")
	}
	return cfg, nil
}

func (repo *poRepository) SaveIndirectConfig(ctx context.Context, cfg attainment.IndirectConfig) error {
	indirect, err := json.Marshal(cfg.IndirectAttainments)
	if err != nil {
		return errors.Wrap(err, "encoding indirect attainments")
	}
	_, err = repo.db.ExecContext(ctx, `
INSERT INTO indirect_config (program_id, batch_id, direct_weight, indirect_weight, indirect_attainments, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (program_id, batch_id)
DO UPDATE SET direct_weight = EXCLUDED.direct_weight, indirect_weight = EXCLUDED.indirect_weight,
              indirect_attainments = EXCLUDED.indirect_attainments, updated_at = EXCLUDED.updated_at`,
		cfg.ProgramID, cfg.BatchID, cfg.Weights.DirectWeight, cfg.Weights.IndirectWeight,
		indirect, cfg.UpdatedAt.UTC())
	return errors.Wrap(err, "saving indirect config")
}

package attainment

import "time"

// Course settings drive both the per-student pass bar (TargetPercentage) and
// the class-level attainment level cut points (Level1 < Level2 < Level3).
type Course struct {
	ID               string   `json:"id"`
	Code             string   `json:"code"`
	Name             string   `json:"name"`
	BatchID          string   `json:"batch_id"`
	ProgramID        string   `json:"program_id"`
	Status           string   `json:"status"` // ACTIVE, COMPLETED, FUTURE
	TargetPercentage float64  `json:"target_percentage"`
	Level1Threshold  float64  `json:"level1_threshold"`
	Level2Threshold  float64  `json:"level2_threshold"`
	Level3Threshold  float64  `json:"level3_threshold"`
	TeacherIDs       []string `json:"-"`
	IsActive         bool     `json:"is_active"`
}

// CourseOutcome carries its course's settings so a single row is enough to
// compute and classify; repositories populate them from the owning course.
type CourseOutcome struct {
	ID               string  `json:"id"`
	CourseID         string  `json:"course_id"`
	Code             string  `json:"code"`
	Description      string  `json:"description"`
	TargetPercentage float64 `json:"target_percentage"`
	Level1Threshold  float64 `json:"level1_threshold"`
	Level2Threshold  float64 `json:"level2_threshold"`
	Level3Threshold  float64 `json:"level3_threshold"`
	IsActive         bool    `json:"is_active"`
}

// Question is scoped to its assessment's section: an empty SectionID means the
// assessment is course-wide.
type Question struct {
	ID           string  `json:"id"`
	AssessmentID string  `json:"assessment_id"`
	Number       string  `json:"number"`
	MaxMarks     float64 `json:"max_marks"`
	SectionID    string  `json:"section_id,omitempty"`
}

type Assessment struct {
	ID        string  `json:"id"`
	CourseID  string  `json:"course_id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"` // exam, quiz, assignment, project
	MaxMarks  float64 `json:"max_marks"`
	Weightage float64 `json:"weightage"`
	SectionID string  `json:"section_id,omitempty"`
	IsActive  bool    `json:"is_active"`
}

// QuestionCOMapping ties a question to a CO; every mapped CO receives the
// question's full marks and full max (no cross-mapping contribution weight).
type QuestionCOMapping struct {
	QuestionID string `json:"question_id"`
	COID       string `json:"co_id"`
	IsActive   bool   `json:"is_active"`
}

// Enrollment defines which students count toward a course's CO attainment;
// inactive enrollments are excluded.
type Enrollment struct {
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
	IsActive  bool   `json:"is_active"`
}

type Program struct {
	ID        string `json:"id"`
	CollegeID string `json:"college_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
}

type Batch struct {
	ID        string `json:"id"`
	ProgramID string `json:"program_id"`
	Name      string `json:"name"`
	StartYear int    `json:"start_year"`
	EndYear   int    `json:"end_year"`
}

// StudentMark is a fact record; one row per (question, student, academic year).
type StudentMark struct {
	ID            string  `json:"id"`
	QuestionID    string  `json:"question_id"`
	StudentID     string  `json:"student_id"`
	ObtainedMarks float64 `json:"obtained_marks"`
	MaxMarks      float64 `json:"max_marks"`
	AcademicYear  string  `json:"academic_year"`
}

type Student struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RollNo    string `json:"roll_no,omitempty"`
	SectionID string `json:"section_id,omitempty"`
}

type ProgramOutcome struct {
	ID          string  `json:"id"`
	ProgramID   string  `json:"program_id"`
	Code        string  `json:"code"`
	Description string  `json:"description"`
	TargetLevel float64 `json:"target_level"` // 0 means "use the configured default"
	IsActive    bool    `json:"is_active"`
}

// COPOMapping weight (Level, typically 1-3) is the rollup weight of a CO's
// contribution to a PO.
type COPOMapping struct {
	COID     string `json:"co_id"`
	POID     string `json:"po_id"`
	Level    int    `json:"level"`
	IsActive bool   `json:"is_active"`
}

// COSnapshot is a materialized per-student CO attainment, recomputable at any
// time; overwritten per (co, student, academic year) on save.
type COSnapshot struct {
	ID           string    `json:"id"`
	COID         string    `json:"co_id"`
	StudentID    string    `json:"student_id"`
	Percentage   float64   `json:"percentage"`
	MetTarget    bool      `json:"met_target"`
	AcademicYear string    `json:"academic_year"`
	CalculatedAt time.Time `json:"calculated_at"` // UTC
}

// Results

// StudentCOResult is one student's performance against one CO.
// TotalQuestions == 0 is the "no data" sentinel: the CO has no mapped
// questions for this scope and the student must not count toward class
// denominators.
type StudentCOResult struct {
	StudentID          string  `json:"student_id"`
	StudentName        string  `json:"student_name"`
	COID               string  `json:"co_id"`
	COCode             string  `json:"co_code"`
	Percentage         float64 `json:"percentage"`
	MetTarget          bool    `json:"met_target"`
	TotalObtainedMarks float64 `json:"total_obtained_marks"`
	TotalMaxMarks      float64 `json:"total_max_marks"`
	AttemptedQuestions int     `json:"attempted_questions"`
	TotalQuestions     int     `json:"total_questions"`
}

type Thresholds struct {
	Level1 float64 `json:"level1"`
	Level2 float64 `json:"level2"`
	Level3 float64 `json:"level3"`
}

// COResult is the class-level rollup for one CO.
type COResult struct {
	COID                    string     `json:"co_id"`
	COCode                  string     `json:"co_code"`
	CODescription           string     `json:"co_description"`
	TargetPercentage        float64    `json:"target_percentage"`
	PercentageMeetingTarget float64    `json:"percentage_meeting_target"`
	StudentsMeetingTarget   int        `json:"students_meeting_target"`
	TotalStudents           int        `json:"total_students"`
	AttainmentLevel         int        `json:"attainment_level"`
	Thresholds              Thresholds `json:"thresholds"`
}

type CourseSettings struct {
	COTarget        float64 `json:"co_target"`
	Level1Threshold float64 `json:"level1_threshold"`
	Level2Threshold float64 `json:"level2_threshold"`
	Level3Threshold float64 `json:"level3_threshold"`
}

type LevelDistribution struct {
	Level0 int `json:"level0"`
	Level1 int `json:"level1"`
	Level2 int `json:"level2"`
	Level3 int `json:"level3"`
}

type CourseSummary struct {
	TotalCOs          int               `json:"total_cos"`
	TotalStudents     int               `json:"total_students"`
	AverageAttainment float64           `json:"average_attainment"`
	LevelDistribution LevelDistribution `json:"level_distribution"`
}

// CourseResult is the whole-course attainment payload.
type CourseResult struct {
	CourseID           string            `json:"course_id"`
	CourseCode         string            `json:"course_code"`
	CourseName         string            `json:"course_name"`
	AcademicYear       string            `json:"academic_year,omitempty"`
	SectionID          string            `json:"section_id,omitempty"`
	CalculatedAt       time.Time         `json:"calculated_at"`
	Settings           CourseSettings    `json:"settings"`
	Summary            CourseSummary     `json:"summary"`
	COAttainments      []COResult        `json:"co_attainments"`
	StudentAttainments []StudentCOResult `json:"student_attainments"`
}

// PO rollup results

type Weights struct {
	DirectWeight   float64 `json:"direct_weight"`
	IndirectWeight float64 `json:"indirect_weight"`
}

type COContribution struct {
	COCode       string  `json:"co_code"`
	COAttainment float64 `json:"co_attainment"` // 0-3 scale
	MappingLevel int     `json:"mapping_level"`
	Contribution float64 `json:"contribution"`
}

type CourseContribution struct {
	CourseID          string           `json:"course_id"`
	CourseCode        string           `json:"course_code"`
	CourseName        string           `json:"course_name"`
	COContributions   []COContribution `json:"co_contributions"`
	TotalContribution float64          `json:"total_contribution"`
}

// POResult carries full traceability of every contributing course and CO.
// TotalMappingWeight == 0 marks "no denominator" as opposed to a computed zero.
type POResult struct {
	POID               string               `json:"po_id"`
	POCode             string               `json:"po_code"`
	DirectAttainment   float64              `json:"direct_attainment"`
	IndirectAttainment float64              `json:"indirect_attainment"`
	FinalAttainment    float64              `json:"final_attainment"`
	TargetLevel        float64              `json:"target_level"`
	TotalMappingWeight int                  `json:"total_mapping_weight"`
	Courses            []CourseContribution `json:"courses"`
}

type ProgramSummary struct {
	TotalPOs                int     `json:"total_pos"`
	AverageDirectAttainment float64 `json:"average_direct_attainment"`
	AverageFinalAttainment  float64 `json:"average_final_attainment"`
	TargetMetCount          int     `json:"target_met_count"`
}

type ProgramResult struct {
	ProgramID     string         `json:"program_id"`
	BatchID       string         `json:"batch_id"`
	Weights       Weights        `json:"weights"`
	POAttainments []POResult     `json:"po_attainments"`
	Summary       ProgramSummary `json:"summary"`
	CalculatedAt  time.Time      `json:"calculated_at"`
}

// IndirectConfig stores survey-sourced indirect attainment per PO and the
// weight split for a program/batch.
type IndirectConfig struct {
	ProgramID           string             `json:"program_id"`
	BatchID             string             `json:"batch_id"`
	Weights             Weights            `json:"weights"`
	IndirectAttainments map[string]float64 `json:"indirect_attainments"` // po code -> 0-3 value
	UpdatedAt           time.Time          `json:"updated_at"`
}

package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/trezcool/ufaulu/apps/api/echo"
	"github.com/trezcool/ufaulu/core"
	"github.com/trezcool/ufaulu/core/attainment"
	"github.com/trezcool/ufaulu/core/user"
	emailsvc "github.com/trezcool/ufaulu/services/email"
	inmemdb "github.com/trezcool/ufaulu/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// testEnv wires a full API server over the in-memory database with a seeded
// course (two COs, four questions, two graded students) and one user per role.
type testEnv struct {
	server Server
	db     *inmemdb.DB
	conf   *core.Config

	attRepo attainment.Repository

	course attainment.Course
	co1    attainment.CourseOutcome
	co2    attainment.CourseOutcome
	exam   attainment.Assessment
	q      []attainment.Question
	year   string

	program attainment.Program
	batch   attainment.Batch
	po1     attainment.ProgramOutcome

	admin        user.User
	teacher      user.User // assigned to course
	otherTeacher user.User
	coordinator  user.User // scoped to program
	student      user.User // alice; user ID doubles as her student record ID
	bob          attainment.Student
}

func testConfig() *core.Config {
	return &core.Config{
		AppName:   "Ufaulu",
		Env:       "TEST",
		TestMode:  true,
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Attainment: core.AttainmentConfig{
			DirectWeight:    0.8,
			IndirectWeight:  0.2,
			DefaultIndirect: 2.0,
			DefaultPOTarget: 2.0,
		},
	}
}

type testLogger struct {
	t *testing.T
}

func (l testLogger) Enable(bool)                           {}
func (l testLogger) Debug(msg string, args ...interface{}) { l.t.Log(msg, args) }
func (l testLogger) Info(msg string, args ...interface{})  { l.t.Log(msg, args) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.t.Log(msg, args) }
func (l testLogger) Error(msg string, args ...interface{}) { l.t.Log(msg, args) }
func (l testLogger) Fatal(msg string, args ...interface{}) { l.t.Fatal(msg, args) }

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := testConfig()
	db := inmemdb.NewDB()
	env := &testEnv{db: db, conf: conf, year: "2024-2025"}

	validate := validator.New()
	enLoc := en.New()
	translator, _ := ut.New(enLoc, enLoc).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	usrRepo := inmemdb.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)

	attRepo := inmemdb.NewAttainmentRepository(db)
	poRepo := inmemdb.NewPORepository(db)
	logger := testLogger{t}
	attSvc := attainment.NewService(attRepo, logger, conf)
	poSvc := attainment.NewPOService(poRepo, attainment.NewSnapshotSource(attRepo, attSvc), logger, conf)
	env.attRepo = attRepo

	env.seedUsers(t, usrRepo)
	env.seedCourse(t)

	env.server = NewServer(ServerDeps{
		Conf:          conf,
		Logger:        logger,
		UserSvc:       usrSvc,
		AttainmentSvc: attSvc,
		POSvc:         poSvc,
		Policy:        attainment.DefaultRecomputePolicy{},
		Validate:      validate,
		Translator:    translator,
	})
	return env
}

func (env *testEnv) seedUsers(t *testing.T, repo user.Repository) {
	t.Helper()

	env.program = env.db.AddProgram(attainment.Program{Code: "CSE", Name: "Computer Science and Engineering"})

	env.admin = env.createUser(t, repo, user.User{
		Name: "Admin", Username: "admin", Email: "admin@test.cd", Roles: []string{user.RoleAdmin},
	})
	env.teacher = env.createUser(t, repo, user.User{
		Name: "Teacher", Username: "teach1", Email: "teacher@test.cd", Roles: []string{user.RoleTeacher},
	})
	env.otherTeacher = env.createUser(t, repo, user.User{
		Name: "Other Teacher", Username: "teach2", Email: "other@test.cd", Roles: []string{user.RoleTeacher},
	})
	env.coordinator = env.createUser(t, repo, user.User{
		Name: "Coordinator", Username: "coord1", Email: "coord@test.cd",
		Roles: []string{user.RoleCoordinator}, ProgramID: env.program.ID,
	})
	env.student = env.createUser(t, repo, user.User{
		Name: "Alice Mwangi", Username: "alice1", Email: "alice@test.cd", Roles: []string{user.RoleStudent},
	})
}

func (env *testEnv) createUser(t *testing.T, repo user.Repository, usr user.User) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr.CreatedAt = now
	usr.UpdatedAt = now
	usr.SetActive(true)
	if err := usr.SetPassword("Pa$$word1"); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (env *testEnv) seedCourse(t *testing.T) {
	t.Helper()
	db := env.db

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
		TeacherIDs:       []string{env.teacher.ID},
		IsActive:         true,
	})
	env.co1 = db.AddCourseOutcome(attainment.CourseOutcome{CourseID: env.course.ID, Code: "CO1", IsActive: true})
	env.co2 = db.AddCourseOutcome(attainment.CourseOutcome{CourseID: env.course.ID, Code: "CO2", IsActive: true})
	env.po1 = db.AddProgramOutcome(attainment.ProgramOutcome{ProgramID: env.program.ID, Code: "PO1", IsActive: true})
	db.MapCOPO(env.co1.ID, env.po1.ID, 3)

	env.exam = db.AddAssessment(attainment.Assessment{
		CourseID: env.course.ID, Name: "Midterm", Type: "exam", MaxMarks: 40, IsActive: true,
	})
	coByQuestion := []string{env.co1.ID, env.co1.ID, env.co2.ID, env.co2.ID}
	for i, number := range []string{"Q1", "Q2", "Q3", "Q4"} {
		q := db.AddQuestion(attainment.Question{AssessmentID: env.exam.ID, Number: number, MaxMarks: 10})
		db.MapQuestionCO(q.ID, coByQuestion[i])
		env.q = append(env.q, q)
	}

	// the student user doubles as alice's student record
	db.AddStudent(attainment.Student{ID: env.student.ID, Name: env.student.Name, RollNo: "22CS001"})
	env.bob = db.AddStudent(attainment.Student{Name: "Bob Otieno", RollNo: "22CS002"})
	db.Enroll(env.student.ID, env.course.ID)
	db.Enroll(env.bob.ID, env.course.ID)

	marks := map[string][]float64{
		env.student.ID: {9, 8, 7, 9},
		env.bob.ID:     {2, 3, 8, 7},
	}
	rows := make([]attainment.StudentMark, 0, 8)
	for studentID, vals := range marks {
		for i, val := range vals {
			rows = append(rows, attainment.StudentMark{
				QuestionID:    env.q[i].ID,
				StudentID:     studentID,
				ObtainedMarks: val,
				MaxMarks:      env.q[i].MaxMarks,
				AcademicYear:  env.year,
			})
		}
	}
	if _, err := env.attRepo.UpsertMarks(context.Background(), rows); err != nil {
		t.Fatalf("UpsertMarks() failed: %v", err)
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (env *testEnv) getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr, env.conf)
	token, err := GenerateToken(claims, env.conf)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ufaulu/core"
	"github.com/trezcool/ufaulu/core/attainment"
	"github.com/trezcool/ufaulu/core/user"
)

type attainmentApi struct {
	svc      *attainment.Service
	userSvc  *user.Service
	policy   attainment.RecomputePolicy
	validate *validator.Validate
}

func registerAttainmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := attainmentApi{
		svc:      deps.AttainmentSvc,
		userSvc:  deps.UserSvc,
		policy:   deps.Policy,
		validate: deps.Validate,
	}

	cg := g.Group("/courses/:id", jwt)
	cg.GET("/attainments", api.attainments)
	cg.POST("/attainments/calculate", api.calculate)
	cg.POST("/marks", api.uploadMarks)
	cg.GET("/marks/template", api.marksTemplate)
}

// Handlers

// attainments dispatches on query params:
//   - co_id + student_id: one student's attainment of one CO
//   - co_id: the class rollup of one CO
//   - neither: the whole-course report
//
// section_id and academic_year narrow the scope in all three cases.
func (api *attainmentApi) attainments(ctx echo.Context) error {
	var query AttainmentQuery
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to AttainmentQuery")
	}
	if err := query.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	// students only see their own results
	if claims.IsStudent && !(claims.IsAdmin || claims.IsCoordinator || claims.IsTeacher) {
		if query.StudentID == "" || query.StudentID != claims.Subject {
			return errHttpForbidden
		}
	}

	courseID := ctx.Param("id")
	opts := attainment.Options{
		AcademicYear: query.AcademicYear,
		SectionID:    query.SectionID,
	}
	reqCtx := ctx.Request().Context()

	switch {
	case query.COID != "" && query.StudentID != "":
		res, err := api.svc.StudentCOAttainment(reqCtx, courseID, query.COID, query.StudentID, opts)
		if err != nil {
			return errors.Wrap(err, "computing student CO attainment")
		}
		return ctx.JSON(http.StatusOK, res)

	case query.COID != "":
		res, students, err := api.svc.ClassCOAttainment(reqCtx, courseID, query.COID, opts)
		if err != nil {
			return errors.Wrap(err, "computing class CO attainment")
		}
		return ctx.JSON(http.StatusOK, ClassCOResponse{CO: res, Students: students})

	default:
		res, err := api.svc.CourseAttainment(reqCtx, courseID, opts)
		if err != nil {
			return errors.Wrap(err, "computing course attainment")
		}
		return ctx.JSON(http.StatusOK, res)
	}
}

func (api *attainmentApi) calculate(ctx echo.Context) error {
	var data CalculateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CalculateRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	courseID := ctx.Param("id")
	reqCtx := ctx.Request().Context()
	if err := api.checkCoursePolicy(ctx, courseID); err != nil {
		return err
	}

	res, err := api.svc.Calculate(reqCtx, courseID, attainment.Options{
		AcademicYear: data.AcademicYear,
		SectionID:    data.SectionID,
	}, data.Force)
	if err != nil {
		return errors.Wrap(err, "calculating course attainment")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attainmentApi) uploadMarks(ctx echo.Context) error {
	var data attainment.BulkMarks
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkMarks")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	courseID := ctx.Param("id")
	reqCtx := ctx.Request().Context()
	if err := api.checkCoursePolicy(ctx, courseID); err != nil {
		return err
	}

	n, err := api.svc.BulkUpsertMarks(reqCtx, courseID, data.AcademicYear, data.Rows)
	if err != nil {
		return errors.Wrap(err, "upserting marks")
	}
	return ctx.JSON(http.StatusOK, MarksUploadResponse{Saved: n})
}

func (api *attainmentApi) marksTemplate(ctx echo.Context) error {
	assessmentID := ctx.QueryParam("assessment_id")
	if assessmentID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "assessment_id", Error: "this field is required"})
	}

	tmpl, err := api.svc.MarksTemplate(ctx.Request().Context(), ctx.Param("id"), assessmentID)
	if err != nil {
		return errors.Wrap(err, "building marks template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

// checkCoursePolicy gates course data mutations: admins always, coordinators
// of the course's program, teachers assigned to the course.
func (api *attainmentApi) checkCoursePolicy(ctx echo.Context, courseID string) error {
	course, err := api.svc.Course(ctx.Request().Context(), courseID)
	if err != nil {
		return errors.Wrap(err, "finding course")
	}
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !api.policy.CanTriggerRecompute(ctxUsr, course) {
		return errHttpForbidden
	}
	return nil
}

type (
	AttainmentQuery struct {
		COID         string `query:"co_id"`
		StudentID    string `query:"student_id"`
		SectionID    string `query:"section_id"`
		AcademicYear string `query:"academic_year" json:"academic_year" validate:"omitempty,academicyear"`
	}

	CalculateRequest struct {
		AcademicYear string `json:"academic_year" validate:"omitempty,academicyear"`
		SectionID    string `json:"section_id"`
		Force        bool   `json:"force"` // snapshots persist only on an explicit force
	}

	ClassCOResponse struct {
		CO       attainment.COResult          `json:"co"`
		Students []attainment.StudentCOResult `json:"students"`
	}

	MarksUploadResponse struct {
		Saved int `json:"saved"`
	}
)

func (q *AttainmentQuery) Validate(validate *validator.Validate) error {
	return validate.Struct(q)
}

func (cr *CalculateRequest) Validate(validate *validator.Validate) error {
	cr.AcademicYear = core.CleanString(cr.AcademicYear)
	return validate.Struct(cr)
}

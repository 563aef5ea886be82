package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ufaulu/core"
	"github.com/trezcool/ufaulu/core/attainment"
)

type poAttainmentApi struct {
	svc      *attainment.POService
	validate *validator.Validate
}

func registerPOAttainmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := poAttainmentApi{
		svc:      deps.POSvc,
		validate: deps.Validate,
	}

	pg := g.Group("/programs/:id/po-attainment", jwt)
	pg.GET("", api.attainment, adminOrCoordinatorMiddleware())
	pg.POST("", api.saveIndirect, adminOrCoordinatorMiddleware())
}

// Handlers

func (api *poAttainmentApi) attainment(ctx echo.Context) error {
	var query POAttainmentQuery
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to POAttainmentQuery")
	}
	if err := query.Validate(api.validate); err != nil {
		return err
	}

	programID := ctx.Param("id")
	if err := api.checkProgramScope(ctx, programID); err != nil {
		return err
	}

	opts := attainment.POOptions{AcademicYear: query.AcademicYear}
	// both weights must be supplied to override the stored split
	if query.DirectWeight != nil && query.IndirectWeight != nil {
		opts.Weights = &attainment.Weights{
			DirectWeight:   *query.DirectWeight,
			IndirectWeight: *query.IndirectWeight,
		}
	} else if query.DirectWeight != nil || query.IndirectWeight != nil {
		return core.NewValidationError(nil,
			core.FieldError{Field: "direct_weight", Error: "both weights must be provided together"},
			core.FieldError{Field: "indirect_weight", Error: "both weights must be provided together"},
		)
	}

	res, err := api.svc.ProgramAttainment(ctx.Request().Context(), programID, query.BatchID, opts)
	if err != nil {
		return errors.Wrap(err, "computing program attainment")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *poAttainmentApi) saveIndirect(ctx echo.Context) error {
	var data SaveIndirectRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveIndirectRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	programID := ctx.Param("id")
	if err := api.checkProgramScope(ctx, programID); err != nil {
		return err
	}

	cfg, err := api.svc.SaveIndirect(
		ctx.Request().Context(), programID, data.BatchID, data.IndirectAttainments,
		attainment.Weights{DirectWeight: data.DirectWeight, IndirectWeight: data.IndirectWeight},
	)
	if err != nil {
		return errors.Wrap(err, "saving indirect attainment")
	}
	return ctx.JSON(http.StatusOK, cfg)
}

// checkProgramScope restricts coordinators to their own program.
func (api *poAttainmentApi) checkProgramScope(ctx echo.Context, programID string) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if claims.IsAdmin {
		return nil
	}
	if claims.IsCoordinator && claims.ProgramID == programID {
		return nil
	}
	return errHttpForbidden
}

type (
	POAttainmentQuery struct {
		BatchID        string   `query:"batch_id" json:"batch_id" validate:"required"`
		AcademicYear   string   `query:"academic_year" json:"academic_year" validate:"omitempty,academicyear"`
		DirectWeight   *float64 `query:"direct_weight" json:"direct_weight"`
		IndirectWeight *float64 `query:"indirect_weight" json:"indirect_weight"`
	}

	SaveIndirectRequest struct {
		BatchID             string             `json:"batch_id" validate:"required"`
		DirectWeight        float64            `json:"direct_weight"`
		IndirectWeight      float64            `json:"indirect_weight"`
		IndirectAttainments map[string]float64 `json:"indirect_attainments" validate:"required"`
	}
)

func (q *POAttainmentQuery) Validate(validate *validator.Validate) error {
	return validate.Struct(q)
}

func (sr *SaveIndirectRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(sr)
}

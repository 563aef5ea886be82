package attainment

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ufaulu/core"
)

const weightSumTolerance = 1e-9

var errBadWeights = errors.New("direct and indirect weights must sum to 1.0")

// Validate rejects weight splits that do not sum to 1.0; they are never
// silently normalized.
func (w Weights) Validate() error {
	if math.Abs(w.DirectWeight+w.IndirectWeight-1.0) > weightSumTolerance {
		return core.NewValidationError(errBadWeights,
			core.FieldError{Field: "direct_weight", Error: errBadWeights.Error()},
			core.FieldError{Field: "indirect_weight", Error: errBadWeights.Error()},
		)
	}
	if w.DirectWeight < 0 || w.IndirectWeight < 0 {
		return core.NewValidationError(errBadWeights)
	}
	return nil
}

type (
	PORepository interface {
		GetProgram(ctx context.Context, programID string) (string, error) // returns the program ID, ErrProgramNotFound otherwise
		GetBatch(ctx context.Context, batchID string) (string, error)
		// QueryProgramOutcomes returns the active POs of a program ordered by code.
		QueryProgramOutcomes(ctx context.Context, programID string) ([]ProgramOutcome, error)
		// QueryBatchCourses returns the active courses of a batch with their active COs populated.
		QueryBatchCourses(ctx context.Context, batchID string) ([]Course, error)
		QueryCourseOutcomes(ctx context.Context, courseID string) ([]CourseOutcome, error)
		// QueryCOPOMappings returns all active CO->PO mappings targeting POs of a program.
		QueryCOPOMappings(ctx context.Context, programID string) ([]COPOMapping, error)
		GetIndirectConfig(ctx context.Context, programID, batchID string) (IndirectConfig, error)
		SaveIndirectConfig(ctx context.Context, cfg IndirectConfig) error
	}

	// COAttainmentSource yields a CO's class attainment percentage. The default
	// source averages persisted snapshots and falls back to a live computation
	// when none exist yet.
	COAttainmentSource interface {
		COAttainmentPercent(ctx context.Context, courseID, coID, academicYear string) (pct float64, hasData bool, err error)
	}

	// POOptions scope a program rollup; zero values fall back to stored or
	// configured defaults.
	POOptions struct {
		AcademicYear string
		Weights      *Weights
	}

	POService struct {
		repo   PORepository
		source COAttainmentSource
		logger core.Logger
		conf   *core.Config
	}
)

func NewPOService(repo PORepository, source COAttainmentSource, logger core.Logger, conf *core.Config) *POService {
	return &POService{repo: repo, source: source, logger: logger, conf: conf}
}

// ProgramAttainment computes every active PO of a program for one batch:
// a weighted average of contributing CO attainments (0-3 scale, weighted by
// mapping level) blended with survey-sourced indirect attainment.
func (svc *POService) ProgramAttainment(ctx context.Context, programID, batchID string, opts POOptions) (*ProgramResult, error) {
	if _, err := svc.repo.GetProgram(ctx, programID); err != nil {
		return nil, errors.Wrap(err, "finding program")
	}
	if _, err := svc.repo.GetBatch(ctx, batchID); err != nil {
		return nil, errors.Wrap(err, "finding batch")
	}

	pos, err := svc.repo.QueryProgramOutcomes(ctx, programID)
	if err != nil {
		return nil, errors.Wrap(err, "querying program outcomes")
	}
	if len(pos) == 0 {
		return nil, ErrNoProgramOutcomes
	}

	// stored survey config; fall back to app defaults when absent
	cfg, err := svc.repo.GetIndirectConfig(ctx, programID, batchID)
	if err != nil {
		if errors.Cause(err) != ErrNoIndirectConfig {
			return nil, errors.Wrap(err, "loading indirect attainment config")
		}
		cfg = IndirectConfig{
			ProgramID: programID,
			BatchID:   batchID,
			Weights: Weights{
				DirectWeight:   svc.conf.Attainment.DirectWeight,
				IndirectWeight: svc.conf.Attainment.IndirectWeight,
			},
		}
	}

	weights := cfg.Weights
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	courses, err := svc.repo.QueryBatchCourses(ctx, batchID)
	if err != nil {
		return nil, errors.Wrap(err, "querying batch courses")
	}
	mappings, err := svc.repo.QueryCOPOMappings(ctx, programID)
	if err != nil {
		return nil, errors.Wrap(err, "querying CO-PO mappings")
	}
	mappingsByPO := make(map[string]map[string]COPOMapping) // poID -> coID -> mapping
	for _, m := range mappings {
		byCO, ok := mappingsByPO[m.POID]
		if !ok {
			byCO = make(map[string]COPOMapping)
			mappingsByPO[m.POID] = byCO
		}
		byCO[m.COID] = m
	}

	res := &ProgramResult{
		ProgramID:    programID,
		BatchID:      batchID,
		Weights:      weights,
		CalculatedAt: time.Now().UTC(),
	}

	var directSum, finalSum float64
	for _, po := range pos {
		pres, err := svc.poResult(ctx, po, courses, mappingsByPO[po.ID], cfg, weights, opts)
		if err != nil {
			return nil, err
		}
		res.POAttainments = append(res.POAttainments, pres)

		directSum += pres.DirectAttainment
		finalSum += pres.FinalAttainment
		if pres.FinalAttainment >= pres.TargetLevel {
			res.Summary.TargetMetCount++
		}
	}
	res.Summary.TotalPOs = len(pos)
	res.Summary.AverageDirectAttainment = core.Round2(directSum / float64(len(pos)))
	res.Summary.AverageFinalAttainment = core.Round2(finalSum / float64(len(pos)))
	return res, nil
}

func (svc *POService) poResult(
	ctx context.Context,
	po ProgramOutcome,
	courses []Course,
	coMappings map[string]COPOMapping,
	cfg IndirectConfig,
	weights Weights,
	opts POOptions,
) (POResult, error) {
	res := POResult{
		POID:        po.ID,
		POCode:      po.Code,
		TargetLevel: po.TargetLevel,
	}
	if res.TargetLevel == 0 {
		res.TargetLevel = svc.conf.Attainment.DefaultPOTarget
	}

	var weightedSum float64
	for _, course := range courses {
		cos, err := svc.repo.QueryCourseOutcomes(ctx, course.ID)
		if err != nil {
			return POResult{}, errors.Wrap(err, "querying course outcomes")
		}

		contrib := CourseContribution{
			CourseID:   course.ID,
			CourseCode: course.Code,
			CourseName: course.Name,
		}
		for _, co := range cos {
			mapping, ok := coMappings[co.ID]
			if !ok {
				continue
			}

			pct, hasData, err := svc.source.COAttainmentPercent(ctx, course.ID, co.ID, opts.AcademicYear)
			if err != nil {
				return POResult{}, errors.Wrap(err, "sourcing CO attainment")
			}
			if !hasData {
				pct = 0
			}

			coAttainment := scaleToLevel(pct)
			contribution := core.Round2(coAttainment * float64(mapping.Level))
			contrib.COContributions = append(contrib.COContributions, COContribution{
				COCode:       co.Code,
				COAttainment: core.Round2(coAttainment),
				MappingLevel: mapping.Level,
				Contribution: contribution,
			})
			contrib.TotalContribution = core.Round2(contrib.TotalContribution + contribution)

			weightedSum += coAttainment * float64(mapping.Level)
			res.TotalMappingWeight += mapping.Level
		}
		if len(contrib.COContributions) > 0 {
			res.Courses = append(res.Courses, contrib)
		}
	}

	if res.TotalMappingWeight > 0 {
		res.DirectAttainment = weightedSum / float64(res.TotalMappingWeight)
	}

	indirect, ok := cfg.IndirectAttainments[po.Code]
	if !ok {
		indirect = svc.conf.Attainment.DefaultIndirect
	}
	res.IndirectAttainment = indirect
	res.FinalAttainment = res.DirectAttainment*weights.DirectWeight + indirect*weights.IndirectWeight

	res.DirectAttainment = core.Round2(res.DirectAttainment)
	res.IndirectAttainment = core.Round2(res.IndirectAttainment)
	res.FinalAttainment = core.Round2(res.FinalAttainment)
	return res, nil
}

// SaveIndirect persists survey-sourced indirect attainments and the weight
// split for subsequent reads; weights are validated, never normalized.
func (svc *POService) SaveIndirect(ctx context.Context, programID, batchID string, indirect map[string]float64, weights Weights) (IndirectConfig, error) {
	if _, err := svc.repo.GetProgram(ctx, programID); err != nil {
		return IndirectConfig{}, errors.Wrap(err, "finding program")
	}
	if _, err := svc.repo.GetBatch(ctx, batchID); err != nil {
		return IndirectConfig{}, errors.Wrap(err, "finding batch")
	}
	if err := weights.Validate(); err != nil {
		return IndirectConfig{}, err
	}
	for code, val := range indirect {
		if val < 0 || val > 3 {
			return IndirectConfig{}, core.NewValidationError(
				errors.New("indirect attainment values must be on the 0-3 scale"),
				core.FieldError{Field: code, Error: "must be between 0 and 3"},
			)
		}
	}

	cfg := IndirectConfig{
		ProgramID:           programID,
		BatchID:             batchID,
		Weights:             weights,
		IndirectAttainments: indirect,
		UpdatedAt:           time.Now().UTC(),
	}
	if err := svc.repo.SaveIndirectConfig(ctx, cfg); err != nil {
		return IndirectConfig{}, errors.Wrap(err, "saving indirect attainment config")
	}
	return cfg, nil
}

// scaleToLevel converts a class attainment percentage to the 0-3 scale.
func scaleToLevel(pct float64) float64 {
	return math.Min(3, math.Max(0, pct/100*3))
}

// snapshotSource is the default COAttainmentSource: the mean of persisted
// per-student snapshot percentages, computed live off raw marks when no
// snapshots exist yet. Both paths exclude students with no mapped-question data.
type snapshotSource struct {
	repo Repository
	svc  *Service
}

func NewSnapshotSource(repo Repository, svc *Service) COAttainmentSource {
	return &snapshotSource{repo: repo, svc: svc}
}

func (s *snapshotSource) COAttainmentPercent(ctx context.Context, courseID, coID, academicYear string) (float64, bool, error) {
	snaps, err := s.repo.QueryCOSnapshots(ctx, coID, academicYear)
	if err != nil {
		return 0, false, err
	}
	if len(snaps) > 0 {
		var sum float64
		for _, snap := range snaps {
			sum += snap.Percentage
		}
		return sum / float64(len(snaps)), true, nil
	}

	// no materialized data; compute from raw marks
	_, students, err := s.svc.ClassCOAttainment(ctx, courseID, coID, Options{AcademicYear: academicYear})
	if err != nil {
		return 0, false, err
	}
	var sum float64
	var n int
	for _, sres := range students {
		if sres.TotalQuestions == 0 {
			continue
		}
		sum += sres.Percentage
		n++
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

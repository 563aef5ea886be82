package attainment_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/ufaulu/core"
	"github.com/trezcool/ufaulu/core/attainment"
	inmemdb "github.com/trezcool/ufaulu/storage/database/inmem"
)

// poTestEnv adds program outcomes on top of testEnv:
//
//	PO1 <- CO1(L3)          PO2 <- CO1(L2), CO2(L2)          PO3 unmapped
//
// CO class means: CO1 (85+25)/2 = 55%, CO2 (80+75)/2 = 77.5%.
type poTestEnv struct {
	*testEnv
	repo attainment.PORepository
	svc  *attainment.POService

	po1, po2, po3 attainment.ProgramOutcome
}

func newPOTestEnv(t *testing.T) *poTestEnv {
	base := newTestEnv(t)
	repo := inmemdb.NewPORepository(base.db)
	env := &poTestEnv{
		testEnv: base,
		repo:    repo,
		svc: attainment.NewPOService(
			repo, attainment.NewSnapshotSource(base.repo, base.svc), testLogger{t}, base.conf,
		),
	}

	env.po1 = base.db.AddProgramOutcome(attainment.ProgramOutcome{
		ProgramID: base.program.ID, Code: "PO1", Description: "Engineering knowledge", IsActive: true,
	})
	env.po2 = base.db.AddProgramOutcome(attainment.ProgramOutcome{
		ProgramID: base.program.ID, Code: "PO2", Description: "Problem analysis", IsActive: true,
	})
	env.po3 = base.db.AddProgramOutcome(attainment.ProgramOutcome{
		ProgramID: base.program.ID, Code: "PO3", Description: "Design of solutions", IsActive: true,
	})
	base.db.MapCOPO(base.co1.ID, env.po1.ID, 3)
	base.db.MapCOPO(base.co1.ID, env.po2.ID, 2)
	base.db.MapCOPO(base.co2.ID, env.po2.ID, 2)
	return env
}

func (env *poTestEnv) poOpts() attainment.POOptions {
	return attainment.POOptions{AcademicYear: env.year}
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		weights attainment.Weights
		wantErr bool
	}{
		{"standard split", attainment.Weights{DirectWeight: 0.8, IndirectWeight: 0.2}, false},
		{"all indirect", attainment.Weights{DirectWeight: 0, IndirectWeight: 1}, false},
		{"does not sum to one", attainment.Weights{DirectWeight: 0.7, IndirectWeight: 0.4}, true},
		{"short of one", attainment.Weights{DirectWeight: 0.5, IndirectWeight: 0.3}, true},
		{"negative weight", attainment.Weights{DirectWeight: 1.5, IndirectWeight: -0.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if gotErr := err != nil; gotErr != tt.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var vErr *core.ValidationError
				if !errors.As(err, &vErr) {
					t.Errorf("Validate() error type = %T; want *core.ValidationError", err)
				}
			}
		})
	}
}

func TestPOService_ProgramAttainment(t *testing.T) {
	env := newPOTestEnv(t)
	ctx := context.Background()

	// materialize snapshots first; the rollup should read them
	if _, err := env.testEnv.svc.Calculate(ctx, env.course.ID, env.opts(), true); err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	res, err := env.svc.ProgramAttainment(ctx, env.program.ID, env.batch.ID, env.poOpts())
	if err != nil {
		t.Fatalf("ProgramAttainment() failed: %v", err)
	}
	if len(res.POAttainments) != 3 {
		t.Fatalf("len(POAttainments) = %d; want 3", len(res.POAttainments))
	}
	byCode := make(map[string]attainment.POResult)
	for _, po := range res.POAttainments {
		byCode[po.POCode] = po
	}

	// CO1 mean 55% scales to 1.65; default indirect 2.0 at 0.8/0.2
	po1 := byCode["PO1"]
	if po1.DirectAttainment != 1.65 {
		t.Errorf("PO1 DirectAttainment = %v; want 1.65", po1.DirectAttainment)
	}
	if po1.FinalAttainment != 1.72 {
		t.Errorf("PO1 FinalAttainment = %v; want 1.72", po1.FinalAttainment)
	}
	if po1.TotalMappingWeight != 3 {
		t.Errorf("PO1 TotalMappingWeight = %d; want 3", po1.TotalMappingWeight)
	}
	if po1.IndirectAttainment != 2 {
		t.Errorf("PO1 IndirectAttainment = %v; want default 2", po1.IndirectAttainment)
	}

	// (1.65*2 + 2.325*2) / 4 = 1.9875
	po2 := byCode["PO2"]
	if po2.DirectAttainment != 1.99 {
		t.Errorf("PO2 DirectAttainment = %v; want 1.99", po2.DirectAttainment)
	}
	if po2.FinalAttainment != 1.99 {
		t.Errorf("PO2 FinalAttainment = %v; want 1.99", po2.FinalAttainment)
	}
	if len(po2.Courses) != 1 || len(po2.Courses[0].COContributions) != 2 {
		t.Errorf("PO2 contributions = %+v; want 1 course with 2 COs", po2.Courses)
	}

	// unmapped PO: no denominator, final is pure indirect share
	po3 := byCode["PO3"]
	if po3.TotalMappingWeight != 0 {
		t.Errorf("PO3 TotalMappingWeight = %d; want 0", po3.TotalMappingWeight)
	}
	if po3.DirectAttainment != 0 {
		t.Errorf("PO3 DirectAttainment = %v; want 0", po3.DirectAttainment)
	}
	if po3.FinalAttainment != 0.4 {
		t.Errorf("PO3 FinalAttainment = %v; want 0.4", po3.FinalAttainment)
	}

	if res.Summary.TotalPOs != 3 {
		t.Errorf("TotalPOs = %d; want 3", res.Summary.TotalPOs)
	}
	if res.Summary.AverageDirectAttainment != 1.21 {
		t.Errorf("AverageDirectAttainment = %v; want 1.21", res.Summary.AverageDirectAttainment)
	}
	if res.Summary.AverageFinalAttainment != 1.37 {
		t.Errorf("AverageFinalAttainment = %v; want 1.37", res.Summary.AverageFinalAttainment)
	}
	// default target level is 2.0; nothing reaches it
	if res.Summary.TargetMetCount != 0 {
		t.Errorf("TargetMetCount = %d; want 0", res.Summary.TargetMetCount)
	}
}

func TestPOService_ProgramAttainment_liveFallback(t *testing.T) {
	env := newPOTestEnv(t)
	ctx := context.Background()

	// no Calculate call, no snapshots; the source computes off raw marks and
	// the numbers match the materialized path
	res, err := env.svc.ProgramAttainment(ctx, env.program.ID, env.batch.ID, env.poOpts())
	if err != nil {
		t.Fatalf("ProgramAttainment() failed: %v", err)
	}
	for _, po := range res.POAttainments {
		switch po.POCode {
		case "PO1":
			if po.DirectAttainment != 1.65 {
				t.Errorf("PO1 DirectAttainment = %v; want 1.65", po.DirectAttainment)
			}
		case "PO2":
			if po.DirectAttainment != 1.99 {
				t.Errorf("PO2 DirectAttainment = %v; want 1.99", po.DirectAttainment)
			}
		}
	}
}

func TestPOService_ProgramAttainment_errors(t *testing.T) {
	env := newPOTestEnv(t)
	ctx := context.Background()

	t.Run("unknown program", func(t *testing.T) {
		_, err := env.svc.ProgramAttainment(ctx, "nope", env.batch.ID, env.poOpts())
		if errors.Cause(err) != attainment.ErrProgramNotFound {
			t.Errorf("err = %v; want ErrProgramNotFound", err)
		}
	})

	t.Run("unknown batch", func(t *testing.T) {
		_, err := env.svc.ProgramAttainment(ctx, env.program.ID, "nope", env.poOpts())
		if errors.Cause(err) != attainment.ErrBatchNotFound {
			t.Errorf("err = %v; want ErrBatchNotFound", err)
		}
	})

	t.Run("program with no outcomes", func(t *testing.T) {
		bare := env.db.AddProgram(attainment.Program{Code: "EEE", Name: "Electrical Engineering"})
		bareBatch := env.db.AddBatch(attainment.Batch{ProgramID: bare.ID, Name: "2023-2027"})
		_, err := env.svc.ProgramAttainment(ctx, bare.ID, bareBatch.ID, env.poOpts())
		if errors.Cause(err) != attainment.ErrNoProgramOutcomes {
			t.Errorf("err = %v; want ErrNoProgramOutcomes", err)
		}
	})

	t.Run("bad weights override", func(t *testing.T) {
		opts := env.poOpts()
		opts.Weights = &attainment.Weights{DirectWeight: 0.9, IndirectWeight: 0.3}
		_, err := env.svc.ProgramAttainment(ctx, env.program.ID, env.batch.ID, opts)
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("err = %v; want a validation error", err)
		}
	})
}

func TestPOService_SaveIndirect(t *testing.T) {
	env := newPOTestEnv(t)
	ctx := context.Background()

	t.Run("rejects out-of-scale values", func(t *testing.T) {
		_, err := env.svc.SaveIndirect(ctx, env.program.ID, env.batch.ID,
			map[string]float64{"PO1": 3.5}, attainment.Weights{DirectWeight: 0.8, IndirectWeight: 0.2})
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("err = %v; want a validation error", err)
		}
	})

	t.Run("rejects bad weights", func(t *testing.T) {
		_, err := env.svc.SaveIndirect(ctx, env.program.ID, env.batch.ID,
			map[string]float64{"PO1": 2.4}, attainment.Weights{DirectWeight: 0.6, IndirectWeight: 0.6})
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("err = %v; want a validation error", err)
		}
	})

	t.Run("stored config drives subsequent rollups", func(t *testing.T) {
		cfg, err := env.svc.SaveIndirect(ctx, env.program.ID, env.batch.ID,
			map[string]float64{"PO1": 2.4}, attainment.Weights{DirectWeight: 0.8, IndirectWeight: 0.2})
		if err != nil {
			t.Fatalf("SaveIndirect() failed: %v", err)
		}
		if cfg.IndirectAttainments["PO1"] != 2.4 {
			t.Errorf("stored PO1 indirect = %v; want 2.4", cfg.IndirectAttainments["PO1"])
		}

		res, err := env.svc.ProgramAttainment(ctx, env.program.ID, env.batch.ID, env.poOpts())
		if err != nil {
			t.Fatalf("ProgramAttainment() failed: %v", err)
		}
		for _, po := range res.POAttainments {
			if po.POCode != "PO1" {
				continue
			}
			if po.IndirectAttainment != 2.4 {
				t.Errorf("PO1 IndirectAttainment = %v; want 2.4", po.IndirectAttainment)
			}
			// 1.65*0.8 + 2.4*0.2
			if po.FinalAttainment != 1.8 {
				t.Errorf("PO1 FinalAttainment = %v; want 1.8", po.FinalAttainment)
			}
		}
	})
}

package echoapi_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	. "github.com/trezcool/ufaulu/apps/api/echo"
	"github.com/trezcool/ufaulu/core/attainment"
)

func poPath(programID string, params map[string]string) string {
	v := make(url.Values)
	for key, val := range params {
		v.Add(key, val)
	}
	path := "/v1/programs/" + programID + "/po-attainment"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	return path
}

func Test_poAttainmentApi_attainment(t *testing.T) {
	env := setup(t)
	adminToken := env.getToken(t, env.admin)
	params := map[string]string{"batch_id": env.batch.ID, "academic_year": env.year}

	t.Run("teachers and students denied", func(t *testing.T) {
		for _, usr := range []struct {
			name  string
			token string
		}{
			{"teacher", env.getToken(t, env.teacher)},
			{"student", env.getToken(t, env.student)},
		} {
			t.Run(usr.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodGet, poPath(env.program.ID, params), usr.token)
				env.server.ServeHTTP(rec, req)
				checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
			})
		}
	})

	t.Run("batch_id required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, poPath(env.program.ID, nil), adminToken)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"batch_id": "this field is required"}),
		}, rec)
	})

	t.Run("lone weight rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, poPath(env.program.ID, map[string]string{
			"batch_id": env.batch.ID, "direct_weight": "0.8",
		}), adminToken)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"direct_weight":   "both weights must be provided together",
				"indirect_weight": "both weights must be provided together",
			}),
		}, rec)
	})

	t.Run("ok as admin", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, poPath(env.program.ID, params), adminToken)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want 200; body %s", rec.Code, rec.Body.String())
		}
		var res attainment.ProgramResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(res.POAttainments) != 1 {
			t.Fatalf("len(POAttainments) = %d; want 1", len(res.POAttainments))
		}
		// CO1 class mean (85+25)/2 = 55% scales to 1.65; blended with the
		// default indirect 2.0 at 0.8/0.2
		po1 := res.POAttainments[0]
		if po1.DirectAttainment != 1.65 {
			t.Errorf("DirectAttainment = %v; want 1.65", po1.DirectAttainment)
		}
		if po1.FinalAttainment != 1.72 {
			t.Errorf("FinalAttainment = %v; want 1.72", po1.FinalAttainment)
		}
	})

	t.Run("coordinator of own program allowed", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, poPath(env.program.ID, params), env.getToken(t, env.coordinator))
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("code = %v; want 200; body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("coordinator of another program denied", func(t *testing.T) {
		other := env.db.AddProgram(attainment.Program{Code: "EEE", Name: "Electrical Engineering"})
		req, rec := newAuthRequest(http.MethodGet, poPath(other.ID, params), env.getToken(t, env.coordinator))
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
	})

	t.Run("unknown program", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, poPath("eb7a8e5c-9a14-4f6e-8d3c-111111111111", params), adminToken)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "program not found"}),
		}, rec)
	})
}

func Test_poAttainmentApi_saveIndirect(t *testing.T) {
	env := setup(t)
	path := "/v1/programs/" + env.program.ID + "/po-attainment"
	coordToken := env.getToken(t, env.coordinator)

	t.Run("teacher denied", func(t *testing.T) {
		body := marchallObj(t, SaveIndirectRequest{
			BatchID: env.batch.ID, DirectWeight: 0.8, IndirectWeight: 0.2,
			IndirectAttainments: map[string]float64{"PO1": 2.4},
		})
		req, rec := newAuthRequest(http.MethodPost, path, env.getToken(t, env.teacher), body)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
	})

	t.Run("bad weights rejected", func(t *testing.T) {
		body := marchallObj(t, SaveIndirectRequest{
			BatchID: env.batch.ID, DirectWeight: 0.7, IndirectWeight: 0.4,
			IndirectAttainments: map[string]float64{"PO1": 2.4},
		})
		req, rec := newAuthRequest(http.MethodPost, path, coordToken, body)
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want 400; body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("out-of-scale indirect rejected", func(t *testing.T) {
		body := marchallObj(t, SaveIndirectRequest{
			BatchID: env.batch.ID, DirectWeight: 0.8, IndirectWeight: 0.2,
			IndirectAttainments: map[string]float64{"PO1": 3.5},
		})
		req, rec := newAuthRequest(http.MethodPost, path, coordToken, body)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"PO1": "must be between 0 and 3"}),
		}, rec)
	})

	t.Run("stored config drives the rollup", func(t *testing.T) {
		body := marchallObj(t, SaveIndirectRequest{
			BatchID: env.batch.ID, DirectWeight: 0.8, IndirectWeight: 0.2,
			IndirectAttainments: map[string]float64{"PO1": 2.4},
		})
		req, rec := newAuthRequest(http.MethodPost, path, coordToken, body)
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want 200; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, poPath(env.program.ID, map[string]string{
			"batch_id": env.batch.ID, "academic_year": env.year,
		}), coordToken)
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want 200; body %s", rec.Code, rec.Body.String())
		}
		var res attainment.ProgramResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if res.POAttainments[0].IndirectAttainment != 2.4 {
			t.Errorf("IndirectAttainment = %v; want the stored 2.4", res.POAttainments[0].IndirectAttainment)
		}
	})
}

package echoapi_test

import (
	"encoding/json"
	"net/http"
	"testing"

	. "github.com/trezcool/ufaulu/apps/api/echo"
	"github.com/trezcool/ufaulu/core/user"
)

func Test_userApi_login(t *testing.T) {
	env := setup(t)

	t.Run("ok", func(t *testing.T) {
		body := marchallObj(t, LoginRequest{Username: "admin", Password: "Pa$$word1"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want 200; body %s", rec.Code, rec.Body.String())
		}
		var resp LoginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if resp.Token == "" {
			t.Error("token is empty")
		}
	})

	t.Run("email works too", func(t *testing.T) {
		body := marchallObj(t, LoginRequest{Username: "admin@test.cd", Password: "Pa$$word1"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("code = %v; want 200; body %s", rec.Code, rec.Body.String())
		}
	})

	tests := []httpTest{
		{
			name: "wrong password", body: marchallObj(t, LoginRequest{Username: "admin", Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "unknown user", body: marchallObj(t, LoginRequest{Username: "ghost", Password: "Pa$$word1"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "missing fields", body: marchallObj(t, LoginRequest{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"username": "this field is required",
				"password": "this field is required",
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			env.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_me(t *testing.T) {
	env := setup(t)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "own profile", token: env.getToken(t, env.student),
			wantCode: http.StatusOK, wantData: marchallObj(t, env.student),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", tt.token)
			env.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_create(t *testing.T) {
	env := setup(t)
	adminToken := env.getToken(t, env.admin)

	newUser := func(uname string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name:            "New User",
			Username:        uname,
			Email:           uname + "@test.cd",
			Password:        "Pa$$word1",
			PasswordConfirm: "Pa$$word1",
			Roles:           roles,
		})
	}

	tests := []httpTest{
		{name: "auth required", body: newUser("newbie"), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", token: env.getToken(t, env.teacher), body: newUser("newbie"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "ok", token: adminToken, body: newUser("newbie", user.RoleTeacher), wantCode: http.StatusCreated},
		{
			name: "existing username", token: adminToken, body: newUser("newbie"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": user.ErrUserExists.Error()}),
		},
		{
			name: "cannot escalate roles", token: adminToken, body: newUser("boss01", user.RoleAdminUniversity),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", tt.token, tt.body)
			env.server.ServeHTTP(rec, req)
			if tt.wantData == nil {
				if rec.Code != tt.wantCode {
					t.Errorf("code = %v; want %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_queryRoles(t *testing.T) {
	env := setup(t)

	tests := []httpTest{
		{
			name: "admin required", token: env.getToken(t, env.student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "ok", token: env.getToken(t, env.admin),
			wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/users/roles", tt.token)
			env.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/halldesk/halldesk/apps/api/echo"
	"github.com/halldesk/halldesk/core/user"
	"github.com/halldesk/halldesk/tests"
)

func Test_authApi_login(t *testing.T) {
	env, app := setup(t)
	alice := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)
	env.CreateUser(t, "Gone Guy", "gone", user.RoleTeacher, false)

	failed := marchallObj(t, httpErr{Error: "authentication failed"})
	tests := []httpTest{
		{name: "empty payload", method: http.MethodPost, path: "/v1/auth/login", body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: failed},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/auth/login",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "bob", Password: testutil.DefaultPassword}),
			wantCode: http.StatusBadRequest, wantData: failed,
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/auth/login",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "alice", Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: failed,
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/auth/login",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "gone", Password: testutil.DefaultPassword}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("success (case insensitive username)", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/auth/login", "",
			marchallObj(t, echoapi.LoginRequest{Username: " ALICE ", Password: testutil.DefaultPassword}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, alice.ID, resp.User.ID)
		assert.True(t, resp.User.LastLogin.Valid)

		// the token opens the authed endpoints
		rec = do(app, http.MethodGet, "/v1/users/"+alice.ID, resp.Token)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_authApi_refreshToken(t *testing.T) {
	env, app := setup(t)
	alice := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)

	rec := do(app, http.MethodPost, "/v1/auth/token-refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(app, http.MethodPost, "/v1/auth/token-refresh", getToken(t, env, alice))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	unmarshal(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)

	// refresh window over
	claims := echoapi.GetUserClaims(alice, env.Conf, 1 /* origIat */)
	token, err := echoapi.GenerateToken(claims, env.Conf)
	require.NoError(t, err)
	rec = do(app, http.MethodPost, "/v1/auth/token-refresh", token)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})}, rec)
}

func Test_sessionMiddleware(t *testing.T) {
	env, app := setup(t)
	alice := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)
	ghost := user.User{ID: "3f1c2b8e-0000-4000-8000-000000000000", Username: "ghost", IsActive: true}
	inactive := env.CreateUser(t, "Inactive", "inactive", user.RoleManager, false)

	tests := []httpTest{
		{name: "missing token", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "malformed token", path: "/v1/users", token: "abc.def.ghi", wantCode: http.StatusUnauthorized},
		{
			name: "unknown user", path: "/v1/users", token: getToken(t, env, ghost),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
		},
		{
			name: "deactivated user", path: "/v1/users", token: getToken(t, env, inactive),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "ok", path: "/v1/users", token: getToken(t, env, alice), wantCode: http.StatusOK},
	}
	runHTTPTests(t, app, tests)
}

func Test_userApi_query(t *testing.T) {
	env, app := setup(t)
	alice := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)
	bob := env.CreateUser(t, "Bob Manager", "bob", user.RoleManager, true)
	carl := env.CreateUser(t, "Carl Teacher", "carl", user.RoleTeacher, true)
	dora := env.CreateUser(t, "Dora Space", "dora", user.RoleSpaceManager, false)

	path := func(search, ordering, isActive string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != "" {
			v.Add("is_active", isActive)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}
	token := getToken(t, env, alice)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "manager role required", path: "/v1/users", token: getToken(t, env, carl),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "all", path: "/v1/users", token: token, wantCode: http.StatusOK, wantData: marchallList(t, alice, bob, carl, dora)},
		{name: "search (unknown)", path: path("zzz", "", ""), token: token, wantCode: http.StatusOK, wantData: marchallList(t)},
		{name: "search=TEACH", path: path("TEACH", "", ""), token: token, wantCode: http.StatusOK, wantData: marchallList(t, carl)},
		{
			name: "roles", path: path("", "", "", user.RoleOwner, user.RoleTeacher), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, alice, carl),
		},
		{name: "is_active=false", path: path("", "", "false"), token: token, wantCode: http.StatusOK, wantData: marchallList(t, dora)},
		{
			name: "order by -username", path: path("", "-username", ""), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, dora, carl, bob, alice),
		},
		{
			name: "unknown ordering field is ignored", path: path("", "password", ""), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, alice, bob, carl, dora),
		},
	}
	runHTTPTests(t, app, tests)
}

func Test_userApi_queryRoles(t *testing.T) {
	env, app := setup(t)
	carl := env.CreateUser(t, "Carl Teacher", "carl", user.RoleTeacher, true)

	runHTTPTests(t, app, []httpTest{
		{name: "roles", path: "/v1/users/roles", token: getToken(t, env, carl), wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)},
	})
}

func Test_userApi_create(t *testing.T) {
	env, app := setup(t)
	alice := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)
	bob := env.CreateUser(t, "Bob Manager", "bob", user.RoleManager, true)
	carl := env.CreateUser(t, "Carl Teacher", "carl", user.RoleTeacher, true)

	newUser := func(uname, role string) []byte {
		return marchallObj(t, user.NewUser{
			Username: uname,
			FullName: "New " + uname,
			Password: "Sup3r$ecretPwd",
			Role:     role,
		})
	}

	t.Run("not allowed", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/users", getToken(t, env, carl), newUser("eve", user.RoleTeacher))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/users", getToken(t, env, alice), []byte(`{"user_role":"teacher"}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp httpErr
		unmarshal(t, rec, &resp)
		assert.Equal(t, "validation failed", resp.Error)
		assert.Equal(t, "this field is required", resp.Details["username"])
		assert.Equal(t, "this field is required", resp.Details["full_name"])
	})

	t.Run("role above own", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/users", getToken(t, env, bob), newUser("eve", user.RoleOwner))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp httpErr
		unmarshal(t, rec, &resp)
		assert.Contains(t, resp.Details, "user_role")
	})

	t.Run("success", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/users", getToken(t, env, bob), newUser("Eve", user.RoleTeacher))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp echoapi.CreateUserResponse
		unmarshal(t, rec, &resp)
		assert.True(t, resp.Success)
		assert.Equal(t, "eve", resp.User.Username)
		assert.Equal(t, user.DefaultEmail("eve"), resp.User.Email)
		assert.Equal(t, user.RoleTeacher, resp.User.Role)
		assert.True(t, resp.User.IsActive)

		// the account can log in
		usr, err := env.UserSvc.Authenticate(context.Background(), "eve", "Sup3r$ecretPwd")
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, usr.ID)
	})

	t.Run("duplicate username", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/users", getToken(t, env, alice), newUser("carl", user.RoleTeacher))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp httpErr
		unmarshal(t, rec, &resp)
		assert.Equal(t, user.ErrUserExists.Error(), resp.Details["username"])
	})
}

func Test_userApi_retrieve(t *testing.T) {
	env, app := setup(t)
	alice := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)
	carl := env.CreateUser(t, "Carl Teacher", "carl", user.RoleTeacher, true)
	ro := env.CreateUser(t, "Read Only", "readonly", user.RoleReadOnly, true)
	notFound := marchallObj(t, httpErr{Error: "not found"})

	tests := []httpTest{
		{name: "self", path: "/v1/users/" + carl.ID, token: getToken(t, env, carl), wantCode: http.StatusOK, wantData: marchallObj(t, carl)},
		{name: "someone else", path: "/v1/users/" + carl.ID, token: getToken(t, env, ro), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "manager", path: "/v1/users/" + carl.ID, token: getToken(t, env, alice), wantCode: http.StatusOK, wantData: marchallObj(t, carl)},
		{name: "unknown", path: "/v1/users/unknown", token: getToken(t, env, alice), wantCode: http.StatusNotFound, wantData: notFound},
	}
	runHTTPTests(t, app, tests)
}

func Test_userApi_update(t *testing.T) {
	env, app := setup(t)
	alice := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)
	carl := env.CreateUser(t, "Carl Teacher", "carl", user.RoleTeacher, true)

	t.Run("self name", func(t *testing.T) {
		rec := do(app, http.MethodPut, "/v1/users/"+carl.ID, getToken(t, env, carl), []byte(`{"full_name":"  Carl Tutor "}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, "Carl Tutor", usr.FullName)
	})

	t.Run("self role", func(t *testing.T) {
		rec := do(app, http.MethodPut, "/v1/users/"+carl.ID, getToken(t, env, carl), []byte(`{"user_role":"owner"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("manager deactivates", func(t *testing.T) {
		rec := do(app, http.MethodPut, "/v1/users/"+carl.ID, getToken(t, env, alice), []byte(`{"is_active":false}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = do(app, http.MethodGet, "/v1/users/"+carl.ID, getToken(t, env, carl))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_userApi_destroy(t *testing.T) {
	env, app := setup(t)
	alice := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)
	carl := env.CreateUser(t, "Carl Teacher", "carl", user.RoleTeacher, true)
	dora := env.CreateUser(t, "Dora Teacher", "dora", user.RoleTeacher, true)
	carlToken := getToken(t, env, carl)

	tests := []httpTest{
		{name: "not allowed", method: http.MethodDelete, path: "/v1/users/" + carl.ID, token: carlToken, wantCode: http.StatusForbidden},
		{name: "self", method: http.MethodDelete, path: "/v1/users/" + alice.ID, token: getToken(t, env, alice), wantCode: http.StatusForbidden},
		{name: "success", method: http.MethodDelete, path: "/v1/users/" + carl.ID, token: getToken(t, env, alice), wantCode: http.StatusNoContent},
		{name: "deleted user token", path: "/v1/users/" + carl.ID, token: carlToken, wantCode: http.StatusUnauthorized},
		{
			name: "multiple", method: http.MethodDelete, path: "/v1/users?id=" + dora.ID, token: getToken(t, env, alice),
			wantCode: http.StatusNoContent,
		},
	}
	runHTTPTests(t, app, tests)

	_, err := env.UserSvc.GetByID(context.Background(), dora.ID)
	assert.Equal(t, user.ErrNotFound, err)
	_, err = env.Accounts.GetAccount(context.Background(), dora.ID)
	assert.Error(t, err)
}

//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/expensio/expensio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userSeq atomic.Int64

type userDTO struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Status    string `json:"status"`
}

type userEnvelope struct {
	Data userDTO `json:"data"`
}

type loginEnvelope struct {
	Data struct {
		User        userDTO `json:"user"`
		AccessToken string  `json:"access_token"`
	} `json:"data"`
}

// registerEmployee registers a fresh employee account and returns it
// with its password.
func registerEmployee(t *testing.T, client *testutil.Client) (userDTO, string) {
	t.Helper()

	n := userSeq.Add(1)
	password := fmt.Sprintf("pass-%d-secret", n)

	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"username":   fmt.Sprintf("emp%d", n),
		"email":      fmt.Sprintf("emp%d@example.com", n),
		"first_name": "Erin",
		"last_name":  "Employee",
		"password":   password,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, testutil.ReadBody(t, resp))

	client.LoginAs(t, fmt.Sprintf("emp%d", n), password)

	meResp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	var me userEnvelope
	testutil.DecodeJSON(t, meResp, &me)
	return me.Data, password
}

func TestRegister_CreatesEmployeeAccount(t *testing.T) {
	client := newTestClient(t)

	n := userSeq.Add(1)
	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"username":   fmt.Sprintf("reg%d", n),
		"email":      fmt.Sprintf("reg%d@example.com", n),
		"first_name": "Rita",
		"last_name":  "Register",
		"password":   "long-enough-pw",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created userEnvelope
	testutil.DecodeJSON(t, resp, &created)
	assert.Equal(t, "employee", created.Data.Role)
	assert.Equal(t, "active", created.Data.Status)
	assert.NotZero(t, created.Data.ID)
}

func TestRegister_DuplicateUsernameConflicts(t *testing.T) {
	client := newTestClient(t)

	n := userSeq.Add(1)
	body := map[string]string{
		"username":   fmt.Sprintf("dup%d", n),
		"email":      fmt.Sprintf("dup%d@example.com", n),
		"first_name": "Dana",
		"last_name":  "Duplicate",
		"password":   "long-enough-pw",
	}

	resp, err := client.POST("/api/v1/auth/register", body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	body["email"] = fmt.Sprintf("dup%d-other@example.com", n)
	resp, err = client.POST("/api/v1/auth/register", body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRegister_RejectsShortPassword(t *testing.T) {
	client := newTestClient(t)

	n := userSeq.Add(1)
	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"username":   fmt.Sprintf("shrt%d", n),
		"email":      fmt.Sprintf("shrt%d@example.com", n),
		"first_name": "Sho",
		"last_name":  "Rt",
		"password":   "short",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestLogin_IssuesTokenAndCookie(t *testing.T) {
	client := newTestClient(t)
	user, password := registerEmployee(t, client)
	client.Logout()

	resp, err := client.POST("/api/v1/auth/login", map[string]string{
		"username": user.Username,
		"password": password,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login loginEnvelope
	testutil.DecodeJSON(t, resp, &login)
	assert.Equal(t, user.ID, login.Data.User.ID)
	assert.NotEmpty(t, login.Data.AccessToken)
}

func TestLogin_WrongPassword(t *testing.T) {
	client := newTestClient(t)
	user, _ := registerEmployee(t, client)
	client.Logout()

	resp, err := client.POST("/api/v1/auth/login", map[string]string{
		"username": user.Username,
		"password": "definitely-wrong",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestMe_RequiresAuthentication(t *testing.T) {
	client := newTestClientWithoutValidation()

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestMe_ReturnsCurrentAccount(t *testing.T) {
	client := newTestClient(t)
	user, _ := registerEmployee(t, client)

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me userEnvelope
	testutil.DecodeJSON(t, resp, &me)
	assert.Equal(t, user.ID, me.Data.ID)
	assert.Equal(t, user.Username, me.Data.Username)
}

func TestLogout_ClearsSession(t *testing.T) {
	client := newTestClient(t)
	registerEmployee(t, client)

	resp, err := client.POST("/api/v1/auth/logout", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.WithoutValidation().GET("/api/v1/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

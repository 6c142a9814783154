package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dutyflow/internal/platform/logger"
	"dutyflow/internal/user/models"
	"dutyflow/internal/user/service"
	"dutyflow/internal/user/store"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/testutil"
)

func newUserRouter(t *testing.T) (http.Handler, *store.InMemory) {
	t.Helper()
	users := store.NewInMemory()
	svc := service.New(users, nil, service.WithLogger(logger.Discard()))
	r := chi.NewRouter()
	New(svc, logger.Discard()).Register(r)
	return r, users
}

func seedUser(t *testing.T, users *store.InMemory) *models.User {
	t.Helper()
	u, err := models.NewUser(id.NewUserID(), "ext-me", "Robin", "robin@example.com", models.RoleMember, time.Now())
	require.NoError(t, err)
	_, err = users.Upsert(context.Background(), u)
	require.NoError(t, err)
	return u
}

func TestMe(t *testing.T) {
	router, users := newUserRouter(t)
	u := seedUser(t, users)

	req := testutil.WithMember(testutil.NewRequest(t, http.MethodGet, "/users/me"), u.ID)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[UserResponse](t, rr)
	assert.Equal(t, u.ID.String(), resp.ID)
	assert.Equal(t, "member", resp.Role)
	assert.False(t, resp.HasPush)
}

func TestMeUnknownCaller(t *testing.T) {
	router, _ := newUserRouter(t)
	req := testutil.WithMember(testutil.NewRequest(t, http.MethodGet, "/users/me"), id.NewUserID())
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestUpdatePushToken(t *testing.T) {
	router, users := newUserRouter(t)
	u := seedUser(t, users)

	req := testutil.WithMember(testutil.NewJSONRequest(t, http.MethodPut, "/users/me/push-token",
		PushTokenRequest{PushToken: " fcm-token "}), u.ID)
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	stored, err := users.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "fcm-token", stored.PushToken)
}

func TestUpdateEmail(t *testing.T) {
	router, users := newUserRouter(t)
	u := seedUser(t, users)
	other, err := models.NewUser(id.NewUserID(), "ext-other", "Sam", "sam@example.com", models.RoleMember, time.Now())
	require.NoError(t, err)
	_, err = users.Upsert(context.Background(), other)
	require.NoError(t, err)

	put := func(userID id.UserID, body any) *httptest.ResponseRecorder {
		req := testutil.NewJSONRequest(t, http.MethodPut, "/users/me/email", body)
		return testutil.DoRequest(router, testutil.WithMember(req, userID))
	}

	t.Run("updates the caller's email", func(t *testing.T) {
		rr := put(u.ID, UpdateEmailRequest{Email: " Robin.New@Example.com "})
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[UserResponse](t, rr)
		assert.Equal(t, "robin.new@example.com", resp.Email)
	})

	t.Run("same email is accepted unchanged", func(t *testing.T) {
		rr := put(u.ID, UpdateEmailRequest{Email: "robin.new@example.com"})
		testutil.AssertStatusOK(t, rr)
	})

	t.Run("email of another account", func(t *testing.T) {
		rr := put(u.ID, UpdateEmailRequest{Email: "sam@example.com"})
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
	})

	t.Run("unknown caller", func(t *testing.T) {
		rr := put(id.NewUserID(), UpdateEmailRequest{Email: "ghost@example.com"})
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("missing and malformed email", func(t *testing.T) {
		testutil.AssertStatusAndError(t, put(u.ID, map[string]string{}), http.StatusBadRequest, "validation_error")
		testutil.AssertStatusAndError(t, put(u.ID, UpdateEmailRequest{Email: "robin"}), http.StatusBadRequest, "validation_error")
	})
}

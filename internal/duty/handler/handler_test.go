package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dutyflow/internal/duty/models"
	"dutyflow/internal/duty/service"
	dutystore "dutyflow/internal/duty/store/duty"
	historystore "dutyflow/internal/duty/store/history"
	"dutyflow/internal/evidence"
	"dutyflow/internal/notification/outbox"
	notifservice "dutyflow/internal/notification/service"
	"dutyflow/internal/platform/logger"
	usermodels "dutyflow/internal/user/models"
	userstore "dutyflow/internal/user/store"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/testutil"
)

type fixture struct {
	router http.Handler
	duties *dutystore.InMemory
	files  *evidence.InMemory
	outbox *outbox.InMemory
	admin  id.UserID
	member id.UserID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	users := userstore.NewInMemory()
	f := &fixture{
		duties: dutystore.NewInMemory(),
		files:  evidence.NewInMemory("http://localhost:8080", evidence.Limits{}),
		outbox: outbox.NewInMemory(),
	}
	f.admin = seedUser(t, users, "Parent", usermodels.RoleAdmin)
	f.member = seedUser(t, users, "Alice", usermodels.RoleMember)

	notifier := notifservice.New(users, f.outbox, notifservice.WithLogger(logger.Discard()))
	svc := service.New(f.duties, historystore.NewInMemory(), users, f.files, notifier,
		service.WithLogger(logger.Discard()))

	r := chi.NewRouter()
	New(svc, logger.Discard(), opts...).Register(r)
	f.router = r
	return f
}

func seedUser(t *testing.T, users *userstore.InMemory, name string, role usermodels.Role) id.UserID {
	t.Helper()
	u, err := usermodels.NewUser(id.NewUserID(), "ext-"+name, name, "", role, time.Now())
	require.NoError(t, err)
	u.PushToken = "push-" + name
	_, err = users.Upsert(context.Background(), u)
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(f.router, req)
}

func (f *fixture) create(t *testing.T, title, due string) DutyResponse {
	t.Helper()
	req := testutil.WithAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/duties?userId="+f.member.String(),
		CreateDutyRequest{Title: title, DueDate: due}), f.admin)
	rr := f.do(req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[DutyResponse](t, rr)
}

func (f *fixture) complete(t *testing.T, dutyID string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewMultipartRequest(t, http.MethodPost, "/duties/"+dutyID+"/complete",
		"evidence", "proof.jpg", []byte("jpeg bytes"), map[string]string{"comments": "done!"})
	return f.do(testutil.WithMember(req, f.member))
}

func TestCreateDuty(t *testing.T) {
	f := newFixture(t)

	t.Run("admin assigns via query parameter", func(t *testing.T) {
		d := f.create(t, "  Dishes ", "2025-04-01")
		assert.Equal(t, "Dishes", d.Title)
		assert.Equal(t, string(models.StatusPending), d.Status)
		assert.Equal(t, "2025-04-01", d.DueDate)
		assert.Equal(t, f.member.String(), d.AssignedTo)
		assert.Empty(t, d.EvidenceURL)
	})

	t.Run("assignee in body", func(t *testing.T) {
		req := testutil.WithAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/duties",
			CreateDutyRequest{Title: "Laundry", AssigneeID: f.member.String()}), f.admin)
		rr := f.do(req)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[DutyResponse](t, rr)
		assert.Empty(t, resp.DueDate)
	})

	t.Run("member cannot create", func(t *testing.T) {
		req := testutil.WithMember(testutil.NewJSONRequest(t, http.MethodPost, "/duties?userId="+f.member.String(),
			CreateDutyRequest{Title: "Sneaky"}), f.member)
		testutil.AssertStatusAndError(t, f.do(req), http.StatusForbidden, "forbidden")
	})

	for name, tc := range map[string]struct {
		query string
		body  CreateDutyRequest
		code  string
	}{
		"missing title":    {query: "?userId=" + id.NewUserID().String(), body: CreateDutyRequest{Title: "  "}, code: "validation_error"},
		"missing assignee": {body: CreateDutyRequest{Title: "Dishes"}, code: "validation_error"},
		"bad due date":     {query: "?userId=" + id.NewUserID().String(), body: CreateDutyRequest{Title: "Dishes", DueDate: "01/04/2025"}, code: "validation_error"},
		"bad assignee id":  {query: "?userId=not-a-uuid", body: CreateDutyRequest{Title: "Dishes"}, code: "invalid_input"},
	} {
		t.Run(name, func(t *testing.T) {
			req := testutil.WithAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/duties"+tc.query, tc.body), f.admin)
			testutil.AssertStatusAndError(t, f.do(req), http.StatusBadRequest, tc.code)
		})
	}

	t.Run("unknown assignee", func(t *testing.T) {
		req := testutil.WithAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/duties?userId="+id.NewUserID().String(),
			CreateDutyRequest{Title: "Dishes"}), f.admin)
		testutil.AssertStatusAndError(t, f.do(req), http.StatusNotFound, "not_found")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := testutil.WithAdmin(testutil.NewRequestWithBody(t, http.MethodPost, "/duties", "{"), f.admin)
		testutil.AssertStatusAndError(t, f.do(req), http.StatusBadRequest, "bad_request")
	})
}

func TestCompleteDuty(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, "Dishes", "")

	t.Run("missing file", func(t *testing.T) {
		req := testutil.NewMultipartRequest(t, http.MethodPost, "/duties/"+d.ID+"/complete", "", "", nil,
			map[string]string{"comments": "done"})
		testutil.AssertStatusAndError(t, f.do(testutil.WithMember(req, f.member)), http.StatusBadRequest, "validation_error")
	})

	t.Run("not multipart", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/duties/"+d.ID+"/complete", map[string]string{})
		testutil.AssertStatusAndError(t, f.do(testutil.WithMember(req, f.member)), http.StatusBadRequest, "bad_request")
	})

	t.Run("someone else's duty looks missing", func(t *testing.T) {
		req := testutil.NewMultipartRequest(t, http.MethodPost, "/duties/"+d.ID+"/complete",
			"evidence", "proof.jpg", []byte("x"), nil)
		testutil.AssertStatusAndError(t, f.do(testutil.WithMember(req, id.NewUserID())), http.StatusNotFound, "not_found")
		assert.Zero(t, f.files.Len())
	})

	t.Run("assignee completes with evidence", func(t *testing.T) {
		rr := f.complete(t, d.ID)
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[DutyResponse](t, rr)
		assert.Equal(t, string(models.StatusPendingApproval), resp.Status)
		require.True(t, strings.HasPrefix(resp.EvidenceURL, "http://localhost:8080/evidence/"))

		body, ok := f.files.Get(resp.EvidenceURL)
		require.True(t, ok)
		assert.Equal(t, "jpeg bytes", string(body))
	})

	t.Run("second completion is an invalid state", func(t *testing.T) {
		testutil.AssertStatusAndError(t, f.complete(t, d.ID), http.StatusConflict, "invalid_state")
		assert.Equal(t, 1, f.files.Len(), "rejected upload must not leave a file behind")
	})

	t.Run("oversized upload", func(t *testing.T) {
		small := newFixture(t, WithMaxUpload(8))
		other := small.create(t, "Windows", "")
		req := testutil.NewMultipartRequest(t, http.MethodPost, "/duties/"+other.ID+"/complete",
			"evidence", "proof.jpg", []byte(strings.Repeat("x", 256<<10)), nil)
		testutil.AssertStatusAndError(t, small.do(testutil.WithMember(req, small.member)), http.StatusBadRequest, "validation_error")
	})
}

func TestReviewDuty(t *testing.T) {
	f := newFixture(t)

	t.Run("approve", func(t *testing.T) {
		d := f.create(t, "Dishes", "")
		testutil.AssertStatusOK(t, f.complete(t, d.ID))

		member := testutil.WithMember(testutil.NewRequest(t, http.MethodPost, "/duties/"+d.ID+"/approve"), f.member)
		testutil.AssertStatusAndError(t, f.do(member), http.StatusForbidden, "forbidden")

		rr := f.do(testutil.WithAdmin(testutil.NewRequest(t, http.MethodPost, "/duties/"+d.ID+"/approve"), f.admin))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", string(models.StatusApproved))
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		d := f.create(t, "Laundry", "")
		testutil.AssertStatusOK(t, f.complete(t, d.ID))

		path := "/duties/" + d.ID + "/reject"
		empty := testutil.WithAdmin(testutil.NewJSONRequest(t, http.MethodPost, path, RejectDutyRequest{Comments: "  "}), f.admin)
		testutil.AssertStatusAndError(t, f.do(empty), http.StatusBadRequest, "validation_error")

		rr := f.do(testutil.WithAdmin(testutil.NewJSONRequest(t, http.MethodPost, path, RejectDutyRequest{Comments: "Still dirty"}), f.admin))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", string(models.StatusRejected))
	})

	t.Run("approving a pending duty is an invalid state", func(t *testing.T) {
		d := f.create(t, "Windows", "")
		rr := f.do(testutil.WithAdmin(testutil.NewRequest(t, http.MethodPost, "/duties/"+d.ID+"/approve"), f.admin))
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "invalid_state")
	})

	t.Run("unknown and malformed ids", func(t *testing.T) {
		rr := f.do(testutil.WithAdmin(testutil.NewRequest(t, http.MethodPost, "/duties/"+id.NewDutyID().String()+"/approve"), f.admin))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")

		rr = f.do(testutil.WithAdmin(testutil.NewRequest(t, http.MethodPost, "/duties/nope/approve"), f.admin))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})
}

func TestListAndHistory(t *testing.T) {
	f := newFixture(t)
	undated := f.create(t, "Whenever", "")
	later := f.create(t, "Later", "2025-05-01")
	sooner := f.create(t, "Sooner", "2025-04-01")
	testutil.AssertStatusOK(t, f.complete(t, sooner.ID))
	testutil.AssertStatusOK(t, f.do(testutil.WithAdmin(testutil.NewRequest(t, http.MethodPost, "/duties/"+sooner.ID+"/approve"), f.admin)))

	t.Run("list orders by due date with undated last", func(t *testing.T) {
		rr := f.do(testutil.WithMember(testutil.NewRequest(t, http.MethodGet, "/duties/user/"+f.member.String()), f.member))
		testutil.AssertStatusOK(t, rr)
		list := *testutil.UnmarshalResponse[[]DutyResponse](t, rr)
		require.Len(t, list, 3)
		assert.Equal(t, []string{sooner.ID, later.ID, undated.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	})

	t.Run("list for a user without duties is empty", func(t *testing.T) {
		rr := f.do(testutil.WithMember(testutil.NewRequest(t, http.MethodGet, "/duties/user/"+f.admin.String()), f.member))
		testutil.AssertStatusOK(t, rr)
		assert.JSONEq(t, "[]", strings.TrimSpace(string(testutil.ReadBody(t, rr))))
	})

	t.Run("history in recording order with names", func(t *testing.T) {
		rr := f.do(testutil.WithMember(testutil.NewRequest(t, http.MethodGet, "/duties/"+sooner.ID+"/history"), f.member))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[DutyHistoryResponse](t, rr)
		assert.Equal(t, string(models.StatusApproved), resp.Status)
		assert.True(t, resp.ChainValid)
		require.Len(t, resp.History, 3)

		assert.Equal(t, string(models.StatusPending), resp.History[0].Status)
		assert.Equal(t, "Parent", resp.History[0].ActorName)
		assert.Equal(t, models.CommentCreated, resp.History[0].Comments)
		assert.Equal(t, string(models.StatusPendingApproval), resp.History[1].Status)
		assert.Equal(t, "Alice", resp.History[1].ActorName)
		assert.Equal(t, "done!", resp.History[1].Comments)
		assert.Equal(t, string(models.StatusApproved), resp.History[2].Status)
		assert.Equal(t, f.admin.String(), resp.History[2].ActorID)
	})

	t.Run("history of unknown duty", func(t *testing.T) {
		rr := f.do(testutil.WithMember(testutil.NewRequest(t, http.MethodGet, "/duties/"+id.NewDutyID().String()+"/history"), f.member))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("notifications were queued", func(t *testing.T) {
		pending, err := f.outbox.Pending(context.Background())
		require.NoError(t, err)
		// three assignments, one completion to the admin, one approval
		assert.Equal(t, 5, pending)
	})
}

package httpserver

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	votingengine "sntportal/contexts/governance/voting-engine"
	"sntportal/contexts/governance/voting-engine/domain/entities"
	votinghttp "sntportal/contexts/governance/voting-engine/transport/http"
)

var testNow = time.Date(2026, time.May, 4, 10, 0, 0, 0, time.UTC)

func newTestServer(seed ...entities.Voting) *Server {
	module := votingengine.NewInMemoryModule(seed, nil, nil, nil)
	module.Store.SetNow(testNow)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	return New(module, metrics, nil, ":0")
}

func openBallot(id string) entities.Voting {
	return entities.Voting{
		VotingID:  id,
		Title:     "Water meters",
		Options:   []string{"Replace", "Repair"},
		EndDate:   testNow.Add(48 * time.Hour),
		Status:    entities.VotingStatusActive,
		Votes:     map[int]int{},
		CreatedBy: "board@example.com",
		CreatedAt: testNow.Add(-time.Hour),
		UpdatedAt: testNow.Add(-time.Hour),
	}
}

func withIdentity(req *http.Request, email, role string, owner bool) *http.Request {
	req.Header.Set("X-User-Email", email)
	req.Header.Set("X-User-Role", role)
	if owner {
		req.Header.Set("X-User-Owner", "true")
	}
	req.Header.Set("X-User-First-Name", "Ann")
	req.Header.Set("X-User-Last-Name", "Lee")
	req.Header.Set("X-User-Plot", "7")
	return req
}

func serve(server *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) votinghttp.ErrorResponse {
	t.Helper()
	var resp votinghttp.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body failed: %v body=%s", err, rr.Body.String())
	}
	return resp
}

func TestCastVoteRequiresIdentity(t *testing.T) {
	server := newTestServer(openBallot("b-1"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/votings/b-1/votes", strings.NewReader(`{"option_indices":[0]}`))

	rr := serve(server, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCastVoteRejectsNonOwnerAndGuest(t *testing.T) {
	server := newTestServer(openBallot("b-1"))

	guest := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/votings/b-1/votes", strings.NewReader(`{"option_indices":[0]}`)), "guest@example.com", "guest", true)
	rr := serve(server, guest)
	if rr.Code != http.StatusForbidden || decodeError(t, rr).Code != "not_member" {
		t.Fatalf("expected 403 not_member, got %d body=%s", rr.Code, rr.Body.String())
	}

	tenant := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/votings/b-1/votes", strings.NewReader(`{"option_indices":[0]}`)), "tenant@example.com", "member", false)
	rr = serve(server, tenant)
	if rr.Code != http.StatusForbidden || decodeError(t, rr).Code != "owners_only" {
		t.Fatalf("expected 403 owners_only, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCastVoteThenDuplicateConflicts(t *testing.T) {
	server := newTestServer(openBallot("b-1"))

	first := serve(server, withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/votings/b-1/votes", strings.NewReader(`{"option_indices":[1]}`)), "ann@example.com", "member", true))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", first.Code, first.Body.String())
	}
	var cast votinghttp.CastVoteResponse
	if err := json.Unmarshal(first.Body.Bytes(), &cast); err != nil {
		t.Fatalf("decode cast response failed: %v", err)
	}
	if cast.Voting.TotalVotes != 1 || cast.Record.PlotNumber != "7" {
		t.Fatalf("unexpected cast response: %+v", cast)
	}

	second := serve(server, withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/votings/b-1/votes", strings.NewReader(`{"option_indices":[0]}`)), "ANN@example.com ", "member", true))
	if second.Code != http.StatusConflict || decodeError(t, second).Code != "already_voted" {
		t.Fatalf("expected 409 already_voted, got %d body=%s", second.Code, second.Body.String())
	}
}

func TestCastVoteRejectsMalformedBody(t *testing.T) {
	server := newTestServer(openBallot("b-1"))
	rr := serve(server, withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/votings/b-1/votes", strings.NewReader(`{"option_indices":"zero"}`)), "ann@example.com", "member", true))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateVotingRequiresIdempotencyKey(t *testing.T) {
	server := newTestServer()
	body := []byte(`{"title":"Budget","description":"Approve the 2027 budget","options":["Yes","No"],"end_date":"2026-06-01T00:00:00Z"}`)

	rr := serve(server, withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/votings", bytes.NewReader(body)), "board@example.com", "board_member", false))
	if rr.Code != http.StatusBadRequest || decodeError(t, rr).Code != "idempotency_key_required" {
		t.Fatalf("expected 400 idempotency_key_required, got %d body=%s", rr.Code, rr.Body.String())
	}

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/votings", bytes.NewReader(body)), "board@example.com", "board_member", false)
	req.Header.Set("Idempotency-Key", "create-1")
	rr = serve(server, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateVotingForbiddenForMembers(t *testing.T) {
	server := newTestServer()
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/votings", strings.NewReader(`{"title":"Budget","description":"Approve the 2027 budget","options":["Yes","No"],"end_date":"2026-06-01T00:00:00Z"}`)), "ann@example.com", "member", true)
	req.Header.Set("Idempotency-Key", "create-2")
	if rr := serve(server, req); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestListRejectsUnknownState(t *testing.T) {
	server := newTestServer(openBallot("b-1"))
	if rr := serve(server, httptest.NewRequest(http.MethodGet, "/api/v1/votings?state=pending", nil)); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr := serve(server, httptest.NewRequest(http.MethodGet, "/api/v1/votings", nil))
	var list votinghttp.VotingListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list failed: %v", err)
	}
	if rr.Code != http.StatusOK || list.State != "active" || len(list.Items) != 1 {
		t.Fatalf("unexpected list response %d %+v", rr.Code, list)
	}
}

func TestUnknownVotingIsNotFound(t *testing.T) {
	server := newTestServer()
	rr := serve(server, withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/votings/missing", nil), "ann@example.com", "member", true))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestModerationRoutesRequireModerator(t *testing.T) {
	server := newTestServer(openBallot("b-1"))

	del := withIdentity(httptest.NewRequest(http.MethodDelete, "/api/v1/votings/b-1", nil), "board@example.com", "board_member", false)
	if rr := serve(server, del); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for board member delete, got %d", rr.Code)
	}
	sweep := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/votings/reconcile", nil), "chair@example.com", "chairman", false)
	if rr := serve(server, sweep); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for chairman sweep, got %d", rr.Code)
	}

	del = withIdentity(httptest.NewRequest(http.MethodDelete, "/api/v1/votings/b-1", nil), "chair@example.com", "chairman", false)
	rr := serve(server, del)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for chairman delete, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestExportReturnsCSVAttachment(t *testing.T) {
	server := newTestServer(openBallot("b-1"))
	serve(server, withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/votings/b-1/votes", strings.NewReader(`{"option_indices":[0]}`)), "ann@example.com", "member", true))

	rr := serve(server, withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/votings/b-1/export.csv", nil), "board@example.com", "board_member", false))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "voting_b-1_") {
		t.Fatalf("unexpected disposition %q", got)
	}
	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(rr.Body.String(), "\ufeff")))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("parse csv failed: %v", err)
	}
	if rows[0][1] != "Water meters" {
		t.Fatalf("unexpected first row %v", rows[0])
	}

	denied := serve(server, withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/votings/b-1/export.csv", nil), "ann@example.com", "member", true))
	if denied.Code != http.StatusForbidden {
		t.Fatalf("expected members to be denied export, got %d", denied.Code)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	server := newTestServer()
	if rr := serve(server, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rr.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rr.Code)
	}
	if rr := serve(server, httptest.NewRequest(http.MethodGet, "/metrics", nil)); rr.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rr.Code)
	}
}

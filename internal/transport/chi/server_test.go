package chi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gochi "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/collection"
	"github.com/stellarlab/lcsearch/internal/domain/collection/column"
	domds "github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/domain/query"
	"github.com/stellarlab/lcsearch/internal/registry"
	"github.com/stellarlab/lcsearch/internal/skyindex"
	asm "github.com/stellarlab/lcsearch/internal/usecase/dataset"
	healthuc "github.com/stellarlab/lcsearch/internal/usecase/health"
	scheduleruc "github.com/stellarlab/lcsearch/internal/usecase/scheduler"
)

type fakeScheduler struct {
	lastQuery query.CanonicalQuery
	lastOwner string
	events    []scheduleruc.Event
	err       error
}

func (f *fakeScheduler) Submit(_ context.Context, q query.CanonicalQuery, owner string) (*scheduleruc.Submission, error) {
	f.lastQuery = q
	f.lastOwner = owner
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan scheduleruc.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return &scheduleruc.Submission{SetID: "set-test", Events: ch}, nil
}

type fakeDatasets struct {
	sets map[string]domds.Dataset
}

func (f *fakeDatasets) Get(_ context.Context, id string) (domds.Dataset, error) {
	ds, ok := f.sets[id]
	if !ok {
		return domds.Dataset{}, domain.ErrNotFound
	}
	return ds, nil
}

func (f *fakeDatasets) Touch(_ context.Context, _ string) error { return nil }

type fakeArtifacts struct {
	preview asm.Preview
	err     error
}

func (f *fakeArtifacts) Dir(setID string) string { return "" }

func (f *fakeArtifacts) ReadPreview(_ string) (asm.Preview, error) {
	return f.preview, f.err
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func testRegistry() *registry.Registry {
	cols := []column.Column{
		column.Reconstruct("objectid", column.String, "", true, false),
		column.Reconstruct("ra", column.Float, "", true, false),
		column.Reconstruct("decl", column.Float, "", true, false),
		column.Reconstruct("mag", column.Float, "", false, false),
	}
	coll := collection.Reconstruct("asas", "ASAS", cols,
		collection.Footprint{MaxRA: 360, MinDec: -90, MaxDec: 90}, 10)
	return registry.New([]collection.Collection{coll},
		map[string]*skyindex.Index{"asas": skyindex.Build(nil)})
}

func testServer(t *testing.T, sched Scheduler, sets *fakeDatasets, art ArtifactReader) http.Handler {
	t.Helper()
	if sets == nil {
		sets = &fakeDatasets{sets: map[string]domds.Dataset{}}
	}
	if art == nil {
		art = &fakeArtifacts{err: domain.ErrNotFound}
	}
	health := healthuc.New(okPinger{}, okPinger{}, t.TempDir())
	srv := NewServer(sched, sets, testRegistry(), art, health, zap.NewNop())
	r := gochi.NewRouter()
	srv.Routes(r)
	return r
}

func okEvents(setID string) []scheduleruc.Event {
	return []scheduleruc.Event{
		{Status: scheduleruc.WireQueued, Message: "query accepted", Result: map[string]any{"setid": setID}},
		{Status: scheduleruc.WireOK, Message: "query complete", Result: map[string]any{"setid": setID, "nobjects": 3}},
	}
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return e
}

func TestConeSearch_StreamsNDJSON(t *testing.T) {
	sched := &fakeScheduler{events: okEvents("set-test")}
	h := testServer(t, sched, nil, nil)

	rec := postJSON(t, h, "/api/cone-search", `{"coordinates":"290 45","radius_arcmin":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}

	var lines []scheduleruc.Event
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var ev scheduleruc.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad ndjson line %q: %v", sc.Text(), err)
		}
		lines = append(lines, ev)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].Status != scheduleruc.WireQueued || lines[1].Status != scheduleruc.WireOK {
		t.Errorf("statuses = %s, %s", lines[0].Status, lines[1].Status)
	}

	if sched.lastQuery.Kind() != query.KindCone {
		t.Errorf("submitted kind = %s", sched.lastQuery.Kind())
	}
	if sched.lastQuery.Cone().RA != 290 || sched.lastQuery.Cone().Dec != 45 {
		t.Errorf("cone params = %+v", sched.lastQuery.Cone())
	}
}

func TestConeSearch_StreamEndsOnBackground(t *testing.T) {
	sched := &fakeScheduler{events: []scheduleruc.Event{
		{Status: scheduleruc.WireQueued, Result: map[string]any{"setid": "set-test"}},
		{Status: scheduleruc.WireBackground, Result: map[string]any{"setid": "set-test"}},
		{Status: scheduleruc.WireOK, Result: map[string]any{"setid": "set-test"}},
	}}
	h := testServer(t, sched, nil, nil)

	rec := postJSON(t, h, "/api/cone-search", `{"coordinates":"10 10"}`)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("stream should stop at the background event, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], scheduleruc.WireBackground) {
		t.Errorf("last line = %q", lines[1])
	}
}

func TestConeSearch_BadCoordinates(t *testing.T) {
	h := testServer(t, &fakeScheduler{}, nil, nil)
	rec := postJSON(t, h, "/api/cone-search", `{"coordinates":"not a position"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != codeValidationFailed {
		t.Errorf("code = %s", e.Code)
	}
}

func TestSubmit_FilterSyntaxNamesClause(t *testing.T) {
	h := testServer(t, &fakeScheduler{}, nil, nil)
	rec := postJSON(t, h, "/api/column-search", `{"filter":"(mag near 10)"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	e := decodeError(t, rec)
	if e.Code != codeFilterSyntax {
		t.Errorf("code = %s", e.Code)
	}
	if !strings.Contains(e.Message, `(mag near 10)`) {
		t.Errorf("message %q does not name the clause", e.Message)
	}
}

func TestSubmit_UnknownCollection(t *testing.T) {
	h := testServer(t, &fakeScheduler{}, nil, nil)
	rec := postJSON(t, h, "/api/fulltext-search", `{"text":"RR Lyr","collections":["nope"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	e := decodeError(t, rec)
	if e.Code != codeValidationFailed || !strings.Contains(e.Message, "nope") {
		t.Errorf("error = %+v", e)
	}
}

func TestSubmit_UnknownColumn(t *testing.T) {
	h := testServer(t, &fakeScheduler{events: okEvents("set-test")}, nil, nil)
	rec := postJSON(t, h, "/api/cone-search", `{"coordinates":"10 10","columns":["flux"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); !strings.Contains(e.Message, "flux") {
		t.Errorf("error = %+v", e)
	}
}

func TestSubmit_PrivateNeedsCredential(t *testing.T) {
	h := testServer(t, &fakeScheduler{}, nil, nil)
	rec := postJSON(t, h, "/api/cone-search", `{"coordinates":"10 10","visibility":"private"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSubmit_PrivateWithEntitledIdentity(t *testing.T) {
	sched := &fakeScheduler{events: okEvents("set-test")}
	h := testServer(t, sched, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/cone-search",
		strings.NewReader(`{"coordinates":"10 10","visibility":"private"}`))
	req = req.WithContext(ContextWithIdentity(req.Context(), Identity{User: "alice", Private: true}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if sched.lastOwner != "alice" {
		t.Errorf("owner = %q, want alice", sched.lastOwner)
	}
	if sched.lastQuery.Visibility() != query.VisibilityPrivate {
		t.Errorf("visibility = %s", sched.lastQuery.Visibility())
	}
}

func TestXMatch_MalformedUpload(t *testing.T) {
	h := testServer(t, &fakeScheduler{}, nil, nil)
	rec := postJSON(t, h, "/api/xmatch", `{"upload":"garbage only\n"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetDataset_NotFound(t *testing.T) {
	h := testServer(t, &fakeScheduler{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/sets/missing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetDataset_PrivateForbiddenForOthers(t *testing.T) {
	sets := &fakeDatasets{sets: map[string]domds.Dataset{
		"p1": {ID: "p1", Status: domds.StatusComplete, Owner: "alice", Visibility: query.VisibilityPrivate},
	}}
	h := testServer(t, &fakeScheduler{}, sets, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sets/p1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous read: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sets/p1", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), Identity{User: "bob", Private: true}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("other user read: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sets/p1", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), Identity{User: "alice", Private: true}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner read: status = %d", rec.Code)
	}
}

func TestGetDataset_CompleteIncludesArtifactsAndPreview(t *testing.T) {
	sets := &fakeDatasets{sets: map[string]domds.Dataset{
		"d1": {
			ID: "d1", Status: domds.StatusComplete, NMatched: 2,
			Visibility: query.VisibilityPublic,
			CSVPath:    "/tmp/d1.csv", SnapshotPath: "/tmp/d1.snap",
		},
	}}
	art := &fakeArtifacts{preview: asm.Preview{
		Columns: []string{"objectid", "ra", "decl"},
		Rows:    []domds.MatchRow{{Collection: "asas", ObjectID: "o1"}},
		Total:   2,
	}}
	h := testServer(t, &fakeScheduler{}, sets, art)

	req := httptest.NewRequest(http.MethodGet, "/api/sets/d1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var view struct {
		SetID     string            `json:"setid"`
		Status    string            `json:"status"`
		NObjects  int64             `json:"nobjects"`
		Artifacts map[string]string `json:"artifacts"`
		Preview   *asm.Preview      `json:"preview"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Status != scheduleruc.WireOK || view.NObjects != 2 {
		t.Errorf("view = %+v", view)
	}
	if view.Artifacts["csv"] != "/api/sets/d1/csv" {
		t.Errorf("artifacts = %v", view.Artifacts)
	}
	if _, ok := view.Artifacts["bundle"]; ok {
		t.Error("bundle link present without a bundle artifact")
	}
	if view.Preview == nil || view.Preview.Total != 2 {
		t.Errorf("preview = %+v", view.Preview)
	}
}

func TestAuthMiddleware(t *testing.T) {
	secret := "test-secret"
	valid, err := NewSessionToken(secret, "alice", true, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	tampered := valid[:len(valid)-2] + "xx"

	var seen Identity
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := AuthMiddleware([]string{"api-key-1"}, secret)(inner)

	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"no credential", "", http.StatusOK, ""},
		{"api key", "Bearer api-key-1", http.StatusOK, "key:" + keyFingerprint("api-key-1")},
		{"session token", "Bearer " + valid, http.StatusOK, "alice"},
		{"tampered token", "Bearer " + tampered, http.StatusUnauthorized, ""},
		{"unknown key", "Bearer wrong", http.StatusUnauthorized, ""},
		{"bad scheme", "Basic Zm9v", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = Identity{}
			req := httptest.NewRequest(http.MethodGet, "/api/sets/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusOK && seen.User != tc.wantUser {
				t.Errorf("user = %q, want %q", seen.User, tc.wantUser)
			}
		})
	}
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := AuthMiddleware(nil, "")(inner)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health should bypass auth, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RateLimitMiddleware(1, 2)(inner)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/sets/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests rejected: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", codes[2])
	}

	// a different caller has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/api/sets/x", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("independent caller limited: %d", rec.Code)
	}
}

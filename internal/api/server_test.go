package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okulov/selftrack/internal/session"
	"github.com/okulov/selftrack/internal/storage"
)

func setupAppHandler(t *testing.T) (http.Handler, *session.Manager) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mgr := session.NewManager(store, time.Hour)
	handler := NewAppHandler(AppDeps{
		Sessions:       mgr,
		MaxUploadBytes: 1 << 20,
	})
	return handler, mgr
}

func doRequest(t *testing.T, h http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, url, reader))
	return rr
}

func createTestSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := doRequest(t, h, http.MethodPost, "/sessions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("create session status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["id"] == "" {
		t.Fatal("create session response missing id")
	}
	return resp["id"]
}

func uploadCSV(t *testing.T, h http.Handler, sid, csv string) {
	t.Helper()
	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/dataset?format=csv", csv)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d; body = %s", rr.Code, rr.Body.String())
	}
}

const citiesCSV = "city,score\noslo,2\noslo,4\nrome,18\n"

func TestSessionLifecycle(t *testing.T) {
	h, mgr := setupAppHandler(t)

	sid := createTestSession(t, h)
	if mgr.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", mgr.Count())
	}

	rr := doRequest(t, h, http.MethodDelete, "/sessions/"+sid, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if mgr.Count() != 0 {
		t.Errorf("Count() after delete = %d, want 0", mgr.Count())
	}

	// A deleted session is gone.
	rr = doRequest(t, h, http.MethodDelete, "/sessions/"+sid, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestUnknownSession(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := doRequest(t, h, http.MethodGet, "/sessions/no-such-session/dataset/summary", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestUploadAndSummary(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, citiesCSV)

	rr := doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/dataset/summary", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("summary status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var summary struct {
		Rows    int `json:"rows"`
		Cols    int `json:"cols"`
		Columns []struct {
			Name string `json:"name"`
			Kind string `json:"kind"`
		} `json:"columns"`
	}
	json.NewDecoder(rr.Body).Decode(&summary)

	if summary.Rows != 3 || summary.Cols != 2 {
		t.Errorf("shape = %dx%d, want 3x2", summary.Rows, summary.Cols)
	}
	if summary.Columns[0].Kind != "text" || summary.Columns[1].Kind != "number" {
		t.Errorf("column kinds = %q, %q; want text, number", summary.Columns[0].Kind, summary.Columns[1].Kind)
	}
}

func TestUploadBadFormat(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)

	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/dataset?format=parquet", citiesCSV)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestUploadMalformedCSV(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)

	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/dataset?format=csv", "a,b\n1\n")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestPreview(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, citiesCSV)

	rr := doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/dataset?rows=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("preview status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Columns []string          `json:"columns"`
		Rows    int               `json:"rows"`
		Preview []json.RawMessage `json:"preview"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)

	if resp.Rows != 3 {
		t.Errorf("rows = %d, want 3", resp.Rows)
	}
	if len(resp.Preview) != 2 {
		t.Errorf("preview length = %d, want 2", len(resp.Preview))
	}
}

func TestPreviewBeforeUpload(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)

	rr := doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/dataset", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestCleanRemovesDuplicates(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, "a,b\n1,x\n1,x\n2,y\n")

	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/dataset/clean", `{"remove_duplicates":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("clean status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Rows   int `json:"rows"`
		Report struct {
			DuplicatesRemoved int `json:"duplicates_removed"`
		} `json:"report"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)

	if resp.Report.DuplicatesRemoved != 1 {
		t.Errorf("duplicates_removed = %d, want 1", resp.Report.DuplicatesRemoved)
	}
	if resp.Rows != 2 {
		t.Errorf("rows = %d, want 2", resp.Rows)
	}
}

func TestCleanUnknownStrategy(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, citiesCSV)

	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/dataset/clean", `{"missing_strategy":"fill_everything"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCleanUnknownKeepColumn(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, citiesCSV)

	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/dataset/clean", `{"keep_columns":["nope"]}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusNotFound, rr.Body.String())
	}
}

func TestChartBarGroupMeans(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, citiesCSV)

	rr := doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/dataset/chart?x=city&y=score&kind=bar", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("chart status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var series struct {
		Kind   string `json:"kind"`
		Points []struct {
			X string  `json:"x"`
			Y float64 `json:"y"`
		} `json:"points"`
	}
	json.NewDecoder(rr.Body).Decode(&series)

	if series.Kind != "bar" {
		t.Errorf("kind = %q, want bar", series.Kind)
	}
	if len(series.Points) != 2 {
		t.Fatalf("points = %d, want 2", len(series.Points))
	}
	if series.Points[0].X != "oslo" || series.Points[0].Y != 3 {
		t.Errorf("points[0] = (%q, %g), want (oslo, 3)", series.Points[0].X, series.Points[0].Y)
	}
	if series.Points[1].X != "rome" || series.Points[1].Y != 18 {
		t.Errorf("points[1] = (%q, %g), want (rome, 18)", series.Points[1].X, series.Points[1].Y)
	}
}

func TestChartUnsupportedKind(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, citiesCSV)

	rr := doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/dataset/chart?x=city&y=score&kind=pie", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestChartUnknownColumn(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, citiesCSV)

	rr := doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/dataset/chart?x=city&y=altitude&kind=line", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestChartNonNumericY(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, citiesCSV)

	rr := doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/dataset/chart?x=score&y=city&kind=histogram", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestExportCSVRoundTrip(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, citiesCSV)

	rr := doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/dataset/export?format=csv", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if rr.Body.String() != citiesCSV {
		t.Errorf("export body = %q, want %q", rr.Body.String(), citiesCSV)
	}
}

func TestExportJSON(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, citiesCSV)

	rr := doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/dataset/export?format=json", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var rows []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &rows); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0]["city"] != "oslo" {
		t.Errorf("rows[0][city] = %v, want oslo", rows[0]["city"])
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)
	uploadCSV(t, h, sid, citiesCSV)

	rr := doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/dataset/export?format=parquet", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestGoalLifecycle(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)

	body := `{"title":"Run a marathon","category":"health","milestones":["Sign up","Train 12 weeks","Race day"]}`
	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/goals", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("create goal status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var created GoalResponse
	json.NewDecoder(rr.Body).Decode(&created)
	if created.Progress.Percent != 0 || string(created.Progress.Status) != "not_started" {
		t.Errorf("new goal progress = %d/%s, want 0/not_started", created.Progress.Percent, created.Progress.Status)
	}
	if len(created.Milestones) != 3 {
		t.Fatalf("milestones = %d, want 3", len(created.Milestones))
	}

	// Complete one of three milestones: 33%, in progress.
	mid := created.Milestones[0].ID
	rr = doRequest(t, h, http.MethodPatch, "/sessions/"+sid+"/goals/"+created.ID+"/milestones/"+mid, `{"completed":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("set milestone status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var updated GoalResponse
	json.NewDecoder(rr.Body).Decode(&updated)
	if updated.Progress.Percent != 33 || string(updated.Progress.Status) != "in_progress" {
		t.Errorf("progress = %d/%s, want 33/in_progress", updated.Progress.Percent, updated.Progress.Status)
	}

	rr = doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/goals", "")
	var list []GoalResponse
	json.NewDecoder(rr.Body).Decode(&list)
	if len(list) != 1 {
		t.Fatalf("goals = %d, want 1", len(list))
	}

	rr = doRequest(t, h, http.MethodDelete, "/sessions/"+sid+"/goals/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete goal status = %d", rr.Code)
	}
}

func TestGoalBreakdown(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)

	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/goals",
		`{"title":"Sleep 8h","category":"health","milestones":["Week 1","Week 2"]}`)
	var g GoalResponse
	json.NewDecoder(rr.Body).Decode(&g)

	doRequest(t, h, http.MethodPatch, "/sessions/"+sid+"/goals/"+g.ID+"/milestones/"+g.Milestones[0].ID, `{"completed":true}`)

	rr = doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/goals/breakdown", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("breakdown status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var breakdown map[string]float64
	json.NewDecoder(rr.Body).Decode(&breakdown)
	if breakdown["health"] != 50 {
		t.Errorf("breakdown[health] = %g, want 50", breakdown["health"])
	}
}

func TestGoalMissingTitle(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)

	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/goals", `{"category":"health"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestJournalScoreAndTrend(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)

	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/journal",
		`{"text":"I can't do this yet, but I will learn from the mistake"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("create entry status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var entry struct {
		ID    string `json:"id"`
		Score struct {
			Growth int `json:"growth_score"`
			Fixed  int `json:"fixed_score"`
			Net    int `json:"net_score"`
		} `json:"score"`
	}
	json.NewDecoder(rr.Body).Decode(&entry)
	if entry.Score.Growth != 2 || entry.Score.Fixed != 1 || entry.Score.Net != 1 {
		t.Errorf("score = %+v, want growth 2, fixed 1, net 1", entry.Score)
	}

	// Editing re-scores.
	rr = doRequest(t, h, http.MethodPut, "/sessions/"+sid+"/journal/"+entry.ID, `{"text":"natural talent wins"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update entry status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var updated struct {
		Score struct {
			Net int `json:"net_score"`
		} `json:"score"`
	}
	json.NewDecoder(rr.Body).Decode(&updated)
	if updated.Score.Net != -1 {
		t.Errorf("net after edit = %d, want -1", updated.Score.Net)
	}

	rr = doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/journal/trend", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("trend status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var trend []struct {
		Value float64 `json:"value"`
	}
	json.NewDecoder(rr.Body).Decode(&trend)
	if len(trend) != 1 || trend[0].Value != -1 {
		t.Errorf("trend = %+v, want one point at -1", trend)
	}

	rr = doRequest(t, h, http.MethodDelete, "/sessions/"+sid+"/journal/"+entry.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete entry status = %d", rr.Code)
	}
}

func TestJournalUpdateUnknownEntry(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)

	rr := doRequest(t, h, http.MethodPut, "/sessions/"+sid+"/journal/no-such-entry", `{"text":"hello"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestSkillLifecycle(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)

	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/skills",
		`{"name":"Go","category":"engineering","level":3,"target_level":8}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("create skill status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var created struct {
		ID       string `json:"id"`
		Progress int    `json:"progress"`
	}
	json.NewDecoder(rr.Body).Decode(&created)
	if created.Progress != 38 {
		t.Errorf("progress = %d, want 38", created.Progress)
	}

	rr = doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/skills/"+created.ID+"/levels", `{"level":5.5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("record level status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var updated struct {
		CurrentLevel float64 `json:"current_level"`
	}
	json.NewDecoder(rr.Body).Decode(&updated)
	if updated.CurrentLevel != 5.5 {
		t.Errorf("current_level = %g, want 5.5", updated.CurrentLevel)
	}

	rr = doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/skills/radar", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("radar status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var radar []struct {
		Name    string  `json:"name"`
		Current float64 `json:"current"`
		Target  float64 `json:"target"`
	}
	json.NewDecoder(rr.Body).Decode(&radar)
	if len(radar) != 1 || radar[0].Current != 5.5 || radar[0].Target != 8 {
		t.Errorf("radar = %+v, want one point (Go, 5.5, 8)", radar)
	}

	rr = doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/skills/"+created.ID+"/trend", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("trend status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var trend []struct {
		Value float64 `json:"value"`
	}
	json.NewDecoder(rr.Body).Decode(&trend)
	if len(trend) != 2 {
		t.Errorf("trend points = %d, want 2", len(trend))
	}
}

func TestSkillLevelOutOfRange(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)

	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/skills",
		`{"name":"Go","category":"engineering","level":2,"target_level":8}`)
	var created struct {
		ID string `json:"id"`
	}
	json.NewDecoder(rr.Body).Decode(&created)

	rr = doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/skills/"+created.ID+"/levels", `{"level":11}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	// The failed record must not have changed the skill.
	rr = doRequest(t, h, http.MethodGet, "/sessions/"+sid+"/skills/"+created.ID+"/trend", "")
	var trend []struct {
		Value float64 `json:"value"`
	}
	json.NewDecoder(rr.Body).Decode(&trend)
	if len(trend) != 1 {
		t.Errorf("trend points = %d, want 1", len(trend))
	}
}

func TestSkillCreateOutOfRange(t *testing.T) {
	h, _ := setupAppHandler(t)
	sid := createTestSession(t, h)

	rr := doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/skills",
		`{"name":"Go","category":"engineering","level":-1,"target_level":8}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestDeleteSessionWipesEntities(t *testing.T) {
	h, mgr := setupAppHandler(t)
	sid := createTestSession(t, h)

	doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/goals", `{"title":"g","milestones":["m"]}`)
	doRequest(t, h, http.MethodPost, "/sessions/"+sid+"/journal", `{"text":"keep trying"}`)

	rr := doRequest(t, h, http.MethodDelete, "/sessions/"+sid, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}

	if goalsLeft, _ := mgr.Store().Goals(sid); len(goalsLeft) != 0 {
		t.Errorf("goals after delete = %d, want 0", len(goalsLeft))
	}
	if entries, _ := mgr.Store().JournalEntries(sid); len(entries) != 0 {
		t.Errorf("journal entries after delete = %d, want 0", len(entries))
	}
}

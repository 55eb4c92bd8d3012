package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/okulov/selftrack/internal/session"
	"github.com/okulov/selftrack/internal/skills"
	"github.com/okulov/selftrack/internal/storage"
	"github.com/okulov/selftrack/internal/tabular"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, string) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mgr := session.NewManager(store, time.Hour)
	s, err := mgr.Create(time.Now().UTC())
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}

	return MCPDeps{Sessions: mgr}, s.ID
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_DatasetSummary(t *testing.T) {
	deps, sid := newTestMCPDeps(t)

	d, err := tabular.Parse([]byte("city,score\noslo,2\nrome,18\n"), tabular.FormatCSV)
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	if err := deps.Sessions.SetDataset(sid, d); err != nil {
		t.Fatalf("setting dataset: %v", err)
	}

	handler := mcpDatasetSummary(deps)
	result, err := handler(context.Background(), makeCallToolRequest("dataset_summary", map[string]interface{}{
		"session_id": sid,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var summary struct {
		Rows int `json:"rows"`
		Cols int `json:"cols"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &summary); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if summary.Rows != 2 || summary.Cols != 2 {
		t.Errorf("shape = %dx%d, want 2x2", summary.Rows, summary.Cols)
	}
}

func TestMCPTool_DatasetSummary_NoDataset(t *testing.T) {
	deps, sid := newTestMCPDeps(t)

	handler := mcpDatasetSummary(deps)
	result, err := handler(context.Background(), makeCallToolRequest("dataset_summary", map[string]interface{}{
		"session_id": sid,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing dataset")
	}
}

func TestMCPTool_UnknownSession(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	handler := mcpGoalProgress(deps)
	result, err := handler(context.Background(), makeCallToolRequest("goal_progress", map[string]interface{}{
		"session_id": "no-such-session",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown session")
	}
}

func TestMCPTool_ScoreReflection(t *testing.T) {
	handler := mcpScoreReflection()

	result, err := handler(context.Background(), makeCallToolRequest("score_reflection", map[string]interface{}{
		"text": "I will keep trying and learn from every mistake",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var score struct {
		Growth int `json:"growth_score"`
		Net    int `json:"net_score"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &score); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if score.Growth != 3 || score.Net != 3 {
		t.Errorf("score = %+v, want growth 3, net 3", score)
	}
}

func TestMCPTool_LogReflection(t *testing.T) {
	deps, sid := newTestMCPDeps(t)

	handler := mcpLogReflection(deps)
	result, err := handler(context.Background(), makeCallToolRequest("log_reflection", map[string]interface{}{
		"session_id": sid,
		"text":       "practice makes progress",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	entries, err := deps.Sessions.Store().JournalEntries(sid)
	if err != nil {
		t.Fatalf("listing entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Score.Growth != 2 {
		t.Errorf("growth = %d, want 2", entries[0].Score.Growth)
	}
}

func TestMCPTool_RecordSkillLevel(t *testing.T) {
	deps, sid := newTestMCPDeps(t)

	sk, err := skills.New("sk-1", "Go", "engineering", 3, 8, time.Now().UTC())
	if err != nil {
		t.Fatalf("creating skill: %v", err)
	}
	if err := deps.Sessions.Store().SaveSkill(sid, sk); err != nil {
		t.Fatalf("saving skill: %v", err)
	}

	handler := mcpRecordSkillLevel(deps)
	result, err := handler(context.Background(), makeCallToolRequest("record_skill_level", map[string]interface{}{
		"session_id": sid,
		"skill_id":   "sk-1",
		"level":      6.5,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	got, err := deps.Sessions.Store().GetSkill(sid, "sk-1")
	if err != nil {
		t.Fatalf("fetching skill: %v", err)
	}
	if got.CurrentLevel != 6.5 {
		t.Errorf("CurrentLevel = %g, want 6.5", got.CurrentLevel)
	}
}

func TestMCPTool_RecordSkillLevel_OutOfRange(t *testing.T) {
	deps, sid := newTestMCPDeps(t)

	sk, err := skills.New("sk-1", "Go", "engineering", 3, 8, time.Now().UTC())
	if err != nil {
		t.Fatalf("creating skill: %v", err)
	}
	if err := deps.Sessions.Store().SaveSkill(sid, sk); err != nil {
		t.Fatalf("saving skill: %v", err)
	}

	handler := mcpRecordSkillLevel(deps)
	result, err := handler(context.Background(), makeCallToolRequest("record_skill_level", map[string]interface{}{
		"session_id": sid,
		"skill_id":   "sk-1",
		"level":      12.0,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for out-of-range level")
	}

	got, err := deps.Sessions.Store().GetSkill(sid, "sk-1")
	if err != nil {
		t.Fatalf("fetching skill: %v", err)
	}
	if got.CurrentLevel != 3 {
		t.Errorf("CurrentLevel = %g, want unchanged 3", got.CurrentLevel)
	}
}

func TestMCPTool_SkillRadar(t *testing.T) {
	deps, sid := newTestMCPDeps(t)

	for _, name := range []string{"Go", "SQL"} {
		sk, err := skills.New("sk-"+name, name, "engineering", 4, 9, time.Now().UTC())
		if err != nil {
			t.Fatalf("creating skill: %v", err)
		}
		if err := deps.Sessions.Store().SaveSkill(sid, sk); err != nil {
			t.Fatalf("saving skill: %v", err)
		}
	}

	handler := mcpSkillRadar(deps)
	result, err := handler(context.Background(), makeCallToolRequest("skill_radar", map[string]interface{}{
		"session_id": sid,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var radar []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &radar); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if len(radar) != 2 || radar[0].Name != "Go" || radar[1].Name != "SQL" {
		t.Errorf("radar = %+v, want [Go SQL] in creation order", radar)
	}
}

func TestMCPResource_Overview(t *testing.T) {
	deps, sid := newTestMCPDeps(t)

	handler := mcpResourceOverview(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("session://overview"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if !strings.Contains(tc.Text, sid) {
		t.Errorf("overview %q does not mention session %s", tc.Text, sid)
	}
}

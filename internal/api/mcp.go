package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/okulov/selftrack/internal/analyzer"
	"github.com/okulov/selftrack/internal/goals"
	"github.com/okulov/selftrack/internal/journal"
	"github.com/okulov/selftrack/internal/session"
	"github.com/okulov/selftrack/internal/skills"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Sessions *session.Manager
}

// NewMCPServer creates an MCP server with all tracker tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"selftrack",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("selftrack — session-scoped personal tracking: dataset analysis, goals, reflective journaling, and skill levels."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("dataset_summary",
			mcp.WithDescription("Profile the session's uploaded dataset: per-column type, missing counts, and numeric statistics."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpDatasetSummary(deps),
	)

	s.AddTool(
		mcp.NewTool("goal_progress",
			mcp.WithDescription("List the session's goals with completion percentage and status derived from their milestones."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpGoalProgress(deps),
	)

	s.AddTool(
		mcp.NewTool("score_reflection",
			mcp.WithDescription("Score a reflection text for growth-mindset and fixed-mindset language without storing it."),
			mcp.WithString("text", mcp.Description("The reflection text"), mcp.Required()),
		),
		mcpScoreReflection(),
	)

	s.AddTool(
		mcp.NewTool("log_reflection",
			mcp.WithDescription("Store a journal reflection in the session; the text is scored on write."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
			mcp.WithString("text", mcp.Description("The reflection text"), mcp.Required()),
		),
		mcpLogReflection(deps),
	)

	s.AddTool(
		mcp.NewTool("record_skill_level",
			mcp.WithDescription("Record a new level (0-10) for a tracked skill."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
			mcp.WithString("skill_id", mcp.Description("Skill id"), mcp.Required()),
			mcp.WithNumber("level", mcp.Description("New level, 0 to 10"), mcp.Required()),
		),
		mcpRecordSkillLevel(deps),
	)

	s.AddTool(
		mcp.NewTool("skill_radar",
			mcp.WithDescription("Return radar-chart vertices (name, current, target) for the session's skills in creation order."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpSkillRadar(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"session://overview",
			"Live Sessions",
			mcp.WithResourceDescription("Live session ids with creation and last-seen times"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceOverview(deps),
	)

	return s
}

// mcpSession resolves a session_id argument, refreshing the idle timer as
// the HTTP layer does.
func mcpSession(deps MCPDeps, req mcp.CallToolRequest) (*session.Session, *mcp.CallToolResult) {
	sid, err := req.RequireString("session_id")
	if err != nil {
		return nil, mcpError("session_id is required")
	}
	s, err := deps.Sessions.Touch(sid, time.Now().UTC())
	if err != nil {
		return nil, mcpError(fmt.Sprintf("unknown session: %v", err))
	}
	return s, nil
}

func mcpDatasetSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, errResult := mcpSession(deps, req)
		if errResult != nil {
			return errResult, nil
		}

		d, err := deps.Sessions.Dataset(s.ID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load dataset: %v", err)), nil
		}
		if d == nil {
			return mcpError("no dataset uploaded for this session"), nil
		}

		b, err := json.Marshal(analyzer.Summarize(d))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGoalProgress(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, errResult := mcpSession(deps, req)
		if errResult != nil {
			return errResult, nil
		}

		list, err := deps.Sessions.Store().Goals(s.ID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list goals: %v", err)), nil
		}

		out := make([]GoalResponse, len(list))
		for i, g := range list {
			out[i] = GoalResponse{Goal: g, Progress: goals.Compute(g)}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal goals: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpScoreReflection() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		b, err := json.Marshal(journal.ScoreText(text))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal score: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLogReflection(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, errResult := mcpSession(deps, req)
		if errResult != nil {
			return errResult, nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		entry := journal.Entry{
			ID:        uuid.New().String(),
			CreatedAt: time.Now().UTC(),
			Text:      text,
			Score:     journal.ScoreText(text),
		}
		if err := deps.Sessions.Store().SaveJournalEntry(s.ID, entry); err != nil {
			return mcpError(fmt.Sprintf("failed to save entry: %v", err)), nil
		}

		b, err := json.Marshal(entry)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entry: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecordSkillLevel(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, errResult := mcpSession(deps, req)
		if errResult != nil {
			return errResult, nil
		}
		skillID, err := req.RequireString("skill_id")
		if err != nil {
			return mcpError("skill_id is required"), nil
		}
		level, err := req.RequireFloat("level")
		if err != nil {
			return mcpError("level is required and must be a number"), nil
		}

		store := deps.Sessions.Store()
		sk, err := store.GetSkill(s.ID, skillID)
		if err != nil {
			return mcpError(fmt.Sprintf("unknown skill: %v", err)), nil
		}

		at := time.Now().UTC()
		if err := sk.RecordLevel(level, at); err != nil {
			return mcpError(fmt.Sprintf("cannot record level: %v", err)), nil
		}
		if err := store.RecordSkillLevel(s.ID, skillID, skills.HistoryPoint{Timestamp: at, Level: level}); err != nil {
			return mcpError(fmt.Sprintf("failed to record level: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Recorded %s at level %g", sk.Name, level)), nil
	}
}

func mcpSkillRadar(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, errResult := mcpSession(deps, req)
		if errResult != nil {
			return errResult, nil
		}

		list, err := deps.Sessions.Store().Skills(s.ID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list skills: %v", err)), nil
		}

		b, err := json.Marshal(skills.RadarCoordinates(list))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal radar: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceOverview(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type sessionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			LastSeen  string `json:"last_seen"`
		}

		live := deps.Sessions.List()
		summaries := make([]sessionSummary, len(live))
		for i, s := range live {
			summaries[i] = sessionSummary{
				ID:        s.ID,
				CreatedAt: s.CreatedAt.Format(time.RFC3339),
				LastSeen:  s.LastSeen.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

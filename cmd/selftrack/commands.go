package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// sessionFlag reads the required --session flag.
func sessionFlag(cmd *cobra.Command) (string, error) {
	sid, _ := cmd.Flags().GetString("session")
	if sid == "" {
		return "", fmt.Errorf("--session is required")
	}
	return sid, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage tracking sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sessions", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session created")
		fmt.Println(result["id"])
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session and wipe its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/sessions/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session %s ended", args[0])
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionNewCmd)
	sessionCmd.AddCommand(sessionEndCmd)
}

// --- dataset ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a CSV or XLSX file into the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		if format == "" {
			if strings.HasSuffix(strings.ToLower(args[0]), ".xlsx") {
				format = "xlsx"
			} else {
				format = "csv"
			}
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening file: %w", err)
		}
		defer f.Close()

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.doRaw(cmd.Context(), "POST", "/sessions/"+sid+"/dataset?format="+format, f)
		if err != nil {
			return err
		}

		var summary struct {
			Rows int `json:"rows"`
			Cols int `json:"cols"`
		}
		if err := decodeJSON(resp, &summary); err != nil {
			return err
		}

		printSuccess("Uploaded %s (%d rows, %d columns)", args[0], summary.Rows, summary.Cols)
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the per-column dataset profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions/"+sid+"/dataset/summary")
		if err != nil {
			return err
		}

		var summary any
		if err := decodeJSON(resp, &summary); err != nil {
			return err
		}
		return printJSON(summary)
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean the session's dataset",
	Long: `Clean the session's dataset.

Examples:
  selftrack clean --session S --dedupe
  selftrack clean --session S --missing fill_mean
  selftrack clean --session S --missing fill_custom --custom 0.5
  selftrack clean --session S --keep name,score --types score=number`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}

		dedupe, _ := cmd.Flags().GetBool("dedupe")
		missing, _ := cmd.Flags().GetString("missing")
		custom, _ := cmd.Flags().GetString("custom")
		keep, _ := cmd.Flags().GetString("keep")
		types, _ := cmd.Flags().GetString("types")

		req := map[string]any{
			"remove_duplicates": dedupe,
			"missing_strategy":  missing,
		}
		if custom != "" {
			req["custom_value"] = parseCellValue(custom)
		}
		if keep != "" {
			req["keep_columns"] = splitTrimmed(keep)
		}
		if types != "" {
			overrides := make(map[string]string)
			for _, pair := range splitTrimmed(types) {
				col, kind, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid --types entry %q (want column=type)", pair)
				}
				overrides[col] = kind
			}
			req["type_overrides"] = overrides
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sessions/"+sid+"/dataset/clean", req)
		if err != nil {
			return err
		}

		var result struct {
			Rows   int `json:"rows"`
			Report struct {
				DuplicatesRemoved int `json:"duplicates_removed"`
				RowsDropped       int `json:"rows_dropped"`
				CellsFilled       int `json:"cells_filled"`
				CellsCoerced      int `json:"cells_coerced"`
				Issues            []struct {
					Column string `json:"column"`
					Reason string `json:"reason"`
				} `json:"issues"`
			} `json:"report"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Cleaned: %d rows remain", result.Rows)
		printStatus("Duplicates removed", "%d", result.Report.DuplicatesRemoved)
		printStatus("Rows dropped", "%d", result.Report.RowsDropped)
		printStatus("Cells filled", "%d", result.Report.CellsFilled)
		printStatus("Cells coerced", "%d", result.Report.CellsCoerced)
		for _, issue := range result.Report.Issues {
			printWarning("column %s: %s", issue.Column, issue.Reason)
		}
		return nil
	},
}

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Compute chart series for two columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}
		x, _ := cmd.Flags().GetString("x")
		y, _ := cmd.Flags().GetString("y")
		kind, _ := cmd.Flags().GetString("kind")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/sessions/%s/dataset/chart?x=%s&y=%s&kind=%s", sid, x, y, kind)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var series any
		if err := decodeJSON(resp, &series); err != nil {
			return err
		}
		return printJSON(series)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the session's dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions/"+sid+"/dataset/export?format="+format)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		writer := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		if _, err := writer.ReadFrom(resp.Body); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		if output != "" {
			printSuccess("Exported to %s", output)
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("session", "", "session id")
	uploadCmd.Flags().String("format", "", "upload format: csv or xlsx (default: by file extension)")

	summaryCmd.Flags().String("session", "", "session id")

	cleanCmd.Flags().String("session", "", "session id")
	cleanCmd.Flags().Bool("dedupe", false, "remove duplicate rows")
	cleanCmd.Flags().String("missing", "", "missing-value strategy: drop_rows, fill_mean, fill_median, fill_mode, fill_zero, fill_custom")
	cleanCmd.Flags().String("custom", "", "fill value for fill_custom")
	cleanCmd.Flags().String("keep", "", "comma-separated columns to keep")
	cleanCmd.Flags().String("types", "", "comma-separated column=type overrides")

	chartCmd.Flags().String("session", "", "session id")
	chartCmd.Flags().String("x", "", "x column")
	chartCmd.Flags().String("y", "", "y column")
	chartCmd.Flags().String("kind", "line", "chart kind: line, bar, scatter, histogram, box")

	exportCmd.Flags().String("session", "", "session id")
	exportCmd.Flags().String("format", "csv", "export format: csv, xlsx, or json")
	exportCmd.Flags().String("output", "", "output file path (default: stdout)")
}

// --- goals ---

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Track goals and milestones",
}

var goalAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a goal with milestones",
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}
		title, _ := cmd.Flags().GetString("title")
		category, _ := cmd.Flags().GetString("category")
		due, _ := cmd.Flags().GetString("due")
		milestones, _ := cmd.Flags().GetString("milestones")

		req := map[string]any{
			"title":    title,
			"category": category,
		}
		if due != "" {
			req["target_date"] = due
		}
		if milestones != "" {
			req["milestones"] = splitTrimmed(milestones)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sessions/"+sid+"/goals", req)
		if err != nil {
			return err
		}

		var goal struct {
			ID         string `json:"id"`
			Milestones []struct {
				ID          string `json:"id"`
				Description string `json:"description"`
			} `json:"milestones"`
		}
		if err := decodeJSON(resp, &goal); err != nil {
			return err
		}

		printSuccess("Goal %s created", goal.ID)
		for _, m := range goal.Milestones {
			printStatus(m.ID, "%s", m.Description)
		}
		return nil
	},
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals with progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions/"+sid+"/goals")
		if err != nil {
			return err
		}

		var goals []struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			Category string `json:"category"`
			Progress struct {
				Percent int    `json:"percent"`
				Status  string `json:"status"`
			} `json:"progress"`
		}
		if err := decodeJSON(resp, &goals); err != nil {
			return err
		}

		if len(goals) == 0 {
			printWarning("No goals yet")
			return nil
		}
		for _, g := range goals {
			fmt.Printf("  %s  %3d%%  %-12s %s (%s)\n", g.ID, g.Progress.Percent, statusColor(g.Progress.Status), g.Title, g.Category)
		}
		return nil
	},
}

var goalBreakdownCmd = &cobra.Command{
	Use:   "breakdown",
	Short: "Average goal progress per category",
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions/"+sid+"/goals/breakdown")
		if err != nil {
			return err
		}

		var breakdown map[string]float64
		if err := decodeJSON(resp, &breakdown); err != nil {
			return err
		}
		return printJSON(breakdown)
	},
}

var goalDoneCmd = &cobra.Command{
	Use:   "done <goal-id> <milestone-id>",
	Short: "Mark a milestone as completed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/sessions/%s/goals/%s/milestones/%s", sid, args[0], args[1])
		resp, err := client.patch(cmd.Context(), path, map[string]bool{"completed": true})
		if err != nil {
			return err
		}

		var goal struct {
			Progress struct {
				Percent int    `json:"percent"`
				Status  string `json:"status"`
			} `json:"progress"`
		}
		if err := decodeJSON(resp, &goal); err != nil {
			return err
		}

		printSuccess("Milestone done — goal at %d%% (%s)", goal.Progress.Percent, goal.Progress.Status)
		return nil
	},
}

var goalRemoveCmd = &cobra.Command{
	Use:   "rm <goal-id>",
	Short: "Delete a goal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/sessions/"+sid+"/goals/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Goal %s deleted", args[0])
		return nil
	},
}

func init() {
	goalAddCmd.Flags().String("session", "", "session id")
	goalAddCmd.Flags().String("title", "", "goal title")
	goalAddCmd.Flags().String("category", "", "goal category")
	goalAddCmd.Flags().String("due", "", "target date (RFC3339)")
	goalAddCmd.Flags().String("milestones", "", "comma-separated milestone descriptions")

	goalListCmd.Flags().String("session", "", "session id")
	goalBreakdownCmd.Flags().String("session", "", "session id")
	goalDoneCmd.Flags().String("session", "", "session id")
	goalRemoveCmd.Flags().String("session", "", "session id")

	goalCmd.AddCommand(goalAddCmd)
	goalCmd.AddCommand(goalListCmd)
	goalCmd.AddCommand(goalBreakdownCmd)
	goalCmd.AddCommand(goalDoneCmd)
	goalCmd.AddCommand(goalRemoveCmd)
}

// --- journal ---

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Reflective journal entries",
}

var journalAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a journal entry (scored on write)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sessions/"+sid+"/journal", map[string]string{"text": args[0]})
		if err != nil {
			return err
		}

		var entry struct {
			ID    string `json:"id"`
			Score struct {
				Growth int `json:"growth_score"`
				Fixed  int `json:"fixed_score"`
				Net    int `json:"net_score"`
			} `json:"score"`
		}
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}

		printSuccess("Entry %s saved", entry.ID)
		printStatus("Growth", "%d", entry.Score.Growth)
		printStatus("Fixed", "%d", entry.Score.Fixed)
		printStatus("Net", "%+d", entry.Score.Net)
		return nil
	},
}

var journalTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show net mindset score over time",
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions/"+sid+"/journal/trend")
		if err != nil {
			return err
		}

		var trend []struct {
			Timestamp string  `json:"timestamp"`
			Value     float64 `json:"value"`
		}
		if err := decodeJSON(resp, &trend); err != nil {
			return err
		}

		for _, p := range trend {
			fmt.Printf("  %s  %+g\n", p.Timestamp, p.Value)
		}
		return nil
	},
}

func init() {
	journalAddCmd.Flags().String("session", "", "session id")
	journalTrendCmd.Flags().String("session", "", "session id")

	journalCmd.AddCommand(journalAddCmd)
	journalCmd.AddCommand(journalTrendCmd)
}

// --- skills ---

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Track skill levels",
}

var skillAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Start tracking a skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}
		category, _ := cmd.Flags().GetString("category")
		level, _ := cmd.Flags().GetFloat64("level")
		target, _ := cmd.Flags().GetFloat64("target")

		req := map[string]any{
			"name":         args[0],
			"category":     category,
			"level":        level,
			"target_level": target,
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sessions/"+sid+"/skills", req)
		if err != nil {
			return err
		}

		var skill struct {
			ID       string `json:"id"`
			Progress int    `json:"progress"`
		}
		if err := decodeJSON(resp, &skill); err != nil {
			return err
		}

		printSuccess("Skill %s tracked (%d%% of target)", skill.ID, skill.Progress)
		return nil
	},
}

var skillLevelCmd = &cobra.Command{
	Use:   "level <skill-id> <level>",
	Short: "Record a new level for a skill",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}
		level, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid level %q: %w", args[1], err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/sessions/%s/skills/%s/levels", sid, args[0])
		resp, err := client.post(cmd.Context(), path, map[string]float64{"level": level})
		if err != nil {
			return err
		}

		var skill struct {
			Name         string  `json:"name"`
			CurrentLevel float64 `json:"current_level"`
			Progress     int     `json:"progress"`
		}
		if err := decodeJSON(resp, &skill); err != nil {
			return err
		}

		printSuccess("%s now at level %g (%d%% of target)", skill.Name, skill.CurrentLevel, skill.Progress)
		return nil
	},
}

var skillRadarCmd = &cobra.Command{
	Use:   "radar",
	Short: "Show radar-chart coordinates for all skills",
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := sessionFlag(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions/"+sid+"/skills/radar")
		if err != nil {
			return err
		}

		var radar []struct {
			Name    string  `json:"name"`
			Current float64 `json:"current"`
			Target  float64 `json:"target"`
		}
		if err := decodeJSON(resp, &radar); err != nil {
			return err
		}

		for _, p := range radar {
			fmt.Printf("  %-20s %4.1f / %.1f\n", p.Name, p.Current, p.Target)
		}
		return nil
	},
}

func init() {
	skillAddCmd.Flags().String("session", "", "session id")
	skillAddCmd.Flags().String("category", "", "skill category")
	skillAddCmd.Flags().Float64("level", 0, "current level (0-10)")
	skillAddCmd.Flags().Float64("target", 10, "target level (0-10)")

	skillLevelCmd.Flags().String("session", "", "session id")
	skillRadarCmd.Flags().String("session", "", "session id")

	skillCmd.AddCommand(skillAddCmd)
	skillCmd.AddCommand(skillLevelCmd)
	skillCmd.AddCommand(skillRadarCmd)
}

// --- helpers ---

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseCellValue interprets a CLI fill value the way the upload parser
// classifies cells: number, then boolean, then text.
func parseCellValue(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

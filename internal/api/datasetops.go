package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okulov/selftrack/internal/analyzer"
	"github.com/okulov/selftrack/internal/cleaner"
	"github.com/okulov/selftrack/internal/dataset"
	"github.com/okulov/selftrack/internal/tabular"
)

const defaultPreviewRows = 10

// sessionDataset fetches the session's dataset; uploads must precede every
// other dataset operation. On failure the error response has already been
// written.
func sessionDataset(deps AppDeps, w http.ResponseWriter, sid string) (*dataset.Dataset, bool) {
	d, err := deps.Sessions.Dataset(sid)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load dataset: %v", err)
		return nil, false
	}
	if d == nil {
		httpError(w, http.StatusNotFound, "not_found", "no dataset uploaded for this session")
		return nil, false
	}
	return d, true
}

func handleUploadDataset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}

		formatParam := r.URL.Query().Get("format")
		if formatParam == "" {
			formatParam = "csv"
		}
		format, err := tabular.ParseUploadFormat(formatParam)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, int64(deps.MaxUploadBytes))
		defer r.Body.Close()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read upload: %v", err)
			return
		}

		d, err := tabular.Parse(data, format)
		if err != nil {
			if errors.Is(err, tabular.ErrParse) || errors.Is(err, tabular.ErrUnsupportedFormat) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to parse upload: %v", err)
			return
		}

		if err := deps.Sessions.SetDataset(s.ID, d); err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, analyzer.Summarize(d))
	}
}

func handlePreviewDataset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}
		d, ok := sessionDataset(deps, w, s.ID)
		if !ok {
			return
		}

		n := parseIntParam(r, "rows", defaultPreviewRows, 100)

		writeJSON(w, map[string]any{
			"columns": d.Columns,
			"rows":    d.NumRows(),
			"cols":    len(d.Columns),
			"preview": d.Head(n),
		})
	}
}

func handleDatasetSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}
		d, ok := sessionDataset(deps, w, s.ID)
		if !ok {
			return
		}

		writeJSON(w, analyzer.Summarize(d))
	}
}

type CleanRequest struct {
	RemoveDuplicates bool              `json:"remove_duplicates"`
	MissingStrategy  string            `json:"missing_strategy"`
	CustomValue      dataset.Value     `json:"custom_value"`
	TypeOverrides    map[string]string `json:"type_overrides"`
	KeepColumns      []string          `json:"keep_columns"`
}

func handleCleanDataset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}
		d, ok := sessionDataset(deps, w, s.ID)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CleanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		opts, err := cleanOptions(req)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		cleaned, report, err := cleaner.Clean(d, opts)
		if err != nil {
			engineError(w, err)
			return
		}

		if err := deps.Sessions.SetDataset(s.ID, cleaned); err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, map[string]any{
			"report": report,
			"rows":   cleaned.NumRows(),
			"cols":   len(cleaned.Columns),
		})
	}
}

// cleanOptions validates the raw request at the boundary: unknown strategy
// or type names are rejected before the engine runs.
func cleanOptions(req CleanRequest) (cleaner.Options, error) {
	strategy, err := cleaner.ParseMissingStrategy(req.MissingStrategy)
	if err != nil {
		return cleaner.Options{}, err
	}

	var overrides map[string]dataset.Kind
	if len(req.TypeOverrides) > 0 {
		overrides = make(map[string]dataset.Kind, len(req.TypeOverrides))
		for col, name := range req.TypeOverrides {
			kind, err := dataset.ParseKind(name)
			if err != nil {
				return cleaner.Options{}, fmt.Errorf("type override for column %q: %w", col, err)
			}
			overrides[col] = kind
		}
	}

	return cleaner.Options{
		RemoveDuplicates: req.RemoveDuplicates,
		MissingStrategy:  strategy,
		CustomValue:      req.CustomValue,
		TypeOverrides:    overrides,
		KeepColumns:      req.KeepColumns,
	}, nil
}

func handleDatasetChart(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}
		d, ok := sessionDataset(deps, w, s.ID)
		if !ok {
			return
		}

		kind, err := analyzer.ParseChartKind(r.URL.Query().Get("kind"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		series, err := analyzer.SeriesForChart(d, r.URL.Query().Get("x"), r.URL.Query().Get("y"), kind)
		if err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, series)
	}
}

func handleExportDataset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}
		d, ok := sessionDataset(deps, w, s.ID)
		if !ok {
			return
		}

		formatParam := r.URL.Query().Get("format")
		if formatParam == "" {
			formatParam = "csv"
		}
		format, err := tabular.ParseExportFormat(formatParam)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		data, err := tabular.Export(d, format)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to export dataset: %v", err)
			return
		}

		w.Header().Set("Content-Type", exportContentType(format))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "dataset."+string(format)))
		w.Write(data)
	}
}

func exportContentType(format tabular.Format) string {
	switch format {
	case tabular.FormatCSV:
		return "text/csv"
	case tabular.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

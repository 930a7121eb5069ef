package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jkoval/apptrack/internal/pipeline"
	"github.com/jkoval/apptrack/internal/status"
	"github.com/jkoval/apptrack/internal/storage"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store:  store,
		Runner: &stubRunner{report: pipeline.Report{RunID: "r1", Processed: 2}},
	}, store
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

func seedApps(t *testing.T, store *storage.Store) {
	t.Helper()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	apps := []storage.Application{
		{ID: "a1", Company: "Acme", JobTitle: "Dev", Status: status.Applied, PeakStatus: status.Applied},
		{ID: "a2", Company: "Globex", JobTitle: "PM", Status: status.Rejected, PeakStatus: status.Interview},
		{ID: "a3", Company: status.ManualReview, JobTitle: status.ManualReview, Status: status.ManualReview, PeakStatus: status.Applied},
	}
	for _, a := range apps {
		a.ProcessedAt, a.EmailDate, a.LastUpdate = now, now, now
		if _, err := store.InsertApplication(a); err != nil {
			t.Fatalf("seeding %s: %v", a.ID, err)
		}
	}
}

func TestMCPListApplications(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedApps(t, store)

	handler := mcpListApplications(deps)
	result, err := handler(context.Background(), makeCallToolRequest("list_applications", nil))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if result.IsError {
		t.Fatalf("IsError = true: %s", toolText(t, result))
	}

	var views []applicationView
	if err := json.Unmarshal([]byte(toolText(t, result)), &views); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if len(views) != 3 {
		t.Errorf("len = %d, want 3", len(views))
	}
}

func TestMCPListApplications_Filters(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedApps(t, store)

	handler := mcpListApplications(deps)
	result, err := handler(context.Background(), makeCallToolRequest("list_applications", map[string]interface{}{
		"status":  "Rejected",
		"company": "glo",
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	var views []applicationView
	if err := json.Unmarshal([]byte(toolText(t, result)), &views); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if len(views) != 1 || views[0].Company != "Globex" {
		t.Errorf("views = %+v", views)
	}
}

func TestMCPFunnel(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedApps(t, store)

	handler := mcpFunnel(deps)
	result, err := handler(context.Background(), makeCallToolRequest("application_funnel", nil))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	var agg map[string]json.RawMessage
	if err := json.Unmarshal([]byte(toolText(t, result)), &agg); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	for _, key := range []string{"funnel", "peak_funnel", "platforms", "weekly"} {
		if _, ok := agg[key]; !ok {
			t.Errorf("aggregates missing %q", key)
		}
	}
}

func TestMCPProcessInbox(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	handler := mcpProcessInbox(deps)
	result, err := handler(context.Background(), makeCallToolRequest("process_inbox", nil))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if result.IsError {
		t.Fatalf("IsError = true: %s", toolText(t, result))
	}

	var report pipeline.Report
	if err := json.Unmarshal([]byte(toolText(t, result)), &report); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if report.RunID != "r1" || report.Processed != 2 {
		t.Errorf("report = %+v", report)
	}

	saved, err := store.GetSetting("last_run_report")
	if err != nil || saved == "" {
		t.Errorf("report not saved: %q, %v", saved, err)
	}
}

func TestMCPProcessInbox_NoRunner(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Runner = nil

	handler := mcpProcessInbox(deps)
	result, err := handler(context.Background(), makeCallToolRequest("process_inbox", nil))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !result.IsError {
		t.Error("IsError = false, want error result without a runner")
	}
}

func TestMCPResourceReview(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedApps(t, store)

	handler := mcpResourceReview(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("tracker://review"))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(text.Text), &rows); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != "a3" {
		t.Errorf("review rows = %+v, want only the sentinel row", rows)
	}
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkoval/apptrack/internal/aggregate"
	"github.com/jkoval/apptrack/internal/status"
	"github.com/jkoval/apptrack/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Runner Runner // optional; if nil, process_inbox returns an error
}

// NewMCPServer creates an MCP server with the tracker tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"apptrack",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("apptrack — local job application tracker built from inbox email."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_applications",
			mcp.WithDescription("List tracked job applications, optionally filtered by status or company substring."),
			mcp.WithString("status", mcp.Description("Filter by exact status (e.g. Applied, Rejected)")),
			mcp.WithString("company", mcp.Description("Filter by case-insensitive company substring")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 50)")),
		),
		mcpListApplications(deps),
	)

	s.AddTool(
		mcp.NewTool("application_funnel",
			mcp.WithDescription("Return funnel, peak funnel, platform and weekly aggregates over all tracked applications."),
		),
		mcpFunnel(deps),
	)

	s.AddTool(
		mcp.NewTool("process_inbox",
			mcp.WithDescription("Fetch pending inbox threads, classify them and update the tracker. Returns a run report."),
		),
		mcpProcessInbox(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"tracker://aggregates",
			"Application Aggregates",
			mcp.WithResourceDescription("Funnel, platform and weekly aggregates as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAggregates(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"tracker://review",
			"Applications Needing Review",
			mcp.WithResourceDescription("Rows with unresolved company or title, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceReview(deps),
	)

	return s
}

func mcpListApplications(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		statusFilter := req.GetString("status", "")
		companyFilter := strings.ToLower(req.GetString("company", ""))

		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}
		if limit > 500 {
			limit = 500
		}

		rows, err := deps.Store.ListApplications()
		if err != nil {
			return mcpError(fmt.Sprintf("listing applications: %v", err)), nil
		}

		views := make([]applicationView, 0, len(rows))
		for _, a := range rows {
			if statusFilter != "" && !strings.EqualFold(a.Status, statusFilter) {
				continue
			}
			if companyFilter != "" && !strings.Contains(strings.ToLower(a.Company), companyFilter) {
				continue
			}
			views = append(views, toView(a))
			if len(views) >= limit {
				break
			}
		}

		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpFunnel(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := aggregatesJSON(deps.Store)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpProcessInbox(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Runner == nil {
			return mcpError("inbox processing not available: no mail source configured"), nil
		}

		report, err := deps.Runner.Run(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("run failed: %v", err)), nil
		}

		if data, err := json.Marshal(report); err == nil {
			if err := deps.Store.SetSetting(lastReportKey, string(data)); err != nil {
				return mcpError(fmt.Sprintf("run finished but saving report failed: %v", err)), nil
			}
			return mcpText(string(data)), nil
		}
		return mcpText(fmt.Sprintf("processed %d messages", report.Processed)), nil
	}
}

func aggregatesJSON(store *storage.Store) ([]byte, error) {
	rows, err := store.ListApplications()
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	agg := aggregate.Compute(rows)
	return json.Marshal(map[string]any{
		"funnel":      agg.Funnel,
		"peak_funnel": aggregate.PeakFunnel(rows),
		"platforms":   agg.Platforms,
		"weekly":      agg.Weekly,
	})
}

func mcpResourceAggregates(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := aggregatesJSON(deps.Store)
		if err != nil {
			return nil, err
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

func mcpResourceReview(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		rows, err := deps.Store.ListApplications()
		if err != nil {
			return nil, fmt.Errorf("listing applications: %w", err)
		}

		type reviewRow struct {
			ID           string `json:"id"`
			Company      string `json:"company"`
			JobTitle     string `json:"job_title"`
			Status       string `json:"status"`
			EmailSubject string `json:"email_subject"`
			EmailLink    string `json:"email_link"`
			EmailDate    string `json:"email_date"`
		}

		var review []reviewRow
		for _, a := range rows {
			if a.Company != status.ManualReview && a.JobTitle != status.ManualReview && a.Status != status.ManualReview {
				continue
			}
			review = append(review, reviewRow{
				ID:           a.ID,
				Company:      a.Company,
				JobTitle:     a.JobTitle,
				Status:       a.Status,
				EmailSubject: a.EmailSubject,
				EmailLink:    a.EmailLink,
				EmailDate:    a.EmailDate.UTC().Format(time.RFC3339),
			})
		}

		b, err := json.Marshal(review)
		if err != nil {
			return nil, fmt.Errorf("marshaling review rows: %w", err)
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

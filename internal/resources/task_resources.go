package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/ticktick-mcp/internal/server"
	"github.com/teemow/ticktick-mcp/internal/ticktick"
)

// Resource URIs exposed by the server.
const (
	URIAllTasks   = "ticktick://tasks/all"
	URIInboxTasks = "ticktick://tasks/inbox"
	URIProjects   = "ticktick://projects"

	uriProjectTasksTemplate = "ticktick://tasks/project/{id}"
	uriSearchTemplate       = "ticktick://tasks/search/{query}"

	uriProjectTasksPrefix = "ticktick://tasks/project/"
	uriSearchPrefix       = "ticktick://tasks/search/"
)

// RegisterTaskResources registers the read-only task and project
// resources. All handlers go through the task service, so resource reads
// share the cache with tool calls.
func RegisterTaskResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	allTasks := mcp.NewResource(
		URIAllTasks,
		"All Tasks",
		mcp.WithResourceDescription("All active tasks across all projects"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(allTasks, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleTaskListing(ctx, request, sc, "")
	})

	inboxTasks := mcp.NewResource(
		URIInboxTasks,
		"Inbox Tasks",
		mcp.WithResourceDescription("Tasks that are not assigned to any project"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(inboxTasks, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleInboxTasks(ctx, request, sc)
	})

	projects := mcp.NewResource(
		URIProjects,
		"Projects",
		mcp.WithResourceDescription("All projects (task lists)"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(projects, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleProjects(ctx, request, sc)
	})

	projectTasks := mcp.NewResourceTemplate(
		uriProjectTasksTemplate,
		"Project Tasks",
		mcp.WithTemplateDescription("Tasks belonging to a specific project"),
		mcp.WithTemplateMIMEType("application/json"),
	)
	s.AddResourceTemplate(projectTasks, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		projectID, err := pathSuffix(request.Params.URI, uriProjectTasksPrefix)
		if err != nil {
			return nil, err
		}
		return handleTaskListing(ctx, request, sc, projectID)
	})

	searchTasks := mcp.NewResourceTemplate(
		uriSearchTemplate,
		"Task Search",
		mcp.WithTemplateDescription("Tasks matching a search query"),
		mcp.WithTemplateMIMEType("application/json"),
	)
	s.AddResourceTemplate(searchTasks, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleSearch(ctx, request, sc)
	})

	return nil
}

// pathSuffix extracts and URL-decodes the variable part of a templated
// resource URI.
func pathSuffix(uri, prefix string) (string, error) {
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("unexpected resource URI: %s", uri)
	}
	raw := strings.TrimPrefix(uri, prefix)
	if raw == "" {
		return "", fmt.Errorf("resource URI %s is missing its identifier", uri)
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid resource URI %s: %w", uri, err)
	}
	return decoded, nil
}

func handleTaskListing(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext, projectID string) ([]mcp.ResourceContents, error) {
	tasks, err := sc.Service().GetTasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return jsonContents(request.Params.URI, tasks)
}

func handleInboxTasks(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	all, err := sc.Service().GetTasks(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	inbox := make([]ticktick.Task, 0, len(all))
	for _, t := range all {
		if t.ProjectID == "" {
			inbox = append(inbox, t)
		}
	}
	return jsonContents(request.Params.URI, inbox)
}

func handleProjects(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	projects, err := sc.Service().GetProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return jsonContents(request.Params.URI, projects)
}

func handleSearch(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	query, err := pathSuffix(request.Params.URI, uriSearchPrefix)
	if err != nil {
		return nil, err
	}

	results, err := sc.Service().SearchTasks(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search tasks: %w", err)
	}
	return jsonContents(request.Params.URI, results)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

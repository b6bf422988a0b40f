package task_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/ticktick-mcp/internal/server"
	"github.com/teemow/ticktick-mcp/internal/tasks"
	"github.com/teemow/ticktick-mcp/internal/tools/common"
)

// RegisterTaskTools registers all task-related tools with the MCP server.
// Write tools are only registered when readOnly is false.
func RegisterTaskTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	registerReadTools(s, sc)

	if !readOnly {
		registerWriteTools(s, sc)
	}

	return nil
}

func registerReadTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	getTasksTool := mcp.NewTool("ticktick_get_tasks",
		mcp.WithDescription("List active tasks, optionally scoped to a single project"),
		mcp.WithString("projectId",
			mcp.Description("Project ID to list tasks from. Omit to list tasks across all projects."),
		),
	)

	s.AddTool(getTasksTool, common.InstrumentedToolHandler("ticktick_get_tasks", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		projectID, _ := args["projectId"].(string)

		result, err := sc.Service().GetTasks(ctx, projectID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list tasks: %v", err)), nil
		}

		return jsonResult(result)
	}))

	getTaskTool := mcp.NewTool("ticktick_get_task",
		mcp.WithDescription("Get a single task by its ID"),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task to retrieve"),
		),
	)

	s.AddTool(getTaskTool, common.InstrumentedToolHandler("ticktick_get_task", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		taskID, ok := args["taskId"].(string)
		if !ok || taskID == "" {
			return mcp.NewToolResultError("taskId is required"), nil
		}

		task, err := sc.Service().GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task: %v", err)), nil
		}

		return jsonResult(task)
	}))

	getProjectsTool := mcp.NewTool("ticktick_get_projects",
		mcp.WithDescription("List all projects (task lists)"),
	)

	s.AddTool(getProjectsTool, common.InstrumentedToolHandler("ticktick_get_projects", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, err := sc.Service().GetProjects(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list projects: %v", err)), nil
		}

		return jsonResult(projects)
	}))

	searchTasksTool := mcp.NewTool("ticktick_search_tasks",
		mcp.WithDescription("Search tasks by keyword"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query to match against task titles and content"),
		),
	)

	s.AddTool(searchTasksTool, common.InstrumentedToolHandler("ticktick_search_tasks", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		query, ok := args["query"].(string)
		if !ok || query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		results, err := sc.Service().SearchTasks(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to search tasks: %v", err)), nil
		}

		return jsonResult(results)
	}))
}

func registerWriteTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	createTaskTool := mcp.NewTool("ticktick_create_task",
		mcp.WithDescription("Create a new task"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("The title of the task"),
		),
		mcp.WithString("content",
			mcp.Description("Task notes or description"),
		),
		mcp.WithString("projectId",
			mcp.Description("Project to create the task in. Omit for the inbox."),
		),
		mcp.WithString("startDate",
			mcp.Description("Start date in RFC3339 format (e.g. 2026-09-01T09:00:00Z)"),
		),
		mcp.WithString("dueDate",
			mcp.Description("Due date in RFC3339 format (e.g. 2026-09-01T17:00:00Z)"),
		),
		mcp.WithNumber("priority",
			mcp.Description("Priority: 0 (none), 1 (low), 3 (medium), 5 (high)"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated list of tags"),
		),
	)

	s.AddTool(createTaskTool, common.InstrumentedToolHandler("ticktick_create_task", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		title, ok := args["title"].(string)
		if !ok || title == "" {
			return mcp.NewToolResultError("title is required"), nil
		}

		input := tasks.CreateTaskInput{
			Title: title,
		}
		input.Content, _ = args["content"].(string)
		input.ProjectID, _ = args["projectId"].(string)

		var err error
		if input.StartDate, err = parseDateArg(args, "startDate"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if input.DueDate, err = parseDateArg(args, "dueDate"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if priority, ok := args["priority"].(float64); ok {
			input.Priority = int(priority)
		}
		input.Tags = parseTagsArg(args)

		created, err := sc.Service().CreateTask(ctx, input)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to create task: %v", err)), nil
		}

		return jsonResult(created)
	}))

	updateTaskTool := mcp.NewTool("ticktick_update_task",
		mcp.WithDescription("Update fields of an existing task. Only the provided fields are changed."),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task to update"),
		),
		mcp.WithString("title",
			mcp.Description("New title"),
		),
		mcp.WithString("content",
			mcp.Description("New notes or description"),
		),
		mcp.WithString("projectId",
			mcp.Description("Move the task to this project"),
		),
		mcp.WithString("startDate",
			mcp.Description("New start date in RFC3339 format"),
		),
		mcp.WithString("dueDate",
			mcp.Description("New due date in RFC3339 format"),
		),
		mcp.WithNumber("priority",
			mcp.Description("New priority: 0 (none), 1 (low), 3 (medium), 5 (high)"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated list of tags, replacing existing tags"),
		),
	)

	s.AddTool(updateTaskTool, common.InstrumentedToolHandler("ticktick_update_task", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		taskID, ok := args["taskId"].(string)
		if !ok || taskID == "" {
			return mcp.NewToolResultError("taskId is required"), nil
		}

		var input tasks.UpdateTaskInput
		input.Title, _ = args["title"].(string)
		input.Content, _ = args["content"].(string)
		input.ProjectID, _ = args["projectId"].(string)

		var err error
		if input.StartDate, err = parseDateArg(args, "startDate"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if input.DueDate, err = parseDateArg(args, "dueDate"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if priority, ok := args["priority"].(float64); ok {
			p := int(priority)
			input.Priority = &p
		}
		input.Tags = parseTagsArg(args)

		updated, err := sc.Service().UpdateTask(ctx, taskID, input)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to update task: %v", err)), nil
		}

		return jsonResult(updated)
	}))

	completeTaskTool := mcp.NewTool("ticktick_complete_task",
		mcp.WithDescription("Mark a task as completed"),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task to complete"),
		),
	)

	s.AddTool(completeTaskTool, common.InstrumentedToolHandler("ticktick_complete_task", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		taskID, ok := args["taskId"].(string)
		if !ok || taskID == "" {
			return mcp.NewToolResultError("taskId is required"), nil
		}

		completed, err := sc.Service().CompleteTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to complete task: %v", err)), nil
		}

		return jsonResult(completed)
	}))

	deleteTaskTool := mcp.NewTool("ticktick_delete_task",
		mcp.WithDescription("Delete a task permanently"),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task to delete"),
		),
	)

	s.AddTool(deleteTaskTool, common.InstrumentedToolHandler("ticktick_delete_task", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		taskID, ok := args["taskId"].(string)
		if !ok || taskID == "" {
			return mcp.NewToolResultError("taskId is required"), nil
		}

		if err := sc.Service().DeleteTask(ctx, taskID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to delete task: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task %s deleted", taskID)), nil
	}))
}

// parseDateArg parses an optional RFC3339 date argument.
func parseDateArg(args map[string]interface{}, key string) (*time.Time, error) {
	raw, ok := args[key].(string)
	if !ok || raw == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be in RFC3339 format (e.g. 2026-09-01T09:00:00Z): %v", key, err)
	}
	return &t, nil
}

// parseTagsArg splits the comma-separated tags argument, dropping empty
// entries. Returns nil when the argument is absent so updates leave
// existing tags alone.
func parseTagsArg(args map[string]interface{}) []string {
	raw, ok := args["tags"].(string)
	if !ok || raw == "" {
		return nil
	}

	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

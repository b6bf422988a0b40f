// Package task_tools provides the MCP tools for working with TickTick
// tasks and projects: listing, searching, creating, updating, completing,
// and deleting tasks. Write tools are only registered when the server
// runs with writes enabled.
package task_tools

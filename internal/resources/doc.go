// Package resources provides MCP resources exposing task and project
// data as read-only data sources. Static resources cover the common
// listings (all tasks, inbox, projects); resource templates cover
// per-project listings and search queries.
package resources

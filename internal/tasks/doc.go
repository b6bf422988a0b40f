// Package tasks provides the task service that sits between the MCP tool
// layer and the TickTick API client.
//
// The service caches read results (task listings, projects, search
// results) with per-namespace TTLs and invalidates task-derived entries
// whenever a mutation succeeds, so a read issued after a successful
// create, update, complete, or delete always reflects the change.
//
// Input validation happens before any network call: a missing title on
// create, an empty task ID on update/complete/delete, or an empty search
// query returns a *ticktick.ValidationError without touching the
// upstream API.
package tasks

// Package common provides shared helpers for MCP tool implementations,
// such as the instrumented handler wrapper that records metrics and
// traces for every tool invocation.
package common

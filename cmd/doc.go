// Package cmd implements the ticktick-mcp command line interface.
//
// Commands:
//
//   - serve: start the MCP server (stdio or streamable-http transport)
//   - auth login: run the OAuth authorization flow and store credentials
//   - auth status: show the state of the stored credentials
//   - version: print the version number
//
// Running the binary without a subcommand is equivalent to "serve".
package cmd

// Package logging configures structured slog output for ragindex.
//
// Logs are JSON lines. The CLI writes to stderr and, when a log file is
// configured, to a size-rotated file under ~/.ragindex/logs. The MCP server
// owns stdout for the protocol stream, so serve mode logs to file only.
package logging

// Package claude runs question and edit requests through the Claude Code
// CLI as a streaming subprocess. It parses the CLI's line-delimited JSON
// output, applies an activity-based timeout, and normalizes the stream
// into a single result string plus usage metrics.
package claude

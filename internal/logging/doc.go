// Package logging provides structured logging for forged.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Automatic context field injection (job.id, workspace.id, request.id)
//   - Defense-in-depth secret redaction
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx := logging.WithJobID(ctx, "job_123")
//	ctx = logging.WithWorkspaceID(ctx, "ws_abc")
//	logger.Info(ctx, "job started", zap.String("type", "claude-code"))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2026-08-30T10:15:30Z",
//	  "level": "info",
//	  "msg": "job started",
//	  "job.id": "job_123",
//	  "workspace.id": "ws_abc",
//	  "type": "claude-code"
//	}
package logging

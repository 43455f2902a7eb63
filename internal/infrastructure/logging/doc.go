// Package logging configures the gateway's structured logger.
//
// It is a thin layer over log/slog: every entry carries service=graytwin
// and the build version, and each component logs through its own child
// logger:
//
//	log := logging.New(cfg.Logging, version)
//	log.Component("gateway").Info("command queued", "provider", p, "resource", r)
//
// The logging section selects level (debug, info, warn, error), format
// (json or text) and output (stdout or stderr). Attributes whose key
// mentions a password, token or secret are written as [REDACTED].
package logging

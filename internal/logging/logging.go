// Package logging builds the structured zap.Logger the rest of the
// server names subsystem loggers off of, the way caddyserver-caddy's
// top-level context (context.go) falls back to zap.NewDevelopment and
// its request pipeline (modules/caddyhttp/app.go) derives per-concern
// loggers with Named rather than passing around *log.Logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process's root logger. debug widens the level to
// zap.DebugLevel and switches to the human-readable console encoder;
// otherwise it is JSON at Info, suitable for log aggregation.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Subsystems used for .Named() across the server, kept here so every
// call site spells a subsystem the same way.
const (
	Reactor  = "reactor"
	Server   = "server"
	CGI      = "cgi"
	Handlers = "handlers"
	Config   = "config"
	Admin    = "admin"
)

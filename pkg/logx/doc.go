// Package logx is eventbot's structured logging layer.
//
// Logger is a small value type over zerolog. A Service owns the sinks
// (console, JSON file, operator chat) and can swap them at runtime while
// loggers derived from it keep working.
package logx

// Package logging provides slog construction with console and JSON handlers
// plus the attribute helpers shared by every daemon component.
package logging

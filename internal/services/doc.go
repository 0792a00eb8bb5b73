// Package services defines the shared error taxonomy. Components tag
// failures with a sentinel marker (validation, transient, fatal, ...) so
// callers can classify with errors.Is without parsing messages.
package services

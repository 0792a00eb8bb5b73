// Command kinescope is the CLI for the kinescope recording daemon. It runs
// the daemon in the foreground, renders recorder and memory status from the
// daemon's HTTP API, triggers manual retention passes, and manages the
// configuration file.
package main

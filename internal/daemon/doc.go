// Package daemon owns the vidgod process lifecycle: a flock-guarded
// single instance, a pid file the CLI uses for stop and status, and
// clean startup and shutdown of the workflow manager.
package daemon

// Package process runs external commands for the command unit. A command
// runs in its own process group; canceling the context sends SIGTERM to the
// group and SIGKILL after the grace period.
package process

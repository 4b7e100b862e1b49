package process

import (
	"strings"
	"time"
)

// Result holds the output and status of a completed subprocess.
type Result struct {
	Stdout []byte
	Stderr []byte
	// ExitCode is -1 if the process was killed.
	ExitCode int
	Duration time.Duration
}

// Text returns stdout with surrounding whitespace trimmed.
func (r *Result) Text() string {
	return strings.TrimSpace(string(r.Stdout))
}

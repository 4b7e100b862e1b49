package process

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

// DefaultGracePeriod is the SIGTERM to SIGKILL delay when Command leaves it
// unset.
const DefaultGracePeriod = 5 * time.Second

// Command configures a subprocess to execute.
type Command struct {
	// Binary is the executable path or name (resolved via PATH).
	Binary string
	Args   []string
	// Dir is the working directory. Empty uses the current directory.
	Dir string
	// Env is additional environment variables (key=value) merged with os.Environ.
	Env   []string
	Stdin io.Reader
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	GracePeriod time.Duration
}

// Resolve returns binary joined to scriptsDir when it is a relative path
// naming a file there. Anything else is returned unchanged and left to the
// PATH lookup.
func Resolve(binary, scriptsDir string) string {
	if binary == "" || scriptsDir == "" || filepath.IsAbs(binary) {
		return binary
	}
	candidate := filepath.Join(scriptsDir, binary)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return binary
}

// Command nodeflow runs node graphs from the command line or serves them
// over HTTP.
//
//	nodeflow run graphs/pipeline.yaml --target 4
//	nodeflow serve --config config.yml
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

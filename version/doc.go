// Package version reports nodeflow build information.
//
// Values are stamped at link time and fall back to the module's VCS
// build settings:
//
//	go build -ldflags "-X github.com/kbukum/nodeflow/version.Version=1.2.0" ./cmd/nodeflow
package version

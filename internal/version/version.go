package version

import (
	"fmt"
	"runtime"
)

// Values are injected at build time:
//
//	go build -ldflags "-X github.com/aatumaykin/nexbotd/internal/version.Version=1.2.0"
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// String returns the one-line version banner printed by `nexbotd version`.
func String() string {
	return fmt.Sprintf("nexbotd %s (commit %s, built %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}

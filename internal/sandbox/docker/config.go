package docker

import (
	"time"
)

// Config holds the configuration for the Docker engine.
type Config struct {
	// PullTimeout bounds the pull of a single image at startup.
	PullTimeout time.Duration
	// StopGrace is how long a stopped container gets before SIGKILL.
	StopGrace time.Duration
	// PidsLimit caps the number of processes in a container (fork bombs).
	PidsLimit int64
	// ScratchSize is the size of the writable tmpfs scratch mount.
	ScratchSize string
}

// DefaultConfig provides sensible defaults for grading containers.
func DefaultConfig() Config {
	return Config{
		PullTimeout: 5 * time.Minute,
		// Timed-out programs are not owed a clean shutdown
		StopGrace:   time.Second,
		PidsLimit:   64,
		ScratchSize: "16m",
	}
}

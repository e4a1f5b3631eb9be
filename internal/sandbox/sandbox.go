// Package sandbox runs compile and test steps inside an external isolation
// engine.
//
// The package never isolates anything itself. It describes each step as an
// Invocation (image, command, mount, caps) and hands it to an Engine, which
// in production is Docker (see sandbox/docker). Every invocation gets a new
// container name and a new container; nothing is reused between steps.
package sandbox

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MountTarget is where the workspace appears inside the container.
	MountTarget = "/usr/src/app"
	// ScratchDir is the only writable path besides the workspace mount.
	ScratchDir = "/tmp"
)

// Mount binds a host directory into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Invocation is one isolated process execution.
//
// Every engine must apply: no capabilities, no-new-privileges, a read-only
// root filesystem with Scratch as tmpfs, and removal on exit.
type Invocation struct {
	Name  string
	Image string
	Cmd   []string
	Mount Mount

	Scratch string

	// Zero means uncapped.
	MemoryBytes int64
	NanoCPUs    int64

	NetworkDisabled bool

	// Stdin is written to the process and then closed.
	Stdin string
}

// Outcome is what the engine captured from one invocation.
type Outcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Engine is the isolation engine collaborator.
type Engine interface {
	// Run blocks until the process exits or ctx is done. A non-zero exit
	// is reported in Outcome, not as an error.
	Run(ctx context.Context, inv Invocation) (*Outcome, error)
	// Stop terminates the container with the given name.
	Stop(ctx context.Context, name string) error
}

// NewContainerName returns a fresh, collision-resistant container name.
func NewContainerName() string {
	return "container_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

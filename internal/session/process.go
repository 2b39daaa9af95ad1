package session

import (
	"time"

	"agentdeck/internal/proc"
)

// Process is the manager's view of one running agent process. The real
// implementation is proc.Handle; tests inject fakes.
type Process interface {
	Write(data []byte) error
	Interrupt() error
	Terminate(grace time.Duration)
	Kill()
	Done() <-chan proc.ExitStatus
	Pid() int
}

// SpawnFunc launches a process per spec, delivering output chunks to sink
// in read order.
type SpawnFunc func(spec proc.Spec, sink func([]byte)) (Process, error)

// DefaultSpawn spawns a real PTY-backed process.
func DefaultSpawn(spec proc.Spec, sink func([]byte)) (Process, error) {
	return proc.Spawn(spec, sink)
}

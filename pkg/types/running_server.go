package types

import "time"

// RunningServer is a snapshot of one live MCPClient session as held in the
// ServerSupervisor's table. The MCPClient itself is not part of this
// struct: callers that need the session go through the supervisor.
type RunningServer struct {
	ServerName    string
	State         RunningState
	StartedAt     time.Time
	LastUsedAt    time.Time
	InFlightCount int

	// PID and RestartCount are observability fields carried in
	// list_running_servers/manage_server snapshots; the supervisor does not
	// populate them, so they are always zero.
	PID          int
	RestartCount int
}

// Idle reports whether the server has no in-flight calls and has been
// unused for longer than ttl.
func (r *RunningServer) Idle(ttl time.Duration, now time.Time) bool {
	return r.InFlightCount == 0 && now.Sub(r.LastUsedAt) > ttl
}

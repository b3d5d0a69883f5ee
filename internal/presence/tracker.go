package presence

import (
	"sync"
	"time"

	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// Tracker maintains online/busy/offline state for support agents,
// independent of any one conversation, plus the session-to-agent assignment
// the dispatcher consults when routing notifications. The tracker is unaware
// of broadcast policy: SetStatus returns the previous status so callers can
// suppress no-op broadcasts themselves.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*types.PresenceRecord
	// sessionID -> agentID; populated when an agent joins a session.
	// Collisions between agents racing for an unassigned session resolve to
	// whichever assignment lands last, by the assignment collaborator's rules.
	assignments map[string]string
}

// NewTracker creates an empty presence tracker.
func NewTracker() *Tracker {
	return &Tracker{
		records:     make(map[string]*types.PresenceRecord),
		assignments: make(map[string]string),
	}
}

// SetStatus updates an agent's presence record and returns the previous
// status. An agent never seen before is previously offline. Going offline
// removes the record so the tracker only ever holds live agents.
func (t *Tracker) SetStatus(agentID, status, remoteIP string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous := types.StatusOffline
	if record, exists := t.records[agentID]; exists {
		previous = record.Status
	}

	if status == types.StatusOffline {
		delete(t.records, agentID)
		return previous
	}

	t.records[agentID] = &types.PresenceRecord{
		AgentID:   agentID,
		Status:    status,
		RemoteIP:  remoteIP,
		UpdatedAt: time.Now(),
	}
	return previous
}

// Get returns a copy of an agent's presence record.
func (t *Tracker) Get(agentID string) (types.PresenceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, exists := t.records[agentID]
	if !exists {
		return types.PresenceRecord{}, false
	}
	return *record, true
}

// OnlineAgents returns a snapshot of agent IDs currently online. Busy agents
// are present but not online; they are excluded from "notify everyone"
// fan-outs.
func (t *Tracker) OnlineAgents() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	agents := make([]string, 0, len(t.records))
	for agentID, record := range t.records {
		if record.Status == types.StatusOnline {
			agents = append(agents, agentID)
		}
	}
	return agents
}

// Records returns a snapshot of all live presence records for the ops API.
func (t *Tracker) Records() []types.PresenceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	records := make([]types.PresenceRecord, 0, len(t.records))
	for _, record := range t.records {
		records = append(records, *record)
	}
	return records
}

// Assign records an agent as the handler for a session.
func (t *Tracker) Assign(sessionID, agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.assignments[sessionID] = agentID
}

// AssignedAgent returns the agent assigned to a session, if any.
func (t *Tracker) AssignedAgent(sessionID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	agentID, exists := t.assignments[sessionID]
	return agentID, exists
}

// ClearAssignment drops a session's agent assignment.
func (t *Tracker) ClearAssignment(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.assignments, sessionID)
}

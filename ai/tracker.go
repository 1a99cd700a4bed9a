package ai

import "sync"

// Kind names the task field an AI call is producing.
type Kind string

const (
	KindDescription Kind = "description"
	KindPriority    Kind = "priority"
	KindSubtasks    Kind = "subtasks"
	KindImage       Kind = "image"
)

// Ticket identifies one in-flight AI call against a task.
type Ticket struct {
	Scope  string
	TaskID string
	Kind   Kind
	Seq    uint64
}

type ticketKey struct {
	scope  string
	taskID string
	kind   Kind
}

// Tracker orders overlapping calls for the same task field. Only the result
// of the newest call may be applied; earlier results are stale.
type Tracker struct {
	mu     sync.Mutex
	seq    uint64
	latest map[ticketKey]uint64
}

func NewTracker() *Tracker {
	return &Tracker{latest: make(map[ticketKey]uint64)}
}

// Begin registers a new call and supersedes any earlier one for the same
// scope, task and kind.
func (t *Tracker) Begin(scope, taskID string, kind Kind) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.latest[ticketKey{scope, taskID, kind}] = t.seq
	return Ticket{Scope: scope, TaskID: taskID, Kind: kind, Seq: t.seq}
}

// Current reports whether tk is still the newest call for its field.
func (t *Tracker) Current(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[ticketKey{tk.Scope, tk.TaskID, tk.Kind}] == tk.Seq
}

// Finish retires tk and reports whether its result may be applied.
func (t *Tracker) Finish(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := ticketKey{tk.Scope, tk.TaskID, tk.Kind}
	if t.latest[k] != tk.Seq {
		return false
	}
	delete(t.latest, k)
	return true
}

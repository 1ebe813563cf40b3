package engine

// actionQueue holds non-terminal actions in submission order. Human-scale
// interaction rates keep it tiny, so a slice beats an indexed structure.
type actionQueue struct {
	nextID  uint64
	actions []*Action
}

// enqueue assigns an ID and appends the action.
func (q *actionQueue) enqueue(a *Action) {
	q.nextID++
	a.ID = q.nextID
	q.actions = append(q.actions, a)
}

// conflicting returns the queued action that blocks a new intent on the given
// target, or nil. Two actions conflict when they share the target and either
// share a class or one of them is a delete: a target being deleted accepts no
// other mutation, and a queued mutation blocks a delete.
func (q *actionQueue) conflicting(target string, class Class) *Action {
	for _, a := range q.actions {
		if a.Target != target {
			continue
		}
		if a.Kind.Class() == class || a.Kind.Class() == ClassDelete || class == ClassDelete {
			return a
		}
	}
	return nil
}

// pendingFor returns all queued actions targeting the identifier, in
// submission order.
func (q *actionQueue) pendingFor(target string) []*Action {
	var out []*Action
	for _, a := range q.actions {
		if a.Target == target {
			out = append(out, a)
		}
	}
	return out
}

// byID returns the queued action with the given ID, or nil.
func (q *actionQueue) byID(id uint64) *Action {
	for _, a := range q.actions {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// remove drops the action with the given ID.
func (q *actionQueue) remove(id uint64) {
	for i, a := range q.actions {
		if a.ID == id {
			q.actions = append(q.actions[:i], q.actions[i+1:]...)
			return
		}
	}
}

// all returns the queued actions in submission order. The slice is shared;
// callers must not mutate it.
func (q *actionQueue) all() []*Action {
	return q.actions
}

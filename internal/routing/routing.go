// Package routing builds the read-only task-name -> instance-ID index the
// Dispatcher consults on every request. Built once at Manager construction
// time and shared freely afterward (§5 of the design: read-only after build).
package routing

// Index maps a task name to the ordered list of instance IDs that declared
// support for it, insertion order preserved.
type Index struct {
	byTask map[string][]int
}

// NewBuilder returns an empty Index ready to accumulate instances.
func NewBuilder() *Index {
	return &Index{byTask: make(map[string][]int)}
}

// Add records that instanceID supports task, appending to the end of that
// task's candidate list. Call order determines the list's order.
func (idx *Index) Add(task string, instanceID int) {
	idx.byTask[task] = append(idx.byTask[task], instanceID)
}

// Candidates returns the instance IDs registered for task, in insertion
// order, or (nil, false) if no instance supports it.
func (idx *Index) Candidates(task string) ([]int, bool) {
	ids, ok := idx.byTask[task]
	return ids, ok
}

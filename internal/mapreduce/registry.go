package mapreduce

import (
	"fmt"
	"sort"
)

// Registry maps job names to job definitions.
type Registry struct {
	jobs map[string]Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: map[string]Job{}}
}

// Register adds j. Registering two jobs under the same name is a programming
// error and panics.
func (r *Registry) Register(j Job) {
	name := j.Name()
	if _, ok := r.jobs[name]; ok {
		panic(fmt.Sprintf("job %q is already registered", name))
	}
	r.jobs[name] = j
}

// Lookup returns the job registered under name.
func (r *Registry) Lookup(name string) (Job, bool) {
	j, ok := r.jobs[name]
	return j, ok
}

// Names returns all registered job names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ABOUTME: Plan normalization: drop redundant set_project steps before execution
// ABOUTME: Order of every other step is preserved

package plan

// ResolveFunc maps a set_project target to a canonical directory.
type ResolveFunc func(workdir string) (string, error)

// Normalize returns p with two kinds of set_project steps removed: one whose
// target resolves to current (when current is set) and one that repeats the
// workdir string of the step immediately before it.
func Normalize(p Plan, current string, resolve ResolveFunc) Plan {
	if p.Action != KindPlan {
		return p
	}

	out := make([]Step, 0, len(p.Actions))
	for _, s := range p.Actions {
		if s.Action == SetProject {
			workdir := s.StringParam("workdir", "")

			if current != "" && workdir != "" && resolve != nil {
				if dir, err := resolve(workdir); err == nil && dir == current {
					continue
				}
			}

			if n := len(out); n > 0 && out[n-1].Action == SetProject &&
				out[n-1].StringParam("workdir", "") == workdir {
				continue
			}
		}
		out = append(out, s)
	}

	p.Actions = out
	return p
}

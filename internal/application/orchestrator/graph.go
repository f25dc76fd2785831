package orchestrator

import (
	"sort"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

// BuildLayers partitions units into execution layers.
//
// deps maps a unit to its prerequisites; the order of prerequisites is not
// significant and duplicates are ignored. Every key and prerequisite must be
// one of unitNames, otherwise a *domain.ConfigurationError naming the unknown
// unit is returned. A dependency cycle yields a *domain.CycleError listing
// the units on it.
//
// Layer 0 holds the units without prerequisites. Every unit in layer N
// depends only on units in layers < N. Within a layer units keep the order
// of unitNames.
func BuildLayers(unitNames []string, deps map[string][]string) ([][]string, error) {
	index := make(map[string]int, len(unitNames))
	for i, name := range unitNames {
		if name == "" {
			return nil, domain.Configf("", "unit name is required")
		}
		if _, exists := index[name]; exists {
			return nil, domain.Configf(name, "duplicate unit name")
		}
		index[name] = i
	}

	// Sorted keys keep the reported unknown unit stable across runs.
	keys := make([]string, 0, len(deps))
	for k := range deps {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := len(unitNames)
	indeg := make([]int, n)
	dependents := make([][]int, n)
	prereqs := make([][]int, n)

	for _, unit := range keys {
		ui, ok := index[unit]
		if !ok {
			return nil, domain.Configf(unit, "dependency map references an unregistered unit")
		}
		seen := make(map[int]struct{}, len(deps[unit]))
		for _, dep := range deps[unit] {
			di, ok := index[dep]
			if !ok {
				return nil, domain.Configf(dep, "unit %q depends on an unregistered unit", unit)
			}
			if _, dup := seen[di]; dup {
				continue
			}
			seen[di] = struct{}{}
			indeg[ui]++
			dependents[di] = append(dependents[di], ui)
			prereqs[ui] = append(prereqs[ui], di)
		}
	}

	current := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			current = append(current, i)
		}
	}

	var layers [][]string
	placed := 0
	for len(current) > 0 {
		layer := make([]string, 0, len(current))
		var next []int
		for _, u := range current {
			layer = append(layer, unitNames[u])
			for _, d := range dependents[u] {
				indeg[d]--
				if indeg[d] == 0 {
					next = append(next, d)
				}
			}
		}
		sort.Ints(next)
		layers = append(layers, layer)
		placed += len(layer)
		current = next
	}

	if placed < n {
		return nil, &domain.CycleError{Units: cycleMembers(unitNames, indeg, dependents, prereqs)}
	}
	return layers, nil
}

// cycleMembers narrows the units left unresolved by layering down to those
// that lie on a cycle: units that merely depend on a cycle are peeled off
// because nothing unresolved depends on them.
func cycleMembers(unitNames []string, indeg []int, dependents, prereqs [][]int) []string {
	n := len(unitNames)
	remaining := make([]bool, n)
	outdeg := make([]int, n)
	for i := 0; i < n; i++ {
		remaining[i] = indeg[i] > 0
	}
	for i := 0; i < n; i++ {
		if !remaining[i] {
			continue
		}
		for _, d := range dependents[i] {
			if remaining[d] {
				outdeg[i]++
			}
		}
	}

	var queue []int
	for i := 0; i < n; i++ {
		if remaining[i] && outdeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		remaining[u] = false
		for _, p := range prereqs[u] {
			if !remaining[p] {
				continue
			}
			outdeg[p]--
			if outdeg[p] == 0 {
				queue = append(queue, p)
			}
		}
	}

	var out []string
	for i := 0; i < n; i++ {
		if remaining[i] {
			out = append(out, unitNames[i])
		}
	}
	return out
}

package backup

import (
	"fmt"
	"sort"
	"strings"

	"printvault/internal/catalog"
	"printvault/pkg/domain"
)

// CycleError reports a reference cycle between entity types. The catalog is
// required to be acyclic across types; a cycle is a programming error in the
// descriptor set, not a property of any particular archive.
type CycleError struct {
	Path []domain.EntityType
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, t := range e.Path {
		parts[i] = string(t)
	}
	return "reference cycle between entity types: " + strings.Join(parts, " -> ")
}

// DependencyOrder returns every entity type ordered so that referenced types
// precede their referers. Ties resolve by catalog registration order, keeping
// archive layout stable across runs. Self references are excluded from the
// type graph; rows of such tables are ordered individually instead.
func DependencyOrder() ([]domain.EntityType, error) {
	descs := catalog.Descriptors()
	inDegree := make(map[domain.EntityType]int, len(descs))
	dependents := make(map[domain.EntityType][]domain.EntityType, len(descs))
	for _, d := range descs {
		inDegree[d.Type] = 0
	}
	for _, d := range descs {
		seen := make(map[domain.EntityType]bool)
		for _, ref := range d.Refs {
			if ref.Target == d.Type || seen[ref.Target] {
				continue
			}
			if _, ok := inDegree[ref.Target]; !ok {
				return nil, fmt.Errorf("entity %s references unregistered type %s", d.Type, ref.Target)
			}
			seen[ref.Target] = true
			dependents[ref.Target] = append(dependents[ref.Target], d.Type)
			inDegree[d.Type]++
		}
	}

	var ready []domain.EntityType
	for _, d := range descs {
		if inDegree[d.Type] == 0 {
			ready = append(ready, d.Type)
		}
	}
	order := make([]domain.EntityType, 0, len(descs))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return catalog.Index(ready[i]) < catalog.Index(ready[j])
		})
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if len(order) != len(descs) {
		return nil, &CycleError{Path: findCycle(descs)}
	}
	return order, nil
}

// ReverseDependencyOrder returns the dependency order inverted, the order in
// which tables can be deleted without stranding references.
func ReverseDependencyOrder() ([]domain.EntityType, error) {
	order, err := DependencyOrder()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// findCycle walks the type graph with three-color DFS and returns one cycle
// path for the error message.
func findCycle(descs []catalog.Descriptor) []domain.EntityType {
	const (
		white = iota
		gray
		black
	)
	targets := make(map[domain.EntityType][]domain.EntityType, len(descs))
	for _, d := range descs {
		for _, ref := range d.Refs {
			if ref.Target == d.Type {
				continue
			}
			targets[d.Type] = append(targets[d.Type], ref.Target)
		}
	}

	color := make(map[domain.EntityType]int)
	var stack []domain.EntityType
	var cycle []domain.EntityType

	var dfs func(node domain.EntityType) bool
	dfs = func(node domain.EntityType) bool {
		color[node] = gray
		stack = append(stack, node)
		for _, next := range targets[node] {
			switch color[next] {
			case white:
				if dfs(next) {
					return true
				}
			case gray:
				for i, n := range stack {
					if n == next {
						cycle = append(append(cycle, stack[i:]...), next)
						return true
					}
				}
			}
		}
		color[node] = black
		stack = stack[:len(stack)-1]
		return false
	}

	for _, d := range descs {
		if color[d.Type] == white && dfs(d.Type) {
			break
		}
	}
	return cycle
}

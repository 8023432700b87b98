package migration

import "sort"

// Graph is a dependency graph over a set of migrations. Construction
// validates the set: duplicate identities and dependency edges naming
// migrations outside the set are rejected.
type Graph struct {
	migrations map[Key]*Migration
	keys       []Key // insertion-independent, sorted
	dependents map[Key][]Key
	indegree   map[Key]int
}

// NewGraph builds a graph from the given migrations.
func NewGraph(migrations []*Migration) (*Graph, error) {
	g := &Graph{
		migrations: make(map[Key]*Migration, len(migrations)),
		dependents: make(map[Key][]Key, len(migrations)),
		indegree:   make(map[Key]int, len(migrations)),
	}

	for _, m := range migrations {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		key := m.Key()
		if _, dup := g.migrations[key]; dup {
			return nil, &InvalidMigrationError{Reason: "duplicate migration " + key.String()}
		}
		g.migrations[key] = m
		g.keys = append(g.keys, key)
		g.indegree[key] = 0
	}
	sort.Slice(g.keys, func(i, j int) bool { return g.keys[i].Less(g.keys[j]) })

	for _, key := range g.keys {
		for _, dep := range g.migrations[key].Dependencies {
			if _, ok := g.migrations[dep]; !ok {
				return nil, &UnresolvedDependencyError{From: key, Missing: dep}
			}
			g.dependents[dep] = append(g.dependents[dep], key)
			g.indegree[key]++
		}
	}
	return g, nil
}

// Len returns the number of migrations in the graph.
func (g *Graph) Len() int {
	return len(g.keys)
}

// Order returns a total application order consistent with every dependency
// edge. Ties between simultaneously-ready migrations break by (app, name),
// so the output is deterministic and reproducible across runs. A cycle
// yields a CircularDependencyError naming the unordered migrations.
func (g *Graph) Order() ([]*Migration, error) {
	indegree := make(map[Key]int, len(g.indegree))
	for key, n := range g.indegree {
		indegree[key] = n
	}

	var ready []Key
	for _, key := range g.keys {
		if indegree[key] == 0 {
			ready = append(ready, key)
		}
	}

	out := make([]*Migration, 0, len(g.keys))
	for len(ready) > 0 {
		key := ready[0]
		ready = ready[1:]
		out = append(out, g.migrations[key])

		for _, dep := range g.dependents[key] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i].Less(ready[j]) })
	}

	if len(out) < len(g.keys) {
		var remaining []Key
		for _, key := range g.keys {
			if indegree[key] > 0 {
				remaining = append(remaining, key)
			}
		}
		return nil, &CircularDependencyError{Remaining: remaining}
	}
	return out, nil
}

// Roots returns the migrations with no in-set dependencies, sorted by key.
func (g *Graph) Roots() []Key {
	var roots []Key
	for _, key := range g.keys {
		if g.indegree[key] == 0 {
			roots = append(roots, key)
		}
	}
	return roots
}

// Leaves returns the migrations nothing in the set depends on, sorted by key.
func (g *Graph) Leaves() []Key {
	var leaves []Key
	for _, key := range g.keys {
		if len(g.dependents[key]) == 0 {
			leaves = append(leaves, key)
		}
	}
	return leaves
}

// Order is the one-shot form: build a graph and return the application order.
func Order(migrations []*Migration) ([]*Migration, error) {
	g, err := NewGraph(migrations)
	if err != nil {
		return nil, err
	}
	return g.Order()
}

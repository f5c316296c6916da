package compiler

import (
	"container/heap"
	"sort"
)

// Graph maps a node to the nodes it depends on.
type Graph map[string][]string

// StronglyConnected finds the strongly connected components of g using
// Tarjan's algorithm. Nodes are visited in the order given and
// successors in sorted order, so the result is deterministic. Components
// are returned in reverse topological order (dependencies first), each
// sorted by the position of its members in nodes.
func StronglyConnected(nodes []string, g Graph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	pos := make(map[string]int, len(nodes))
	for i, n := range nodes {
		pos[n] = i
	}

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		succ := append([]string(nil), g[v]...)
		sort.Strings(succ)
		for _, w := range succ {
			if _, ok := pos[w]; !ok {
				continue
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Slice(scc, func(i, j int) bool { return pos[scc[i]] < pos[scc[j]] })
			sccs = append(sccs, scc)
		}
	}

	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// HasSelfLoop reports whether node depends on itself directly.
func HasSelfLoop(node string, g Graph) bool {
	for _, w := range g[node] {
		if w == node {
			return true
		}
	}
	return false
}

// cyclePath walks edges inside scc from its first member until it
// returns to the start, producing a closed path such as [a b a].
func cyclePath(scc []string, g Graph) []string {
	if len(scc) == 0 {
		return nil
	}
	in := make(map[string]bool, len(scc))
	for _, n := range scc {
		in[n] = true
	}
	start := scc[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		succ := append([]string(nil), g[current]...)
		sort.Strings(succ)
		next := ""
		for _, w := range succ {
			if w == start {
				next = w
				break
			}
		}
		if next == "" {
			for _, w := range succ {
				if in[w] && !visited[w] {
					next = w
					break
				}
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}

// intHeap is a min-heap of declaration indices.
type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// topoOrder sorts names so that every node comes after its dependencies,
// breaking ties by position in names. Edges to nodes outside names are
// ignored. The second result lists the nodes left over when g has a
// cycle.
func topoOrder(names []string, g Graph) (order []string, rest []string) {
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	indeg := make([]int, len(names))
	users := make([][]int, len(names))
	for i, n := range names {
		seen := make(map[string]bool)
		for _, d := range g[n] {
			j, ok := pos[d]
			if !ok || seen[d] {
				continue
			}
			seen[d] = true
			indeg[i]++
			users[j] = append(users[j], i)
		}
	}

	ready := &intHeap{}
	for i := range names {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}
	done := make([]bool, len(names))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		done[i] = true
		order = append(order, names[i])
		for _, k := range users[i] {
			indeg[k]--
			if indeg[k] == 0 {
				heap.Push(ready, k)
			}
		}
	}
	for i, n := range names {
		if !done[i] {
			rest = append(rest, n)
		}
	}
	return order, rest
}

// findCycle returns a closed dependency path among rest.
func findCycle(rest []string, g Graph) []string {
	for _, scc := range StronglyConnected(rest, g) {
		if len(scc) > 1 || HasSelfLoop(scc[0], g) {
			return cyclePath(scc, g)
		}
	}
	return nil
}

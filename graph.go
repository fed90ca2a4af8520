package promptflow

// Graph is the immutable, id-indexed node set of one run.
type Graph struct {
	order []string
	nodes map[string]*Node
	// out holds every edge leaving a node, from both successor and predecessor lists.
	out map[string][]string
}

// NewGraph indexes nodes by id, keeping input order.
// Duplicate ids and links to ids outside the list fail with *MalformedGraphError.
// An edge named on either side is enough to unlock the successor.
func NewGraph(nodes []Node) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, &MalformedGraphError{Reason: "graph has no nodes"}
	}

	g := &Graph{
		order: make([]string, 0, len(nodes)),
		nodes: make(map[string]*Node, len(nodes)),
		out:   make(map[string][]string, len(nodes)),
	}
	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, &MalformedGraphError{Reason: "node without id"}
		}
		if _, ok := g.nodes[n.ID]; ok {
			return nil, &MalformedGraphError{NodeID: n.ID, Reason: "duplicate id"}
		}
		g.nodes[n.ID] = &n
		g.order = append(g.order, n.ID)
	}

	for _, id := range g.order {
		n := g.nodes[id]
		for _, p := range n.Predecessors {
			if _, ok := g.nodes[p]; !ok {
				return nil, &MalformedGraphError{NodeID: id, Ref: p, Reason: "references unknown predecessor"}
			}
		}
		for _, s := range n.Successors {
			if _, ok := g.nodes[s]; !ok {
				return nil, &MalformedGraphError{NodeID: id, Ref: s, Reason: "references unknown successor"}
			}
			g.addEdge(id, s)
		}
	}
	for _, id := range g.order {
		for _, p := range g.nodes[id].Predecessors {
			g.addEdge(p, id)
		}
	}

	return g, nil
}

func (g *Graph) addEdge(from, to string) {
	for _, existing := range g.out[from] {
		if existing == to {
			return
		}
	}
	g.out[from] = append(g.out[from], to)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Node looks a node up by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Successors returns the ids unlocked when id resolves: the node's own successor list
// first, then nodes naming id as a predecessor without being listed, in input order.
func (g *Graph) Successors(id string) []string {
	return g.out[id]
}

// IsGenerating reports whether id is a generate node.
func (g *Graph) IsGenerating(id string) bool {
	n, ok := g.nodes[id]
	return ok && n.Kind == KindGenerate
}

// Roots returns the nodes without predecessors, in input order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.nodes[id].Predecessors) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Pending returns the ids missing from resolved, in input order.
func (g *Graph) Pending(resolved map[string]string) []string {
	var pending []string
	for _, id := range g.order {
		if _, ok := resolved[id]; !ok {
			pending = append(pending, id)
		}
	}
	return pending
}

// Cycle returns one cycle as a path whose first and last ids are equal, or nil.
func (g *Graph) Cycle() []string {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	state := make(map[string]int, len(g.order))
	var (
		stack []string
		cycle []string
	)

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = visiting
		stack = append(stack, id)
		for _, next := range g.out[id] {
			switch state[next] {
			case visiting:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						cycle = append(append([]string{}, stack[i:]...), next)
						break
					}
				}
				return true
			case unvisited:
				if dfs(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = visited
		return false
	}

	for _, id := range g.order {
		if state[id] == unvisited && dfs(id) {
			return cycle
		}
	}
	return nil
}

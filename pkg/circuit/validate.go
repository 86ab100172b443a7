package circuit

// validateConnectivity checks every non-ground node has a conductive
// path to ground. It treats every two
// terminal (or wiper) element as an undirected edge and unions nodes
// reachable from ground through any of them; nonlinear devices are
// also edges since a forward-biased junction is conductive.
func validateConnectivity(c *Circuit) error {
	uf := newUnionFind(c.NumNodes + 1) // +1 so ground (id 0) has a slot

	union := func(a, b int) { uf.union(a, b) }

	for _, r := range c.Resistors {
		union(r.P, r.N)
	}
	for _, x := range c.Capacitors {
		union(x.P, x.N)
	}
	for _, x := range c.Inductors {
		union(x.P, x.N)
	}
	for _, x := range c.VoltageSources {
		union(x.P, x.N)
	}
	for _, x := range c.CurrentSources {
		union(x.P, x.N)
	}
	for _, x := range c.Diodes {
		union(x.Anode, x.Cat)
	}
	for _, x := range c.BJTs {
		union(x.C, x.B)
		union(x.B, x.E)
	}
	for _, x := range c.OpAmps {
		union(x.InP, x.InN)
		union(x.InP, x.Out)
	}
	for _, x := range c.Potentiometers {
		union(x.A, x.B)
		union(x.A, x.Wiper)
	}
	for _, x := range c.Switches {
		union(x.P, x.N)
	}
	for _, x := range c.Delays {
		union(x.In, 0)
		union(x.Out, 0)
	}
	for _, x := range c.Reverbs {
		union(x.In, 0)
		union(x.Out, 0)
	}

	root0 := uf.find(0)
	for name, id := range c.NodeNames {
		if uf.find(id) != root0 {
			return &ErrFloatingNode{Node: name}
		}
	}
	return nil
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

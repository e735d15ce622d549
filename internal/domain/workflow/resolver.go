package workflow

import "sort"

// Node is a step or stage viewed as a vertex of its definition's
// dependency graph.
type Node interface {
	NodeID() string
	NodeOrder() int
	NodeDependencies() []string
}

// ValidateGraph is the single choke point every structural definition edit
// must pass through: all dependency ids must reference nodes that still
// exist, and the resulting graph must be acyclic.
func ValidateGraph(nodes []Node) error {
	if err := ValidateReferences(nodes); err != nil {
		return err
	}
	return ValidateAcyclic(nodes)
}

// ValidateReferences rejects dependency ids that do not name a node in the
// same definition, e.g. after a step was deleted while a dependent still
// referenced it.
func ValidateReferences(nodes []Node) error {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.NodeID()] = true
	}
	for _, n := range sortedByOrder(nodes) {
		for _, dep := range n.NodeDependencies() {
			if !known[dep] {
				return &Error{
					Kind:    KindValidation,
					Message: "dependency references a step that does not exist",
					StepIDs: []string{n.NodeID(), dep},
				}
			}
		}
	}
	return nil
}

// ValidateAcyclic performs a depth-first traversal over the dependency
// edges, tracking the recursion stack, and fails on the first back-edge.
// Nodes are visited in ascending order-index order so the reported cycle is
// reproducible across runs.
func ValidateAcyclic(nodes []Node) error {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.NodeID()] = n
	}

	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int, len(nodes))

	var visit func(id string, stack []string) error
	visit = func(id string, stack []string) error {
		node, ok := byID[id]
		if !ok {
			// Unknown ids are ValidateReferences' concern.
			return nil
		}
		state[id] = inStack
		stack = append(stack, id)
		for _, dep := range sortedIDs(node.NodeDependencies()) {
			switch state[dep] {
			case inStack:
				return NewCycle(cyclePath(stack, dep))
			case unvisited:
				if err := visit(dep, stack); err != nil {
					return err
				}
			}
		}
		state[id] = done
		return nil
	}

	for _, n := range sortedByOrder(nodes) {
		if state[n.NodeID()] == unvisited {
			if err := visit(n.NodeID(), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// MissingDependencies returns the declared dependencies of a node that are
// not yet satisfied, in stable order. An empty result means the node is
// ready to be entered.
func MissingDependencies(node Node, satisfied map[string]bool) []string {
	var missing []string
	for _, dep := range sortedIDs(node.NodeDependencies()) {
		if !satisfied[dep] {
			missing = append(missing, dep)
		}
	}
	return missing
}

// cyclePath trims the recursion stack to the segment that forms the cycle
// and closes it with the repeated id.
func cyclePath(stack []string, repeated string) []string {
	for i, id := range stack {
		if id == repeated {
			return append(append([]string{}, stack[i:]...), repeated)
		}
	}
	return append(append([]string{}, stack...), repeated)
}

func sortedByOrder(nodes []Node) []Node {
	out := append([]Node{}, nodes...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].NodeOrder() != out[j].NodeOrder() {
			return out[i].NodeOrder() < out[j].NodeOrder()
		}
		return out[i].NodeID() < out[j].NodeID()
	})
	return out
}

func sortedIDs(ids []string) []string {
	out := append([]string{}, ids...)
	sort.Strings(out)
	return out
}

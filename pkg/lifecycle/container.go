package lifecycle

// Container is a node of the host's containment tree. Implementations must
// be comparable; pointer types are.
type Container interface {
	// Parent returns the enclosing container, or nil at the root.
	Parent() Container

	// Children returns the directly contained containers.
	Children() []Container
}

// Node is a simple Container for hosts without their own tree type.
type Node struct {
	Name     string
	parent   *Node
	children []*Node
}

// NewNode creates a root node.
func NewNode(name string) *Node {
	return &Node{Name: name}
}

// Add creates a child of n.
func (n *Node) Add(name string) *Node {
	child := &Node{Name: name, parent: n}
	n.children = append(n.children, child)
	return child
}

// Parent implements Container.
func (n *Node) Parent() Container {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// Children implements Container.
func (n *Node) Children() []Container {
	out := make([]Container, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

// String returns the node's path from the root.
func (n *Node) String() string {
	if n.parent == nil {
		return n.Name
	}
	return n.parent.String() + "/" + n.Name
}

package sim

// WorkToken travels with an ElementInstance. A non-executable token marks a dead
// branch; its visited set stops that branch from cycling through the same node twice.
type WorkToken struct {
	executable bool
	visited    map[int]struct{}
}

// NewWorkToken creates a token with an empty visited set.
func NewWorkToken(executable bool) *WorkToken {
	return &WorkToken{executable: executable, visited: make(map[int]struct{})}
}

// IsExecutable reports whether the branch carrying the token does real work.
func (t *WorkToken) IsExecutable() bool {
	return t.executable
}

// Cancel turns an executable token into a dead one and resets its visited set.
// Cancelling a dead token keeps its path.
func (t *WorkToken) Cancel() {
	if !t.executable {
		return
	}
	t.executable = false
	t.visited = make(map[int]struct{})
}

// Visit appends n to the visited set.
func (t *WorkToken) Visit(n *Node) {
	t.visited[n.id] = struct{}{}
}

// Visited reports whether n is already on the token's path.
func (t *WorkToken) Visited(n *Node) bool {
	_, ok := t.visited[n.id]
	return ok
}

// PathLen is the size of the visited set.
func (t *WorkToken) PathLen() int {
	return len(t.visited)
}

// Clone copies the token, visited set included.
func (t *WorkToken) Clone() *WorkToken {
	c := &WorkToken{executable: t.executable, visited: make(map[int]struct{}, len(t.visited))}
	for k := range t.visited {
		c.visited[k] = struct{}{}
	}
	return c
}

package sim

// Partition splits resource types into activity managers, one per connected
// component of the graph whose edges join consecutive resource types of the
// same request step. Every step joins the manager of its resource types; a
// step that references none gets a dedicated empty manager. Resource types no
// step references form singleton managers.
//
// Resource types referenced by a step but missing from types are added as
// extra vertices. Partition sets each type's manager and returns the managers
// with IDs starting at 1.
func Partition(types []*ResourceType, steps []*Node) []*ActivityManager {
	index := make(map[*ResourceType]int, len(types))
	vertices := make([]*ResourceType, 0, len(types))
	vertex := func(rt *ResourceType) int {
		if i, ok := index[rt]; ok {
			return i
		}
		index[rt] = len(vertices)
		vertices = append(vertices, rt)
		return index[rt]
	}
	for _, rt := range types {
		vertex(rt)
	}

	var adjacency [][]int
	link := func(a, b int) {
		for len(adjacency) < len(vertices) {
			adjacency = append(adjacency, nil)
		}
		adjacency[a] = append(adjacency[a], b)
		adjacency[b] = append(adjacency[b], a)
	}
	for _, step := range steps {
		prev := -1
		for _, wg := range step.workGroups {
			for _, rt := range wg.ResourceTypes() {
				if rt == nil {
					continue
				}
				cur := vertex(rt)
				if prev >= 0 && prev != cur {
					link(prev, cur)
				}
				prev = cur
			}
		}
	}
	for len(adjacency) < len(vertices) {
		adjacency = append(adjacency, nil)
	}

	// Iterative DFS; large models would overflow a recursive walk.
	component := make([]int, len(vertices))
	for i := range component {
		component[i] = -1
	}
	var managers []*ActivityManager
	stack := make([]int, 0, len(vertices))
	for root := range vertices {
		if component[root] >= 0 {
			continue
		}
		am := newActivityManager(len(managers) + 1)
		managers = append(managers, am)
		c := len(managers) - 1
		stack = append(stack[:0], root)
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if component[v] >= 0 {
				continue
			}
			component[v] = c
			am.types = append(am.types, vertices[v])
			vertices[v].manager = am
			for _, w := range adjacency[v] {
				if component[w] < 0 {
					stack = append(stack, w)
				}
			}
		}
	}

	for _, step := range steps {
		var owner *ActivityManager
		for _, wg := range step.workGroups {
			for _, rt := range wg.ResourceTypes() {
				if rt != nil {
					owner = managers[component[index[rt]]]
					break
				}
			}
			if owner != nil {
				break
			}
		}
		if owner == nil {
			owner = newActivityManager(len(managers) + 1)
			managers = append(managers, owner)
		}
		owner.addStep(step)
	}
	return managers
}

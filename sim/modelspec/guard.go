package modelspec

import (
	"fmt"
	"sort"

	"github.com/flowsim/flowsim/sim"
)

// GuardSpec compares an element variable with a constant, e.g.
// {var: visits, op: "<", value: 3}.
type GuardSpec struct {
	Var   string `yaml:"var"`
	Op    string `yaml:"op"`
	Value any    `yaml:"value"`
}

var validOps = map[string]func(cmp int) bool{
	"==": func(c int) bool { return c == 0 },
	"!=": func(c int) bool { return c != 0 },
	"<":  func(c int) bool { return c < 0 },
	"<=": func(c int) bool { return c <= 0 },
	">":  func(c int) bool { return c > 0 },
	">=": func(c int) bool { return c >= 0 },
}

func validateGuard(prefix string, g *GuardSpec) error {
	if g == nil {
		return nil
	}
	if g.Var == "" {
		return fmt.Errorf("%s: missing var", prefix)
	}
	if _, ok := validOps[g.Op]; !ok {
		return fmt.Errorf("%s: unknown op %q; valid: == != < <= > >=", prefix, g.Op)
	}
	if _, err := sim.ValueOf(normalize(g.Value)); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	return nil
}

// condition compiles a guard. Variables resolve on the element first and on
// the model second; an unset variable fails every comparison.
func condition(g *GuardSpec, model *sim.Model) sim.Condition {
	if g == nil {
		return nil
	}
	want, _ := sim.ValueOf(normalize(g.Value))
	test := validOps[g.Op]
	name := g.Var
	return func(inst *sim.ElementInstance) bool {
		v, ok := lookup(inst, model, name)
		if !ok {
			return false
		}
		return test(v.Compare(want))
	}
}

func lookup(inst *sim.ElementInstance, model *sim.Model, name string) (sim.Value, bool) {
	if inst != nil {
		if v, ok := inst.Vars().Get(name); ok {
			return v, true
		}
	}
	return model.Vars.Get(name)
}

type assignment struct {
	name  string
	value sim.Value
	add   bool
}

// action compiles the set and add maps of a sequential node. Assignments run
// in name order, sets before adds.
func action(set, add map[string]any) sim.Action {
	var steps []assignment
	for _, name := range sortedKeys(set) {
		v, _ := sim.ValueOf(normalize(set[name]))
		steps = append(steps, assignment{name: name, value: v})
	}
	for _, name := range sortedKeys(add) {
		v, _ := sim.ValueOf(normalize(add[name]))
		steps = append(steps, assignment{name: name, value: v, add: true})
	}
	if len(steps) == 0 {
		return nil
	}
	return func(inst *sim.ElementInstance) {
		vars := inst.Vars()
		for _, s := range steps {
			if !s.add {
				vars.Set(s.name, s.value)
				continue
			}
			cur, _ := vars.Get(s.name)
			vars.Set(s.name, cur.Add(s.value))
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize folds the integer types yaml.v3 may produce into int64.
func normalize(x any) any {
	switch t := x.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	}
	return x
}

func toVars(raw map[string]any) sim.Vars {
	vs := make(sim.Vars, len(raw))
	for name, x := range raw {
		if v, err := sim.ValueOf(normalize(x)); err == nil {
			vs.Set(name, v)
		}
	}
	return vs
}

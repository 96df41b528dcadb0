// Package modelspec describes simulation models in YAML and builds them into
// a sim.Model.
package modelspec

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowsim/flowsim/sim"
	"github.com/flowsim/flowsim/sim/workload"
)

// ModelSpec is the top-level model description.
// Loaded from YAML via LoadModelSpec(path).
type ModelSpec struct {
	Description   string             `yaml:"description"`
	Unit          string             `yaml:"unit"`
	Start         int64              `yaml:"start"`
	End           int64              `yaml:"end"`
	Vars          map[string]any     `yaml:"vars,omitempty"`
	ResourceTypes []ResourceTypeSpec `yaml:"resource_types"`
	Resources     []ResourceSpec     `yaml:"resources"`
	ElementTypes  []ElementTypeSpec  `yaml:"element_types"`
	Flows         []FlowSpec         `yaml:"flows"`
	Generators    []GeneratorSpec    `yaml:"generators"`
}

type ResourceTypeSpec struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description,omitempty"`
}

type ResourceSpec struct {
	ID          string          `yaml:"id"`
	Description string          `yaml:"description,omitempty"`
	Timetable   []TimetableSpec `yaml:"timetable"`
}

// TimetableSpec is one (role, cycle, duration) entry. A missing duration
// keeps the role on forever.
type TimetableSpec struct {
	Role     string             `yaml:"role"`
	Cycle    workload.CycleSpec `yaml:"cycle"`
	Duration *int64             `yaml:"duration,omitempty"`
}

type ElementTypeSpec struct {
	ID          string         `yaml:"id"`
	Description string         `yaml:"description,omitempty"`
	Priority    int            `yaml:"priority"`
	Vars        map[string]any `yaml:"vars,omitempty"`
}

// FlowSpec is one flow node. Fields only apply to the kinds noted.
type FlowSpec struct {
	ID   string   `yaml:"id"`
	Kind string   `yaml:"kind"`
	Next []string `yaml:"next,omitempty"`

	// sequential precondition, while/do_while guard
	Condition *GuardSpec `yaml:"condition,omitempty"`
	// sequential actions
	Set map[string]any `yaml:"set,omitempty"`
	Add map[string]any `yaml:"add,omitempty"`

	// request / release
	Group         int                `yaml:"group,omitempty"`
	Priority      int                `yaml:"priority,omitempty"`
	Exclusive     bool               `yaml:"exclusive,omitempty"`
	Interruptible bool               `yaml:"interruptible,omitempty"`
	WorkGroups    []WorkGroupSpec    `yaml:"workgroups,omitempty"`
	Cancellations []CancellationSpec `yaml:"cancellations,omitempty"`

	// delay
	Duration *workload.DistSpec `yaml:"duration,omitempty"`

	// exclusive / multi guards, one per next entry; probabilistic weights
	Guards  []*GuardSpec `yaml:"guards,omitempty"`
	Weights []float64    `yaml:"weights,omitempty"`

	// thread_split clones, thread_merge arity, and_merge threshold
	Clones      int `yaml:"clones,omitempty"`
	Arity       int `yaml:"arity,omitempty"`
	AcceptValue int `yaml:"accept_value,omitempty"`

	// structured
	Body       string             `yaml:"body,omitempty"`
	Iterations *workload.DistSpec `yaml:"iterations,omitempty"`
}

// WorkGroupSpec is one alternative of a request step.
type WorkGroupSpec struct {
	Pairs     []PairSpec         `yaml:"pairs"`
	Duration  *workload.DistSpec `yaml:"duration,omitempty"`
	Priority  int                `yaml:"priority,omitempty"`
	Condition *GuardSpec         `yaml:"condition,omitempty"`
}

type PairSpec struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
}

type CancellationSpec struct {
	Type     string            `yaml:"type"`
	Duration workload.DistSpec `yaml:"duration"`
}

type GeneratorSpec struct {
	ElementType string             `yaml:"element_type"`
	Flow        string             `yaml:"flow"`
	Count       int                `yaml:"count"`
	Cycle       workload.CycleSpec `yaml:"cycle"`
}

// Node kinds accepted in FlowSpec.Kind.
const (
	KindSequential    = "sequential"
	KindRequest       = "request"
	KindRelease       = "release"
	KindDelay         = "delay"
	KindExclusive     = "exclusive"
	KindMulti         = "multi"
	KindProbabilistic = "probabilistic"
	KindParallel      = "parallel"
	KindThreadSplit   = "thread_split"
	KindSimpleMerge   = "simple_merge"
	KindANDMerge      = "and_merge"
	KindORMerge       = "or_merge"
	KindThreadMerge   = "thread_merge"
	KindGeneric       = "generic"
	KindWhile         = "while"
	KindDoWhile       = "do_while"
	KindFor           = "for"
)

var validKinds = map[string]bool{
	KindSequential: true, KindRequest: true, KindRelease: true, KindDelay: true,
	KindExclusive: true, KindMulti: true, KindProbabilistic: true, KindParallel: true,
	KindThreadSplit: true, KindSimpleMerge: true, KindANDMerge: true, KindORMerge: true,
	KindThreadMerge: true, KindGeneric: true, KindWhile: true, KindDoWhile: true, KindFor: true,
}

// IsValidKind reports whether kind names a flow node kind.
func IsValidKind(kind string) bool {
	return validKinds[kind]
}

// LoadModelSpec reads and parses a YAML model file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadModelSpec(path string) (*ModelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model spec: %w", err)
	}
	return ParseModelSpec(data)
}

// ParseModelSpec parses a YAML model description.
func ParseModelSpec(data []byte) (*ModelSpec, error) {
	var spec ModelSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing model spec: %w", err)
	}
	return &spec, nil
}

// Validate checks that every reference resolves and every field is in range.
// It reports the first problem found.
func (s *ModelSpec) Validate() error {
	if _, err := sim.ParseTimeUnit(s.Unit); err != nil {
		return err
	}
	if s.End <= s.Start {
		return fmt.Errorf("end %d must be after start %d", s.End, s.Start)
	}
	if err := validateVars("vars", s.Vars); err != nil {
		return err
	}

	types, err := uniqueIDs("resource_types", len(s.ResourceTypes), func(i int) string { return s.ResourceTypes[i].ID })
	if err != nil {
		return err
	}
	if _, err := uniqueIDs("resources", len(s.Resources), func(i int) string { return s.Resources[i].ID }); err != nil {
		return err
	}
	elementTypes, err := uniqueIDs("element_types", len(s.ElementTypes), func(i int) string { return s.ElementTypes[i].ID })
	if err != nil {
		return err
	}
	flows, err := uniqueIDs("flows", len(s.Flows), func(i int) string { return s.Flows[i].ID })
	if err != nil {
		return err
	}

	for i, r := range s.Resources {
		for j, tt := range r.Timetable {
			prefix := fmt.Sprintf("resources[%d].timetable[%d]", i, j)
			if !types[tt.Role] {
				return fmt.Errorf("%s: unknown role %q", prefix, tt.Role)
			}
			if _, err := workload.NewCycle(tt.Cycle); err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
			if tt.Duration != nil && *tt.Duration <= 0 {
				return fmt.Errorf("%s: duration must be positive, got %d", prefix, *tt.Duration)
			}
		}
	}
	for i, et := range s.ElementTypes {
		if err := validateVars(fmt.Sprintf("element_types[%d].vars", i), et.Vars); err != nil {
			return err
		}
	}
	for i := range s.Flows {
		if err := validateFlow(&s.Flows[i], i, types, flows); err != nil {
			return err
		}
	}
	for i, g := range s.Generators {
		prefix := fmt.Sprintf("generators[%d]", i)
		if !elementTypes[g.ElementType] {
			return fmt.Errorf("%s: unknown element_type %q", prefix, g.ElementType)
		}
		if !flows[g.Flow] {
			return fmt.Errorf("%s: unknown flow %q", prefix, g.Flow)
		}
		if g.Count <= 0 {
			return fmt.Errorf("%s: count must be positive, got %d", prefix, g.Count)
		}
		if _, err := workload.NewCycle(g.Cycle); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return nil
}

func uniqueIDs(section string, n int, id func(int) string) (map[string]bool, error) {
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		v := id(i)
		if v == "" {
			return nil, fmt.Errorf("%s[%d]: missing id", section, i)
		}
		if seen[v] {
			return nil, fmt.Errorf("%s[%d]: duplicate id %q", section, i, v)
		}
		seen[v] = true
	}
	return seen, nil
}

func validateVars(prefix string, vars map[string]any) error {
	for name, raw := range vars {
		if _, err := sim.ValueOf(normalize(raw)); err != nil {
			return fmt.Errorf("%s.%s: %w", prefix, name, err)
		}
	}
	return nil
}

func validateFlow(f *FlowSpec, idx int, types, flows map[string]bool) error {
	prefix := fmt.Sprintf("flows[%d] (%s)", idx, f.ID)
	if !IsValidKind(f.Kind) {
		return fmt.Errorf("%s: unknown kind %q", prefix, f.Kind)
	}
	for _, n := range f.Next {
		if !flows[n] {
			return fmt.Errorf("%s: unknown next flow %q", prefix, n)
		}
	}
	if len(f.Next) > 1 && !branches(f.Kind) {
		return fmt.Errorf("%s: %s nodes take a single next flow, got %d", prefix, f.Kind, len(f.Next))
	}
	if err := validateGuard(prefix+".condition", f.Condition); err != nil {
		return err
	}

	switch f.Kind {
	case KindSequential:
		for name, raw := range f.Add {
			v, err := sim.ValueOf(normalize(raw))
			if err != nil {
				return fmt.Errorf("%s.add.%s: %w", prefix, name, err)
			}
			if !v.IsNumeric() {
				return fmt.Errorf("%s.add.%s: value must be numeric", prefix, name)
			}
		}
		if err := validateVars(prefix+".set", f.Set); err != nil {
			return err
		}
	case KindRequest:
		if f.Group <= 0 {
			return fmt.Errorf("%s: group must be positive, got %d", prefix, f.Group)
		}
		if len(f.WorkGroups) == 0 {
			return fmt.Errorf("%s: at least one work group required", prefix)
		}
		for i, wg := range f.WorkGroups {
			if err := validateWorkGroup(fmt.Sprintf("%s.workgroups[%d]", prefix, i), &wg, types); err != nil {
				return err
			}
		}
	case KindRelease:
		if f.Group <= 0 {
			return fmt.Errorf("%s: group must be positive, got %d", prefix, f.Group)
		}
		for i, c := range f.Cancellations {
			p := fmt.Sprintf("%s.cancellations[%d]", prefix, i)
			if !types[c.Type] {
				return fmt.Errorf("%s: unknown resource type %q", p, c.Type)
			}
			if _, err := workload.NewSampler(c.Duration); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
		}
	case KindDelay:
		if f.Duration == nil {
			return fmt.Errorf("%s: delay requires a duration", prefix)
		}
		if _, err := workload.NewSampler(*f.Duration); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	case KindExclusive, KindMulti:
		if len(f.Guards) > len(f.Next) {
			return fmt.Errorf("%s: %d guards for %d branches", prefix, len(f.Guards), len(f.Next))
		}
		for i, g := range f.Guards {
			if err := validateGuard(fmt.Sprintf("%s.guards[%d]", prefix, i), g); err != nil {
				return err
			}
		}
	case KindProbabilistic:
		if len(f.Weights) != len(f.Next) {
			return fmt.Errorf("%s: %d weights for %d branches", prefix, len(f.Weights), len(f.Next))
		}
		for i, w := range f.Weights {
			if w < 0 {
				return fmt.Errorf("%s.weights[%d]: must be non-negative, got %g", prefix, i, w)
			}
		}
	case KindThreadSplit:
		if f.Clones <= 0 {
			return fmt.Errorf("%s: clones must be positive, got %d", prefix, f.Clones)
		}
	case KindThreadMerge:
		if f.Arity <= 0 {
			return fmt.Errorf("%s: arity must be positive, got %d", prefix, f.Arity)
		}
	case KindANDMerge:
		if f.AcceptValue < 0 {
			return fmt.Errorf("%s: accept_value must be non-negative, got %d", prefix, f.AcceptValue)
		}
	case KindGeneric, KindWhile, KindDoWhile, KindFor:
		if !flows[f.Body] {
			return fmt.Errorf("%s: unknown body flow %q", prefix, f.Body)
		}
		if (f.Kind == KindWhile || f.Kind == KindDoWhile) && f.Condition == nil {
			return fmt.Errorf("%s: %s loop requires a condition", prefix, f.Kind)
		}
		if f.Kind == KindFor {
			if f.Iterations == nil {
				return fmt.Errorf("%s: for loop requires iterations", prefix)
			}
			if _, err := workload.NewSampler(*f.Iterations); err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
		}
	}
	return nil
}

func validateWorkGroup(prefix string, wg *WorkGroupSpec, types map[string]bool) error {
	for i, p := range wg.Pairs {
		if !types[p.Type] {
			return fmt.Errorf("%s.pairs[%d]: unknown resource type %q", prefix, i, p.Type)
		}
		if p.Count <= 0 {
			return fmt.Errorf("%s.pairs[%d]: count must be positive, got %d", prefix, i, p.Count)
		}
	}
	if wg.Duration != nil {
		if _, err := workload.NewSampler(*wg.Duration); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return validateGuard(prefix+".condition", wg.Condition)
}

func branches(kind string) bool {
	switch kind {
	case KindExclusive, KindMulti, KindProbabilistic, KindParallel:
		return true
	}
	return false
}

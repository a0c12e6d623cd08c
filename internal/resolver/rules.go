package resolver

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps trigger words found in the item name or material guess onto the
// first known category containing one of Targets.
type Rule struct {
	Name     string      `yaml:"name"`
	Triggers []string    `yaml:"triggers"`
	Targets  []string    `yaml:"targets"`
	FoldCase bool        `yaml:"fold_case"`
	Refine   *Refinement `yaml:"refine,omitempty"`
}

// Refinement narrows a rule's candidates: when any keyword appears in the
// input, a candidate containing Target is preferred; otherwise a candidate
// without it is preferred.
type Refinement struct {
	Keywords []string `yaml:"keywords"`
	Target   string   `yaml:"target"`
}

// DefaultRules is the built-in keyword table, evaluated in order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "fasteners", Triggers: []string{"bolt", "screw", "nut"}, Targets: []string{"Bolt", "Screw"}},
		{Name: "pipes", Triggers: []string{"pipe", "tube"}, Targets: []string{"Pipes"},
			Refine: &Refinement{Keywords: []string{"alum"}, Target: "Alum"}},
		{Name: "wire", Triggers: []string{"wire", "cable"}, Targets: []string{"Wire"}},
		{Name: "aluminum", Triggers: []string{"aluminum", "aluminium"}, Targets: []string{"Aluminum"},
			Refine: &Refinement{Keywords: []string{"ingot"}, Target: "Ingot"}},
		{Name: "sheet", Triggers: []string{"sheet", "plate"}, Targets: []string{"Sheet", "Plate"}},
		{Name: "cement", Triggers: []string{"cement", "cmnt"}, Targets: []string{"cement"}, FoldCase: true},
	}
}

const (
	ModeAppend  = "append"
	ModeReplace = "replace"
)

type ruleFile struct {
	Mode  string `yaml:"mode"`
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule file. With mode "append" (the default) the
// file's rules run after the built-in ones; with "replace" they are the only
// rules.
//
//	mode: append
//	rules:
//	  - name: rebar
//	    triggers: [rebar]
//	    targets: [Rebar]
func LoadRules(r io.Reader) ([]Rule, error) {
	var rf ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	for i := range rf.Rules {
		if err := rf.Rules[i].normalize(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(rf.Mode)) {
	case "", ModeAppend:
		return append(DefaultRules(), rf.Rules...), nil
	case ModeReplace:
		return rf.Rules, nil
	default:
		return nil, fmt.Errorf("unknown rules mode %q", rf.Mode)
	}
}

func (r *Rule) normalize() error {
	r.Triggers = cleanWords(r.Triggers, true)
	r.Targets = cleanWords(r.Targets, false)
	if len(r.Triggers) == 0 {
		return fmt.Errorf("%q has no triggers", r.Name)
	}
	if len(r.Targets) == 0 {
		return fmt.Errorf("%q has no targets", r.Name)
	}
	if r.Refine != nil {
		r.Refine.Keywords = cleanWords(r.Refine.Keywords, true)
		r.Refine.Target = strings.TrimSpace(r.Refine.Target)
		if len(r.Refine.Keywords) == 0 || r.Refine.Target == "" {
			r.Refine = nil
		}
	}
	return nil
}

func cleanWords(in []string, lower bool) []string {
	out := in[:0]
	for _, w := range in {
		w = strings.TrimSpace(w)
		if lower {
			w = strings.ToLower(w)
		}
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// candidates returns the known categories matching one of the targets. A
// category equal to a target comes first, the rest keep known order.
func (r Rule) candidates(known []string) []string {
	var exact, partial []string
	for _, cat := range known {
		for _, t := range r.Targets {
			if cat == t || (r.FoldCase && strings.EqualFold(cat, t)) {
				exact = append(exact, cat)
				break
			}
			if contains(cat, t, r.FoldCase) {
				partial = append(partial, cat)
				break
			}
		}
	}
	return append(exact, partial...)
}

func (r Rule) triggered(text string) bool {
	return containsAny(text, r.Triggers)
}

func (f *Refinement) pick(text string, candidates []string, foldCase bool) string {
	want := containsAny(text, f.Keywords)
	for _, c := range candidates {
		if contains(c, f.Target, foldCase) == want {
			return c
		}
	}
	return candidates[0]
}

func contains(s, sub string, foldCase bool) bool {
	if foldCase {
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	}
	return strings.Contains(s, sub)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

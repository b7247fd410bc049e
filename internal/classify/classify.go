package classify

import (
	"sort"
	"strings"

	"danceimport/internal/model"
)

// Rule assigns Label to any title containing one of Keywords.
type Rule struct {
	Label    string   `yaml:"label" json:"label"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// DefaultRules returns a fresh copy of the built-in style table.
func DefaultRules() []Rule {
	return []Rule{
		{Label: "Salsa", Keywords: []string{"salsa"}},
		{Label: "Bachata", Keywords: []string{"bachata"}},
		{Label: "Zouk", Keywords: []string{"zouk"}},
		{Label: "Kizomba", Keywords: []string{"kizomba"}},
		{Label: "West Coast Swing", Keywords: []string{"west coast swing", "wcs"}},
		{Label: "Fusion", Keywords: []string{"fusion"}},
		{Label: "Ecstatic", Keywords: []string{"ecstatic"}},
		{Label: "Contact Improv", Keywords: []string{"contact improv"}},
	}
}

// Classifier labels events by dance style. The zero value is not usable;
// construct one with New.
type Classifier struct {
	rules []Rule
}

// New copies rules, lower-casing keywords and dropping empty entries. A nil
// or empty slice means DefaultRules.
func New(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	c := &Classifier{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		label := strings.TrimSpace(r.Label)
		if label == "" {
			continue
		}
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) == 0 {
			continue
		}
		c.rules = append(c.rules, Rule{Label: label, Keywords: kws})
	}
	return c
}

// Classify matches title against every rule, case-insensitively. The result
// is sorted and never empty.
func (c *Classifier) Classify(title string) []string {
	lower := strings.ToLower(title)
	var labels []string
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				labels = append(labels, r.Label)
				break
			}
		}
	}
	return finish(labels)
}

// FromStyles uses a style list supplied by the source instead of keyword
// inference.
func FromStyles(styles []string) []string {
	labels := make([]string, 0, len(styles))
	for _, s := range styles {
		if s = strings.TrimSpace(s); s != "" {
			labels = append(labels, s)
		}
	}
	return finish(labels)
}

func finish(labels []string) []string {
	if len(labels) == 0 {
		return []string{model.Uncategorized}
	}
	sort.Strings(labels)
	out := labels[:1]
	for _, l := range labels[1:] {
		if l != out[len(out)-1] {
			out = append(out, l)
		}
	}
	return out
}

package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// Tags is a case-sensitive set of labels. It is stored as a sorted array so
// that snapshots are deterministic.
type Tags map[string]struct{}

// NewTags builds a set from labels, dropping blanks.
func NewTags(labels ...string) Tags {
	t := make(Tags, len(labels))
	for _, l := range labels {
		t.Add(l)
	}
	return t
}

func (t Tags) Add(label string) {
	if label = strings.TrimSpace(label); label != "" {
		t[label] = struct{}{}
	}
}

func (t Tags) Remove(label string) { delete(t, label) }

func (t Tags) Has(label string) bool {
	_, ok := t[label]
	return ok
}

// Slice returns the labels in lexical order.
func (t Tags) Slice() []string {
	out := make([]string, 0, len(t))
	for l := range t {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (t Tags) String() string { return strings.Join(t.Slice(), ", ") }

func (t Tags) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Slice())
}

func (t *Tags) UnmarshalJSON(b []byte) error {
	var labels []string
	if err := json.Unmarshal(b, &labels); err != nil {
		return err
	}
	*t = NewTags(labels...)
	return nil
}

package metrics

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Label holds key/values describing a run, such as the analysis settings.
// go-metrics registries only store their own metric kinds, so labels are
// kept beside them, keyed by registry and name.
type Label struct {
	mu    sync.Mutex
	value map[string]interface{}
}

type labelKey struct {
	r    Registry
	name string
}

var labels sync.Map // labelKey -> *Label

// GetOrRegisterLabel returns the label registered under name, creating it
// when absent.
func GetOrRegisterLabel(name string, r Registry) *Label {
	if r == nil {
		r = DefaultRegistry
	}
	l, _ := labels.LoadOrStore(labelKey{r, name}, &Label{value: make(map[string]interface{})})
	return l.(*Label)
}

// Mark sets the given keys, keeping the others.
func (l *Label) Mark(value map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	maps.Copy(l.value, value)
}

// Value returns a copy of the current key/values.
func (l *Label) Value() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.value)
}

// writeLabels prints the labels of r sorted by name, keys sorted within.
func writeLabels(r Registry, w io.Writer) {
	found := make(map[string]*Label)
	labels.Range(func(k, v interface{}) bool {
		if key := k.(labelKey); key.r == r {
			found[key.name] = v.(*Label)
		}
		return true
	})
	names := maps.Keys(found)
	slices.Sort(names)
	for _, name := range names {
		value := found[name].Value()
		keys := maps.Keys(value)
		slices.Sort(keys)
		fmt.Fprintf(w, "label %s\n", name)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, value[k])
		}
	}
}

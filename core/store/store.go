// Package store keeps the analysis result of every method by identity.
package store

import (
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/jflow-project/jflow/core/analyser"
	"github.com/jflow-project/jflow/core/cfg"
	"github.com/jflow-project/jflow/core/instruction"
	"github.com/jflow-project/jflow/core/variables"
	"github.com/jflow-project/jflow/metrics"
)

var (
	putCounter     = metrics.NewRegisteredCounter("store/put", nil)
	replaceCounter = metrics.NewRegisteredCounter("store/replace", nil)
	sizeGauge      = metrics.NewRegisteredGauge("store/size", nil)
)

// Store maps method identities to results. Results are never modified once
// stored; re-analysis replaces the whole entry. It is safe for concurrent use.
type Store struct {
	lock    sync.RWMutex
	results map[instruction.MethodID]*analyser.Result
	classes map[string]mapset.Set[instruction.MethodID]
}

// New creates an empty store.
func New() *Store {
	return &Store{
		results: make(map[instruction.MethodID]*analyser.Result),
		classes: make(map[string]mapset.Set[instruction.MethodID]),
	}
}

// Put inserts res, replacing any result for the same method. When a result
// is replaced, a LoadTypeChanged event is returned for every load order
// typed differently by the two versions.
func (s *Store) Put(res *analyser.Result) []analyser.Event {
	s.lock.Lock()
	prev := s.results[res.ID]
	s.results[res.ID] = res
	set, ok := s.classes[res.ID.Class]
	if !ok {
		set = mapset.NewThreadUnsafeSet[instruction.MethodID]()
		s.classes[res.ID.Class] = set
	}
	set.Add(res.ID)
	sizeGauge.Update(int64(len(s.results)))
	s.lock.Unlock()

	putCounter.Inc(1)
	if prev == nil {
		return nil
	}
	replaceCounter.Inc(1)
	return loadChanges(prev, res)
}

func loadChanges(prev, next *analyser.Result) []analyser.Event {
	var (
		before = prev.LoadTypes()
		after  = next.LoadTypes()
		orders = maps.Keys(after)
		events []analyser.Event
	)
	slices.Sort(orders)
	for _, order := range orders {
		old, ok := before[order]
		if !ok || old == after[order] {
			continue
		}
		events = append(events, analyser.Event{
			Kind:   analyser.LoadTypeChanged,
			Method: next.ID,
			Order:  order,
			Old:    old,
			New:    after[order],
		})
	}
	return events
}

// Get returns the result stored for id.
func (s *Store) Get(id instruction.MethodID) (*analyser.Result, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res, ok := s.results[id]
	return res, ok
}

// Delete drops the result stored for id, reporting whether there was one.
func (s *Store) Delete(id instruction.MethodID) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.results[id]; !ok {
		return false
	}
	delete(s.results, id)
	if set := s.classes[id.Class]; set != nil {
		set.Remove(id)
		if set.Cardinality() == 0 {
			delete(s.classes, id.Class)
		}
	}
	sizeGauge.Update(int64(len(s.results)))
	return true
}

// Len returns the number of stored results.
func (s *Store) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.results)
}

// Classes returns the declaring classes with at least one result, sorted.
func (s *Store) Classes() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	classes := maps.Keys(s.classes)
	slices.Sort(classes)
	return classes
}

// ByClass returns the results of the methods declared by class.
func (s *Store) ByClass(class string) []*analyser.Result {
	s.lock.RLock()
	defer s.lock.RUnlock()

	set, ok := s.classes[class]
	if !ok {
		return nil
	}
	out := make([]*analyser.Result, 0, set.Cardinality())
	for _, id := range set.ToSlice() {
		out = append(out, s.results[id])
	}
	sortResults(out)
	return out
}

// Filter returns the results accepted by keep, ordered by identity.
func (s *Store) Filter(keep func(*analyser.Result) bool) []*analyser.Result {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var out []*analyser.Result
	for _, res := range s.results {
		if keep(res) {
			out = append(out, res)
		}
	}
	sortResults(out)
	return out
}

// CFGs returns the graph of every stored method.
func (s *Store) CFGs() map[instruction.MethodID]*cfg.Graph {
	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make(map[instruction.MethodID]*cfg.Graph, len(s.results))
	for id, res := range s.results {
		out[id] = res.Graph
	}
	return out
}

// VariableTables returns the variable table of every stored method.
func (s *Store) VariableTables() map[instruction.MethodID]*variables.Table {
	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make(map[instruction.MethodID]*variables.Table, len(s.results))
	for id, res := range s.results {
		out[id] = res.Variables
	}
	return out
}

func sortResults(rs []*analyser.Result) {
	slices.SortFunc(rs, func(a, b *analyser.Result) int {
		return compareIDs(a.ID, b.ID)
	})
}

func compareIDs(a, b instruction.MethodID) int {
	if c := strings.Compare(a.Class, b.Class); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.Desc, b.Desc)
}

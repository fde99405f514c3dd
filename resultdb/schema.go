package resultdb

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/jflow-project/jflow/core/analyser"
	"github.com/jflow-project/jflow/core/instruction"
)

// Keys are class, method name and descriptor joined by a zero byte, so all
// the methods of a class share the class prefix.
const sep = 0x00

func summaryKey(id instruction.MethodID) []byte {
	key := make([]byte, 0, len(id.Class)+len(id.Name)+len(id.Desc)+2)
	key = append(key, id.Class...)
	key = append(key, sep)
	key = append(key, id.Name...)
	key = append(key, sep)
	return append(key, id.Desc...)
}

func classPrefix(class string) []byte {
	return append([]byte(class), sep)
}

func parseKey(key []byte) (instruction.MethodID, error) {
	parts := bytes.SplitN(key, []byte{sep}, 3)
	if len(parts) != 3 {
		return instruction.MethodID{}, errors.Errorf("resultdb: malformed key %q", key)
	}
	return instruction.MethodID{Class: string(parts[0]), Name: string(parts[1]), Desc: string(parts[2])}, nil
}

// Summary is what is persisted for one analysed method.
type Summary struct {
	Class string `json:"-" yaml:"class"`
	Name  string `json:"-" yaml:"name"`
	Desc  string `json:"-" yaml:"desc"`

	Static           bool  `json:"static,omitempty" yaml:"static,omitempty"`
	HasJumps         bool  `json:"hasJumps,omitempty" yaml:"hasJumps,omitempty"`
	Instructions     int   `json:"instructions" yaml:"instructions"`
	Edges            int   `json:"edges" yaml:"edges"`
	Iterations       int   `json:"iterations" yaml:"iterations"`
	BooleanProducers []int `json:"booleanProducers,omitempty" yaml:"booleanProducers,flow,omitempty"`

	// Error is set when the analysis failed; ErrorOrder is -1 when the
	// failure is not tied to one instruction.
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorOrder int    `json:"errorOrder,omitempty" yaml:"errorOrder,omitempty"`
}

// ID returns the method the summary describes.
func (s *Summary) ID() instruction.MethodID {
	return instruction.MethodID{Class: s.Class, Name: s.Name, Desc: s.Desc}
}

// Failed reports whether the summary records a failed analysis.
func (s *Summary) Failed() bool { return s.Error != "" }

// NewSummary summarises a successful analysis.
func NewSummary(res *analyser.Result) *Summary {
	return &Summary{
		Class:            res.ID.Class,
		Name:             res.ID.Name,
		Desc:             res.ID.Desc,
		Static:           res.Static,
		HasJumps:         res.HasJumps,
		Instructions:     res.Len(),
		Edges:            res.Graph.EdgeCount(),
		Iterations:       res.Frames.Iterations,
		BooleanProducers: res.BooleanProducers(),
	}
}

// FailedSummary records a failed analysis.
func FailedSummary(err *analyser.Error) *Summary {
	return &Summary{
		Class:      err.Method.Class,
		Name:       err.Method.Name,
		Desc:       err.Method.Desc,
		Error:      err.Err.Error(),
		ErrorOrder: err.Order,
	}
}

// WriteSummary stores s, replacing any earlier summary of the method.
func WriteSummary(db *Database, s *Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return db.Put(summaryKey(s.ID()), data)
}

// WriteOutcomes stores the summaries of a batch in one atomic write.
func WriteOutcomes(db *Database, outcomes []analyser.Outcome) error {
	batch := db.NewBatch()
	for _, o := range outcomes {
		var s *Summary
		switch {
		case o.Result != nil:
			s = NewSummary(o.Result)
		case o.Err != nil:
			s = FailedSummary(o.Err)
		default:
			continue
		}
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		if err := batch.Put(summaryKey(s.ID()), data); err != nil {
			return err
		}
	}
	return batch.Write()
}

// ReadSummary returns the summary of id, or ErrNotFound.
func ReadSummary(db *Database, id instruction.MethodID) (*Summary, error) {
	data, err := db.Get(summaryKey(id))
	if err != nil {
		return nil, err
	}
	return decodeSummary(id, data)
}

// DeleteSummary removes the summary of id.
func DeleteSummary(db *Database, id instruction.MethodID) error {
	return db.Delete(summaryKey(id))
}

// IterateClass calls fn with every summary of class in key order until fn
// returns false.
func IterateClass(db *Database, class string, fn func(*Summary) bool) error {
	return iterate(db, classPrefix(class), fn)
}

// Iterate calls fn with every stored summary in key order until fn returns
// false.
func Iterate(db *Database, fn func(*Summary) bool) error {
	return iterate(db, nil, fn)
}

func iterate(db *Database, prefix []byte, fn func(*Summary) bool) error {
	it, err := db.NewIterator(prefix, nil)
	if err != nil {
		return err
	}
	for it.Next() {
		id, err := parseKey(it.Key())
		if err != nil {
			it.Release()
			return err
		}
		s, err := decodeSummary(id, it.Value())
		if err != nil {
			it.Release()
			return err
		}
		if !fn(s) {
			break
		}
	}
	if err := it.Error(); err != nil {
		it.Release()
		return err
	}
	return it.Release()
}

func decodeSummary(id instruction.MethodID, data []byte) (*Summary, error) {
	s := new(Summary)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, errors.Wrapf(err, "resultdb: summary of %v", id)
	}
	s.Class, s.Name, s.Desc = id.Class, id.Name, id.Desc
	return s, nil
}

// Package listing reads method bodies from YAML listings. A listing names a
// class and, for every method, its descriptor, an assembly-like body, the
// local variable table and the exception table:
//
//	class: demo/Flags
//	methods:
//	  - name: isZero
//	    desc: (I)Z
//	    static: true
//	    code: |
//	      ILOAD_0
//	      IFEQ yes
//	      ICONST_0
//	      GOTO done
//	      yes: ICONST_1
//	      done: IRETURN
//
// Listings stand in for a class-file reader: they feed the analyser the same
// instruction stream in program order.
package listing

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jflow-project/jflow/core/analyser"
	"github.com/jflow-project/jflow/log"
)

// File is one YAML document of a listing.
type File struct {
	Class   string   `yaml:"class"`
	Methods []Method `yaml:"methods"`
}

// Method is the listing of one method body.
type Method struct {
	Name     string    `yaml:"name"`
	Desc     string    `yaml:"desc"`
	Static   bool      `yaml:"static,omitempty"`
	Code     string    `yaml:"code"`
	Locals   []Local   `yaml:"locals,omitempty"`
	Handlers []Handler `yaml:"handlers,omitempty"`
}

// Local declares a variable. Start and End are labels or orders and are
// both inclusive.
type Local struct {
	Slot  int    `yaml:"slot"`
	Name  string `yaml:"name"`
	Desc  string `yaml:"desc"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Handler is an exception table entry. End is exclusive; an empty Type
// catches everything.
type Handler struct {
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Handler string `yaml:"handler"`
	Type    string `yaml:"type,omitempty"`
}

// Decode reads every document of a listing and assembles its methods.
func Decode(r io.Reader) ([]analyser.Method, error) {
	var (
		dec = yaml.NewDecoder(r)
		out []analyser.Method
	)
	dec.KnownFields(true)
	for {
		var f File
		if err := dec.Decode(&f); err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, err
		}
		if f.Class == "" {
			return nil, errors.New("listing without class")
		}
		for _, m := range f.Methods {
			am, err := Assemble(f.Class, m)
			if err != nil {
				return nil, err
			}
			out = append(out, am)
		}
	}
}

// Load decodes the listing file at path.
func Load(path string) ([]analyser.Method, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	methods, err := Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	log.Debug("Loaded listing", "file", path, "methods", len(methods))
	return methods, nil
}

// LoadFiles loads listings in parallel. The methods keep the order of paths
// and, within a file, the order of the listing.
func LoadFiles(ctx context.Context, paths []string) ([]analyser.Method, error) {
	var (
		g, gctx = errgroup.WithContext(ctx)
		loaded  = make([][]analyser.Method, len(paths))
	)
	g.SetLimit(8)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			methods, err := Load(path)
			if err != nil {
				return err
			}
			loaded[i] = methods
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []analyser.Method
	for _, methods := range loaded {
		out = append(out, methods...)
	}
	return out, nil
}

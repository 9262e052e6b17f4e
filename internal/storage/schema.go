package storage

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSrc string

// Schema definitions, one per record kind.
const (
	DefUser  = "#User"
	DefPhoto = "#Photo"
)

// Schema validates raw JSON records against the embedded CUE definitions.
// A cue.Context is not safe for concurrent use, so calls are serialised.
type Schema struct {
	mu   sync.Mutex
	ctx  *cue.Context
	root cue.Value
}

// NewSchema compiles the embedded schema.
func NewSchema() (*Schema, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{ctx: ctx, root: root}, nil
}

// Validate checks one JSON record against definition def (DefUser or DefPhoto).
func (s *Schema) Validate(def string, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.root.LookupPath(cue.ParsePath(def))
	if !d.Exists() {
		return fmt.Errorf("unknown schema definition %s", def)
	}

	// JSON is valid CUE.
	v := s.ctx.CompileBytes(record, cue.Filename(def+".json"))
	if err := v.Err(); err != nil {
		return err
	}
	return d.Unify(v).Validate(cue.Concrete(true))
}

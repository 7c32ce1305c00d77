// Package catalog is the static registry of exportable entity types: their
// archive tables, column sets, foreign-key fields with target types, media
// fields, and the column each type uses as its portable natural key. Every
// other part of the backup engine (ordering, writing, reading, validation,
// commit, media sync) consumes this registry; it has no runtime state.
package catalog

import (
	"fmt"
	"sort"

	"printvault/pkg/domain"
)

// FieldKind describes how a scalar column is parsed and validated.
type FieldKind int

// Supported scalar column kinds.
const (
	KindString FieldKind = iota
	KindInt
	KindFloat
	// KindDate is a calendar date cell in 2006-01-02 form.
	KindDate
	KindEnum
	// KindStringList is a JSON-encoded list of strings in a single cell.
	KindStringList
)

// Field describes one scalar column of an export table. Required fields
// must be non-empty; optional typed fields may be empty and fall back to
// the type's zero or default value at decode time.
type Field struct {
	Column   string
	Kind     FieldKind
	Required bool
	// Enum lists the allowed cell values when Kind is KindEnum.
	Enum []string
	// Default is substituted for an empty optional enum cell.
	Default string
}

// Ref describes a foreign-key column pointing at another entity type. The
// exported cell carries the target's natural key; an empty cell is allowed
// only when Required is false.
type Ref struct {
	Column   string
	Target   domain.EntityType
	Required bool
}

// MediaField describes a column holding a managed media path. Cells carry
// archive-relative paths on export and blob keys once imported; empty means
// no media attached.
type MediaField struct {
	Column string
}

// Descriptor declares how one entity type is exported, validated, and
// imported. Encode and Decode are the only places that touch concrete
// entity structs; everything else works from the declarative metadata.
type Descriptor struct {
	Type    domain.EntityType
	Display string
	Table   string
	// NaturalKey names the column that identifies a record portably across
	// installations: a unique human-meaningful column for lookup types,
	// "id" for everything else.
	NaturalKey string
	Fields     []Field
	Refs       []Ref
	Media      []MediaField
	// Encode flattens a record into cell values keyed by column. Ref cells
	// hold raw internal IDs and media cells hold blob keys; the archive
	// writer rewrites both before emitting a row.
	Encode func(domain.Record) map[string]string
	// Decode builds a record from validated cells. refs and media carry
	// resolved internal IDs and blob keys keyed by column; nil means unset.
	Decode func(cells map[string]string, refs map[string]*string, media map[string]*string) (domain.Record, error)
	// SetMedia writes a media column's blob key onto an existing record.
	// The import engine calls it after record creation, once the final blob
	// key is known. Required when Media is non-empty.
	SetMedia func(rec domain.Record, column string, value *string) error
}

// Columns returns the ordered archive column set: id, scalar fields, refs,
// media.
func (d Descriptor) Columns() []string {
	cols := make([]string, 0, 1+len(d.Fields)+len(d.Refs)+len(d.Media))
	cols = append(cols, "id")
	for _, f := range d.Fields {
		cols = append(cols, f.Column)
	}
	for _, r := range d.Refs {
		cols = append(cols, r.Column)
	}
	for _, m := range d.Media {
		cols = append(cols, m.Column)
	}
	return cols
}

// KeyValue extracts a record's natural key using the descriptor's encoder.
func (d Descriptor) KeyValue(rec domain.Record) string {
	if d.NaturalKey == "id" {
		return rec.RecordID()
	}
	return d.Encode(rec)[d.NaturalKey]
}

var (
	descriptors []Descriptor
	byType      = map[domain.EntityType]int{}
	byTable     = map[string]int{}
)

// register adds a descriptor to the catalog. Duplicate types or tables are
// programming errors and panic at init time, before any request is served.
func register(d Descriptor) {
	if _, ok := byType[d.Type]; ok {
		panic(fmt.Sprintf("catalog: duplicate entity type %q", d.Type))
	}
	if _, ok := byTable[d.Table]; ok {
		panic(fmt.Sprintf("catalog: duplicate table %q", d.Table))
	}
	if d.Encode == nil || d.Decode == nil {
		panic(fmt.Sprintf("catalog: entity %q missing codec", d.Type))
	}
	if len(d.Media) > 0 && d.SetMedia == nil {
		panic(fmt.Sprintf("catalog: entity %q has media columns but no setter", d.Type))
	}
	found := d.NaturalKey == "id"
	for _, f := range d.Fields {
		if f.Column == d.NaturalKey {
			found = true
		}
	}
	if !found {
		panic(fmt.Sprintf("catalog: entity %q natural key %q is not a column", d.Type, d.NaturalKey))
	}
	byType[d.Type] = len(descriptors)
	byTable[d.Table] = len(descriptors)
	descriptors = append(descriptors, d)
}

// Descriptors returns all registered descriptors in registration order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// Get looks a descriptor up by entity type.
func Get(t domain.EntityType) (Descriptor, bool) {
	i, ok := byType[t]
	if !ok {
		return Descriptor{}, false
	}
	return descriptors[i], true
}

// ByTable looks a descriptor up by archive table name.
func ByTable(name string) (Descriptor, bool) {
	i, ok := byTable[name]
	if !ok {
		return Descriptor{}, false
	}
	return descriptors[i], true
}

// Index reports a type's registration position. Unknown types sort last.
func Index(t domain.EntityType) int {
	if i, ok := byType[t]; ok {
		return i
	}
	return len(descriptors)
}

// Tables returns all archive table names, sorted for stable listings.
func Tables() []string {
	out := make([]string, 0, len(byTable))
	for name := range byTable {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Package mapping builds core.EntityMapping implementations from Go
// struct tags, and caches the reflection work behind each one.
package mapping

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"docsession/internal/core"
)

// Tag is the struct tag namespace this package reads: `session:"..."`.
const Tag = "session"

// field kinds recognized in a `session:"..."` tag.
const (
	kindIgnored = iota
	kindIdentity
	kindReference
	kindEmbedded
)

type fieldPlan struct {
	index []int
	kind  int
	flags core.PropertyFlags
}

type walkPlan struct {
	typ        reflect.Type
	idField    []int
	fields     []fieldPlan
}

var nextMappingID int32

// StructMapping is a reflection-driven core.EntityMapping for one Go
// struct type, configured entirely from `session:"..."` field tags.
type StructMapping struct {
	id      int
	name    string
	typ     reflect.Type // struct type, not pointer
	idgen   core.IdentityGenerator
	root    core.EntityMapping
	plan    *walkPlan
	walkerWG sync.WaitGroup
}

// planCache memoizes the reflective walk plan for each struct type so a
// later New for the same type reuses it instead of parsing the tags again.
var planCache, _ = lru.New[reflect.Type, *walkPlan](256)

// New builds a StructMapping for the struct type pointed to by sample
// (sample must be a non-nil pointer, e.g. &User{}). name is the
// collection/bucket name used by persisters. idgen mints identities for
// new instances.
func New(name string, sample any, idgen core.IdentityGenerator) (*StructMapping, error) {
	v := reflect.ValueOf(sample)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("mapping: sample for %q must be a pointer to a struct", name)
	}
	typ := v.Elem().Type()

	plan, ok := planCache.Get(typ)
	if !ok {
		var err error
		plan, err = buildPlan(typ)
		if err != nil {
			return nil, err
		}
		planCache.Add(typ, plan)
	}
	if plan.idField == nil {
		return nil, fmt.Errorf("mapping: %s declares no session:\"id\" field", typ)
	}

	m := &StructMapping{
		id:    int(atomic.AddInt32(&nextMappingID, 1)),
		name:  name,
		typ:   typ,
		idgen: idgen,
		plan:  plan,
	}
	m.root = m
	return m, nil
}

func buildPlan(typ reflect.Type) (*walkPlan, error) {
	plan := &walkPlan{typ: typ}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, ok := f.Tag.Lookup(Tag)
		if !ok {
			continue
		}
		parts := strings.Split(tag, ",")
		head := strings.TrimSpace(parts[0])
		opts := parts[1:]

		switch head {
		case "-":
			continue
		case "id":
			plan.idField = []int{i}
			continue
		case "ref":
			plan.fields = append(plan.fields, fieldPlan{index: []int{i}, kind: kindReference, flags: parseFlags(opts)})
		case "embedded":
			plan.fields = append(plan.fields, fieldPlan{index: []int{i}, kind: kindEmbedded, flags: parseFlags(opts)})
		default:
			return nil, fmt.Errorf("mapping: %s field %s has unrecognized session tag %q", typ, f.Name, tag)
		}
	}
	return plan, nil
}

func parseFlags(opts []string) core.PropertyFlags {
	var flags core.PropertyFlags
	for _, o := range opts {
		switch strings.TrimSpace(o) {
		case "cascade=save":
			flags |= core.FlagCascadeSave
		case "cascade=remove":
			flags |= core.FlagCascadeRemove
		case "cascade=detach":
			flags |= core.FlagCascadeDetach
		case "cascade=refresh":
			flags |= core.FlagCascadeRefresh
		case "cascade=merge":
			flags |= core.FlagCascadeMerge
		case "cascade=all":
			flags |= core.FlagCascadeAll
		case "inverse":
			flags |= core.FlagInverseSide
		case "nullable":
			flags |= core.FlagNullable
		case "orphanRemoval":
			flags |= core.FlagOrphanRemoval
		case "dereference":
			flags |= core.FlagDereference
		}
	}
	return flags
}

func (m *StructMapping) ID() int                       { return m.id }
func (m *StructMapping) Name() string                  { return m.name }
func (m *StructMapping) InheritanceRoot() core.EntityMapping { return m.root }
func (m *StructMapping) Identity() core.IdentityGenerator    { return m.idgen }

func (m *StructMapping) structValue(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.Elem().Type() != m.typ {
		return reflect.Value{}, fmt.Errorf("mapping: expected *%s, got %T", m.typ, entity)
	}
	return v.Elem(), nil
}

func (m *StructMapping) IdentifierOf(entity any) (string, bool) {
	sv, err := m.structValue(entity)
	if err != nil {
		return "", false
	}
	idField := sv.FieldByIndex(m.plan.idField)
	id := idField.String()
	if id == "" {
		return "", false
	}
	return id, true
}

func (m *StructMapping) SetIdentifier(entity any, id string) {
	sv, err := m.structValue(entity)
	if err != nil {
		return
	}
	sv.FieldByIndex(m.plan.idField).SetString(id)
}

func (m *StructMapping) ClearIdentifier(entity any) {
	sv, err := m.structValue(entity)
	if err != nil {
		return
	}
	sv.FieldByIndex(m.plan.idField).SetString("")
}

// Walk discovers entity's direct entity/reference/embedded children. It
// walks slice and array fields element by element; a struct value (or a
// pointer to one) in a non-reference field is recorded as one embedded
// value and its own fields are not searched. It never follows into another
// mapped entity's own fields — that is the graph walker's job, one mapping
// call at a time.
func (m *StructMapping) Walk(ctx context.Context, entity any, flags core.PropertyFlags, out *core.WalkResult) error {
	sv, err := m.structValue(entity)
	if err != nil {
		return err
	}
	for _, fp := range m.plan.fields {
		if fp.kind != kindEmbedded && fp.flags&flags == 0 {
			continue
		}
		fv := sv.FieldByIndex(fp.index)
		if err := walkValue(fv, fp, out); err != nil {
			return err
		}
	}
	return nil
}

func walkValue(v reflect.Value, fp fieldPlan, out *core.WalkResult) error {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		if fp.kind == kindReference {
			if ref, ok := v.Interface().(*core.Ref); ok {
				out.References = append(out.References, ref)
				return nil
			}
			out.Entities = append(out.Entities, v.Interface())
			return nil
		}
		return walkValue(v.Elem(), fp, out)
	case reflect.Struct:
		out.Embedded = append(out.Embedded, v.Addr().Interface())
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := walkValue(v.Index(i), fp, out); err != nil {
				return err
			}
		}
	default:
		if v.IsValid() && v.CanInterface() {
			out.Embedded = append(out.Embedded, v.Interface())
		}
	}
	return nil
}

package matdb

import (
	"fmt"
	"sort"
)

// Meta holds the descriptive section of a material record: the well-known
// name/comment fields, any free-form extras the file carries, and the
// bibliographic references keyed by citation key.
type Meta struct {
	Name       string
	Comment    string
	Extra      map[string]any
	References map[string]Reference
}

// Record is the in-memory representation of one material. Parameter entries
// are indexed twice: by parameter name and by reference key. Both views share
// the same entry maps, so a value update through either is visible in the
// other.
type Record struct {
	ID   string
	Meta Meta

	params map[string]*Parameter
	byRef  map[string]map[string]map[string]any

	metaOrder []string
	layers    []layerSnapshot
	cfg       recordConfig
}

// NewRecord constructs an empty record for the given material identifier.
func NewRecord(id string, opts ...Option) *Record {
	cfg := applyOptions(opts)
	return &Record{
		ID: id,
		Meta: Meta{
			References: map[string]Reference{},
		},
		params: map[string]*Parameter{},
		byRef:  map[string]map[string]map[string]any{},
		cfg:    cfg,
	}
}

// ListParameters returns the parameter names of the record, sorted.
func (r *Record) ListParameters() []string {
	if r == nil || len(r.params) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.params))
	for name := range r.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListReferences returns the citation keys of the record, sorted.
func (r *Record) ListReferences() []string {
	if r == nil || len(r.Meta.References) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.Meta.References))
	for key := range r.Meta.References {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Parameter returns the named parameter or ErrParameterNotFound.
func (r *Record) Parameter(name string) (*Parameter, error) {
	if r == nil {
		return nil, fmt.Errorf("matdb: record is nil: %w", ErrParameterNotFound)
	}
	param, ok := r.params[name]
	if !ok {
		return nil, fmt.Errorf("matdb: record %q has no parameter %q: %w", r.ID, name, ErrParameterNotFound)
	}
	return param, nil
}

// Reference returns the reference stored under key or ErrReferenceNotFound.
func (r *Record) Reference(key string) (Reference, error) {
	if r == nil {
		return Reference{}, fmt.Errorf("matdb: record is nil: %w", ErrReferenceNotFound)
	}
	ref, ok := r.Meta.References[key]
	if !ok {
		return Reference{}, fmt.Errorf("matdb: record %q has no reference %q: %w", r.ID, key, ErrReferenceNotFound)
	}
	return ref, nil
}

// ByReference returns the reference-keyed view for key: parameter name to the
// entry recorded under that reference. The entry maps are the live ones, not
// copies.
func (r *Record) ByReference(key string) (map[string]map[string]any, error) {
	if r == nil {
		return nil, fmt.Errorf("matdb: record is nil: %w", ErrReferenceNotFound)
	}
	view, ok := r.byRef[key]
	if !ok {
		return nil, fmt.Errorf("matdb: record %q has no entries for reference %q: %w", r.ID, key, ErrReferenceNotFound)
	}
	return view, nil
}

// AddReference attaches a reference under its citation key, replacing any
// existing entry for that key.
func (r *Record) AddReference(ref Reference) error {
	if ref.Key == "" {
		return fmt.Errorf("matdb: reference requires a citation key")
	}
	if r.Meta.References == nil {
		r.Meta.References = map[string]Reference{}
	}
	r.Meta.References[ref.Key] = ref.clone()
	return nil
}

// AddParameter attaches a standalone parameter to the record. Entries merge
// into any existing parameter of the same name; an entry that already exists
// for the same (parameter, reference) pair is overwritten. The reference-keyed
// index is updated in the same step.
func (r *Record) AddParameter(p *Parameter) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("matdb: parameter must not be nil or unnamed")
	}
	if len(p.entries) == 0 {
		return fmt.Errorf("matdb: parameter %q carries no entries", p.Name)
	}
	existing, ok := r.params[p.Name]
	if !ok {
		existing = &Parameter{Name: p.Name, entries: map[string]map[string]any{}}
		r.params[p.Name] = existing
	}
	for refKey, entry := range p.entries {
		shared := copyEntry(entry)
		existing.entries[refKey] = shared
		r.indexEntry(p.Name, refKey, shared)
	}
	return nil
}

// SetValue updates the value of the entry recorded for (param, refKey). The
// update is visible through both the parameter and the reference view.
func (r *Record) SetValue(param, refKey string, value any) error {
	p, err := r.Parameter(param)
	if err != nil {
		return err
	}
	entry, err := p.Entry(refKey)
	if err != nil {
		return err
	}
	entry[FieldValue] = value
	return nil
}

// Value reads the value of the entry recorded for (param, refKey).
func (r *Record) Value(param, refKey string) (any, error) {
	p, err := r.Parameter(param)
	if err != nil {
		return nil, err
	}
	return p.Value(refKey)
}

// Snapshot returns a detached generic copy of the data section: parameter
// name to reference key to field map. The copy is safe to hand to evaluators
// and serializers.
func (r *Record) Snapshot() map[string]any {
	if r == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(r.params))
	for name, param := range r.params {
		out[name] = param.Dump()
	}
	return out
}

// Validate reports entries whose reference key has no matching bibliographic
// reference. Dangling keys are allowed at runtime but flagged here so callers
// can decide before persisting.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("matdb: record is nil")
	}
	var dangling []string
	for name, param := range r.params {
		for refKey := range param.entries {
			if _, ok := r.Meta.References[refKey]; !ok {
				dangling = append(dangling, fmt.Sprintf("%s/%s", name, refKey))
			}
		}
	}
	if len(dangling) > 0 {
		sort.Strings(dangling)
		return fmt.Errorf("matdb: record %q has entries without a matching reference: %v", r.ID, dangling)
	}
	return nil
}

// Clone returns a deep copy of the record, rebuilding the reference index so
// the copy shares no entry maps with the original.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := NewRecord(r.ID)
	out.Meta.Name = r.Meta.Name
	out.Meta.Comment = r.Meta.Comment
	if r.Meta.Extra != nil {
		extra, _ := copyAny(r.Meta.Extra).(map[string]any)
		out.Meta.Extra = extra
	}
	for key, ref := range r.Meta.References {
		out.Meta.References[key] = ref.clone()
	}
	for _, param := range r.params {
		// AddParameter only rejects nil, unnamed, or empty parameters;
		// none of those can be held by a record.
		_ = out.AddParameter(param)
	}
	out.metaOrder = append([]string(nil), r.metaOrder...)
	out.layers = append([]layerSnapshot(nil), r.layers...)
	out.cfg = r.cfg
	return out
}

// SetMetaKeyOrder records the insertion order of meta keys as read from the
// source document, so serialization can reproduce it.
func (r *Record) SetMetaKeyOrder(keys []string) {
	r.metaOrder = append([]string(nil), keys...)
}

// MetaKeyOrder returns the recorded meta key order, or nil if the record was
// built in memory.
func (r *Record) MetaKeyOrder() []string {
	if r == nil || len(r.metaOrder) == 0 {
		return nil
	}
	return append([]string(nil), r.metaOrder...)
}

func (r *Record) indexEntry(param, refKey string, entry map[string]any) {
	if r.byRef == nil {
		r.byRef = map[string]map[string]map[string]any{}
	}
	view, ok := r.byRef[refKey]
	if !ok {
		view = map[string]map[string]any{}
		r.byRef[refKey] = view
	}
	view[param] = entry
}

package matdb

// MergeRecords composes record layers ordered from strongest to weakest,
// returning a new record that keeps entries from stronger layers while
// filling missing parameters, references, and meta fields from weaker ones.
// Precedence is decided per (parameter, reference) entry, not per parameter,
// so a weaker layer can still contribute entries for references the stronger
// layer does not cover. Nil layers are skipped; if every layer is nil the
// result is nil.
func MergeRecords(layers ...*Record) *Record {
	var merged *Record
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i] == nil {
			continue
		}
		if merged == nil {
			merged = layers[i].Clone()
			continue
		}
		overlayRecord(merged, layers[i])
	}
	return merged
}

func overlayRecord(base, strong *Record) {
	if strong == nil {
		return
	}
	if strong.ID != "" {
		base.ID = strong.ID
	}
	if strong.Meta.Name != "" {
		base.Meta.Name = strong.Meta.Name
	}
	if strong.Meta.Comment != "" {
		base.Meta.Comment = strong.Meta.Comment
	}
	if len(strong.Meta.Extra) > 0 {
		if base.Meta.Extra == nil {
			base.Meta.Extra = map[string]any{}
		}
		for key, value := range strong.Meta.Extra {
			base.Meta.Extra[key] = copyAny(value)
		}
	}
	for key, ref := range strong.Meta.References {
		base.Meta.References[key] = ref.clone()
	}
	for _, param := range strong.params {
		// AddParameter only rejects nil, unnamed, or empty parameters;
		// none of those can be held by a record.
		_ = base.AddParameter(param)
	}
	if order := strong.MetaKeyOrder(); order != nil {
		base.metaOrder = order
	}
}

package matdb

import (
	"encoding/json"
	"fmt"
)

// Trace captures provenance information for one parameter across the layered
// sources that produced the effective record.
type Trace struct {
	Parameter string       `json:"parameter"`
	Layers    []Provenance `json:"layers"`
}

// Provenance details how a specific source contributed to a traced parameter.
type Provenance struct {
	Source     Source         `json:"source"`
	SnapshotID string         `json:"snapshot_id,omitempty"`
	Values     map[string]any `json:"values,omitempty"`
	Found      bool           `json:"found"`
}

// TraceParameter reports, strongest layer first, which sources carry entries
// for the named parameter and the values they contribute per reference key.
// A record that was not produced by a stack merge yields a single synthetic
// provenance entry for its own data.
func (r *Record) TraceParameter(name string) (Trace, error) {
	if r == nil {
		return Trace{}, fmt.Errorf("matdb: record is nil: %w", ErrParameterNotFound)
	}
	trace := Trace{Parameter: name}

	if len(r.layers) == 0 {
		provenance := Provenance{Source: r.cfg.source.clone()}
		if param, ok := r.params[name]; ok {
			provenance.Found = true
			provenance.Values = parameterValues(param)
		}
		trace.Layers = []Provenance{provenance}
		if !provenance.Found {
			return trace, fmt.Errorf("matdb: record %q has no parameter %q: %w", r.ID, name, ErrParameterNotFound)
		}
		return trace, nil
	}

	found := false
	for _, layer := range r.layers {
		provenance := Provenance{
			Source:     layer.Source.clone(),
			SnapshotID: layer.SnapshotID,
		}
		if layer.Record != nil {
			if param, ok := layer.Record.params[name]; ok {
				provenance.Found = true
				provenance.Values = parameterValues(param)
				found = true
			}
		}
		trace.Layers = append(trace.Layers, provenance)
	}
	if !found {
		return trace, fmt.Errorf("matdb: record %q has no parameter %q: %w", r.ID, name, ErrParameterNotFound)
	}
	return trace, nil
}

func parameterValues(param *Parameter) map[string]any {
	if param == nil || len(param.entries) == 0 {
		return nil
	}
	values := make(map[string]any, len(param.entries))
	for refKey, entry := range param.entries {
		values[refKey] = copyAny(entry[FieldValue])
	}
	return values
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}

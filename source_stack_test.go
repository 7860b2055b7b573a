package matdb

import (
	"errors"
	"testing"
)

func layerRecord(t *testing.T, id string, params map[string]map[string]any) *Record {
	t.Helper()
	record := NewRecord(id)
	for name, entries := range params {
		for refKey, value := range entries {
			fields, ok := value.(map[string]any)
			if !ok {
				fields = map[string]any{"value": value}
			}
			param, err := NewParameter(name, refKey, fields)
			if err != nil {
				t.Fatalf("expected parameter %q to build, got %v", name, err)
			}
			if err := record.AddParameter(param); err != nil {
				t.Fatalf("expected parameter %q to attach, got %v", name, err)
			}
		}
	}
	return record
}

func TestNewStackValidation(t *testing.T) {
	upstream := NewSource("upstream", SourcePriorityUpstream)
	project := NewSource("project", SourcePriorityProject)
	record := layerRecord(t, "copper", map[string]map[string]any{"density": {"ashby2011": 8960}})

	t.Run("duplicate names", func(t *testing.T) {
		_, err := NewStack(
			NewLayer(upstream, record),
			NewLayer(NewSource("upstream", SourcePriorityProject), record),
		)
		if !errors.Is(err, ErrDuplicateSourceName) {
			t.Fatalf("expected ErrDuplicateSourceName, got %v", err)
		}
	})

	t.Run("duplicate priorities", func(t *testing.T) {
		_, err := NewStack(
			NewLayer(upstream, record),
			NewLayer(NewSource("project", SourcePriorityUpstream), record),
		)
		if !errors.Is(err, ErrPriorityOrder) {
			t.Fatalf("expected ErrPriorityOrder, got %v", err)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := NewStack(NewLayer(Source{Priority: 10}, record))
		if !errors.Is(err, ErrSourceNameRequired) {
			t.Fatalf("expected ErrSourceNameRequired, got %v", err)
		}
	})

	t.Run("strongest first", func(t *testing.T) {
		stack, err := NewStack(
			NewLayer(upstream, record),
			NewLayer(project, record),
		)
		if err != nil {
			t.Fatalf("expected stack to build, got %v", err)
		}
		layers := stack.Layers()
		if layers[0].Source.Name != "project" || layers[1].Source.Name != "upstream" {
			t.Fatalf("expected project layer first, got %v then %v", layers[0].Source.Name, layers[1].Source.Name)
		}
	})
}

func TestStackLayersAreImmutable(t *testing.T) {
	upstream := NewSource("upstream", SourcePriorityUpstream)
	record := layerRecord(t, "copper", map[string]map[string]any{"density": {"ashby2011": 8960}})

	stack, err := NewStack(NewLayer(upstream, record))
	if err != nil {
		t.Fatalf("expected stack to build, got %v", err)
	}

	if err := record.SetValue("density", "ashby2011", 1); err != nil {
		t.Fatalf("expected source record update, got %v", err)
	}
	layers := stack.Layers()
	if value, _ := layers[0].Record.Value("density", "ashby2011"); value != 8960 {
		t.Fatalf("expected stack layer to be detached from its input, got %v", value)
	}
}

func TestMergePrecedencePerEntry(t *testing.T) {
	upstream := layerRecord(t, "copper", map[string]map[string]any{
		"density":        {"ashby2011": 8960, "matula1979": 8950},
		"youngs_modulus": {"ashby2011": 117},
	})
	upstream.Meta.Name = "Copper"
	user := layerRecord(t, "copper", map[string]map[string]any{
		"density": {"ashby2011": 8935},
	})

	merged, err := UpstreamProjectUser(upstream, nil, user)
	if err != nil {
		t.Fatalf("expected merge to succeed, got %v", err)
	}

	if value, _ := merged.Value("density", "ashby2011"); value != 8935 {
		t.Fatalf("expected user layer to win the shared entry, got %v", value)
	}
	if value, _ := merged.Value("density", "matula1979"); value != 8950 {
		t.Fatalf("expected upstream-only entry to survive, got %v", value)
	}
	if value, _ := merged.Value("youngs_modulus", "ashby2011"); value != 117 {
		t.Fatalf("expected upstream-only parameter to survive, got %v", value)
	}
	if merged.Meta.Name != "Copper" {
		t.Fatalf("expected meta name to fall through from upstream, got %q", merged.Meta.Name)
	}
}

func TestMergeNilWeakestLayer(t *testing.T) {
	project := layerRecord(t, "copper", map[string]map[string]any{
		"density":        {"ashby2011": 8950},
		"youngs_modulus": {"ashby2011": 117},
	})
	user := layerRecord(t, "copper", map[string]map[string]any{
		"density": {"ashby2011": 8935},
	})

	merged, err := UpstreamProjectUser(nil, project, user)
	if err != nil {
		t.Fatalf("expected merge without an upstream layer, got %v", err)
	}
	if value, _ := merged.Value("density", "ashby2011"); value != 8935 {
		t.Fatalf("expected user layer to win, got %v", value)
	}
	if value, _ := merged.Value("youngs_modulus", "ashby2011"); value != 117 {
		t.Fatalf("expected project-only parameter to survive, got %v", value)
	}

	if _, err := UpstreamProjectUser(nil, nil, nil); err == nil {
		t.Fatalf("expected merge with no layer records to fail")
	}
}

func TestTraceParameterAcrossLayers(t *testing.T) {
	upstream := layerRecord(t, "copper", map[string]map[string]any{
		"density": {"ashby2011": 8960},
	})
	user := layerRecord(t, "copper", map[string]map[string]any{
		"density": {"ashby2011": 8935},
	})

	stack, err := NewStack(
		NewLayer(NewSource("upstream", SourcePriorityUpstream), upstream, WithSnapshotID("snap-upstream")),
		NewLayer(NewSource("user", SourcePriorityUser), user, WithSnapshotID("snap-user")),
	)
	if err != nil {
		t.Fatalf("expected stack to build, got %v", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		t.Fatalf("expected merge to succeed, got %v", err)
	}

	trace, err := merged.TraceParameter("density")
	if err != nil {
		t.Fatalf("expected trace, got %v", err)
	}
	if len(trace.Layers) != 2 {
		t.Fatalf("expected two provenance layers, got %d", len(trace.Layers))
	}
	if trace.Layers[0].Source.Name != "user" || !trace.Layers[0].Found {
		t.Fatalf("expected strongest layer first and found, got %+v", trace.Layers[0])
	}
	if trace.Layers[0].SnapshotID != "snap-user" {
		t.Fatalf("expected snapshot id to survive, got %q", trace.Layers[0].SnapshotID)
	}
	if got := trace.Layers[1].Values["ashby2011"]; got != 8960 {
		t.Fatalf("expected upstream value in provenance, got %v", got)
	}

	if _, err := merged.TraceParameter("hardness"); !errors.Is(err, ErrParameterNotFound) {
		t.Fatalf("expected ErrParameterNotFound for untraced parameter, got %v", err)
	}

	payload, err := trace.ToJSON()
	if err != nil {
		t.Fatalf("expected trace to serialize, got %v", err)
	}
	decoded, err := TraceFromJSON(payload)
	if err != nil {
		t.Fatalf("expected trace to deserialize, got %v", err)
	}
	if decoded.Parameter != "density" || len(decoded.Layers) != 2 {
		t.Fatalf("expected round-tripped trace, got %+v", decoded)
	}
}

func TestTraceParameterWithoutLayers(t *testing.T) {
	record := layerRecord(t, "copper", map[string]map[string]any{
		"density": {"ashby2011": 8960},
	})

	trace, err := record.TraceParameter("density")
	if err != nil {
		t.Fatalf("expected trace, got %v", err)
	}
	if len(trace.Layers) != 1 || !trace.Layers[0].Found {
		t.Fatalf("expected single synthetic provenance entry, got %+v", trace.Layers)
	}
}

func TestSchemaDescribesDataSection(t *testing.T) {
	record := layerRecord(t, "copper", map[string]map[string]any{
		"density": {"ashby2011": map[string]any{"value": 8960, "unit": "kg/m^3"}},
	})

	doc, err := record.Schema()
	if err != nil {
		t.Fatalf("expected schema, got %v", err)
	}
	if doc.Material != "copper" {
		t.Fatalf("expected material id on document, got %q", doc.Material)
	}
	descriptors, ok := doc.Document.([]FieldDescriptor)
	if !ok {
		t.Fatalf("expected field descriptors, got %T", doc.Document)
	}
	paths := map[string]string{}
	for _, descriptor := range descriptors {
		paths[descriptor.Path] = descriptor.Type
	}
	if paths["density.ashby2011.value"] == "" {
		t.Fatalf("expected value path in schema, got %v", paths)
	}
	if paths["density.ashby2011.unit"] != "string" {
		t.Fatalf("expected string type for unit, got %q", paths["density.ashby2011.unit"])
	}
}

func TestSchemaIncludesMergedSources(t *testing.T) {
	upstream := layerRecord(t, "copper", map[string]map[string]any{"density": {"ashby2011": 8960}})
	user := layerRecord(t, "copper", map[string]map[string]any{"density": {"ashby2011": 8935}})

	merged, err := UpstreamProjectUser(upstream, nil, user)
	if err != nil {
		t.Fatalf("expected merge, got %v", err)
	}
	doc, err := merged.Schema()
	if err != nil {
		t.Fatalf("expected schema, got %v", err)
	}
	if len(doc.Sources) != 2 {
		t.Fatalf("expected two schema sources, got %d", len(doc.Sources))
	}
	if doc.Sources[0].Name != "user" || doc.Sources[0].Priority != SourcePriorityUser {
		t.Fatalf("expected strongest source first, got %+v", doc.Sources[0])
	}
}

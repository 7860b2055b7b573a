package matdb

const (
	// Recommended priorities for common database layerings. Higher numbers
	// win.
	SourcePriorityUpstream = 100
	SourcePriorityProject  = 200
	SourcePriorityUser     = 300
)

// UpstreamProjectUser assembles the canonical three-layer stack (upstream
// distribution, then project overrides, then user overrides) and returns the
// merged effective record.
func UpstreamProjectUser(upstream, project, user *Record) (*Record, error) {
	layers := []Layer{
		NewLayer(NewSource("user", SourcePriorityUser, WithSourceLabel("User Overrides")), user),
		NewLayer(NewSource("project", SourcePriorityProject, WithSourceLabel("Project Overrides")), project),
		NewLayer(NewSource("upstream", SourcePriorityUpstream, WithSourceLabel("Upstream Database")), upstream),
	}
	stack, err := NewStack(layers...)
	if err != nil {
		return nil, err
	}
	return stack.Merge()
}

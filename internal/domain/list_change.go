package domain

// ListChangeKind identifies which remote list changed.
type ListChangeKind string

const (
	ListChangeTools     ListChangeKind = "tools"
	ListChangeResources ListChangeKind = "resources"
	ListChangePrompts   ListChangeKind = "prompts"
)

// ListChangeEvent is emitted when a remote server pushes a list_changed
// notification on a pooled session.
type ListChangeEvent struct {
	Kind    ListChangeKind
	Binding Binding
}

// ListChangeEmitter receives list change events.
type ListChangeEmitter interface {
	EmitListChange(event ListChangeEvent)
}

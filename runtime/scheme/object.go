package scheme

// Object must be implemented by every type registered in the scheme. Objects are
// serialized to the wire, so the scheme needs a way to read and stamp the group
// and kind they travel under. Embed TypeMeta to satisfy it.
type Object interface {
	GroupKind() GroupKind
	SetGroupKind(gk *GroupKind)
}

type TypeMeta struct {
	Kind  string `json:"kind,omitempty"`
	Group string `json:"group,omitempty"`
}

func (t TypeMeta) GroupKind() GroupKind {
	return GroupKind{Group: Group(t.Group), Kind: t.Kind}
}

func (t *TypeMeta) SetGroupKind(gk *GroupKind) {
	t.Group = gk.Group.String()
	t.Kind = gk.Kind
}

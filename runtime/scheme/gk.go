package scheme

type Group string

func (g Group) Empty() bool {
	return len(g) == 0
}

func (g Group) String() string {
	return string(g)
}

// GroupKind identifies a message type on the wire: a logical group of
// contracts plus the struct name within it.
type GroupKind struct {
	Group Group
	Kind  string
}

func (gk GroupKind) Empty() bool {
	return gk.Group.Empty() && len(gk.Kind) == 0
}

func (gk GroupKind) String() string {
	if len(gk.Group) == 0 {
		return gk.Kind
	}
	return gk.Group.String() + "." + gk.Kind
}

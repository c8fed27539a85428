package launch

import "fmt"

// claim checks that child may be absorbed by parent. Nothing is modified.
func (m *Marshaler) claim(parent, child Value) error {
	if parent.State() == Released {
		return fmt.Errorf("%w: %s", ErrReleased, parent.Kind())
	}
	cs := child.base()
	if cs.state != Owned {
		return fmt.Errorf("%w: %s is %s", ErrNotOwned, child.Kind(), cs.state)
	}
	if cs.native != m.native {
		return fmt.Errorf("%w: %s belongs to another native", ErrNotOwned, child.Kind())
	}
	if child == parent || contains(child, parent) {
		return fmt.Errorf("%w: %s would contain itself", ErrInsertion, parent.Kind())
	}
	return nil
}

// contains reports whether target is reachable from root through mirrors.
func contains(root, target Value) bool {
	switch x := root.(type) {
	case *Dictionary:
		for _, k := range x.keys {
			c := x.entries[k]
			if c == target || contains(c, target) {
				return true
			}
		}
	case *Array:
		for _, c := range x.items {
			if c == target || contains(c, target) {
				return true
			}
		}
	}
	return false
}

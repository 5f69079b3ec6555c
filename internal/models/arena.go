package models

// Arena is an append-only store of classified fixes for one individual.
// Patches refer to their fixes by index into an Arena instead of copying
// them, so indices handed out stay valid for the arena's lifetime.
type Arena struct {
	fixes []ClassifiedFix
}

// NewArena creates an arena holding a copy of fixes
func NewArena(fixes []ClassifiedFix) *Arena {
	a := &Arena{fixes: make([]ClassifiedFix, len(fixes))}
	copy(a.fixes, fixes)
	return a
}

// Append adds fixes and returns their indices
func (a *Arena) Append(fixes ...ClassifiedFix) []int {
	idx := make([]int, len(fixes))
	for i, f := range fixes {
		idx[i] = len(a.fixes)
		a.fixes = append(a.fixes, f)
	}
	return idx
}

// At returns the fix stored at index i
func (a *Arena) At(i int) ClassifiedFix {
	return a.fixes[i]
}

// Len returns the number of stored fixes
func (a *Arena) Len() int {
	return len(a.fixes)
}

// Indices returns 0..Len()-1
func (a *Arena) Indices() []int {
	idx := make([]int, len(a.fixes))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

package mediasource

// ContentFilter reports whether a child node should be shown.
type ContentFilter func(*BrowseMedia) bool

// Apply removes the direct children of node rejected by the filter, keeping expandable ones so they can
// still be navigated, and counts the removed children in NotShown.
func (me ContentFilter) Apply(node *BrowseMedia) *BrowseMedia {
	if me == nil || node == nil || node.Children == nil {
		return node
	}
	kept := make([]*BrowseMedia, 0, len(node.Children))
	for _, child := range node.Children {
		if child.CanExpand || me(child) {
			kept = append(kept, child)
		}
	}
	node.NotShown += len(node.Children) - len(kept)
	node.Children = kept
	return node
}

// All combines filters so a child must pass each of them.
func All(filters ...ContentFilter) ContentFilter {
	return func(bm *BrowseMedia) bool {
		for _, f := range filters {
			if f != nil && !f(bm) {
				return false
			}
		}
		return true
	}
}

func PlayableOnly(bm *BrowseMedia) bool {
	return bm.CanPlay
}

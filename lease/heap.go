package lease

// pnode is one pairing-heap node. Pairing heaps give the O(1) amortized
// insert/merge and O(log n) amortized delete-min spec.md's "Fibonacci-heap
// leases" design note is really after; unlike a Fibonacci heap they need
// no decrease-key, which this package avoids needing anyway via lazy
// invalidation (see Queue.Renew).
type pnode struct {
	lease   *Lease
	child   *pnode
	sibling *pnode
}

func less(a, b *pnode) bool { return a.lease.Expiry.Before(b.lease.Expiry) }

// merge combines two heaps into one, keeping the smaller-expiry root on
// top and linking the other as its new first child.
func merge(a, b *pnode) *pnode {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case less(a, b):
		b.sibling = a.child
		a.child = b
		return a
	default:
		a.sibling = b.child
		b.child = a
		return b
	}
}

// deleteMin drops root, assumed already known to be the tree's minimum,
// and returns the new root formed by two-pass (left-to-right, then
// right-to-left) pairwise merging of its former children.
func deleteMin(root *pnode) *pnode {
	return mergePairs(root.child)
}

func mergePairs(first *pnode) *pnode {
	if first == nil || first.sibling == nil {
		return first
	}
	a, b := first, first.sibling
	rest := b.sibling
	a.sibling, b.sibling = nil, nil
	return merge(merge(a, b), mergePairs(rest))
}

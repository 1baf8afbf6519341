package syncer

import "github.com/linefleet/linefleet/pkg/util"

// Gate remembers the hash of the last successfully pushed snapshot. It is
// owned by a single worker and needs no locking.
type Gate struct {
	last []byte
}

// Changed reports whether snapshot differs from the last pushed one.
func (g *Gate) Changed(snapshot []byte) bool {
	return !util.SameHash(g.last, util.HashSnapshot(snapshot))
}

// Mark records snapshot as successfully pushed.
func (g *Gate) Mark(snapshot []byte) {
	g.last = util.HashSnapshot(snapshot)
}

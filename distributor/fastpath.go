package distributor

import (
	"github.com/golang/glog"

	"github.com/docstore/distributor/childops"
	"github.com/docstore/distributor/cmn"
	"github.com/docstore/distributor/cmn/debug"
	"github.com/docstore/distributor/transport"
)

// startFastPath is spec.md §4.4's send phase: construct a child
// UpdateOperation bound to the original update, start it through the
// adapter, transition to UPDATES_SENT. If the child synthesizes an
// immediate reply, forward it verbatim.
func (o *Operation) startFastPath(sink transport.Sender) {
	childCmd := childops.NewUpdateCommand(o.cmd.Payload, o.cmd.Condition, o.cmd.RequireOldTimestamp)
	child := childops.NewUpdateOperation(o.deps.Mgr, o.bucket, childCmd)
	adapter := transport.NewAdapter(o.registry, child, sink)
	o.sendState = UpdatesSent
	child.Start(adapter, nowMillis())
	if adapter.Replied() {
		o.onFastPathUpdateReply(sink, adapter.Reply().(*childops.UpdateReply))
	}
}

// onFastPathUpdateReply handles spec.md §4.4's "Receive UpdateReply": two
// outcomes are possible — the child reports failure or full agreement
// (forward verbatim), or it reports which replica holds the newest
// pre-update timestamp (repair).
func (o *Operation) onFastPathUpdateReply(sink transport.Sender, reply *childops.UpdateReply) {
	o.addTrace("fast-path-update", reply.Result().Error())
	if reply.Result().Failed() {
		o.sendReply(sink, reply.Result(), reply.OldTimestamp)
		return
	}
	best := reply.Best
	if best.Bucket == 0 {
		// All replicas agreed and produced equal old timestamps.
		o.sendReply(sink, reply.Result(), reply.OldTimestamp)
		return
	}

	// Inconsistency: best identifies the node holding the newest
	// pre-update timestamp. Hold on to its old timestamp, remember the
	// repair source, and issue a full-fields Get to exactly that node.
	o.pendingOldTS = reply.OldTimestamp
	o.fastPathRepairSourceNode = best.Node
	o.fastPathRepairBucket = best.Bucket
	o.fastPathRepaired = true

	getCmd := childops.NewGetCommand(o.cmd.DocID, best.Bucket)
	o.directGetMsgID = getCmd.MsgID()
	o.sendState = FullGetsSent
	sink.SendToNode(transport.StorageNode, best.Node, best.Bucket, getCmd)
}

// onFastPathRepairGetReply handles spec.md §4.4's "Receive GetReply in
// FULL_GETS_SENT".
func (o *Operation) onFastPathRepairGetReply(sink transport.Sender, reply *childops.GetReply) {
	if reply.Result().Failed() {
		o.sendReply(sink, reply.Result(), o.pendingOldTS)
		return
	}
	if !reply.Exists {
		o.sendReply(sink, cmn.NewResult(cmn.InternalFailure, "document disappeared after fast-path inconsistency was reported"), o.pendingOldTS)
		return
	}

	doc := reply.Doc
	putTS := o.deps.Mgr.Clock.Now()
	if err := o.cmd.Payload.Apply(doc); err != nil {
		o.sendReply(sink, cmn.NewResult(cmn.InternalFailure, "%s", err.Error()), o.pendingOldTS)
		return
	}
	doc.Timestamp = putTS

	putCmd := childops.NewPutCommand(doc)
	child := childops.NewPutOperation(o.deps.Mgr, o.bucket, putCmd)
	adapter := transport.NewAdapter(o.registry, child, sink)
	o.sendState = PutsSent
	child.Start(adapter, nowMillis())
	if adapter.Replied() {
		o.onPutReply(sink, adapter.Reply().(*childops.PutReply))
	}
}

// restartFastPath is spec.md §4.5's "Restart into fast path": verify
// ownership, assert the registry is empty, bump the restart counter, and
// invoke the fast-path driver as if freshly started.
func (o *Operation) restartFastPath(sink transport.Sender) {
	if !o.checkOwnership() {
		o.sendReply(sink, cmn.NewResult(cmn.BucketNotFound, "lost bucket ownership between phases"), 0)
		return
	}
	debug.Assert(o.registry.Empty(), "fast-path restart with non-empty sent-message registry")
	o.deps.Mgr.Stats.FastPathRestarts.Inc()
	glog.V(4).Infof("update on bucket %d: restarting in fast path after consistent safe-path Get", o.bucket)
	o.mode = FastPath
	o.startFastPath(sink)
}

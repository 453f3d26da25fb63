package distributor

import (
	"github.com/docstore/distributor/childops"
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/cmn"
	"github.com/docstore/distributor/cmn/debug"
	"github.com/docstore/distributor/transport"
)

// startSafePath is spec.md §4.5's initial Get: metadata-only (weak
// consistency) when configured, full (strong consistency) otherwise. The
// replica set is snapshotted at send time for later replica-set-change
// detection.
func (o *Operation) startSafePath(sink transport.Sender) {
	cfg := cmn.GCO.Get()
	fields := childops.MetadataOnly
	if !cfg.Update.PreferMetadataGet {
		fields = childops.FullFields
	}
	getCmd := childops.NewGetCommand(o.cmd.DocID, o.bucket)
	child := childops.NewGetOperation(o.deps.Mgr, o.bucket, getCmd, fields)
	adapter := transport.NewAdapter(o.registry, child, sink)

	if fields == childops.MetadataOnly {
		o.sendState = MetadataGetsSent
	} else {
		o.sendState = FullGetsSent
	}
	child.Start(adapter, nowMillis())
	o.replicasAtGetSendTime = append([]cluster.ReplicaRef(nil), child.ReplicasInDb()...)

	if adapter.Replied() {
		// No replicas exist at all (or the Get otherwise completed
		// synchronously): feed the reply back through the same
		// reception path. With no replicas, a metadata Get's trivially
		// consistent reply restarts into the fast path, whose Update
		// finds no replicas; a full Get's reply runs the
		// no-existing-document branch, and any Put it dispatches finds
		// no replicas either. Both end in BUCKET_NOT_FOUND: no replica
		// is placed on an ideal node and no bucket is created.
		o.onSafePathGetReply(sink, adapter.Reply().(*childops.GetReply))
	}
}

func (o *Operation) onSafePathGetReply(sink transport.Sender, reply *childops.GetReply) {
	switch o.sendState {
	case MetadataGetsSent:
		o.onMetadataGetReply(sink, reply)
	case FullGetsSent:
		o.onSafePathFullGetReply(sink, reply, false /*fromSingleGet*/)
	default:
		debug.Assertf(false, "metadata/full get reply received in state %s", o.sendState)
	}
}

// onMetadataGetReply is spec.md §4.5's "On metadata-Get reply".
func (o *Operation) onMetadataGetReply(sink transport.Sender, reply *childops.GetReply) {
	if reply.Result().Failed() {
		o.sendReply(sink, reply.Result(), 0)
		return
	}
	if reply.AnyFailed {
		// Conservative: we cannot know the failing replica did not hold
		// the newest timestamp.
		o.sendReply(sink, cmn.NewResult(cmn.Aborted, "one or more metadata gets failed"), 0)
		return
	}
	if o.replicaSetChanged() {
		o.sendReply(sink, cmn.NewResult(cmn.BucketNotFound, "replica set changed since metadata get was sent"), 0)
		return
	}
	if reply.HadConsistentReplicas {
		o.restartFastPath(sink)
		return
	}

	// Replicas disagree: identify the newest replica and Get it directly.
	newest := reply.Newest
	debug.Assertf(newest != nil, "inconsistent metadata get reply without a newest replica")
	debug.Assertf(newest.Timestamp != 0, "newest replica reported a zero timestamp")

	o.singleGetTimer = o.deps.Mgr.Stats.StartSingleGetTimer()
	getCmd := childops.NewGetCommand(o.cmd.DocID, newest.Bucket)
	o.directGetMsgID = getCmd.MsgID()
	o.sendState = SingleGetSent
	sink.SendToNode(transport.StorageNode, newest.Node, newest.Bucket, getCmd)
}

// onSafePathFullGetReply is spec.md §4.5's "On full-Get reply (FULL_GETS_SENT
// or single-Get case)".
func (o *Operation) onSafePathFullGetReply(sink transport.Sender, reply *childops.GetReply, fromSingleGet bool) {
	if reply.Result().Failed() {
		o.sendReply(sink, reply.Result(), 0)
		return
	}

	cfg := cmn.GCO.Get()
	if !fromSingleGet && cfg.Update.AllowFastRestart &&
		len(o.replicasAtGetSendTime) > 0 && reply.HadConsistentReplicas &&
		!o.replicaSetChanged() {
		o.restartFastPath(sink)
		return
	}

	var candidate *childops.Document
	var oldTimestamp int64

	if reply.Exists {
		if o.cmd.RequireOldTimestamp != nil && *o.cmd.RequireOldTimestamp != reply.Doc.Timestamp.Millis() {
			o.sendReply(sink, cmn.NewResult(cmn.OK, "no document with requested timestamp found"), 0)
			return
		}
		match, err := o.evaluateCondition(reply.Doc)
		if err != nil {
			o.sendReply(sink, cmn.NewResult(cmn.IllegalParameters, "%s", err.Error()), 0)
			return
		}
		if !match {
			o.sendReply(sink, cmn.NewResult(cmn.TestAndSetConditionFailed, ""), 0)
			return
		}
		candidate = reply.Doc
		oldTimestamp = candidate.Timestamp.Millis()
	} else {
		if o.cmd.Condition != "" && !o.cmd.CreateIfNonExistent {
			o.sendReply(sink, cmn.NewResult(cmn.TestAndSetConditionFailed, "Document did not exist"), 0)
			return
		}
		if !o.cmd.CreateIfNonExistent {
			o.sendReply(sink, cmn.NewResult(cmn.NotFound, ""), 0)
			return
		}
		docType, _ := o.deps.Mgr.TypeRepo.Lookup(o.cmd.Payload.DocType)
		putTS := o.deps.Mgr.Clock.Now()
		candidate = childops.NewEmpty(o.cmd.DocID, docType, putTS)
		oldTimestamp = putTS.Millis()
	}

	if err := o.cmd.Payload.Apply(candidate); err != nil {
		o.sendReply(sink, cmn.NewResult(cmn.InternalFailure, "%s", err.Error()), oldTimestamp)
		return
	}
	if reply.Exists {
		// Only re-stamp here; the create-if-missing branch already
		// stamped the empty document with its own fresh timestamp above.
		candidate.Timestamp = o.deps.Mgr.Clock.Now()
	}

	if !o.checkOwnership() {
		o.sendReply(sink, cmn.NewResult(cmn.BucketNotFound, "lost bucket ownership between phases"), oldTimestamp)
		return
	}

	o.pendingOldTS = oldTimestamp

	putCmd := childops.NewPutCommand(candidate)
	child := childops.NewPutOperation(o.deps.Mgr, o.bucket, putCmd)
	adapter := transport.NewAdapter(o.registry, child, sink)
	o.sendState = PutsSent
	child.Start(adapter, nowMillis())
	if adapter.Replied() {
		o.onPutReply(sink, adapter.Reply().(*childops.PutReply))
	}
}

// onPutReply is common to both the fast-path repair Put (spec.md §4.4) and
// the safe-path Put (spec.md §4.5): forward the Put's result code as the
// update's own result.
func (o *Operation) onPutReply(sink transport.Sender, reply *childops.PutReply) {
	if reply.Result().Failed() {
		o.deps.Mgr.Stats.PutFailed.Inc()
	} else {
		o.deps.Mgr.Stats.PutOK.Inc()
	}
	if o.fastPathRepaired {
		o.addTrace("put", "convergence forced from repair source node")
	}
	o.sendReply(sink, reply.Result(), o.pendingOldTS)
}

// replicaSetChanged compares the bucket db's current parents against the
// snapshot captured when the Get was sent.
func (o *Operation) replicaSetChanged() bool {
	current, err := o.deps.Mgr.BucketDB.GetParents(o.bucket)
	if err != nil {
		return true
	}
	return !cluster.SameReplicas(cluster.FlattenEntries(current), o.replicasAtGetSendTime)
}

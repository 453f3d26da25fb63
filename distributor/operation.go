// Package distributor implements the two-phase update coordinator: the
// finite-state operation instance spec.md describes, created per client
// update command. See SPEC_FULL.md for the full requirements this package
// satisfies.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package distributor

import (
	"time"

	"github.com/golang/glog"

	"github.com/docstore/distributor/childops"
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/cmn"
	"github.com/docstore/distributor/cmn/debug"
	"github.com/docstore/distributor/stats"
	"github.com/docstore/distributor/transport"
)

// SendState is the operation's position in its state machine (spec.md §3's
// "Sendstate").
type SendState int

const (
	NoneSent SendState = iota
	UpdatesSent
	MetadataGetsSent
	SingleGetSent
	FullGetsSent
	PutsSent
)

func (s SendState) String() string {
	switch s {
	case NoneSent:
		return "NONE_SENT"
	case UpdatesSent:
		return "UPDATES_SENT"
	case MetadataGetsSent:
		return "METADATA_GETS_SENT"
	case SingleGetSent:
		return "SINGLE_GET_SENT"
	case FullGetsSent:
		return "FULL_GETS_SENT"
	case PutsSent:
		return "PUTS_SENT"
	default:
		return "UNKNOWN_SEND_STATE"
	}
}

// Mode is the path the operation is currently running.
type Mode int

const (
	FastPath Mode = iota
	SlowPath
)

// UpdateCommand is spec.md §3's externally-owned input.
type UpdateCommand struct {
	DocID                childops.DocumentID
	Payload              *childops.UpdatePayload
	Condition            string // "" means no test-and-set condition
	RequireOldTimestamp  *int64
	CreateIfNonExistent  bool
	NumBuckets           uint64 // target bucket space
}

// UpdateReply is the eventual, client-visible reply. It implements
// transport.Reply so it can flow through the same Sender.SendReply call
// every other reply does.
type UpdateReply struct {
	msgID        string
	Res          *cmn.Result
	OldTimestamp int64
	Trace        []TraceEntry
}

func (r *UpdateReply) MsgID() string       { return r.msgID }
func (r *UpdateReply) Result() *cmn.Result { return r.Res }

// TraceEntry is one accumulated trace node absorbed from a child reply —
// SPEC_FULL.md §4's trace-accumulation supplement.
type TraceEntry struct {
	Source  string
	Message string
}

// OwnershipChecker is the "ask the distributor whether the bucket is still
// owned" collaborator spec.md §4.7 requires, consulted before any
// safe-path Put and before a fast-path restart.
type OwnershipChecker interface {
	Owns(bucket cluster.BucketID) bool
}

// AlwaysOwns is the trivial OwnershipChecker for a single-node deployment
// or for tests that don't exercise ownership loss.
type AlwaysOwns struct{}

func (AlwaysOwns) Owns(cluster.BucketID) bool { return true }

// Deps bundles everything an Operation is constructed with beyond the
// command itself: the child-operation manager and the ownership checker.
type Deps struct {
	Mgr       *childops.Manager
	Ownership OwnershipChecker
}

// Operation is the per-client-command finite-state instance spec.md §3
// describes.
type Operation struct {
	deps Deps
	cmd  *UpdateCommand

	bucket cluster.BucketID

	sendState SendState
	mode      Mode

	replicasAtGetSendTime    []cluster.ReplicaRef
	fastPathRepairSourceNode cluster.NodeIndex
	fastPathRepairBucket     cluster.BucketID
	fastPathRepaired         bool

	reply          *UpdateReply
	pendingOldTS   int64 // old timestamp observed before the Put this operation dispatched
	singleGetTimer *stats.Timer
	updateTimer    *stats.Timer

	registry       *transport.Registry
	directGetMsgID string

	trace []TraceEntry

	replySent bool
}

// NewOperation constructs a fresh operation for one client update command.
func NewOperation(deps Deps, cmd *UpdateCommand) *Operation {
	numBuckets := cmd.NumBuckets
	if numBuckets == 0 {
		numBuckets = deps.Mgr.NumBuckets
	}
	return &Operation{
		deps:     deps,
		cmd:      cmd,
		bucket:   childops.Locate(cmd.DocID, numBuckets),
		registry: transport.NewRegistry(),
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Start is spec.md §6's `start(sender)`, invoked exactly once.
func (o *Operation) Start(sink transport.Sender) {
	o.updateTimer = o.deps.Mgr.Stats.StartUpdateTimer()

	entries, err := o.deps.Mgr.BucketDB.GetParents(o.bucket)
	if err != nil {
		o.sendReply(sink, cmn.WrapResult(err, "bucket db lookup failed"), 0)
		return
	}
	// Fast path is possible iff exactly one parent entry exists and that
	// entry reports validAndConsistent (spec.md §4.3).
	if len(entries) == 1 && entries[0].ValidAndConsistent() {
		o.mode = FastPath
		o.startFastPath(sink)
		return
	}
	o.mode = SlowPath
	o.startSafePath(sink)
}

// Receive is spec.md §6's `receive(sender, reply)`, invoked per reply until
// the operation completes. Once replySent is true, or once a reply for a
// message id this operation never registered arrives, it is a
// side-effect-free no-op (spec.md §5); the latter is logged as a warning.
func (o *Operation) Receive(sink transport.Sender, reply transport.Reply) {
	if o.replySent {
		return
	}

	if o.directGetMsgID != "" && reply.MsgID() == o.directGetMsgID {
		o.directGetMsgID = ""
		gr, ok := reply.(*childops.GetReply)
		if !ok {
			return
		}
		switch o.sendState {
		case FullGetsSent:
			o.onFastPathRepairGetReply(sink, gr)
		case SingleGetSent:
			o.singleGetTimer.Stop()
			if gr.Result().Failed() {
				o.deps.Mgr.Stats.GetFailed.Inc()
			} else {
				o.deps.Mgr.Stats.GetOK.Inc()
			}
			o.onSafePathFullGetReply(sink, gr, true /*fromSingleGet*/)
		default:
			glog.Warningf("unexpected direct-get reply in state %s", o.sendState)
		}
		return
	}

	child, ok := o.registry.Pop(reply.MsgID())
	if !ok {
		if o.registry.EverSeen(reply.MsgID()) {
			return // already drained; idempotent per spec.md §5
		}
		glog.Warningf("update operation: reply %s for unknown message", reply.MsgID())
		return
	}
	adapter := transport.NewAdapter(o.registry, child, sink)
	switch c := child.(type) {
	case *childops.UpdateOperation:
		c.Receive(adapter, reply)
		if adapter.Replied() {
			o.onFastPathUpdateReply(sink, adapter.Reply().(*childops.UpdateReply))
		}
	case *childops.GetOperation:
		c.Receive(adapter, reply)
		if adapter.Replied() {
			o.onSafePathGetReply(sink, adapter.Reply().(*childops.GetReply))
		}
	case *childops.PutOperation:
		c.Receive(adapter, reply)
		if adapter.Replied() {
			o.onPutReply(sink, adapter.Reply().(*childops.PutReply))
		}
	default:
		debug.Assertf(false, "unexpected child operation type %T", child)
	}
}

// Close is spec.md §4.8 / §6's `close(sender)`, invoked at most once.
func (o *Operation) Close(sink transport.Sender) {
	for {
		child, ok := o.registry.PopAny()
		if !ok {
			break
		}
		adapter := transport.NewAdapter(nil, child, nil)
		switch c := child.(type) {
		case *childops.UpdateOperation:
			c.OnClose(adapter)
		case *childops.GetOperation:
			c.OnClose(adapter)
		case *childops.PutOperation:
			c.OnClose(adapter)
		}
		if adapter.Replied() {
			if ur, ok := adapter.Reply().(*childops.UpdateReply); ok {
				// Fast-path only: forward. Gets/Puts synthesized for
				// internal use are discarded — they correspond to
				// synthetic commands the client never issued. sendReply
				// is a no-op if a reply has already gone out, but every
				// remaining entry is still drained.
				o.sendReply(sink, ur.Result(), ur.OldTimestamp)
			}
		}
	}
	if !o.replySent {
		o.sendReply(sink, cmn.NewResult(cmn.Aborted, ""), 0)
	}
}

func (o *Operation) addTrace(source, message string) {
	o.trace = append(o.trace, TraceEntry{Source: source, Message: message})
}

func (o *Operation) checkOwnership() bool {
	if o.deps.Ownership == nil {
		return true
	}
	return o.deps.Ownership.Owns(o.bucket)
}

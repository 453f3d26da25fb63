package transport

import "github.com/docstore/distributor/cluster"

// Adapter is the sub-operation adapter from spec.md §4.1: a transient
// object constructed around (registry, child, outer sender) that
// implements the same Sender interface the child expects. It interposes
// between a child operation and the real transport so the parent gets a
// uniform hook for path composition without the child knowing it is
// nested — the child is written to believe it is producing the final
// reply.
//
// An Adapter is stack-allocated per dispatch (constructed immediately
// before calling the child's start/receive/onClose and discarded right
// after); its lifetime never exceeds the synchronous call that created it.
type Adapter struct {
	registry *Registry
	child    ChildOp
	outer    Sender

	replied bool
	reply   Reply
}

// NewAdapter builds an adapter for one child dispatch. Pass a nil registry
// and a nil outer sender to get a "drain" adapter (used by onClose, where
// no further callback is needed and outbound commands — there should be
// none — are simply dropped rather than recorded or forwarded).
func NewAdapter(registry *Registry, child ChildOp, outer Sender) *Adapter {
	return &Adapter{registry: registry, child: child, outer: outer}
}

// SendCommand records (cmd.MsgID() -> child) in the registry, then forwards
// to the outer sender unchanged.
func (a *Adapter) SendCommand(cmd Command) {
	if a.registry != nil {
		a.registry.Insert(cmd.MsgID(), a.child)
	}
	if a.outer != nil {
		a.outer.SendCommand(cmd)
	}
}

// SendReply does NOT forward: it stores the reply in a local slot. The
// parent inspects Reply()/Replied() after the child's invocation returns
// to decide what happens next (convert an Update reply into a Put, a Get
// reply into an Update completion, etc).
func (a *Adapter) SendReply(reply Reply) {
	a.replied = true
	a.reply = reply
}

func (a *Adapter) SendToNode(nodeType NodeType, node cluster.NodeIndex, bucket cluster.BucketID, cmd Command) {
	// The child operations this adapter fronts (Get/Put/Update) never
	// target a single node directly — only the coordinator does that
	// (the safe path's single-Get and the fast path's repair Get), and it
	// does so without an adapter (spec.md §4.5,
	// "sent directly, not via a child operation"). Forward unchanged in
	// case a future child operation needs it; there is currently no
	// caller.
	if a.outer != nil {
		a.outer.SendToNode(nodeType, node, bucket, cmd)
	}
}

func (a *Adapter) DistributorIndex() int { return a.outer.DistributorIndex() }
func (a *Adapter) ClusterName() string   { return a.outer.ClusterName() }
func (a *Adapter) PendingMessageTracker() PendingTracker {
	return a.outer.PendingMessageTracker()
}

// Replied reports whether the child synthesized a reply during the call
// that just returned.
func (a *Adapter) Replied() bool { return a.replied }

// Reply returns the child's captured reply, if any.
func (a *Adapter) Reply() Reply { return a.reply }

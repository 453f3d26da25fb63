// Package transport defines the message-sink contract the coordinator and
// its child operations are driven through: "send command / send reply /
// send to specific node" (spec.md §1, §6). The real transport — sockets,
// retries, framing — is an external collaborator; this package only
// specifies the interface and the in-process plumbing (adapter, registry)
// built on top of it.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/cmn"
)

// NodeType distinguishes the kind of node a targeted send addresses. The
// coordinator only ever targets storage nodes directly (the safe path's
// single-Get and the fast path's repair Get), but the type exists because sendToNode is part of the
// general sender contract every operation is handed.
type NodeType int

const (
	StorageNode NodeType = iota
)

// Command is anything an operation can hand to sendCommand: it carries its
// own message id (minted by the sender via cmn.GenMsgID) so replies can be
// correlated back to it.
type Command interface {
	MsgID() string
}

// Reply is anything that can come back through receive(): it carries the
// message id of the command it answers, and the outward result.
type Reply interface {
	MsgID() string
	Result() *cmn.Result
}

// PendingTracker is the outstanding-message bookkeeping every sender
// exposes; child operations consult it to decide whether they are still
// waiting on replies. Delegated unchanged by the sub-operation adapter
// (spec.md §4.1).
type PendingTracker interface {
	Pending() int
}

// Sender is the outward sink spec.md §6 specifies: sendCommand is
// fire-and-forget, sendReply is the (at most once) client-visible reply,
// sendToNode is used only for targeted single-replica Gets (the safe path's
// single-Get and the fast path's repair Get).
type Sender interface {
	SendCommand(cmd Command)
	SendReply(reply Reply)
	SendToNode(nodeType NodeType, node cluster.NodeIndex, bucket cluster.BucketID, cmd Command)

	DistributorIndex() int
	ClusterName() string
	PendingMessageTracker() PendingTracker
}

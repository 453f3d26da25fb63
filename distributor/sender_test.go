package distributor

import (
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/transport"
)

// fakeSender records every outward call an Operation makes, standing in
// for the real transport in these state-machine tests.
type fakeSender struct {
	commands []transport.Command
	replies  []transport.Reply
	toNode   []toNodeCall
}

type toNodeCall struct {
	node   cluster.NodeIndex
	bucket cluster.BucketID
	cmd    transport.Command
}

func (f *fakeSender) SendCommand(cmd transport.Command) { f.commands = append(f.commands, cmd) }
func (f *fakeSender) SendReply(reply transport.Reply)   { f.replies = append(f.replies, reply) }
func (f *fakeSender) SendToNode(_ transport.NodeType, node cluster.NodeIndex, bucket cluster.BucketID, cmd transport.Command) {
	f.toNode = append(f.toNode, toNodeCall{node, bucket, cmd})
}
func (f *fakeSender) DistributorIndex() int                          { return 0 }
func (f *fakeSender) ClusterName() string                            { return "test-cluster" }
func (f *fakeSender) PendingMessageTracker() transport.PendingTracker { return fakeTracker{} }

type fakeTracker struct{}

func (fakeTracker) Pending() int { return 0 }

func (f *fakeSender) lastReply() *UpdateReply {
	if len(f.replies) == 0 {
		return nil
	}
	return f.replies[len(f.replies)-1].(*UpdateReply)
}

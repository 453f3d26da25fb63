package childops

import (
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/transport"
)

// fakeSender is a minimal transport.Sender recording every command handed
// to it, good enough to drive a child operation's fan-out without a real
// transport.
type fakeSender struct {
	commands []transport.Command
	replies  []transport.Reply
	sent     []sentToNode
}

type sentToNode struct {
	node   cluster.NodeIndex
	bucket cluster.BucketID
	cmd    transport.Command
}

func (f *fakeSender) SendCommand(cmd transport.Command) { f.commands = append(f.commands, cmd) }
func (f *fakeSender) SendReply(reply transport.Reply)   { f.replies = append(f.replies, reply) }
func (f *fakeSender) SendToNode(_ transport.NodeType, node cluster.NodeIndex, bucket cluster.BucketID, cmd transport.Command) {
	f.sent = append(f.sent, sentToNode{node, bucket, cmd})
}
func (f *fakeSender) DistributorIndex() int                      { return 0 }
func (f *fakeSender) ClusterName() string                        { return "test-cluster" }
func (f *fakeSender) PendingMessageTracker() transport.PendingTracker { return fakePendingTracker{} }

type fakePendingTracker struct{}

func (fakePendingTracker) Pending() int { return 0 }

func (f *fakeSender) lastReply() transport.Reply {
	if len(f.replies) == 0 {
		return nil
	}
	return f.replies[len(f.replies)-1]
}

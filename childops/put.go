package childops

import (
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/cmn"
	"github.com/docstore/distributor/transport"
)

// PutCommand is the top-level command handed to NewPutOperation: write doc
// to every replica of its bucket at doc.Timestamp.
type PutCommand struct {
	msgID string
	Doc   *Document
}

func NewPutCommand(doc *Document) *PutCommand {
	return &PutCommand{msgID: cmn.GenMsgID(), Doc: doc}
}

func (c *PutCommand) MsgID() string { return c.msgID }

// PutReply is the synthesized top-level reply: the aggregate result code
// across every replica write.
type PutReply struct {
	msgID string
	Res   *cmn.Result
}

func (r *PutReply) MsgID() string       { return r.msgID }
func (r *PutReply) Result() *cmn.Result { return r.Res }

// PutOperation fans a Put out to every replica of a document's bucket.
type PutOperation struct {
	mgr    *Manager
	bucket cluster.BucketID
	cmd    *PutCommand

	pending   map[string]cluster.ReplicaRef
	anyFailed bool
	failures  []*cmn.Result
	remaining int
}

func NewPutOperation(mgr *Manager, bucket cluster.BucketID, cmd *PutCommand) *PutOperation {
	return &PutOperation{
		mgr:     mgr,
		bucket:  bucket,
		cmd:     cmd,
		pending: make(map[string]cluster.ReplicaRef),
	}
}

func (p *PutOperation) Start(sink transport.Sender, _ int64) {
	replicas, err := p.mgr.replicasFor(p.bucket)
	if err != nil {
		sink.SendReply(&PutReply{msgID: p.cmd.MsgID(), Res: cmn.WrapResult(err, "bucket db lookup failed")})
		return
	}
	if len(replicas) == 0 {
		sink.SendReply(&PutReply{msgID: p.cmd.MsgID(), Res: cmn.NewResult(cmn.BucketNotFound, "no replicas to put to")})
		return
	}
	p.remaining = len(replicas)
	for _, r := range replicas {
		msgID := cmn.GenMsgID()
		p.pending[msgID] = r
		sink.SendCommand(&replicaPutCmd{msgID: msgID, Node: r.Node, Bucket: r.Bucket, Doc: p.cmd.Doc})
	}
}

func (p *PutOperation) Receive(sink transport.Sender, reply transport.Reply) {
	rpr, ok := reply.(*replicaPutReply)
	if !ok {
		return
	}
	if _, ok := p.pending[rpr.MsgID()]; !ok {
		return
	}
	delete(p.pending, rpr.MsgID())
	p.remaining--
	if rpr.Result().Failed() {
		p.anyFailed = true
		p.failures = append(p.failures, rpr.Result())
	}
	if p.remaining > 0 {
		return
	}
	p.finish(sink)
}

func (p *PutOperation) finish(sink transport.Sender) {
	if p.anyFailed {
		sink.SendReply(&PutReply{msgID: p.cmd.MsgID(), Res: cmn.NewResult(cmn.InternalFailure, "one or more replica puts failed: %v", p.failures[0])})
		return
	}
	sink.SendReply(&PutReply{msgID: p.cmd.MsgID(), Res: cmn.NewResult(cmn.OK, "")})
}

func (p *PutOperation) OnClose(transport.Sender) {}

package childops

import (
	"github.com/docstore/distributor/cluster"
	"github.com/docstore/distributor/cmn"
)

// The types in this file are the wire messages a child operation exchanges
// with individual replicas — one level below the child's own
// start/receive/onClose contract with the coordinator. They satisfy
// transport.Command / transport.Reply but live here rather than in package
// transport because their shape is specific to this store's Get/Put/Update
// semantics.

type replicaGetCmd struct {
	msgID  string
	Node   cluster.NodeIndex
	Bucket cluster.BucketID
	ID     DocumentID
	Fields GetFields
}

func (c *replicaGetCmd) MsgID() string { return c.msgID }

type replicaGetReply struct {
	msgID  string
	Node   cluster.NodeIndex
	Bucket cluster.BucketID
	Res    *cmn.Result
	Doc    *Document
	Exists bool
}

func (r *replicaGetReply) MsgID() string       { return r.msgID }
func (r *replicaGetReply) Result() *cmn.Result { return r.Res }

type replicaPutCmd struct {
	msgID  string
	Node   cluster.NodeIndex
	Bucket cluster.BucketID
	Doc    *Document
}

func (c *replicaPutCmd) MsgID() string { return c.msgID }

type replicaPutReply struct {
	msgID string
	Node  cluster.NodeIndex
	Res   *cmn.Result
}

func (r *replicaPutReply) MsgID() string       { return r.msgID }
func (r *replicaPutReply) Result() *cmn.Result { return r.Res }

type replicaUpdateCmd struct {
	msgID        string
	Node         cluster.NodeIndex
	Bucket       cluster.BucketID
	Payload      *UpdatePayload
	Condition    string
	RequireOldTS *int64
}

func (c *replicaUpdateCmd) MsgID() string { return c.msgID }

type replicaUpdateReply struct {
	msgID        string
	Node         cluster.NodeIndex
	Bucket       cluster.BucketID
	Res          *cmn.Result
	OldTimestamp int64
}

func (r *replicaUpdateReply) MsgID() string       { return r.msgID }
func (r *replicaUpdateReply) Result() *cmn.Result { return r.Res }

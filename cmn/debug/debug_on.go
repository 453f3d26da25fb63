//go:build debug

// Package debug provides assertions that only run in debug builds.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import "fmt"

func Assert(cond bool, args ...interface{}) {
	if cond {
		return
	}
	if len(args) > 0 {
		panic(fmt.Sprintf("assertion failed: %s", fmt.Sprint(args...)))
	}
	panic("assertion failed")
}

func Assertf(cond bool, format string, args ...interface{}) {
	if cond {
		return
	}
	panic(fmt.Sprintf("assertion failed: "+format, args...))
}

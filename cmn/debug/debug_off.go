//go:build !debug

package debug

func Assert(_ bool, _ ...interface{}) {}

func Assertf(_ bool, _ string, _ ...interface{}) {}

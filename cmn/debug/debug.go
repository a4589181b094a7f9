// Package debug provides assertions compiled out of non-debug builds, in
// the style of the reference codebase's cmn/debug package.
/*
 * Copyright (c) 2024-2025, Ray Project contributors.
 */
package debug

// Assert panics if cond is false. Build with `-tags debug` to enable;
// compiled to a no-op otherwise so hot reactor paths pay nothing in
// production.
func Assert(cond bool, args ...interface{}) {
	assert(cond, args...)
}

// AssertNoErr is a shortcut for the common Assert(err == nil) check.
func AssertNoErr(err error) {
	assert(err == nil, err)
}

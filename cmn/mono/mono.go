// Package mono provides monotonic-clock helpers used for stats and retry
// back-off, where wall-clock jumps must not be observable.
/*
 * Copyright (c) 2024-2025, Ray Project contributors.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns a monotonic nanosecond timestamp anchored at process
// start. It is only ever compared to other NanoTime() values.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since returns the duration elapsed since a NanoTime() timestamp.
func Since(ts int64) time.Duration { return time.Duration(NanoTime() - ts) }

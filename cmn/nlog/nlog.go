// Package nlog is the leveled-logging facade used throughout this module.
// It is a thin shim over glog so call sites stay the same if the
// underlying logger is ever swapped out.
/*
 * Copyright (c) 2024-2025, Ray Project contributors.
 */
package nlog

import "github.com/golang/glog"

// V reports whether verbose logging at the given level is enabled. Hot
// paths (e.g. per-object spill eligibility checks) should guard expensive
// formatting with it.
func V(level int) bool { return bool(glog.V(glog.Level(level))) }

func Infoln(args ...interface{})               { glog.Infoln(args...) }
func Infof(format string, args ...interface{}) { glog.Infof(format, args...) }

func Warningln(args ...interface{})               { glog.Warningln(args...) }
func Warningf(format string, args ...interface{}) { glog.Warningf(format, args...) }

func Errorln(args ...interface{})               { glog.Errorln(args...) }
func Errorf(format string, args ...interface{}) { glog.Errorf(format, args...) }

func Flush() { glog.Flush() }

package webdriver

import (
	"github.com/golang/glog"
)

var debugFlag = false

// SetDebug forces protocol tracing regardless of the glog verbosity.
func SetDebug(debug bool) {
	debugFlag = debug
}

func debugLog(format string, args ...interface{}) {
	if !debugFlag && !bool(glog.V(2)) {
		return
	}
	glog.InfoDepthf(1, format, args...)
}

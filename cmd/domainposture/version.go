package main

import "runtime/debug"

// initVersion fills version from the module build info when it was not set
// through -ldflags, e.g. for binaries built with go install
func initVersion() {
	if version != "dev" && version != "" {
		return
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if mv := info.Main.Version; mv != "" && mv != "(devel)" {
		version = mv
	}
}

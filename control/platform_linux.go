//go:build linux

// File: control/platform_linux.go
// License: Apache-2.0

package control

import (
	"os"
	"runtime"
)

// RegisterPlatformProbes adds Linux-specific probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.os", func() any { return runtime.GOOS })
	dp.RegisterProbe("platform.cpus", func() any { return runtime.NumCPU() })
	dp.RegisterProbe("platform.pid", func() any { return os.Getpid() })
}

package system

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// probeNPUDevice performs a best-effort, platform-specific check for the
// presence of an NPU device. The real driver-version query is vendor
// specific; this reports presence via the conventional device node / driver
// package locations so that the filtering layer and the FLM adapter's
// minimum driver-version gate have something concrete to act on.
func probeNPUDevice() bool {
	switch runtime.GOOS {
	case "windows":
		// The AMD Ryzen AI NPU driver installs a device under this registry
		// namespace; absent a registry API dependency we approximate with
		// the driver package's installed marker file.
		if _, err := os.Stat(os.ExpandEnv(`${SystemRoot}\System32\drivers\ipu.sys`)); err == nil {
			return true
		}
		return false
	case "linux":
		matches, _ := filepath.Glob("/dev/accel/accel*")
		return len(matches) > 0
	default:
		return false
	}
}

// NPUDriverVersion exposes npuDriverVersion for callers outside this
// package, notably the flm adapter's minimum-driver-version gate.
func NPUDriverVersion() string { return npuDriverVersion() }

// npuDriverVersion returns the installed NPU driver version string, or ""
// if it cannot be determined.
func npuDriverVersion() string {
	if runtime.GOOS != "windows" {
		return ""
	}
	data, err := os.ReadFile(os.ExpandEnv(`${ProgramFiles}\AMD\NPU\version.txt`))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

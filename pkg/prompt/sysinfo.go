package prompt

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// DetectOSVersion returns a human readable OS name and version, e.g. "macOS 14.5".
// sw_vers is preferred on macOS since it reports the marketing product name.
func DetectOSVersion(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if runtime.GOOS == "darwin" {
		name, errName := exec.CommandContext(ctx, "sw_vers", "-productName").Output()
		version, errVersion := exec.CommandContext(ctx, "sw_vers", "-productVersion").Output()
		if errName == nil && errVersion == nil {
			return strings.TrimSpace(string(name)) + " " + strings.TrimSpace(string(version))
		}
	}

	platform, _, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil || platform == "" {
		return runtime.GOOS
	}
	return strings.TrimSpace(platform + " " + version)
}

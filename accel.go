package intar

import (
	"os"
	"os/exec"
	"runtime"
)

// accelFor returns the qemu `-accel` argument for the current host. On
// Linux it probes for KVM and falls back to tcg when KVM is not usable; on
// macOS and Windows it returns hvf and whpx without probing for them; any
// other OS gets tcg.
func accelFor(goos string) string {
	switch goos {
	case "linux":
		if kvmAvailable() {
			return "kvm"
		}
	case "darwin":
		return "hvf"
	case "windows":
		return "whpx"
	}
	return "tcg"
}

// kvmAvailable reports whether /dev/kvm looks usable, via the same
// exec.LookPath-style probing the rest of the repo uses for optional
// external tools rather than opening the device directly (which would
// require root to even attempt on some hosts).
func kvmAvailable() bool {
	if _, err := exec.LookPath("qemu-system-x86_64"); err != nil {
		return false
	}
	_, err := os.Stat("/dev/kvm")
	return err == nil
}

func currentAccel() string {
	return accelFor(runtime.GOOS)
}

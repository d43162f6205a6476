package runner

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// containerMount describes one bind mount for a container-wrapped
// invocation (grounded on the teacher's docker client MountConfig
// shape: source, target, read-only).
type containerMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

const containerWorkdir = "/workspace"
const containerSidechannelConfigPath = "/run/sidechannel/config.json"
const containerCredsPath = "/run/creds"

// wrapForContainer rewrites argv to invoke the container runtime
// instead of the agent binary directly (spec.md §4.2/§4.3
// container-wrap mode): mounts the working directory, credentials
// (read-only), and the sidechannel config (read-only) into the
// container, and normalizes the inner command to a bare binary name.
func wrapForContainer(image, workDir, credsDir, sidechannelConfigHostPath string, innerArgv []string) []string {
	mounts := []containerMount{
		{Source: workDir, Target: containerWorkdir, ReadOnly: false},
		{Source: sidechannelConfigHostPath, Target: containerSidechannelConfigPath, ReadOnly: true},
	}
	if credsDir != "" {
		mounts = append(mounts, containerMount{Source: credsDir, Target: containerCredsPath, ReadOnly: true})
	}

	argv := []string{"docker", "run", "--rm", "-i",
		"--workdir", containerWorkdir,
	}
	for _, m := range mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		argv = append(argv, "-v", fmt.Sprintf("%s:%s:%s", m.Source, m.Target, mode))
	}
	argv = append(argv, image)

	// Normalize the inner command: binary name only, config path
	// rewritten to the in-container mount point.
	inner := make([]string, len(innerArgv))
	copy(inner, innerArgv)
	if len(inner) > 0 {
		inner[0] = filepath.Base(inner[0])
	}
	for i, a := range inner {
		if a == sidechannelConfigHostPath {
			inner[i] = containerSidechannelConfigPath
		}
	}
	return append(argv, inner...)
}

// sidechannelBaseURLForContainer rewrites the internal API base URL so
// a container-wrapped agent can reach it: the host-gateway alias on
// platforms that require it, loopback elsewhere (spec.md §4.2/§4.3).
func sidechannelBaseURLForContainer(port int) string {
	if runtime.GOOS == "linux" {
		return fmt.Sprintf("http://host.docker.internal:%d", port)
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// Package sandbox implements the Sandbox Policy component (spec.md §4.2):
// a pure function yielding the mode under which agent processes may be
// spawned, based on environment markers and a container-runtime probe.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kandev/agentexec/internal/model"
)

// DockerProbeTimeout bounds the `docker info` availability check
// (spec.md §4.2: "a five-second probe of its info subcommand").
const DockerProbeTimeout = 5 * time.Second

// ContainerType names which marker tripped sandboxed detection.
type ContainerType string

const (
	ContainerNone            ContainerType = ""
	ContainerDevcontainer    ContainerType = "devcontainer"
	ContainerExplicit        ContainerType = "agentexec-container"
	ContainerDockerenv       ContainerType = "docker"
	ContainerCgroup          ContainerType = "cgroup-container"
	ContainerNetworkInferred ContainerType = "network-inferred"
)

// Status is the result of sandbox detection (SPEC_FULL.md §4).
type Status struct {
	Sandboxed       bool
	ContainerType   ContainerType
	OverrideActive  bool
	DockerAvailable bool
	Mode            model.ExecutionMode
}

// Inputs are the environment-derived and config-derived signals the
// policy consults. Kept as a struct (rather than reading os.Getenv
// directly everywhere) so the decision function stays pure and
// testable.
type Inputs struct {
	Devcontainer    bool
	ContainerMarker bool
	DockerenvExists bool
	Cgroup          string
	CgroupErr       error
	BackendHost     string
	AllowHostOpt    bool
	DockerAvailable bool
}

// DetectInputs reads the real environment and config to build Inputs.
// probeDocker is injected so tests can avoid shelling out.
func DetectInputs(backendHost string, allowHost bool, probeDocker func(context.Context) bool) Inputs {
	cgroup, err := os.ReadFile("/proc/1/cgroup")
	_, dockerenvErr := os.Stat("/.dockerenv")

	ctx, cancel := context.WithTimeout(context.Background(), DockerProbeTimeout)
	defer cancel()

	return Inputs{
		Devcontainer:    os.Getenv("DEVCONTAINER") != "",
		ContainerMarker: os.Getenv("AGENTEXEC_CONTAINER") != "",
		DockerenvExists: dockerenvErr == nil,
		Cgroup:          string(cgroup),
		CgroupErr:       err,
		BackendHost:     backendHost,
		AllowHostOpt:    allowHost,
		DockerAvailable: probeDocker(ctx),
	}
}

// ProbeDocker runs `docker info` and reports whether it exits zero
// within DockerProbeTimeout. Any failure to start, time out, or exit
// non-zero is treated as "not available" — never an error to the
// caller, per spec.md §4.2.
func ProbeDocker(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "info")
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}

// Detect decides the Status from Inputs. Detection order (first match
// wins) is pinned by SPEC_FULL.md §4, resolving an Open Question in
// spec.md §9 against original_source/backend/services/sandbox.py:
// devcontainer marker, explicit container opt-in, /.dockerenv,
// /proc/1/cgroup contents, then backend_host==0.0.0.0.
func Detect(in Inputs) Status {
	switch {
	case in.Devcontainer:
		return computeStatus(true, ContainerDevcontainer, in)
	case in.ContainerMarker:
		return computeStatus(true, ContainerExplicit, in)
	case in.DockerenvExists:
		return computeStatus(true, ContainerDockerenv, in)
	case in.CgroupErr == nil && containsAny(in.Cgroup, "docker", "kubepods", "containerd"):
		return computeStatus(true, ContainerCgroup, in)
	case in.BackendHost == "0.0.0.0":
		return computeStatus(true, ContainerNetworkInferred, in)
	default:
		return computeStatus(false, ContainerNone, in)
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func computeStatus(sandboxed bool, ct ContainerType, in Inputs) Status {
	mode := model.ModeBlocked
	switch {
	case sandboxed:
		mode = model.ModeNative
	case in.AllowHostOpt:
		mode = model.ModeHostOverride
	case in.DockerAvailable:
		mode = model.ModeContainerWrap
	}
	return Status{
		Sandboxed:       sandboxed,
		ContainerType:   ct,
		OverrideActive:  in.AllowHostOpt,
		DockerAvailable: in.DockerAvailable,
		Mode:            mode,
	}
}

// BlockedDiagnostic produces the explanatory message surfaced when a
// task is admission-denied for sandbox reasons (spec.md §4.2: "a
// diagnostic listing the three remedies").
func BlockedDiagnostic(action string) string {
	return fmt.Sprintf(
		"execution blocked for: %s. agents run with unrestricted filesystem access outside a container. "+
			"run inside a devcontainer or container already, install a container runtime to enable "+
			"automatic containerization, or set the host-override opt-in to bypass this check.",
		action,
	)
}

package sandbox

import (
	"testing"

	"github.com/kandev/agentexec/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestDetectDevcontainerTakesPriority(t *testing.T) {
	in := Inputs{Devcontainer: true, DockerenvExists: true, DockerAvailable: true}
	status := Detect(in)
	assert.True(t, status.Sandboxed)
	assert.Equal(t, ContainerDevcontainer, status.ContainerType)
	assert.Equal(t, model.ModeNative, status.Mode)
}

func TestDetectCgroupMarker(t *testing.T) {
	in := Inputs{Cgroup: "1:name=systemd:/docker/abc123", DockerAvailable: true}
	status := Detect(in)
	assert.True(t, status.Sandboxed)
	assert.Equal(t, ContainerCgroup, status.ContainerType)
}

func TestDetectCgroupReadErrorIsNotFatal(t *testing.T) {
	in := Inputs{CgroupErr: assertErr, DockerAvailable: false, AllowHostOpt: false}
	status := Detect(in)
	assert.False(t, status.Sandboxed)
	assert.Equal(t, model.ModeBlocked, status.Mode)
}

func TestDetectHostOverrideWhenNotSandboxed(t *testing.T) {
	in := Inputs{AllowHostOpt: true}
	status := Detect(in)
	assert.False(t, status.Sandboxed)
	assert.Equal(t, model.ModeHostOverride, status.Mode)
	assert.True(t, status.OverrideActive)
}

func TestDetectContainerWrapWhenDockerAvailable(t *testing.T) {
	in := Inputs{DockerAvailable: true}
	status := Detect(in)
	assert.Equal(t, model.ModeContainerWrap, status.Mode)
}

func TestDetectBlockedWhenNothingAvailable(t *testing.T) {
	in := Inputs{}
	status := Detect(in)
	assert.Equal(t, model.ModeBlocked, status.Mode)
}

func TestBlockedDiagnosticNamesThreeRemedies(t *testing.T) {
	msg := BlockedDiagnostic("run task")
	assert.Contains(t, msg, "devcontainer")
	assert.Contains(t, msg, "container runtime")
	assert.Contains(t, msg, "host-override")
}

var assertErr = &readError{}

type readError struct{}

func (e *readError) Error() string { return "permission denied" }

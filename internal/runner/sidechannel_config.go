package runner

import (
	"encoding/json"
	"fmt"
	"os"
)

// sidechannelConfig is written to a short-lived temp file and passed
// to the agent binary via its sidechannel-config-path flag
// (spec.md §4.3). The agent reads this to learn how to dial the
// Sidechannel Bridge over stdio.
type sidechannelConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// writeSidechannelConfig writes cfg to a new mode-0600 temp file and
// returns its path. The caller is responsible for removing it.
func writeSidechannelConfig(dir string, cfg sidechannelConfig) (string, error) {
	f, err := os.CreateTemp(dir, "sidechannel-*.json")
	if err != nil {
		return "", fmt.Errorf("create sidechannel config: %w", err)
	}
	path := f.Name()

	if err := f.Chmod(0600); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("chmod sidechannel config: %w", err)
	}

	enc := json.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("encode sidechannel config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close sidechannel config: %w", err)
	}
	return path, nil
}

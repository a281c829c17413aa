package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/semantic-router/router/pkg/types"
)

// serversFile is the on-disk shape of the servers-config JSON file: a
// top-level object with an mcpServers map from server name to entry.
type serversFile struct {
	MCPServers map[string]serverEntry `json:"mcpServers"`
}

type serverEntry struct {
	Command        string            `json:"command"`
	Args           []string          `json:"args"`
	Env            map[string]string `json:"env"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Hints          []string          `json:"hints"`
	BlockedTools   []string          `json:"blocked_tools"`
	Ignore         bool              `json:"ignore"`
	Overwrite      bool              `json:"overwrite"`
}

// LoadServers reads the servers-config JSON file and returns one
// types.ServerConfig per entry in mcpServers, keyed by name.
func LoadServers(path string) (map[string]*types.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.ErrConfigError, fmt.Sprintf("reading servers config %s", path), err)
	}

	var sf serversFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, types.WrapError(types.ErrConfigError, fmt.Sprintf("parsing servers config %s", path), err)
	}

	out := make(map[string]*types.ServerConfig, len(sf.MCPServers))
	for name, entry := range sf.MCPServers {
		if entry.Command == "" {
			return nil, types.NewError(types.ErrConfigError, fmt.Sprintf("server %q: command is required", name))
		}

		blocked := make(map[string]bool, len(entry.BlockedTools))
		for _, t := range entry.BlockedTools {
			blocked[t] = true
		}

		env := make(map[string]string, len(entry.Env))
		for k, v := range entry.Env {
			env[k] = InterpolateEnv(v)
		}

		out[name] = &types.ServerConfig{
			Name:           name,
			Command:        InterpolateEnv(entry.Command),
			Args:           entry.Args,
			Env:            env,
			TimeoutSeconds: entry.TimeoutSeconds,
			Hints:          entry.Hints,
			BlockedTools:   blocked,
			Ignore:         entry.Ignore,
			Overwrite:      entry.Overwrite,
			Source:         path,
		}
	}

	return out, nil
}

package arena

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Roster lists the bots spawned at startup.
type Roster struct {
	Bots []RosterBot `yaml:"bots"`
}

// RosterBot is one roster entry.
type RosterBot struct {
	Name string `yaml:"name"`
}

// LoadBotRoster reads a YAML roster file.
//
// Precondition: path names a readable YAML file.
// Postcondition: every returned name is non-empty and unique.
func LoadBotRoster(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bot roster %s: %w", path, err)
	}
	return ParseBotRoster(data)
}

// ParseBotRoster decodes roster YAML.
func ParseBotRoster(data []byte) ([]string, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing bot roster: %w", err)
	}
	seen := make(map[string]bool, len(r.Bots))
	names := make([]string, 0, len(r.Bots))
	for i, b := range r.Bots {
		if b.Name == "" {
			return nil, fmt.Errorf("bot roster entry %d: name must not be empty", i)
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("bot roster entry %d: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true
		names = append(names, b.Name)
	}
	return names, nil
}

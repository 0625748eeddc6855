package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// KeyBindingsConfig maps chat view actions to key strings as bubbletea
// reports them ("enter", "ctrl+s", "alt+x").
type KeyBindingsConfig struct {
	Actions map[string]string `toml:"actions"`
}

// actionRegistry holds the default key of every action
var actionRegistry = map[string]string{
	"send":  "enter",
	"stop":  "ctrl+s",
	"clear": "ctrl+l",
	"copy":  "ctrl+y",
	"quit":  "ctrl+c",
}

func DefaultKeybindings() *KeyBindingsConfig {
	return &KeyBindingsConfig{Actions: map[string]string{}}
}

// LoadKeybindings reads <dataDir>/keybindings.toml, creating it when missing
func LoadKeybindings(dataDir string) (*KeyBindingsConfig, error) {
	cfg := DefaultKeybindings()
	path := filepath.Join(dataDir, "keybindings.toml")

	if !FileExists(path) {
		if err := os.WriteFile(path, []byte(GenerateKeybindingsTemplate()), 0600); err != nil {
			return nil, fmt.Errorf("failed to write keybindings: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse keybindings: %w", err)
	}
	if cfg.Actions == nil {
		cfg.Actions = map[string]string{}
	}
	return cfg, nil
}

func GenerateKeybindingsTemplate() string {
	return `# chatdesk keybindings
# Keys use bubbletea names: "enter", "ctrl+s", "alt+x", "esc"

[actions]
# send = "enter"
# stop = "ctrl+s"
# clear = "ctrl+l"
# copy = "ctrl+y"
# quit = "ctrl+c"
`
}

// GetActionKey returns the configured key for action, or its default
func (kb *KeyBindingsConfig) GetActionKey(action string) string {
	if key := strings.TrimSpace(kb.Actions[action]); key != "" {
		return strings.ToLower(key)
	}
	return actionRegistry[action]
}

// DisplayActionKey formats the key of action for help text ("Ctrl+S")
func (kb *KeyBindingsConfig) DisplayActionKey(action string) string {
	parts := strings.Split(kb.GetActionKey(action), "+")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "+")
}

// Validate reports unknown actions and keys bound to more than one action
func (kb *KeyBindingsConfig) Validate() error {
	seen := map[string]string{}
	actions := make([]string, 0, len(actionRegistry))
	for a := range actionRegistry {
		actions = append(actions, a)
	}
	sort.Strings(actions)

	for a := range kb.Actions {
		if _, ok := actionRegistry[a]; !ok {
			return fmt.Errorf("unknown action %q", a)
		}
	}
	for _, a := range actions {
		key := kb.GetActionKey(a)
		if other, ok := seen[key]; ok {
			return fmt.Errorf("key %q bound to both %s and %s", key, other, a)
		}
		seen[key] = a
	}
	return nil
}

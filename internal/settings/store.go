// Package settings persists §6.2's settings surface: per-pane/per-runtime
// injection capability overrides, pane launch commands, autospawn, and
// autonomy consent — TOML-backed by default, with a YAML loader for
// operators who prefer that format.
package settings

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"
)

// Settings is the on-disk settings document.
type Settings struct {
	PaneCommands          map[string]string `toml:"pane_commands" yaml:"paneCommands"`
	AutoSpawn             bool              `toml:"auto_spawn" yaml:"autoSpawn"`
	AutonomyConsentGiven  bool              `toml:"autonomy_consent_given" yaml:"autonomyConsentGiven"`
	TerminalWebGL         bool              `toml:"terminal_webgl" yaml:"terminalWebGL"`
	InjectionCapabilities InjectionCapabilities `toml:"injection_capabilities" yaml:"injectionCapabilities"`
}

// InjectionCapabilities is a flat capability override map, keyed by pane id
// and by runtime, each a field-name -> value table.
type InjectionCapabilities struct {
	Panes    map[string]map[string]any `toml:"panes" yaml:"panes"`
	Runtimes map[string]map[string]any `toml:"runtimes" yaml:"runtimes"`
}

func defaultSettings() Settings {
	return Settings{
		PaneCommands:         map[string]string{},
		AutoSpawn:            true,
		AutonomyConsentGiven: false,
		TerminalWebGL:        true,
		InjectionCapabilities: InjectionCapabilities{
			Panes:    map[string]map[string]any{},
			Runtimes: map[string]map[string]any{},
		},
	}
}

// Store loads/saves a Settings document from a single file path, format
// inferred from its extension (.yaml/.yml uses YAML; anything else TOML).
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) LoadOrInit() (Settings, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return Settings{}, err
	}

	b, err := os.ReadFile(s.path)
	if err == nil {
		cfg, err := s.unmarshal(b)
		if err != nil {
			return Settings{}, err
		}
		return normalize(cfg), nil
	}
	if !os.IsNotExist(err) {
		return Settings{}, err
	}

	cfg := defaultSettings()
	if err := s.Save(cfg); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func (s *Store) Save(cfg Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := s.marshal(normalize(cfg))
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) isYAML() bool {
	ext := filepath.Ext(s.path)
	return ext == ".yaml" || ext == ".yml"
}

func (s *Store) unmarshal(b []byte) (Settings, error) {
	var cfg Settings
	var err error
	if s.isYAML() {
		err = yaml.Unmarshal(b, &cfg)
	} else {
		err = toml.Unmarshal(b, &cfg)
	}
	return cfg, err
}

func (s *Store) marshal(cfg Settings) ([]byte, error) {
	if s.isYAML() {
		return yaml.Marshal(cfg)
	}
	return toml.Marshal(cfg)
}

func normalize(cfg Settings) Settings {
	if cfg.PaneCommands == nil {
		cfg.PaneCommands = map[string]string{}
	}
	if cfg.InjectionCapabilities.Panes == nil {
		cfg.InjectionCapabilities.Panes = map[string]map[string]any{}
	}
	if cfg.InjectionCapabilities.Runtimes == nil {
		cfg.InjectionCapabilities.Runtimes = map[string]map[string]any{}
	}
	return cfg
}

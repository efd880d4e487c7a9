package resampler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSettings indicates an unreadable or out-of-range preference.
var ErrInvalidSettings = errors.New("invalid resampler settings")

// Settings are the host's converter preferences: the method used for
// interactive work and the one used when the best method is requested.
type Settings struct {
	FastMethod Method
	BestMethod Method
}

// DefaultSettings returns the preference defaults.
func DefaultSettings() Settings {
	return Settings{FastMethod: DefaultFastMethod, BestMethod: DefaultBestMethod}
}

// Validate checks both methods are known.
func (s Settings) Validate() error {
	if !s.FastMethod.valid() {
		return fmt.Errorf("%w: fast method %d", ErrInvalidSettings, int(s.FastMethod))
	}
	if !s.BestMethod.valid() {
		return fmt.Errorf("%w: best method %d", ErrInvalidSettings, int(s.BestMethod))
	}
	return nil
}

// Method returns BestMethod when best is set, otherwise FastMethod.
func (s Settings) Method(best bool) Method {
	if best {
		return s.BestMethod
	}
	return s.FastMethod
}

func (m Method) valid() bool {
	return m >= 0 && m < methodCount
}

// String returns the preference symbol of m.
func (m Method) String() string {
	if !m.valid() {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodSymbols[m]
}

// Recipe returns the library quality recipe for m.
func (m Method) Recipe() uint64 {
	return methodRecipes[m]
}

// ParseMethod maps a preference symbol to its Method.
func ParseMethod(symbol string) (Method, error) {
	for m, s := range methodSymbols {
		if s == symbol {
			return Method(m), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown converter choice %q", ErrInvalidSettings, symbol)
}

// UnmarshalYAML accepts a preference symbol.
func (m *Method) UnmarshalYAML(node *yaml.Node) error {
	var symbol string
	if err := node.Decode(&symbol); err != nil {
		return fmt.Errorf("%w: line %d: %w", ErrInvalidSettings, node.Line, err)
	}
	parsed, err := ParseMethod(symbol)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalYAML writes the preference symbol.
func (m Method) MarshalYAML() (any, error) {
	if !m.valid() {
		return nil, fmt.Errorf("%w: method %d", ErrInvalidSettings, int(m))
	}
	return m.String(), nil
}

// settingsFile is the on-disk layout. The integer keys are the legacy form of
// the choice keys and are only read when the choice key is absent.
type settingsFile struct {
	Quality struct {
		Choice       *Method `yaml:"sample_rate_converter_choice,omitempty"`
		HQChoice     *Method `yaml:"hq_sample_rate_converter_choice,omitempty"`
		LegacyChoice *int    `yaml:"sample_rate_converter,omitempty"`
		LegacyHQ     *int    `yaml:"hq_sample_rate_converter,omitempty"`
	} `yaml:"quality"`
}

// ParseSettings reads preferences from YAML. Missing keys keep their
// defaults; unknown keys are an error.
func ParseSettings(data []byte) (Settings, error) {
	s := DefaultSettings()

	var f settingsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}

	var err error
	if s.FastMethod, err = pick(f.Quality.Choice, f.Quality.LegacyChoice, s.FastMethod); err != nil {
		return Settings{}, err
	}
	if s.BestMethod, err = pick(f.Quality.HQChoice, f.Quality.LegacyHQ, s.BestMethod); err != nil {
		return Settings{}, err
	}
	return s, s.Validate()
}

// LoadSettings reads preferences from a YAML file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return ParseSettings(data)
}

// MarshalSettings writes s in the current key layout.
func MarshalSettings(s Settings) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	var f settingsFile
	f.Quality.Choice = &s.FastMethod
	f.Quality.HQChoice = &s.BestMethod
	return yaml.Marshal(&f)
}

func pick(choice *Method, legacy *int, def Method) (Method, error) {
	switch {
	case choice != nil:
		return *choice, nil
	case legacy != nil:
		m := Method(*legacy)
		if !m.valid() {
			return 0, fmt.Errorf("%w: legacy converter value %d", ErrInvalidSettings, *legacy)
		}
		return m, nil
	default:
		return def, nil
	}
}

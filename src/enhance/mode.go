package enhance

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode names a fixed upscale factor plus pixel transform.
type Mode string

const (
	ModeRaw                Mode = "raw"
	ModeContrastStretch    Mode = "contrastStretch"
	ModeGrayscaleThreshold Mode = "grayscaleThreshold"
	// ModeAdaptiveBinarize is a fixed global threshold; the name is kept for
	// compatibility with existing callers. See ModeLocalThreshold.
	ModeAdaptiveBinarize Mode = "adaptiveBinarize"
	ModeLocalThreshold   Mode = "localThreshold"
)

// Modes lists every mode in a stable order.
func Modes() []Mode {
	return []Mode{ModeRaw, ModeContrastStretch, ModeGrayscaleThreshold, ModeAdaptiveBinarize, ModeLocalThreshold}
}

// ParseMode matches a mode name case-insensitively, ignoring '-' and '_'.
func ParseMode(s string) (Mode, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, m := range Modes() {
		if strings.ToLower(string(m)) == key {
			return m, nil
		}
	}
	return "", fmt.Errorf("enhance: unknown mode %q", s)
}

// Profile holds the tunables of a mode. Zero fields in an override keep
// the default.
type Profile struct {
	Upscale   int     `yaml:"upscale"`
	Threshold int     `yaml:"threshold"`
	Contrast  float64 `yaml:"contrast"`
	Window    int     `yaml:"window"`
	Bias      int     `yaml:"bias"`
}

func defaultProfiles() map[Mode]Profile {
	return map[Mode]Profile{
		ModeRaw:                {Upscale: 1},
		ModeContrastStretch:    {Upscale: 2, Contrast: 1.5},
		ModeGrayscaleThreshold: {Upscale: 3, Threshold: 128},
		ModeAdaptiveBinarize:   {Upscale: 2, Threshold: 140},
		ModeLocalThreshold:     {Upscale: 2, Window: 25, Bias: 10},
	}
}

func (p Profile) merge(o Profile) Profile {
	if o.Upscale > 0 {
		p.Upscale = o.Upscale
	}
	if o.Threshold > 0 {
		p.Threshold = o.Threshold
	}
	if o.Contrast > 0 {
		p.Contrast = o.Contrast
	}
	if o.Window > 0 {
		p.Window = o.Window
	}
	if o.Bias != 0 {
		p.Bias = o.Bias
	}
	return p
}

type profilesFile struct {
	Modes map[string]Profile `yaml:"modes"`
}

// LoadProfiles reads per-mode overrides from a YAML file of the form
//
//	modes:
//	  grayscaleThreshold:
//	    upscale: 4
//	    threshold: 120
func LoadProfiles(path string) (map[Mode]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("enhance: read profiles: %w", err)
	}
	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("enhance: parse profiles %s: %w", path, err)
	}
	out := make(map[Mode]Profile, len(f.Modes))
	for name, p := range f.Modes {
		m, err := ParseMode(name)
		if err != nil {
			return nil, err
		}
		if p.Threshold > 255 || p.Upscale < 0 || p.Upscale > 8 {
			return nil, fmt.Errorf("enhance: profile %s out of range", name)
		}
		out[m] = p
	}
	return out, nil
}

// Package launchconfig implements the optional override config file: an
// ambient convenience layer over the docker-socket toggle and the
// sensitive-path advisory list, loaded with hujson-based
// JSON-with-comments parsing.
package launchconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config is the optional override document. Every field is a pointer or
// slice so "absent" and "explicitly empty" are distinguishable during
// merge.
type Config struct {
	Docker         *bool    `json:"docker,omitempty"`
	SensitivePaths []string `json:"sensitivePaths,omitempty"`

	// LoadedFiles tracks which config files were actually read, for debug
	// output. Key is the layer name ("global", "project", "explicit").
	LoadedFiles map[string]string `json:"-"`
}

// LoadInput holds the inputs to Load.
type LoadInput struct {
	WorkDir    string
	ConfigPath string // --config override; mutually exclusive with the project config file
	EnvVars    map[string]string
}

// Load resolves the precedence chain: built-in defaults ->
// $XDG_CONFIG_HOME/pv-wrap/config.json(c) -> .pv-wrap.json(c) in the
// working directory -> an explicit --config path. This never substitutes
// for the environment-variable export table; callers apply it before
// consulting that table, not after.
func Load(input LoadInput) (Config, error) {
	cfg := DefaultConfig()
	cfg.LoadedFiles = make(map[string]string)

	workDir := input.WorkDir
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("launchconfig: getting working directory: %w", err)
		}
	}

	globalBase, err := userConfigBasePath(input.EnvVars)
	if err != nil {
		return Config{}, err
	}

	if globalBase != "" {
		if path, findErr := findConfigFile(globalBase); findErr == nil {
			layer, parseErr := parseFile(path)
			if parseErr != nil {
				return Config{}, parseErr
			}

			cfg = merge(cfg, layer)
			cfg.LoadedFiles["global"] = path
		} else if !errors.Is(findErr, os.ErrNotExist) {
			return Config{}, findErr
		}
	}

	if input.ConfigPath != "" {
		path := input.ConfigPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		layer, parseErr := parseFile(path)
		if parseErr != nil {
			return Config{}, parseErr
		}

		cfg = merge(cfg, layer)
		cfg.LoadedFiles["explicit"] = path
	} else {
		projectBase := filepath.Join(workDir, ".pv-wrap")

		if path, findErr := findConfigFile(projectBase); findErr == nil {
			layer, parseErr := parseFile(path)
			if parseErr != nil {
				return Config{}, parseErr
			}

			cfg = merge(cfg, layer)
			cfg.LoadedFiles["project"] = path
		} else if !errors.Is(findErr, os.ErrNotExist) {
			return Config{}, findErr
		}
	}

	return cfg, nil
}

// DefaultConfig returns the built-in defaults: docker passthrough off, no
// extra sensitive-path patterns beyond pathpolicy's fixed list.
func DefaultConfig() Config {
	f := false

	return Config{Docker: &f}
}

func merge(base, override Config) Config {
	result := base

	if base.LoadedFiles != nil {
		result.LoadedFiles = base.LoadedFiles
	}

	if override.Docker != nil {
		result.Docker = override.Docker
	}

	result.SensitivePaths = append(result.SensitivePaths, override.SensitivePaths...)

	return result
}

// findConfigFile checks for basePath+".json" and basePath+".jsonc",
// erroring if both exist.
func findConfigFile(basePath string) (string, error) {
	jsonPath := basePath + ".json"
	jsoncPath := basePath + ".jsonc"

	jsonExists, err := fileExists(jsonPath)
	if err != nil {
		return "", err
	}

	jsoncExists, err := fileExists(jsoncPath)
	if err != nil {
		return "", err
	}

	if jsonExists && jsoncExists {
		return "", fmt.Errorf("launchconfig: both %s and %s exist; remove one", jsonPath, jsoncPath)
	}

	if jsonExists {
		return jsonPath, nil
	}

	if jsoncExists {
		return jsoncPath, nil
	}

	return "", os.ErrNotExist
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("launchconfig: checking %s: %w", path, err)
	}

	return !info.IsDir(), nil
}

func parseFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("launchconfig: reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("launchconfig: parsing %s: %w", path, err)
	}

	var cfg Config

	decoder := json.NewDecoder(bytes.NewReader(standardized))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("launchconfig: parsing %s: %w", path, err)
	}

	return cfg, nil
}

func userConfigBasePath(env map[string]string) (string, error) {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "pv-wrap", "config"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("launchconfig: getting home directory: %w", err)
	}

	return filepath.Join(home, ".config", "pv-wrap", "config"), nil
}

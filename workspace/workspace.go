/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package workspace locates the project root and loads its
// configuration. A project is marked by a .molt.yaml file or, failing
// that, a .git directory.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ConfigFileName is the project marker and config file.
const ConfigFileName = ".molt.yaml"

// Config is the project configuration.
type Config struct {
	// SourceRoots are directories (relative to the project root) whose
	// files are candidates for partial reload.
	SourceRoots []string `mapstructure:"sourceRoots"`
	// Include filters watched files (doublestar globs).
	Include []string `mapstructure:"include"`
	// Exclude removes files from watching (doublestar globs).
	Exclude []string `mapstructure:"exclude"`
	// DebounceMs is the watcher debounce window in milliseconds.
	DebounceMs int `mapstructure:"debounceMs"`
	// Verbose enables debug logging.
	Verbose bool `mapstructure:"verbose"`
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() Config {
	return Config{
		SourceRoots: []string{"."},
		Include:     []string{"**/*.py"},
		Exclude:     []string{"**/__pycache__/**", "**/.*/**"},
		DebounceMs:  100,
	}
}

// Context is a resolved workspace: its root and configuration.
type Context struct {
	Root   string
	Config Config
}

// FindRoot walks up from dir looking for the project marker.
func FindRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for cur := abs; ; cur = filepath.Dir(cur) {
		if _, err := os.Stat(filepath.Join(cur, ConfigFileName)); err == nil {
			return cur, nil
		}
		if info, err := os.Stat(filepath.Join(cur, ".git")); err == nil && info.IsDir() {
			return cur, nil
		}
		if filepath.Dir(cur) == cur {
			// no marker anywhere above: treat the starting directory
			// itself as the root
			return abs, nil
		}
	}
}

// Load resolves the workspace for dir, reading .molt.yaml when present.
func Load(dir string) (*Context, error) {
	root, err := FindRoot(dir)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	configPath := filepath.Join(root, ConfigFileName)
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		// a missing config file means defaults; a broken one is an error
		if fileExists(configPath) {
			return nil, fmt.Errorf("read %s: %w", ConfigFileName, err)
		}
	} else {
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ConfigFileName, err)
		}
		if len(cfg.SourceRoots) == 0 {
			cfg.SourceRoots = []string{"."}
		}
		if cfg.DebounceMs <= 0 {
			cfg.DebounceMs = 100
		}
	}

	return &Context{Root: root, Config: cfg}, nil
}

// SourceRootPaths returns the absolute source root directories.
func (c *Context) SourceRootPaths() []string {
	out := make([]string, 0, len(c.Config.SourceRoots))
	for _, r := range c.Config.SourceRoots {
		if filepath.IsAbs(r) {
			out = append(out, filepath.Clean(r))
		} else {
			out = append(out, filepath.Join(c.Root, r))
		}
	}
	return out
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Package config resolves nixd's runtime configuration: store root,
// listen socket, and sandbox launcher paths. Precedence, highest first:
// command-line flags, a YAML config file, then XDG-derived defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// CLI is the command-line surface, parsed by kong in cmd/nixd.
type CLI struct {
	Store      string `help:"Store root directory." placeholder:"PATH"`
	Socket     string `help:"Unix socket path to listen on." placeholder:"PATH"`
	Bwrap      string `help:"Path to the bwrap-compatible sandbox launcher (default bwrap)." placeholder:"PATH"`
	Shell      string `name:"sh" help:"Path to a POSIX shell available inside the sandbox (default /bin/sh)." placeholder:"PATH"`
	ConfigFile string `name:"config" help:"YAML config file; flags above override its values." placeholder:"PATH" type:"path"`
	Verbose    bool   `help:"Enable debug-level logging." short:"v"`
}

// Parse builds a CLI from args via kong, following the same parser setup
// pattern as other kong-based tools: Name/Description feed --help,
// UsageOnError prints usage before an error rather than only the error.
func Parse(args []string) (*CLI, error) {
	cli := &CLI{}

	parser, err := kong.New(cli,
		kong.Name("nixd"),
		kong.Description("A worker-protocol-compatible Nix build daemon."),
		kong.UsageOnError(),
	)
	if err != nil {
		return nil, fmt.Errorf("config: build CLI parser: %w", err)
	}

	if _, err := parser.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse arguments: %w", err)
	}

	return cli, nil
}

// FileConfig is the shape of the optional YAML config file.
type FileConfig struct {
	Store  string `yaml:"store"`
	Socket string `yaml:"socket"`
	Bwrap  string `yaml:"bwrap"`
	Shell  string `yaml:"shell"`
}

// Resolved is the fully merged configuration nixd runs with.
type Resolved struct {
	Store   string
	Socket  string
	Bwrap   string
	Shell   string
	Verbose bool
}

// Resolve merges cli over an optional config file over XDG-derived
// defaults. A flag left at its zero value falls through to the config
// file; a config file field left empty falls through to the default.
func Resolve(cli *CLI) (*Resolved, error) {
	file, err := loadFileConfig(cli.ConfigFile)
	if err != nil {
		return nil, err
	}

	defaultStore, err := defaultStoreRoot()
	if err != nil {
		return nil, err
	}

	defaultSocket, err := defaultSocketPath()
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{
		Store:   firstNonEmpty(cli.Store, file.Store, defaultStore),
		Socket:  firstNonEmpty(cli.Socket, file.Socket, defaultSocket),
		Bwrap:   firstNonEmpty(cli.Bwrap, file.Bwrap, "bwrap"),
		Shell:   firstNonEmpty(cli.Shell, file.Shell, "/bin/sh"),
		Verbose: cli.Verbose,
	}

	return resolved, nil
}

func loadFileConfig(path string) (*FileConfig, error) {
	if path == "" {
		return &FileConfig{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return &FileConfig{}, nil
		}

		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var file FileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return &file, nil
}

// defaultStoreRoot places the store under the XDG data directory, so a
// non-root user running nixd gets a writable default without any flags.
func defaultStoreRoot() (string, error) {
	path, err := xdg.DataFile(filepath.Join("nixd", "store"))
	if err != nil {
		return "", fmt.Errorf("config: resolve default store root: %w", err)
	}

	return path, nil
}

// defaultSocketPath places the listen socket under the XDG runtime
// directory, matching where a session-scoped daemon socket belongs.
func defaultSocketPath() (string, error) {
	path, err := xdg.RuntimeFile(filepath.Join("nixd", "daemon-socket"))
	if err != nil {
		return "", fmt.Errorf("config: resolve default socket path: %w", err)
	}

	return path, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// Package terminal builds the command-line surface of the server. It owns
// flag parsing and startup output; wiring the parsed options into a running
// server is the caller's job, which keeps this package free of server
// imports.
package terminal

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// Options is the resolved command-line input handed to the run function.
type Options struct {
	RootDir    string
	ConfigPath string
	Addr       string // overrides the configured server_addr when non-empty
	Port       int    // overrides the configured server_port when >= 0
}

// NewRootCommand builds the CLI. run receives the validated options and
// blocks until the server stops.
func NewRootCommand(version string, run func(Options) error) *cobra.Command {
	opts := Options{Port: -1}

	cmd := &cobra.Command{
		Use:     "ftpd [root_directory]",
		Short:   "Sandboxed passive-mode FTP server",
		Long:    "ftpd serves a single directory tree over FTP. Clients are confined\nto the served root; passive mode is the only data-channel mode.",
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.RootDir = args[0]
			}
			if err := validate(&opts); err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return run(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (default <root>/ftpd.toml)")
	cmd.Flags().StringVarP(&opts.Addr, "addr", "a", "", "listen address, overrides the configuration file")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", -1, "listen port, overrides the configuration file")
	return cmd
}

func validate(opts *Options) error {
	if opts.RootDir == "" {
		opts.RootDir = "."
	}
	info, err := os.Stat(opts.RootDir)
	if err != nil {
		return fmt.Errorf("root directory %s: %w", opts.RootDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", opts.RootDir)
	}
	if opts.Port > 65535 {
		return fmt.Errorf("invalid port %d (must be 0-65535)", opts.Port)
	}
	return nil
}

// PrintStartupInfo logs the effective settings once at boot.
func PrintStartupInfo(addr, rootDir, configPath string, userCount int) {
	log.Printf("Starting FTP server...")
	log.Printf("Listening on: %s", addr)
	log.Printf("Root directory: %s", rootDir)
	log.Printf("Configuration: %s", configPath)
	log.Printf("Configured users: %d", userCount)
}

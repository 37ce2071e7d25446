package config

import (
	"flag"
)

// Flags are the command-line options shared by every binary
type Flags struct {
	ConfigPath string
}

// ParseFlags parses command-line flags. Binaries register their own flags
// on flag.CommandLine before calling it.
func ParseFlags() Flags {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration document")
	flag.Parse()

	return Flags{
		ConfigPath: *configPath,
	}
}

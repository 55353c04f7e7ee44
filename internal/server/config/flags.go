package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/chatcore/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-n int      minimum account name length, runes
//	-p int      minimum password length, runes
//	-u int      maximum declared upload size, bytes (0 = unlimited)
//	-a int      maximum avatar size, bytes (0 = unlimited)
//	-b int      per-session outbound buffer, events
//	-l string   log level (debug, info, warn, error)
//
// Arguments are filtered to the flags handled here first, so the flag set
// does not collide with flags owned by other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-n", "-p", "-u", "-a", "-b", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.IntVar(&config.MinNameLen, "n", config.MinNameLen, "minimum account name length")
	fs.IntVar(&config.MinPasswordLen, "p", config.MinPasswordLen, "minimum password length")
	fs.Int64Var(&config.MaxUploadBytes, "u", config.MaxUploadBytes, "maximum upload size in bytes")
	fs.IntVar(&config.MaxAvatarBytes, "a", config.MaxAvatarBytes, "maximum avatar size in bytes")
	fs.IntVar(&config.SessionBuffer, "b", config.SessionBuffer, "per-session outbound buffer")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}

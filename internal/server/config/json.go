package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/chatcore/internal/flagx"
)

// JsonConfig is the intermediate DTO used only for reading JSON configuration
// files. Zero-valued fields are treated as "not set" and leave the existing
// Config value untouched, so the file may specify any subset of settings.
type JsonConfig struct {
	MinNameLen     int    `json:"min_name_len"`
	MinPasswordLen int    `json:"min_password_len"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
	MaxAvatarBytes int    `json:"max_avatar_bytes"`
	SessionBuffer  int    `json:"session_buffer"`
	LogLevel       string `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flags into the provided Config. If neither flag is set, nothing is
// loaded. An unreadable or malformed file panics: a config file that exists
// but cannot be used is a startup error, not a condition to limp past.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.MinNameLen != 0 {
		config.MinNameLen = c.MinNameLen
	}
	if c.MinPasswordLen != 0 {
		config.MinPasswordLen = c.MinPasswordLen
	}
	if c.MaxUploadBytes != 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}
	if c.MaxAvatarBytes != 0 {
		config.MaxAvatarBytes = c.MaxAvatarBytes
	}
	if c.SessionBuffer != 0 {
		config.SessionBuffer = c.SessionBuffer
	}
	if c.LogLevel != "" {
		config.LogLevel = c.LogLevel
	}
}

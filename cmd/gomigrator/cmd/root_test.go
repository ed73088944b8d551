package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetConfigFile(t *testing.T) {
	originalCfgFile := cfgFile
	defer func() {
		cfgFile = originalCfgFile
	}()

	tests := []struct {
		name     string
		cfgValue string
		want     string
	}{
		{
			name:     "empty config file",
			cfgValue: "",
			want:     "",
		},
		{
			name:     "custom config file",
			cfgValue: "/etc/gomigrator/prod.yaml",
			want:     "/etc/gomigrator/prod.yaml",
		},
		{
			name:     "config file with spaces",
			cfgValue: "/path/to/my config.yaml",
			want:     "/path/to/my config.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgFile = tt.cfgValue
			assert.Equal(t, tt.want, GetConfigFile())
		})
	}
}

func TestGetCLIOverrides(t *testing.T) {
	originalLogLevel := logLevel
	originalLogFormat := logFormat
	originalPageSize := pageSize
	originalSleepSeconds := sleepSeconds
	originalMaxInstances := maxInstances
	defer func() {
		logLevel = originalLogLevel
		logFormat = originalLogFormat
		pageSize = originalPageSize
		sleepSeconds = originalSleepSeconds
		maxInstances = originalMaxInstances
	}()

	tests := []struct {
		name         string
		logLevel     string
		logFormat    string
		pageSize     int
		sleepSeconds float64
		maxInstances int
		want         CLIOverrides
	}{
		{
			name: "empty overrides",
			want: CLIOverrides{},
		},
		{
			name:         "all overrides set",
			logLevel:     "debug",
			logFormat:    "text",
			pageSize:     250,
			sleepSeconds: 2.5,
			maxInstances: 10,
			want: CLIOverrides{
				LogLevel:     "debug",
				LogFormat:    "text",
				PageSize:     250,
				SleepSeconds: 2.5,
				MaxInstances: 10,
			},
		},
		{
			name:         "partial overrides",
			logLevel:     "warn",
			pageSize:     1000,
			sleepSeconds: 0.5,
			want: CLIOverrides{
				LogLevel:     "warn",
				PageSize:     1000,
				SleepSeconds: 0.5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logLevel = tt.logLevel
			logFormat = tt.logFormat
			pageSize = tt.pageSize
			sleepSeconds = tt.sleepSeconds
			maxInstances = tt.maxInstances

			assert.Equal(t, tt.want, GetCLIOverrides())
		})
	}
}

func TestRootCommandStructure(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "gomigrator", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.Equal(t, Version, rootCmd.Version)
}

func TestRootCommandPersistentFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	configFlag, err := flags.GetString("config")
	assert.NoError(t, err)
	assert.Equal(t, "gomigrator.yaml", configFlag)
	assert.Equal(t, "c", flags.Lookup("config").Shorthand)

	logLevelFlag, err := flags.GetString("log-level")
	assert.NoError(t, err)
	assert.Equal(t, "", logLevelFlag)

	logFormatFlag, err := flags.GetString("log-format")
	assert.NoError(t, err)
	assert.Equal(t, "", logFormatFlag)

	pageSizeFlag, err := flags.GetInt("page-size")
	assert.NoError(t, err)
	assert.Equal(t, 0, pageSizeFlag)

	sleepFlag, err := flags.GetFloat64("sleep")
	assert.NoError(t, err)
	assert.Equal(t, float64(0), sleepFlag)

	maxInstancesFlag, err := flags.GetInt("max-instances")
	assert.NoError(t, err)
	assert.Equal(t, 0, maxInstancesFlag)
}

func TestRootCommandSubcommands(t *testing.T) {
	commands := rootCmd.Commands()
	commandNames := make([]string, len(commands))
	for i, cmd := range commands {
		commandNames[i] = cmd.Name()
	}

	expectedCommands := []string{
		"dry-run",
		"migrate",
		"plan",
		"reset",
		"validate",
		"verify",
		"version",
	}

	for _, expected := range expectedCommands {
		assert.Contains(t, commandNames, expected, "Expected command %s not found", expected)
	}
}

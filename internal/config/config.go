package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// GraphConfig holds Microsoft Graph connection settings.
type GraphConfig struct {
	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Endpoint     string `mapstructure:"endpoint"`
	APIVersion   string `mapstructure:"api_version"`
}

// CategoryRule maps a directory group display name to an Intune device
// category display name.
type CategoryRule struct {
	Group    string `mapstructure:"group"`
	Category string `mapstructure:"category"`
}

// DriveMappingRecord is one drive-mapping entry as it appears in the config
// file. GroupFilter is a comma-separated list of group names; Path and Label
// may contain a %USERNAME% placeholder substituted at load time.
type DriveMappingRecord struct {
	ID          int    `mapstructure:"id"`
	Path        string `mapstructure:"path"`
	DriveLetter string `mapstructure:"drive_letter"`
	Label       string `mapstructure:"label"`
	GroupFilter string `mapstructure:"group_filter"`
}

// TaskConfig controls the scheduled task provisioned under the SYSTEM account.
type TaskConfig struct {
	Name       string `mapstructure:"name"`
	InstallDir string `mapstructure:"install_dir"`
}

type Config struct {
	Graph             GraphConfig          `mapstructure:"graph"`
	CategoryRules     []CategoryRule       `mapstructure:"category_rules"`
	DriveMappings     []DriveMappingRecord `mapstructure:"drive_mappings"`
	RemoveStaleDrives bool                 `mapstructure:"remove_stale_drives"`
	Task              TaskConfig           `mapstructure:"task"`
	LogLevel          string               `mapstructure:"log_level"`
	LogFormat         string               `mapstructure:"log_format"`
	// LogFile routes logs to a size-rotated file. The scheduled task runs
	// the mapper without a console, so file logging is the only way to see
	// what those runs did.
	LogFile       string `mapstructure:"log_file"`
	TranscriptDir string `mapstructure:"transcript_dir"`
}

func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			Endpoint:   "https://graph.microsoft.com",
			APIVersion: "beta",
		},
		Task: TaskConfig{
			Name:       "Fleetline Drive Mapper",
			InstallDir: defaultInstallDir(),
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("fleetline")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FLEETLINE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to path. Used when provisioning copies the active
// config next to the installed binary so the scheduled task sees the same
// mappings.
func Save(cfg *Config, path string) error {
	v := viper.New()
	v.Set("graph", map[string]any{
		"tenant_id":   cfg.Graph.TenantID,
		"client_id":   cfg.Graph.ClientID,
		"endpoint":    cfg.Graph.Endpoint,
		"api_version": cfg.Graph.APIVersion,
	})
	mappings := make([]map[string]any, 0, len(cfg.DriveMappings))
	for _, m := range cfg.DriveMappings {
		mappings = append(mappings, map[string]any{
			"id":           m.ID,
			"path":         m.Path,
			"drive_letter": m.DriveLetter,
			"label":        m.Label,
			"group_filter": m.GroupFilter,
		})
	}
	v.Set("drive_mappings", mappings)
	v.Set("remove_stale_drives", cfg.RemoveStaleDrives)
	v.Set("task", map[string]any{
		"name":        cfg.Task.Name,
		"install_dir": cfg.Task.InstallDir,
	})
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_format", cfg.LogFormat)
	v.Set("log_file", cfg.LogFile)
	v.Set("transcript_dir", cfg.TranscriptDir)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	v.SetConfigType("yaml")
	return v.WriteConfigAs(path)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "Fleetline")
	case "darwin":
		return "/Library/Application Support/Fleetline"
	default:
		return "/etc/fleetline"
	}
}

func defaultInstallDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("ProgramData"), "Fleetline")
	}
	return configDir()
}

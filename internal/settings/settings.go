// Package settings resolves the installer's own settings from flags and
// environment variables, and builds the defaults table applied to
// configuration documents.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigArchiveName is the configuration container inside the data dir.
	ConfigArchiveName = "config.7z"
	// ClientArchiveName is the client key container inside the data dir.
	ClientArchiveName = "client.7z"
)

// Services whose image versions are configurable, in table order.
var Services = []string{
	"gatekeeper",
	"proxy",
	"proxycron",
	"pycoin",
	"otsclient",
	"bitcoin",
	"lightning",
	"sparkwallet",
	"grafana",
}

// Settings are the installer settings for one run.
type Settings struct {
	DataDir         string
	SetupDir        string
	DefaultsFile    string
	CertHostname    string
	DefaultUser     string
	VersionOverride bool
	WorkFactor      int
	Versions        map[string]string
	Debug           bool
	NoColor         bool
	NonInteractive  bool
	MetricsFile     string
}

// envBindings maps setting keys to the environment variables the installer
// scripts export.
var envBindings = map[string]string{
	"data_dir":           "DATA_DIR",
	"setup_dir":          "SETUP_DIR",
	"defaults_file":      "CYPHERNODE_DEFAULTS",
	"cert_hostname":      "DEFAULT_CERT_HOSTNAME",
	"default_user":       "DEFAULT_USER",
	"version_override":   "VERSION_OVERRIDE",
	"scrypt_work_factor": "SCRYPT_WORK_FACTOR",
	"metrics_file":       "METRICS_FILE",
}

// NewViper returns a viper instance with the installer defaults and
// environment bindings. Callers bind command-line flags on top.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("data_dir", "/data")
	v.SetDefault("setup_dir", defaultSetupDir())
	v.SetDefault("defaults_file", "")
	v.SetDefault("cert_hostname", "")
	v.SetDefault("default_user", "")
	v.SetDefault("version_override", false)
	v.SetDefault("scrypt_work_factor", 0)
	v.SetDefault("debug", false)
	v.SetDefault("no_color", false)
	v.SetDefault("non_interactive", false)
	v.SetDefault("metrics_file", "")
	for _, svc := range Services {
		v.SetDefault(versionKey(svc), defaultVersion(svc))
	}

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	for _, svc := range Services {
		_ = v.BindEnv(versionKey(svc), strings.ToUpper(svc)+"_VERSION")
	}
	return v
}

// Load reads the settings from v.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		DataDir:         v.GetString("data_dir"),
		SetupDir:        v.GetString("setup_dir"),
		DefaultsFile:    v.GetString("defaults_file"),
		CertHostname:    v.GetString("cert_hostname"),
		DefaultUser:     v.GetString("default_user"),
		VersionOverride: v.GetBool("version_override"),
		WorkFactor:      v.GetInt("scrypt_work_factor"),
		Debug:           v.GetBool("debug"),
		NoColor:         v.GetBool("no_color"),
		NonInteractive:  v.GetBool("non_interactive"),
		MetricsFile:     v.GetString("metrics_file"),
		Versions:        make(map[string]string, len(Services)),
	}
	for _, svc := range Services {
		s.Versions[svc] = v.GetString(versionKey(svc))
	}

	if s.DataDir == "" {
		return nil, fmt.Errorf("data directory must not be empty")
	}
	if s.WorkFactor < 0 || s.WorkFactor > 22 {
		return nil, fmt.Errorf("scrypt work factor %d out of range (1-22, 0 for default)", s.WorkFactor)
	}
	return s, nil
}

// ConfigPath is the configuration container path.
func (s *Settings) ConfigPath() string {
	return filepath.Join(s.DataDir, ConfigArchiveName)
}

// ClientArchivePath is the client key container path.
func (s *Settings) ClientArchivePath() string {
	return filepath.Join(s.DataDir, ClientArchiveName)
}

func versionKey(svc string) string {
	return "versions." + svc
}

func defaultVersion(svc string) string {
	if svc == "sparkwallet" {
		return "standalone"
	}
	return "latest"
}

func defaultSetupDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "cyphernode"
	}
	return filepath.Join(home, "cyphernode")
}

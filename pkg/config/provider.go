package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag names bound onto configuration keys when set on the command line.
const (
	FlagDBType     = "db-type"
	FlagDBURL      = "db-url"
	FlagDBName     = "db-name"
	FlagSequential = "sequential"
)

// flagKeys maps command-line flags to the configuration keys they override.
var flagKeys = map[string]string{
	FlagDBType:     "database.type",
	FlagDBURL:      "database.url",
	FlagDBName:     "database.database_name",
	FlagSequential: "run.sequential",
}

// ConfigProvider loads configuration with precedence:
// flags > env > secrets file > config file > defaults.
type ConfigProvider struct {
	loader *ViperLoader
	v      *viper.Viper
	flags  *pflag.FlagSet
}

// NewConfigProvider creates a provider reading configFile (optional) and
// environment variables under envPrefix.
func NewConfigProvider(configFile, envPrefix string) *ConfigProvider {
	return &ConfigProvider{
		loader: NewViperLoader(configFile, envPrefix),
		v:      viper.New(),
	}
}

// WithFlags makes changed flags from the set override every other source.
func (p *ConfigProvider) WithFlags(flags *pflag.FlagSet) *ConfigProvider {
	p.flags = flags
	return p
}

func (p *ConfigProvider) WithServiceNameDefault(serviceName string) *ConfigProvider {
	if p == nil || p.loader == nil {
		return p
	}
	p.loader.WithServiceNameDefault(serviceName)
	return p
}

// ConfigFile returns the path to the config file that was loaded, or empty string if none.
func (p *ConfigProvider) ConfigFile() string {
	if p.loader == nil {
		return ""
	}
	return p.loader.configFile
}

// Load fills core without reading a secrets file.
func (p *ConfigProvider) Load(core *Config) error {
	_, err := p.load(core, false)
	return err
}

// LoadWithSecrets fills core including the secrets merge.
// Returns the raw secrets map used for redaction (nil when no secrets file was loaded).
func (p *ConfigProvider) LoadWithSecrets(core *Config) (map[string]interface{}, error) {
	return p.load(core, true)
}

// AllSettings returns the effective merged settings currently held by the provider.
func (p *ConfigProvider) AllSettings() map[string]interface{} {
	if p == nil || p.v == nil {
		return map[string]interface{}{}
	}
	return p.v.AllSettings()
}

func (p *ConfigProvider) load(core *Config, withSecrets bool) (map[string]interface{}, error) {
	p.v = viper.New()
	secrets, err := p.loader.read(p.v, withSecrets)
	if err != nil {
		return nil, err
	}
	if err := p.applyFlags(); err != nil {
		return nil, err
	}

	if core == nil {
		core = &Config{}
	}
	if err := p.v.Unmarshal(core); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := normalize(core); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return secrets, nil
}

func (p *ConfigProvider) applyFlags() error {
	if p.flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := p.flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if flag.Value.Type() == "bool" {
			value, err := p.flags.GetBool(name)
			if err != nil {
				return fmt.Errorf("invalid value for --%s: %w", name, err)
			}
			p.v.Set(key, value)
			continue
		}
		p.v.Set(key, flag.Value.String())
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type SIP struct {
	Server      string `mapstructure:"server"`
	WSPort      int    `mapstructure:"ws_port"`
	WSPath      string `mapstructure:"ws_path"`
	AORUser     string `mapstructure:"aor_user"`
	DisplayName string `mapstructure:"display_name"`
	AuthUser    string `mapstructure:"auth_user"`
	Password    string `mapstructure:"password"`
	Expires     uint32 `mapstructure:"expires"`
	UserAgent   string `mapstructure:"user_agent"`
}

type HTTP struct {
	Listen string `mapstructure:"listen"`
}

type PhonebookEntry struct {
	Name   string `mapstructure:"name"`
	Number string `mapstructure:"number"`
}

type Config struct {
	SIP         SIP              `mapstructure:"sip"`
	HTTP        HTTP             `mapstructure:"http"`
	LogLevel    string           `mapstructure:"log_level"`
	RemoteAudio string           `mapstructure:"remote_audio"`
	Phonebook   []PhonebookEntry `mapstructure:"phonebook"`
}

// WebSocketServer is the signaling URL, e.g. wss://sipserver.local:8089/ws.
func (c *Config) WebSocketServer() string {
	return fmt.Sprintf("wss://%s:%d%s", c.SIP.Server, c.SIP.WSPort, c.SIP.WSPath)
}

// AOR is the address of record, e.g. sip:webrtc_309@sipserver.local.
func (c *Config) AOR() string {
	return fmt.Sprintf("sip:%s@%s", c.SIP.AORUser, c.SIP.Server)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sip.server", "sipserver.local")
	v.SetDefault("sip.ws_port", 8089)
	v.SetDefault("sip.ws_path", "/ws")
	v.SetDefault("sip.aor_user", "webrtc_309")
	v.SetDefault("sip.display_name", "SIP User")
	v.SetDefault("sip.auth_user", "webrtc_000")
	v.SetDefault("sip.password", "PASSWORD")
	v.SetDefault("sip.expires", 600)
	v.SetDefault("sip.user_agent", "Go SIP WebPhone/1.0.0")
	v.SetDefault("http.listen", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("remote_audio", "remoteAudio")
	v.SetDefault("phonebook", []PhonebookEntry{})
}

// Load reads file when it is not empty, then applies WEBPHONE_* environment
// overrides (WEBPHONE_SIP_SERVER for sip.server) over the defaults.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("webphone")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.SIP.Server == "":
		return errors.New("sip.server is required")
	case c.SIP.WSPort <= 0 || c.SIP.WSPort > 65535:
		return fmt.Errorf("sip.ws_port %d out of range", c.SIP.WSPort)
	case c.SIP.AORUser == "":
		return errors.New("sip.aor_user is required")
	}
	for i, e := range c.Phonebook {
		if e.Number == "" {
			return fmt.Errorf("phonebook[%d] has no number", i)
		}
	}
	return nil
}

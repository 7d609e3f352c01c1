package config

import "time"

// Config - root configuration of both subcommands.
// yaml tags drive parsing; validate tags document the accepted ranges.
type Config struct {
	Logger     LoggerConfig     `yaml:"logger" validate:"required"`
	Server     ServerConfig     `yaml:"http-server" validate:"required"`
	DB         DBConfig         `yaml:"db" validate:"required"`
	Display    DisplayConfig    `yaml:"display"`
	Protocol   ProtocolConfig   `yaml:"protocol"`
	Remote     RemoteConfig     `yaml:"remote"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Host              string        `yaml:"host" validate:"required"`
	Port              int           `yaml:"port" validate:"min=0,max=65535"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"required"`
	ListLimit         int           `yaml:"list_limit" validate:"required,min=1"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" validate:"required,min=1"`
}

type DBConfig struct {
	// Path is the store opened for the default locator.
	Path string `yaml:"path" validate:"required"`
	Sync bool   `yaml:"sync"`
}

type DisplayConfig struct {
	PreviewValue bool `yaml:"preview_value"`
	PageSize     int  `yaml:"page_size" validate:"min=1"`
	PreviewWidth int  `yaml:"preview_width" validate:"min=1"`
}

type ProtocolConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type RemoteConfig struct {
	ConnectURL     string        `yaml:"connect_url"`
	AccessTokenEnv string        `yaml:"access_token_env"`
	Timeout        time.Duration `yaml:"timeout"`
}

type SupervisorConfig struct {
	StartupTimeout time.Duration `yaml:"startup_timeout"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              0,
			ReadHeaderTimeout: time.Second,
			ListLimit:         100,
			MaxBodyBytes:      32 << 20,
		},
		DB: DBConfig{
			Path: ".kvview",
		},
		Display: DisplayConfig{
			PreviewValue: true,
			PageSize:     100,
			PreviewWidth: 60,
		},
		Protocol: ProtocolConfig{
			RequestTimeout: 60 * time.Second,
		},
		Remote: RemoteConfig{
			ConnectURL:     "https://api.deno.com/databases/%s/connect",
			AccessTokenEnv: "KV_ACCESS_TOKEN",
			Timeout:        10 * time.Second,
		},
		Supervisor: SupervisorConfig{
			StartupTimeout: 10 * time.Second,
		},
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type config struct {
	TelnetAddr string `yaml:"telnet_addr"`
	RPCAddr    string `yaml:"rpc_addr"`
	LogLevel   string `yaml:"log_level"`
	Charset    string `yaml:"charset"`
}

// loadConfig reads flags, falling back to the environment for defaults. A
// YAML file named by --config fills in anything not set on the command line.
func loadConfig(args []string) (cfg config, err error) {
	fs := pflag.NewFlagSet("tether", pflag.ContinueOnError)
	path := fs.String("config", getEnvDefault("TETHER_CONFIG", ""), "path to a YAML config file")
	fs.StringVar(&cfg.TelnetAddr, "telnet-addr", getEnvDefault("TETHER_TELNET_ADDR", ":4001"), "address on which to accept telnet clients")
	fs.StringVar(&cfg.RPCAddr, "rpc-addr", getEnvDefault("TETHER_RPC_ADDR", "127.0.0.1:4002"), "address on which to accept protocol connections")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnvDefault("TETHER_LOG_LEVEL", "info"), "log level (trace, debug, info, warn, error)")
	fs.StringVar(&cfg.Charset, "charset", getEnvDefault("TETHER_CHARSET", "UTF-8"), "default client charset")
	if err = fs.Parse(args); err != nil {
		return
	}
	if *path == "" {
		return
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	var file config
	if err = yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", *path, err)
	}
	overlay := func(name string, dst *string, value string) {
		if value != "" && !fs.Changed(name) {
			*dst = value
		}
	}
	overlay("telnet-addr", &cfg.TelnetAddr, file.TelnetAddr)
	overlay("rpc-addr", &cfg.RPCAddr, file.RPCAddr)
	overlay("log-level", &cfg.LogLevel, file.LogLevel)
	overlay("charset", &cfg.Charset, file.Charset)
	return cfg, nil
}

func getEnvDefault(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return defaultValue
}

package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const Name = "anancus"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host         string
		HttpPort     int    `yaml:"httpPort"`
		SslDomain    string `yaml:"sslDomain"`
		DbPath       string `yaml:"dbPath"`
		MediaDir     string `yaml:"mediaDir"`
		CleanupEvery string `yaml:"cleanupEvery"`
		WithAp       bool   `yaml:"withAp"`
		Closed       bool   `yaml:"closed"`
		// PermitLoopback allows loopback fetch and delivery targets, which
		// the private-address guard otherwise rejects. Never enable it on
		// a federated instance; it exists for single-node development
		// setups. Other private ranges stay blocked regardless.
		PermitLoopback bool `yaml:"permitLoopback"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Info().Msgf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Warn().Err(writeErr).Msgf("Could not write default config to %s", userConfigPath)
			} else {
				log.Info().Msgf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("ANANCUS_HOST")
	envHttpPort := os.Getenv("ANANCUS_HTTPPORT")
	envSslDomain := os.Getenv("ANANCUS_SSLDOMAIN")
	envDbPath := os.Getenv("ANANCUS_DBPATH")
	envMediaDir := os.Getenv("ANANCUS_MEDIADIR")
	envCleanupEvery := os.Getenv("ANANCUS_CLEANUP_EVERY")
	envWithAp := os.Getenv("ANANCUS_WITH_AP")
	envClosed := os.Getenv("ANANCUS_CLOSED")
	envPermitLoopback := os.Getenv("ANANCUS_PERMIT_LOOPBACK")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envDbPath != "" {
		c.Conf.DbPath = envDbPath
	}

	if envMediaDir != "" {
		c.Conf.MediaDir = envMediaDir
	}

	if envCleanupEvery != "" {
		c.Conf.CleanupEvery = envCleanupEvery
	}

	if envWithAp == "true" {
		c.Conf.WithAp = true
	}

	if envClosed == "true" {
		c.Conf.Closed = true
	}

	if envPermitLoopback == "true" {
		c.Conf.PermitLoopback = true
	}

	return c, nil
}

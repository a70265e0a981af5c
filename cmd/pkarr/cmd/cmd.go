// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/penguintop/pkarr/pkg/client"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/node"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	optionNameDataDir            = "data-dir"
	optionNameCacheCapacity      = "cache-capacity"
	optionNameMinimumTTL         = "minimum-ttl"
	optionNameMaximumTTL         = "maximum-ttl"
	optionNameRequestBuffer      = "request-buffer"
	optionNameQueryTimeout       = "query-timeout"
	optionNameRelays             = "relays"
	optionNameRelayTimeout       = "relay-timeout"
	optionNamePassword           = "password"
	optionNamePasswordFile       = "password-file"
	optionNameAPIAddr            = "api-addr"
	optionNameDebugAPIEnable     = "debug-api-enable"
	optionNameDebugAPIAddr       = "debug-api-addr"
	optionNameCORSAllowedOrigins = "cors-allowed-origins"
	optionNameRateLimit          = "rate-limit"
	optionNameRateBurst          = "rate-burst"
	optionNameTrustProxyHeaders  = "trust-proxy-headers"
	optionNameVerbosity          = "verbosity"
	optionNameTracingEnabled     = "tracing-enable"
	optionNameTracingEndpoint    = "tracing-endpoint"
	optionNameTracingServiceName = "tracing-service-name"
)

const keyName = "pkarr"

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root           *cobra.Command
	config         *viper.Viper
	passwordReader passwordReader
	cfgFile        string
	homeDir        string
}

type option func(*command)

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "pkarr",
			Short:         "Public-Key Addressable Resource Records",
			SilenceErrors: true,
			SilenceUsage:  true,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return c.initConfig()
			},
		},
	}

	for _, o := range opts {
		o(c)
	}
	if c.passwordReader == nil {
		c.passwordReader = new(stdInPasswordReader)
	}

	// Find home directory.
	if err := c.setHomeDir(); err != nil {
		return nil, err
	}

	c.initGlobalFlags()

	c.initStartCmd()
	c.initPublishCmd()
	c.initResolveCmd()
	c.initLookupCmd()
	c.initKeygenCmd()
	c.initDumpKeyCmd()
	c.initVersionCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

func (c *command) initGlobalFlags() {
	globalFlags := c.root.PersistentFlags()
	globalFlags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.pkarr.yaml)")
}

func (c *command) initConfig() (err error) {
	config := viper.New()
	configName := ".pkarr"
	if c.cfgFile != "" {
		// Use config file from the flag.
		config.SetConfigFile(c.cfgFile)
	} else {
		// Search config in home directory with name ".pkarr" (without extension).
		config.AddConfigPath(c.homeDir)
		config.SetConfigName(configName)
	}

	// Environment
	config.SetEnvPrefix("pkarr")
	config.AutomaticEnv() // read in environment variables that match
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if c.homeDir != "" && c.cfgFile == "" {
		c.cfgFile = filepath.Join(c.homeDir, configName+".yaml")
	}

	// If a config file is found, read it in.
	if err := config.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return err
		}
	}
	c.config = config
	return nil
}

func (c *command) setHomeDir() (err error) {
	if c.homeDir != "" {
		return
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	c.homeDir = dir
	return nil
}

// setClientFlags adds the flags needed to reach the network.
func (c *command) setClientFlags(cmd *cobra.Command) {
	cmd.Flags().String(optionNameDataDir, filepath.Join(c.homeDir, ".pkarr"), "data directory")
	cmd.Flags().Int(optionNameCacheCapacity, 1000, "number of packets held in the record cache")
	cmd.Flags().Uint32(optionNameMinimumTTL, client.DefaultMinimumTTL, "minimum seconds a cached packet is considered fresh")
	cmd.Flags().Uint32(optionNameMaximumTTL, client.DefaultMaximumTTL, "maximum seconds a cached packet is considered fresh")
	cmd.Flags().Int(optionNameRequestBuffer, 32, "number of requests queued for the dht coordinator")
	cmd.Flags().Duration(optionNameQueryTimeout, 10*time.Second, "timeout of a single dht query")
	cmd.Flags().StringSlice(optionNameRelays, nil, "relay urls; the local storage node is used when none are given")
	cmd.Flags().Duration(optionNameRelayTimeout, 30*time.Second, "timeout of relay http requests")
	cmd.Flags().String(optionNameVerbosity, "info", "log verbosity level 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
	cmd.Flags().Bool(optionNameTracingEnabled, false, "enable tracing")
	cmd.Flags().String(optionNameTracingEndpoint, "127.0.0.1:6831", "endpoint to send tracing data")
	cmd.Flags().String(optionNameTracingServiceName, "pkarr", "service name identifier for tracing")
}

func (c *command) setKeyFlags(cmd *cobra.Command) {
	cmd.Flags().String(optionNamePassword, "", "password for decrypting keys")
	cmd.Flags().String(optionNamePasswordFile, "", "path to a file that contains password for decrypting keys")
}

func (c *command) nodeOptions(logger logging.Logger) node.Options {
	return node.Options{
		DataDir:            c.config.GetString(optionNameDataDir),
		CacheCapacity:      c.config.GetInt(optionNameCacheCapacity),
		MinimumTTL:         c.config.GetUint32(optionNameMinimumTTL),
		MaximumTTL:         c.config.GetUint32(optionNameMaximumTTL),
		RequestBuffer:      c.config.GetInt(optionNameRequestBuffer),
		QueryTimeout:       c.config.GetDuration(optionNameQueryTimeout),
		Relays:             c.config.GetStringSlice(optionNameRelays),
		RelayTimeout:       c.config.GetDuration(optionNameRelayTimeout),
		Logger:             logger,
		TracingEnabled:     c.config.GetBool(optionNameTracingEnabled),
		TracingEndpoint:    c.config.GetString(optionNameTracingEndpoint),
		TracingServiceName: c.config.GetString(optionNameTracingServiceName),
	}
}

func newLogger(cmd *cobra.Command, verbosity string) (logging.Logger, error) {
	var logger logging.Logger
	switch verbosity {
	case "0", "silent":
		logger = logging.New(ioutil.Discard, 0)
	case "1", "error":
		logger = logging.New(cmd.OutOrStdout(), logrus.ErrorLevel)
	case "2", "warn":
		logger = logging.New(cmd.OutOrStdout(), logrus.WarnLevel)
	case "3", "info":
		logger = logging.New(cmd.OutOrStdout(), logrus.InfoLevel)
	case "4", "debug":
		logger = logging.New(cmd.OutOrStdout(), logrus.DebugLevel)
	case "5", "trace":
		logger = logging.New(cmd.OutOrStdout(), logrus.TraceLevel)
	default:
		return nil, fmt.Errorf("unknown verbosity level %q", verbosity)
	}
	return logger, nil
}

func (c *command) logger(cmd *cobra.Command) (logging.Logger, error) {
	v := strings.ToLower(c.config.GetString(optionNameVerbosity))
	logger, err := newLogger(cmd, v)
	if err != nil {
		return nil, fmt.Errorf("new logger: %v", err)
	}
	return logger, nil
}

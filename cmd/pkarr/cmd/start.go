// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkarr "github.com/penguintop/pkarr"
	"github.com/penguintop/pkarr/pkg/node"
	"github.com/spf13/cobra"
)

func (c *command) initStartCmd() {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a pkarr node",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := c.logger(cmd)
			if err != nil {
				return err
			}

			logger.Infof("version: %v", pkarr.Version)

			debugAPIAddr := c.config.GetString(optionNameDebugAPIAddr)
			if !c.config.GetBool(optionNameDebugAPIEnable) {
				debugAPIAddr = ""
			}

			o := c.nodeOptions(logger)
			o.APIAddr = c.config.GetString(optionNameAPIAddr)
			o.DebugAPIAddr = debugAPIAddr
			o.CORSAllowedOrigins = c.config.GetStringSlice(optionNameCORSAllowedOrigins)
			o.RateLimit = c.config.GetFloat64(optionNameRateLimit)
			o.RateBurst = c.config.GetInt(optionNameRateBurst)
			o.TrustProxyHeaders = c.config.GetBool(optionNameTrustProxyHeaders)

			n, err := node.NewPkarr(o)
			if err != nil {
				return fmt.Errorf("start node: %w", err)
			}

			// Wait for termination or interrupt signals.
			// We want to clean up things at the end.
			interruptChannel := make(chan os.Signal, 1)
			signal.Notify(interruptChannel, syscall.SIGINT, syscall.SIGTERM)

			// Block main goroutine until it is interrupted
			sig := <-interruptChannel

			logger.Debugf("received signal: %v", sig)
			logger.Info("shutting down")

			// Shutdown
			done := make(chan struct{})
			go func() {
				defer close(done)

				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()

				if err := n.Shutdown(ctx); err != nil {
					logger.Errorf("shutdown: %v", err)
				}
			}()

			// If shutdown function is blocking too long,
			// allow process termination by receiving another signal.
			select {
			case sig := <-interruptChannel:
				logger.Debugf("received signal: %v", sig)
			case <-done:
			}

			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	c.setClientFlags(cmd)
	cmd.Flags().String(optionNameAPIAddr, ":6881", "relay HTTP API listen address")
	cmd.Flags().Bool(optionNameDebugAPIEnable, false, "enable debug HTTP API")
	cmd.Flags().String(optionNameDebugAPIAddr, ":6882", "debug HTTP API listen address")
	cmd.Flags().StringSlice(optionNameCORSAllowedOrigins, []string{}, "origins with CORS headers enabled")
	cmd.Flags().Float64(optionNameRateLimit, 2, "relay publish requests per second allowed from a single client address, 0 disables the limit")
	cmd.Flags().Int(optionNameRateBurst, 10, "relay publish requests burst allowed from a single client address")
	cmd.Flags().Bool(optionNameTrustProxyHeaders, false, "take client addresses from X-Forwarded-For and X-Real-IP headers")
	c.root.AddCommand(cmd)
}

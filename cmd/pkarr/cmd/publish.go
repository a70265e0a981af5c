// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/miekg/dns"
	"github.com/penguintop/pkarr/pkg/client"
	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/node"
	"github.com/penguintop/pkarr/pkg/packet"
	"github.com/penguintop/pkarr/pkg/zone"
	"github.com/spf13/cobra"
)

const (
	optionNameOnce     = "once"
	optionNameInterval = "interval"

	defaultZoneFile = "records.conf"
)

func (c *command) initPublishCmd() {
	cmd := &cobra.Command{
		Use:   "publish [zone file]",
		Short: "Sign and publish dns records",
		Long: `Sign the records of a simplified zone file with the publishing key and publish them.

The zone file holds one record per line relative to the public key origin,
for example:

  @      IN A   127.0.0.1
  www    IN TXT "hello"

Records are republished periodically unless --once is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			path := defaultZoneFile
			if len(args) > 0 {
				path = args[0]
			}

			logger, err := c.logger(cmd)
			if err != nil {
				return err
			}

			text, err := ioutil.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read zone file: %w", err)
			}

			ks, err := c.keystore(logger)
			if err != nil {
				return err
			}
			kp, err := c.key(cmd, ks, logger)
			if err != nil {
				return err
			}

			msg, err := zone.Parse(string(text), kp.PublicKey())
			if err != nil {
				return fmt.Errorf("parse zone file %s: %w", path, err)
			}

			n, err := node.NewPkarr(c.nodeOptions(logger))
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if e := n.Shutdown(ctx); e != nil {
					logger.Errorf("shutdown: %v", e)
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			signer := crypto.NewDefaultSigner(kp)
			if c.config.GetBool(optionNameOnce) {
				return publish(ctx, cmd, n.Client(), signer, msg)
			}

			interval := c.config.GetDuration(optionNameInterval)
			if interval <= 0 {
				return fmt.Errorf("invalid republish interval %s", interval)
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				if err := publish(ctx, cmd, n.Client(), signer, msg); err != nil {
					logger.Errorf("publish: %v", err)
				}
				select {
				case <-ticker.C:
				case <-ctx.Done():
					logger.Info("stopped republishing")
					return nil
				}
			}
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	cmd.Flags().Bool(optionNameOnce, false, "publish once and exit")
	cmd.Flags().Duration(optionNameInterval, time.Hour, "republish interval")
	c.setClientFlags(cmd)
	c.setKeyFlags(cmd)
	c.root.AddCommand(cmd)
}

// publish signs msg with a fresh timestamp and publishes it.
func publish(ctx context.Context, cmd *cobra.Command, c *client.Client, signer crypto.Signer, msg *dns.Msg) error {
	p, err := packet.FromMsg(signer, msg)
	if err != nil {
		return fmt.Errorf("sign packet: %w", err)
	}
	if err := c.Publish(ctx, p); err != nil {
		return err
	}
	cmd.Printf("published %s at %d\n", signer.PublicKey().URI(), p.Timestamp())
	return nil
}

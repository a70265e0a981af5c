// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/node"
	"github.com/penguintop/pkarr/pkg/zone"
	"github.com/spf13/cobra"
)

func (c *command) initResolveCmd() {
	cmd := &cobra.Command{
		Use:   "resolve <public key>",
		Short: "Resolve the dns records published by a public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			key, err := crypto.ParsePublicKey(args[0])
			if err != nil {
				return err
			}

			logger, err := c.logger(cmd)
			if err != nil {
				return err
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

			ctx, cancel := context.WithTimeout(context.Background(), c.config.GetDuration(optionNameQueryTimeout))
			defer cancel()

			p, err := n.Client().Resolve(ctx, key)
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}

			cmd.Printf("public key: %s\n", key.URI())
			cmd.Printf("timestamp: %d\n", p.Timestamp())
			cmd.Printf("last seen: %s\n", p.LastSeen().UTC().Format(time.RFC3339))
			cmd.Print(zone.Format(p.Msg()))
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	c.setClientFlags(cmd)
	c.root.AddCommand(cmd)
}

// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"time"

	"github.com/penguintop/pkarr/pkg/node"
	"github.com/penguintop/pkarr/pkg/resolver"
	"github.com/spf13/cobra"
)

const optionNameType = "type"

func (c *command) initLookupCmd() {
	cmd := &cobra.Command{
		Use:   "lookup <name>",
		Short: "Look up records of a name under a public key",
		Long: `Look up the records of a domain name whose last label is a public key,
for example www.<public key>. CNAME records within the same packet are followed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			qtype, err := resolver.ParseType(c.config.GetString(optionNameType))
			if err != nil {
				return err
			}
			if _, err := resolver.PublicKeyFromName(args[0]); err != nil {
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

			rrs, err := resolver.New(n.Client(), logger).Lookup(ctx, args[0], qtype)
			if err != nil {
				return err
			}
			for _, rr := range rrs {
				cmd.Println(rr.String())
			}
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	cmd.Flags().String(optionNameType, "ANY", "record type")
	c.setClientFlags(cmd)
	c.root.AddCommand(cmd)
}

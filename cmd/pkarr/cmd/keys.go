// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/keystore"
	filekeystore "github.com/penguintop/pkarr/pkg/keystore/file"
	memkeystore "github.com/penguintop/pkarr/pkg/keystore/mem"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const optionNameImportSecret = "import-secret"

func (c *command) initKeygenCmd() {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create or import the publishing key",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := c.logger(cmd)
			if err != nil {
				return err
			}

			ks, err := c.keystore(logger)
			if err != nil {
				return err
			}

			var kp *crypto.Keypair
			if s := c.config.GetString(optionNameImportSecret); s != "" {
				secret, err := hex.DecodeString(s)
				if err != nil {
					return fmt.Errorf("decode secret: %w", err)
				}
				password, err := c.password(cmd, true)
				if err != nil {
					return err
				}
				kp, err = ks.Import(keyName, password, secret)
				if err != nil {
					return err
				}
				logger.Infof("imported %s key", keyName)
			} else {
				kp, err = c.key(cmd, ks, logger)
				if err != nil {
					return err
				}
			}

			cmd.Println(kp.PublicKey().URI())
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	cmd.Flags().String(optionNameDataDir, filepath.Join(c.homeDir, ".pkarr"), "data directory")
	cmd.Flags().String(optionNameVerbosity, "info", "log verbosity level 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
	cmd.Flags().String(optionNameImportSecret, "", "hex encoded 32 byte secret to import instead of generating a key")
	c.setKeyFlags(cmd)
	c.root.AddCommand(cmd)
}

func (c *command) initDumpKeyCmd() {
	cmd := &cobra.Command{
		Use:   "dumpkey",
		Short: "Print the publishing key secret",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			if c.config.GetString(optionNameDataDir) == "" {
				return errors.New("data directory not provided")
			}
			ks := filekeystore.New(filepath.Join(c.config.GetString(optionNameDataDir), "keys"))

			exists, err := ks.Exists(keyName)
			if err != nil {
				return err
			}
			if !exists {
				return errors.New("pkarr key does not exist, create one with the keygen command")
			}

			password, err := c.password(cmd, false)
			if err != nil {
				return err
			}
			kp, _, err := ks.Key(keyName, password)
			if err != nil {
				return fmt.Errorf("pkarr key: %w", err)
			}

			cmd.Printf("public key: %s\n", kp.PublicKey().URI())
			cmd.Printf("secret: %s\n", hex.EncodeToString(kp.Secret()))
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	cmd.Flags().String(optionNameDataDir, filepath.Join(c.homeDir, ".pkarr"), "data directory")
	c.setKeyFlags(cmd)
	c.root.AddCommand(cmd)
}

func (c *command) keystore(logger logging.Logger) (keystore.Service, error) {
	if c.config.GetString(optionNameDataDir) == "" {
		logger.Warning("data directory not provided, keys are not persisted")
		return memkeystore.New(), nil
	}
	return filekeystore.New(filepath.Join(c.config.GetString(optionNameDataDir), "keys")), nil
}

// key loads the publishing key, creating it if it does not exist.
func (c *command) key(cmd *cobra.Command, ks keystore.Service, logger logging.Logger) (*crypto.Keypair, error) {
	exists, err := ks.Exists(keyName)
	if err != nil {
		return nil, err
	}
	password, err := c.password(cmd, !exists)
	if err != nil {
		return nil, err
	}

	kp, created, err := ks.Key(keyName, password)
	if err != nil {
		return nil, fmt.Errorf("%s key: %w", keyName, err)
	}
	if created {
		logger.Infof("new %s key created", keyName)
	} else {
		logger.Debugf("using existing %s key", keyName)
	}
	logger.Infof("public key: %s", kp.PublicKey().URI())
	return kp, nil
}

func (c *command) password(cmd *cobra.Command, confirm bool) (password string, err error) {
	if p := c.config.GetString(optionNamePassword); p != "" {
		return p, nil
	}
	if pf := c.config.GetString(optionNamePasswordFile); pf != "" {
		b, err := ioutil.ReadFile(pf)
		if err != nil {
			return "", err
		}
		return string(bytes.Trim(b, "\n")), nil
	}

	if !confirm {
		return terminalPromptPassword(cmd, c.passwordReader, "Password")
	}

	// if there are no keys in the keystore, ask for a new password twice
	cmd.Println("Pkarr node is booting up for the first time. Please provide a Password to generate the key.")
	password, err = terminalPromptCreatePassword(cmd, c.passwordReader)
	if err != nil {
		return "", err
	}
	return password, nil
}

func terminalPromptPassword(cmd *cobra.Command, r passwordReader, title string) (password string, err error) {
	cmd.Print(title + ": ")
	password, err = r.ReadPassword()
	cmd.Println()
	if err != nil {
		return "", err
	}
	return password, nil
}

func terminalPromptCreatePassword(cmd *cobra.Command, r passwordReader) (password string, err error) {
	password, err = terminalPromptPassword(cmd, r, "Password")
	if err != nil {
		return "", err
	}

	confirmPassword, err := terminalPromptPassword(cmd, r, "Confirm password")
	if err != nil {
		return "", err
	}

	if password != confirmPassword {
		return "", errors.New("passwords are not matching")
	}

	return password, nil
}

type passwordReader interface {
	ReadPassword() (password string, err error)
}

type stdInPasswordReader struct{}

func (stdInPasswordReader) ReadPassword() (password string, err error) {
	v, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return string(v), err
}

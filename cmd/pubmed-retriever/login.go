// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-retriever/internal/credential"
	"github.com/pdiddy/pubmed-retriever/internal/secrets"
)

// keyringStore is replaced in tests.
var keyringStore = credential.NewKeyring()

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check proxy credentials and optionally remember them",
	Long: `Login performs the EZProxy login handshake with the given credentials.
With --save the username and password go to the OS keyring, where acquire
finds them when no flag or secret file supplies credentials. The password is
read from the first line of stdin when --password is not given.

The proxy does not report bad passwords at login time; they show up as
failed downloads.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the proxy login saved in the OS keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := keyringStore.Delete(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved login removed")
		return nil
	},
}

func init() {
	loginCmd.Flags().String("username", "", "proxy username")
	loginCmd.Flags().String("password", "", "proxy password (default: read from stdin)")
	loginCmd.Flags().Bool("save", false, "remember the credentials in the OS keyring")
	loginCmd.Flags().Bool("no-verify", false, "save without contacting the proxy")

	rootCmd.AddCommand(loginCmd, logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	if username == "" {
		return errors.New("--username is required")
	}
	if password == "" {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		password = strings.TrimRight(line, "\r\n")
		if password == "" {
			if err != nil {
				return fmt.Errorf("reading password from stdin: %w", err)
			}
			return errors.New("empty password")
		}
	}

	out := cmd.OutOrStdout()
	if noVerify, _ := cmd.Flags().GetBool("no-verify"); !noVerify {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c := newComponents(cfg, nil)
		if err := c.creds.Authenticate(cmd.Context(), uuid.NewString(), username, password); err != nil {
			return fmt.Errorf("proxy login: %w", err)
		}
		fmt.Fprintf(out, "Logged in to %s as %s\n", cfg.Proxy.LoginURL, username)
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		if err := keyringStore.Save(username, password); err != nil {
			return err
		}
		fmt.Fprintln(out, "Credentials saved to the OS keyring")
	}
	return nil
}

// resolveLogin finds proxy credentials: flags first, then secret files,
// then the keyring.
func resolveLogin(cmd *cobra.Command) (username, password string, err error) {
	username, _ = cmd.Flags().GetString("username")
	password, _ = cmd.Flags().GetString("password")
	username = loadedSecrets.Or(secrets.ProxyUsername, username)
	password = loadedSecrets.Or(secrets.ProxyPassword, password)
	if username != "" && password != "" {
		return username, password, nil
	}

	u, p, err := keyringStore.Load()
	switch {
	case errors.Is(err, credential.ErrNoSavedLogin):
		return "", "", errors.New("no proxy credentials: use --username/--password, .secrets/ezproxy-username and .secrets/ezproxy-password, or \"login --save\"")
	case err != nil:
		return "", "", err
	}
	if username != "" && username != u {
		return "", "", fmt.Errorf("no password for %s", username)
	}
	return u, p, nil
}

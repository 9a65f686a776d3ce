package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-micropub/pkg/micropub/auth"
)

// NewTokenCommand mints a JWT accepted when MICROPUB_JWT_SECRET is configured
func NewTokenCommand() *cobra.Command {
	var (
		secret   string
		me       string
		clientID string
		scopes   []string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		Long: `Issue an HS256 access token for clients of a server started with
MICROPUB_JWT_SECRET. The secret defaults to that environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("MICROPUB_JWT_SECRET")
			}
			if secret == "" {
				return errors.New("a secret is required (--secret or MICROPUB_JWT_SECRET)")
			}
			if me == "" {
				return errors.New("--me is required")
			}

			verifier, err := auth.NewJWTVerifier(secret)
			if err != nil {
				return err
			}
			token, err := verifier.Issue(me, clientID, scopes, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			if ttl > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "scopes: %s, expires in %s\n", strings.Join(scopes, " "), ttl)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "signing secret")
	cmd.Flags().StringVar(&me, "me", "", "profile URL the token is issued for")
	cmd.Flags().StringVar(&clientID, "client-id", "micropub-cli", "client identifier")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{"create", "update", "delete", "media"}, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}

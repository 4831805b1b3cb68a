package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/costwatch/internal/auth"
)

func newTokenCmd(o *options) *cobra.Command {
	var operator string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the API",
		Long: `Mint a bearer token signed with JWT_SECRET. The operator name is recorded
as the actor on alerts acknowledged or resolved with the token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := auth.MintToken(o.actor(operator), o.cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "operator name (default: config actor or $USER)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

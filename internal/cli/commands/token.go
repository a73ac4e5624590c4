package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/givebridge/givebridge/internal/auth"
	"github.com/givebridge/givebridge/internal/config"
)

// NewTokenCmd creates the token command
func NewTokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed session token for local testing",
		Long: `Issue a session token signed with JWT_SECRET.

The token is not backed by a stored session, so the server will treat it as
unresolved. It is meant for exercising token validation and the gate's
stale-session handling.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runToken(cmd.OutOrStdout(), cfg.Auth.JWTSecret, userID, role, ttl)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID to put in the token")
	cmd.Flags().StringVar(&role, "role", "", "Role to put in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

func runToken(out io.Writer, secret, userID, role string, ttl time.Duration) error {
	parsed := auth.ParseRole(role)
	if !parsed.Known() {
		return fmt.Errorf("unknown role %q (use admin, donor or volunteer)", role)
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	signer, err := auth.NewSigner(secret)
	if err != nil {
		return err
	}

	token, claims, err := signer.Issue(userID, parsed, ttl)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Fprintln(out, token)
	fmt.Fprintf(out, "# session %s expires %s\n", claims.ID, claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	return nil
}

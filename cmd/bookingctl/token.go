package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/utils"
)

func adminTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     int
	)
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint an admin JWT signed with JWT_SECRET",
		Long: `Mint an admin JWT for the /v1/admin endpoints.

Examples:
  bookingctl admin-token --sub ops@example.com
  bookingctl admin-token --sub ops@example.com --ttl 15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("--sub is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.AdminTokenTTLMin
			}
			tok, err := utils.NewAccessToken(cfg.JWTSecret, subject, utils.RoleAdmin, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok.Token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", tok.Exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "subject recorded in the admin audit log")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "lifetime in minutes (default ADMIN_TOKEN_TTL_MIN)")
	return cmd
}

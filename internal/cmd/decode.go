package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	gate "github.com/agroconnect/gate-go"
	"github.com/agroconnect/gate-go/internal/server"
	"github.com/spf13/cobra"
)

type claimsView struct {
	Subject   string         `json:"sub,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Role      gate.Role      `json:"role,omitempty"`
	Email     string         `json:"email,omitempty"`
	Issuer    string         `json:"iss,omitempty"`
	ExpiresAt string         `json:"expires_at,omitempty"`
	IssuedAt  string         `json:"issued_at,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func viewOf(c *gate.Claims) claimsView {
	v := claimsView{
		Subject: c.Subject,
		UserID:  c.UserID,
		Role:    c.Role,
		Email:   c.Email,
		Issuer:  c.Issuer,
		Extra:   c.Extra,
	}
	if !c.ExpiresAt.IsZero() {
		v.ExpiresAt = c.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if !c.IssuedAt.IsZero() {
		v.IssuedAt = c.IssuedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <token>",
		Short: "Decode a bearer token with the configured decoder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dec, err := server.NewDecoder(cfg.Auth)
			if err != nil {
				return err
			}
			c, err := dec.Decode(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			if c == nil {
				return fmt.Errorf("decode: token carries no claims")
			}
			data, err := json.MarshalIndent(viewOf(c), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

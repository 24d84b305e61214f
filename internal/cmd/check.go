package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	gate "github.com/agroconnect/gate-go"
	"github.com/agroconnect/gate-go/internal/logger"
	"github.com/agroconnect/gate-go/internal/server"
	"github.com/agroconnect/gate-go/metrics"
	"github.com/spf13/cobra"
)

type cliSession struct {
	token string
	user  *gate.User
}

func (s cliSession) Token() string    { return s.token }
func (s cliSession) User() *gate.User { return s.user }

type decisionView struct {
	Outcome  string    `json:"outcome"`
	Role     gate.Role `json:"role,omitempty"`
	Location string    `json:"location,omitempty"`
	Code     string    `json:"code,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func newCheckCmd() *cobra.Command {
	var (
		token   string
		userID  string
		allowed []string
		asJSON  bool
	)

	c := &cobra.Command{
		Use:   "check",
		Short: "Run one route activation against the configured profile API",
		Long: `check decodes the token, matches its role against --allowed and, when the
role is allowed, issues the profile lookup a protected page would issue.
It prints the decision the gate settles to.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(allowed) == 0 {
				return errors.New("at least one --allowed role is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			dec, err := server.NewDecoder(cfg.Auth)
			if err != nil {
				return err
			}
			gc, err := cfg.Gate.GuardConfig()
			if err != nil {
				return err
			}
			g, err := gate.New(gc,
				gate.WithLogger(log),
				gate.WithClaimsDecoder(dec),
				gate.WithProfileLookup(server.NewProfileClient(cfg.Profile, log, metrics.New(nil))),
			)
			if err != nil {
				return err
			}
			defer g.Close()

			roles := make([]gate.Role, 0, len(allowed))
			for _, r := range allowed {
				roles = append(roles, gate.Role(r))
			}
			sess := cliSession{token: token}
			if userID != "" {
				sess.user = &gate.User{ID: userID}
			}

			d := g.Evaluate(cmd.Context(), sess, gate.NormalizeRoles(roles))
			view := decisionView{
				Outcome:  d.Outcome.String(),
				Role:     d.Role,
				Location: d.Location,
			}
			if d.Err != nil {
				view.Code = string(gate.CodeOf(d.Err))
				view.Error = d.Err.Error()
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(view, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintf(out, "outcome:  %s\n", view.Outcome)
			if view.Role != "" {
				fmt.Fprintf(out, "role:     %s\n", view.Role)
			}
			if view.Location != "" {
				fmt.Fprintf(out, "location: %s\n", view.Location)
			}
			if view.Code != "" {
				fmt.Fprintf(out, "code:     %s\n", view.Code)
			}
			return nil
		},
	}
	c.Flags().StringVar(&token, "token", "", "bearer token to check")
	c.Flags().StringVar(&userID, "user-id", "", "cached user id, used to match list-shaped profile responses")
	c.Flags().StringSliceVar(&allowed, "allowed", nil, "roles allowed on the route (repeatable or comma separated)")
	c.Flags().BoolVar(&asJSON, "json", false, "print the decision as JSON")
	return c
}

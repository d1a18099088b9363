package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm/lattice"
	"github.com/pthm/lattice/internal/cli"
	"github.com/pthm/lattice/internal/server"
)

var (
	tokenSecret     string
	tokenSubject    string
	tokenRoles      []string
	tokenProperties []string
	tokenTTL        time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the record API",
	Long: `Issue an HS256 token accepted by 'lattice serve'. Intended for local
development and tests; production tokens come from your identity provider.`,
	Example: `  # Token for a user with the editor role
  lattice token --sub 6f1c9a52-7e0c-4a8e-9d59-2b0a4c1c7c11 --role editor

  # Token carrying a property used by record conditions
  lattice token --sub 6f1c9a52-7e0c-4a8e-9d59-2b0a4c1c7c11 --property team=core`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := resolveString(tokenSecret, cfg.Serve.JWTSecret)
		if secret == "" {
			return cli.ConfigError("serve.jwt_secret is required (use --secret or LATTICE_SERVE_JWT_SECRET)", nil)
		}

		session := lattice.Session{UserID: tokenSubject, Roles: tokenRoles}
		if len(tokenProperties) > 0 {
			session.Properties = make(map[string]any, len(tokenProperties))
			for _, p := range tokenProperties {
				name, value, ok := strings.Cut(p, "=")
				if !ok || name == "" {
					return cli.ConfigError(fmt.Sprintf("property %q must be name=value", p), nil)
				}
				session.Properties[name] = value
			}
		}

		if err := session.Validate(); err != nil {
			return cli.ConfigError("invalid session", err)
		}

		token, err := server.IssueToken([]byte(secret), session, tokenTTL)
		if err != nil {
			return cli.GeneralError("issuing token", err)
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenSecret, "secret", "", "HS256 secret (default: serve.jwt_secret)")
	f.StringVar(&tokenSubject, "sub", "", "user id (uuid)")
	f.StringSliceVar(&tokenRoles, "role", nil, "role to grant (repeatable)")
	f.StringArrayVar(&tokenProperties, "property", nil, "session property as name=value (repeatable)")
	f.DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("sub")
}

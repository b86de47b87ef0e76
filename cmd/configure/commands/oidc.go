package commands

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/spf13/cobra"
)

// NewOIDCCmd creates the OIDC configuration command
func NewOIDCCmd() *cobra.Command {
	var issuer, domain, clientID, clientSecret, redirectURI, jwksURL string

	cmd := &cobra.Command{
		Use:   "oidc <provider-name>",
		Short: "Configure OIDC provider",
		Long:  "Create or update an OIDC provider used for login. The name must match OIDC_PROVIDER on the server (e.g. 'cognito', 'okta').",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := strings.TrimSpace(args[0])
			if provider == "" {
				return errors.New("provider name cannot be empty")
			}
			if issuer == "" || clientID == "" || redirectURI == "" {
				return errors.New("required flags: --issuer, --client-id, --redirect-uri (--client-secret is optional for public clients)")
			}
			for name, raw := range map[string]string{"issuer": issuer, "redirect-uri": redirectURI} {
				if err := requireHTTPURL(raw); err != nil {
					return fmt.Errorf("--%s: %w", name, err)
				}
			}
			return withDatabase(cmd, func(db *database.DB) error {
				repo := database.NewOIDCConfigRepository(db)
				ctx := cmd.Context()

				cfg, err := repo.GetByProvider(ctx, provider)
				exists := err == nil
				if err != nil && !errors.Is(err, database.ErrNotFound) {
					return fmt.Errorf("failed to load OIDC config: %w", err)
				}
				if !exists {
					cfg = &models.OIDCConfig{ID: uuid.New(), Provider: provider}
				}

				cfg.Issuer = issuer
				cfg.ClientID = clientID
				cfg.RedirectURI = redirectURI
				jwks := jwksURL
				if jwks == "" {
					jwks = cfg.DefaultJWKSURL()
				}
				cfg.JWKSUrl = &jwks
				cfg.Domain = optional(domain)
				cfg.ClientSecret = optional(clientSecret)

				if exists {
					if err := repo.Update(ctx, cfg); err != nil {
						return fmt.Errorf("failed to update OIDC config: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Updated OIDC configuration for provider: %s\n", provider)
					return nil
				}
				if err := repo.Create(ctx, cfg); err != nil {
					return fmt.Errorf("failed to create OIDC config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created OIDC configuration for provider: %s\n", provider)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&issuer, "issuer", "", "OIDC issuer URL (required)")
	cmd.Flags().StringVar(&domain, "domain", "", "Hosted login domain, when it differs from the issuer")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth2 client ID (required)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth2 client secret (optional for public clients)")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "OAuth2 redirect URI (required)")
	cmd.Flags().StringVar(&jwksURL, "jwks-url", "", "JWKS URL (defaults to <issuer>/.well-known/jwks.json)")

	cmd.AddCommand(newOIDCDeleteCmd())
	return cmd
}

func newOIDCDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <provider-name>",
		Short: "Remove an OIDC provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(db *database.DB) error {
				if err := database.NewOIDCConfigRepository(db).Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete OIDC config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted OIDC configuration for provider: %s\n", args[0])
				return nil
			})
		},
	}
}

func requireHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

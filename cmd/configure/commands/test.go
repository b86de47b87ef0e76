package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/services/oidc"
	"github.com/spf13/cobra"
)

// NewTestCmd creates the test command
func NewTestCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test OIDC configuration",
		Long:  "Resolve the provider's endpoints and check that discovery and JWKS are reachable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				return errors.New("--provider is required")
			}
			return withDatabase(cmd, func(db *database.DB) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()
				p := oidc.NewProvider(database.NewOIDCConfigRepository(db), provider)

				cfg, err := p.GetConfig(ctx)
				if err != nil {
					return fmt.Errorf("failed to get OIDC config: %w", err)
				}
				fmt.Fprintf(out, "Testing OIDC configuration for provider: %s\n", provider)
				fmt.Fprintf(out, "Issuer: %s\n", cfg.Issuer)

				client := &http.Client{Timeout: 10 * time.Second}
				discovery := cfg.IssuerURL() + "/.well-known/openid-configuration"
				if err := checkEndpoint(ctx, client, discovery); err != nil {
					return fmt.Errorf("discovery endpoint: %w", err)
				}
				fmt.Fprintf(out, "✓ Discovery endpoint is accessible: %s\n", discovery)

				ep := p.Endpoints(ctx, cfg)
				fmt.Fprintf(out, "  Authorize: %s\n  Token: %s\n", ep.Authorization, ep.Token)

				if cfg.JWKSUrl != nil {
					if err := checkEndpoint(ctx, client, *cfg.JWKSUrl); err != nil {
						return fmt.Errorf("JWKS endpoint: %w", err)
					}
					fmt.Fprintf(out, "✓ JWKS endpoint is accessible: %s\n", *cfg.JWKSUrl)
				}

				fmt.Fprintln(out, "\n✓ OIDC configuration test passed")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider name to test (required)")
	return cmd
}

func checkEndpoint(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return nil
}

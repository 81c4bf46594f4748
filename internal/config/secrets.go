package config

import (
	"context"
	"fmt"
	"time"

	infisical "github.com/infisical/go-sdk"
)

const webhookSecretKey = "DISCORD_WEBHOOK_URL"

type secretLookup func(cfg InfisicalConfig, key string) (string, error)

func fetchInfisicalSecret(cfg InfisicalConfig, key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          cfg.SiteURL,
		AutoTokenRefresh: false,
	})

	if _, err := client.Auth().UniversalAuthLogin(cfg.ClientID, cfg.ClientSecret); err != nil {
		return "", fmt.Errorf("infisical auth: %w", err)
	}

	secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
		SecretKey:   key,
		Environment: cfg.Environment,
		ProjectID:   cfg.ProjectID,
		SecretPath:  "/",
	})
	if err != nil {
		return "", fmt.Errorf("retrieve %s: %w", key, err)
	}
	return secret.SecretValue, nil
}

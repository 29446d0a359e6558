package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chicogong/tagforge/pkg/auth"
)

func init() {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token",
		Long: "Sign a JWT for the given identity with api.jwt_secret, or with --api-key " +
			"generate a random key and print the api.api_keys entry for it.",
		Run: runToken,
	}
	addInvocationFlags(cmd)
	cmd.Flags().Duration("ttl", 0, "Override api.token_ttl")
	cmd.Flags().Bool("api-key", false, "Generate an API key entry instead of a JWT")
	RootCmd.AddCommand(cmd)
}

type tokenOutput struct {
	Token     string    `json:"token,omitempty" yaml:"token,omitempty"`
	KeySpec   string    `json:"key_spec,omitempty" yaml:"key_spec,omitempty"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	ExpiresAt time.Time `json:"expires_at,omitzero" yaml:"expires_at,omitempty"`
}

func runToken(cmd *cobra.Command, args []string) {
	ttl, _ := cmd.Flags().GetDuration("ttl")
	apiKey, _ := cmd.Flags().GetBool("api-key")

	cfg, _ := loadConfig()
	if ttl <= 0 {
		ttl = cfg.API.TokenTTL.Duration
	}
	id := auth.Identity{UserID: userFlag, Name: nameFlag, GuildID: guildFlag, Elevated: elevatedFlag}

	var out tokenOutput
	if apiKey {
		k, err := auth.NewAPIKeyManager().Generate(id, "cli", nil)
		if err != nil {
			exitErr("generate api key", err)
		}
		out = tokenOutput{KeySpec: auth.FormatKeySpec(k.Key, id), UserID: id.UserID}
	} else {
		if cfg.API.JWTSecret == "" {
			exitErr("issue token", errors.New("api.jwt_secret is not set"))
		}
		token, err := auth.NewJWTManager(cfg.API.JWTSecret, ttl).Generate(id)
		if err != nil {
			exitErr("issue token", err)
		}
		out = tokenOutput{Token: token, UserID: id.UserID, ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second)}
	}

	if formatFlag == "text" {
		if out.Token != "" {
			fmt.Println(out.Token)
		} else {
			fmt.Println(out.KeySpec)
		}
		return
	}
	printValue(out)
}

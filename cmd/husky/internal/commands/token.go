package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huskyapply/gateway/internal/auth"
)

type TokenCmd struct {
	Secret  string        `help:"Shared HS256 signing secret" env:"GATEWAY_JWT_SECRET"`
	Subject string        `help:"Token subject" default:"husky-cli"`
	TTL     time.Duration `help:"Token lifetime" default:"1h"`
}

func (t *TokenCmd) Run(ctx context.Context, globals *Globals) error {
	if t.Secret == "" {
		return errors.New("signing secret is required (--secret or GATEWAY_JWT_SECRET)")
	}

	token, err := auth.Issue([]byte(t.Secret), t.Subject, t.TTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}

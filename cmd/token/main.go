// Command token issues a bearer token for the grading API.
//
//	AUTH_SECRET=... token -sub ci-runner -ttl 720h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sakif/gradebox/internal/auth"
	"github.com/sakif/gradebox/internal/config"
)

func main() {
	subject := flag.String("sub", "", "client name carried in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if err := run(*subject, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(subject string, ttl time.Duration) error {
	if subject == "" {
		return fmt.Errorf("-sub is required")
	}

	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(cfg.AuthSecret)
	if err != nil {
		return err
	}

	token, err := tokens.Generate(subject, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

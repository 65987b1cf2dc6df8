// Command token mints a signed access token for local testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"support-chat/auth"
	"support-chat/domain"
	"support-chat/internal"
	"time"
)

func main() {
	userID := flag.String("user", "", "user id")
	role := flag.String("role", string(domain.RoleCustomer), "customer or agent")
	name := flag.String("name", "", "display name")
	ttl := flag.Duration("ttl", 0, "token lifetime, AUTH_TOKEN_DURATION when zero")
	flag.Parse()

	if err := run(domain.User{ID: domain.UserID(*userID), Role: domain.Role(*role), DisplayName: *name}, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
}

func run(user domain.User, ttl time.Duration) error {
	config, err := internal.Load()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = config.AuthTokenDuration
	}
	token, err := auth.NewTokenIssuer(config.JWTSecret, ttl).GenerateToken(user)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

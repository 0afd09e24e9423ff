// Package main mints development bearer tokens signed with PHUB_JWT_SECRET.
// Credential issuance is owned by an external identity provider in
// production; this tool stands in for it locally. With -create the user row
// is created first when it does not exist yet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/projecthub/projecthub/internal/auth"
	"github.com/projecthub/projecthub/internal/config"
	"github.com/projecthub/projecthub/internal/db"
	"github.com/projecthub/projecthub/internal/db/repositories"
)

func main() {
	username := flag.String("username", "", "username to mint a token for (required)")
	userID := flag.Int64("user-id", 0, "user id; looked up by username when zero")
	create := flag.Bool("create", false, "create the user if it does not exist")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	flag.Parse()

	if *username == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *ttl == 0 {
		*ttl = cfg.Auth.TokenTTL
	}

	id := *userID
	if id == 0 {
		id, err = resolveUser(cfg, *username, *create)
		if err != nil {
			log.Fatalf("Failed to resolve user: %v", err)
		}
	}

	token, err := auth.GenerateJWT(id, *username, cfg.Auth.JWTIssuer, *ttl)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}
	fmt.Println(token)
}

func resolveUser(cfg *config.Config, username string, create bool) (int64, error) {
	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		return 0, err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := repositories.NewUserRepository(sqlx.NewDb(database, "postgres"))
	user, err := users.GetUserByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	if user == nil {
		if !create {
			return 0, fmt.Errorf("user %q does not exist (pass -create to add it)", username)
		}
		if user, err = users.CreateUser(ctx, username); err != nil {
			return 0, err
		}
		log.Printf("Created user %s (id %d)", user.Username, user.ID)
	}
	return user.ID, nil
}

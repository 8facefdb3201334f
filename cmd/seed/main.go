// Command seed creates a handful of demo users for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/store"
)

var demoUsers = []struct {
	username string
	fullName string
}{
	{"ada", "Ada Lovelace"},
	{"grace", "Grace Hopper"},
	{"edsger", "Edsger Dijkstra"},
}

func main() {
	dbPath := flag.String("db", "", "sqlite database path (default ./data/cracoe.db)")
	password := flag.String("password", "password123", "password for seeded users")
	flag.Parse()

	ctx := context.Background()

	db, err := store.NewSQLiteStore(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
		os.Exit(1)
	}

	for _, u := range demoUsers {
		existing, err := db.GetUserByUsername(ctx, u.username)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lookup %s: %v\n", u.username, err)
			os.Exit(1)
		}
		if existing != nil {
			fmt.Printf("%s already exists (%s)\n", u.username, existing.ID)
			continue
		}

		user, err := db.CreateUser(ctx, u.username, u.fullName, "", string(hash))
		if err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", u.username, err)
			os.Exit(1)
		}
		fmt.Printf("created %s (%s)\n", user.Username, user.ID)
	}
}

package main

import (
	"fmt"
	"os"
	"time"

	"veranda/internal/auth"
	"veranda/internal/config"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: token <user-id>")
		os.Exit(1)
	}

	cfg, err := config.Load(false)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.Issue(auth.Config{
		Secret:      cfg.AuthSecret,
		Issuer:      cfg.TokenIssuer,
		TokenExpiry: cfg.TokenExpiry,
	}, os.Args[1], time.Now())
	if err != nil {
		fmt.Printf("Error issuing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}

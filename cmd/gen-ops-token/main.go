package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/necko-moe/necko3-core/internal/config"
	"github.com/necko-moe/necko3-core/internal/middleware"
)

func main() {
	configPath := flag.String("config", "", "config file path")
	subject := flag.String("subject", "ops-cli", "subject name embedded in the token")
	ttl := flag.Duration("ttl", 0, "token lifetime (default from config, else 60m)")
	flag.Parse()

	secret := os.Getenv("OPS_JWT_SECRET")
	tokenTTL := *ttl

	if secret == "" {
		if err := config.LoadConfig(*configPath); err != nil {
			log.Fatalf("❌ Failed to load config: %v", err)
		}
		secret = config.AppConfig.Ops.JWTSecret
		if tokenTTL == 0 && config.AppConfig.Ops.TokenTTLMinutes > 0 {
			tokenTTL = time.Duration(config.AppConfig.Ops.TokenTTLMinutes) * time.Minute
		}
	}
	if secret == "" {
		log.Fatal("❌ No ops JWT secret configured (set ops.jwtSecret or OPS_JWT_SECRET)")
	}
	if tokenTTL == 0 {
		tokenTTL = 60 * time.Minute
	}

	tokenString, err := middleware.IssueOpsToken([]byte(secret), *subject, tokenTTL)
	if err != nil {
		log.Fatalf("❌ Failed to issue token: %v", err)
	}

	claims, err := middleware.ValidateOpsToken([]byte(secret), tokenString)
	if err != nil {
		log.Fatalf("❌ Issued token failed validation: %v", err)
	}

	fmt.Println("============================================================")
	fmt.Println("Ops API Token Generated")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("Claims:")
	fmt.Printf("  Subject: %s\n", claims.Subject)
	fmt.Printf("  Role: %s\n", claims.Role)
	fmt.Printf("  Expires: %s\n", claims.ExpiresAt.Time)
	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println("Usage:")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Printf("curl -H \"Authorization: Bearer %s\" http://localhost:8080/ops/stats\n", tokenString)
	fmt.Println()
}

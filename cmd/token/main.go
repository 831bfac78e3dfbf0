// Command token mints an operator bearer token for the detection history API.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"dermascan-gateway/internal/config"
	"dermascan-gateway/internal/pkg/jwtutil"
)

func main() {
	operator := flag.String("operator", "ops", "operator name stored in the token")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to auth.jwt_expire_minute)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	expiration := *ttl
	if expiration <= 0 {
		expiration = time.Duration(cfg.Auth.JWTExpireMinute) * time.Minute
	}

	token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, expiration, *operator)
	if err != nil {
		log.Fatalf("generate token failed: %v", err)
	}
	fmt.Println(token)
}

// Command mint-token issues an operator JWT for the recordings API.
// Operator accounts are not stored anywhere; tokens are minted out of
// band and validated against JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/classdeck/recordings-backend/config"
	"github.com/classdeck/recordings-backend/internal/auth"
)

func main() {
	var (
		operator    string
		role        string
		expireHours int
	)

	flag.StringVar(&operator, "operator", "", "Operator name embedded in the token")
	flag.StringVar(&role, "role", auth.RoleAdmin, "Token role: admin or operator")
	flag.IntVar(&expireHours, "expire-hours", 0, "Token lifetime in hours (default from JWT_EXPIRE_HOURS)")
	flag.Parse()

	if strings.TrimSpace(operator) == "" {
		fatalf("--operator is required")
	}
	if role != auth.RoleAdmin && role != auth.RoleOperator {
		fatalf("--role must be %q or %q", auth.RoleAdmin, auth.RoleOperator)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("load config: %v", err)
	}
	if expireHours <= 0 {
		expireHours = cfg.JWT.ExpireHours
	}

	token, err := auth.NewJWTService(cfg.JWT.Secret, expireHours).Generate(strings.TrimSpace(operator), role)
	if err != nil {
		fatalf("generate token: %v", err)
	}
	fmt.Println(token)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

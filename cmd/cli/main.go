package main

import (
	"fmt"
	"os"

	"github.com/nimasrn/debt-ledger/internal/app"
	"github.com/nimasrn/debt-ledger/internal/auth"
	"github.com/nimasrn/debt-ledger/internal/config"
	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/pkg/logger"
	"github.com/nimasrn/debt-ledger/pkg/pg"
)

const usage = `usage:
  cli migrate [--env=.env] [--dir=./migrations]
  cli token --sub=<principal> [--role=admin] [--env=.env]`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	err := config.Load(app.EnvPath(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		err = migrate(os.Args[2:])
	case "token":
		err = token(os.Args[2:])
	default:
		fmt.Println(usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// cli migrate --dir=./migrations
func migrate(args []string) error {
	_, writeConf := app.PostgresConfigs(config.Get())
	dir := app.Flag(args, "dir", config.Get().MigrationsDir)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("migrations dir %s: %w", dir, err)
	}
	return pg.Migrate(writeConf, dir)
}

// cli token --sub=alice
func token(args []string) error {
	sub := app.Flag(args, "sub", "")
	if sub == "" {
		return fmt.Errorf("--sub is required")
	}
	cfg := config.Get()
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}

	jwt := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	tok, err := jwt.GenerateToken(model.Principal(sub), app.Flag(args, "role", ""))
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

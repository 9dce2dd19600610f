// Command crm-seed loads agents, routing rules and round-robin pools from a
// YAML file into the CRM database.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	crmrepo "estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/platform/config"
	"estate_portal_backend/platform/db"
	"estate_portal_backend/platform/logger"
)

func main() {
	path := flag.String("file", "crm-seed.yaml", "path to the seed file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting crm seed", "file", *path)

	f, err := os.Open(*path)
	if err != nil {
		log.Error("failed to open seed file", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	seed, err := decodeSeed(f)
	if err != nil {
		log.Error("invalid seed file", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	sum, err := applySeed(ctx, crmrepo.New(pool), seed)
	if err != nil {
		log.Error("seed failed", "error", err, "agents", sum.Agents)
		os.Exit(1)
	}
	log.Info("seed complete",
		"agents", sum.Agents,
		"rulesCreated", sum.RulesCreated,
		"rulesUpdated", sum.RulesUpdated,
		"pools", sum.Pools,
	)
}

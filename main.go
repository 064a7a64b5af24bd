package main

import (
	"context"
	"log"
	"os"
	"time"

	"binder/models"
	"binder/remote"
	"binder/syncer"
	"binder/web"

	"github.com/rohanthewiz/logger"
)

func main() {
	logLevel := os.Getenv("BINDER_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.SetLogLevel(logLevel)

	dbPath := os.Getenv("BINDER_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/binder.ddb"
	}
	if err := models.InitDB(dbPath); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer models.CloseDB()

	tree, err := models.LoadTree()
	if err != nil {
		log.Fatal("Failed to load tree cache:", err)
	}

	cfg, err := syncer.LoadConfig()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	secret := os.Getenv("BINDER_CREDENTIAL_SECRET")
	if secret == "" {
		log.Fatal("BINDER_CREDENTIAL_SECRET is required (32+ characters)")
	}
	creds, err := remote.NewTokenSource(secret, time.Hour)
	if err != nil {
		log.Fatal("Failed to initialize credentials:", err)
	}

	// The in-memory store backs local-first operation; a networked Store
	// implementation slots in here without touching the engine.
	store := remote.NewMemStore(creds)

	engine := syncer.NewEngine(cfg, tree, store)
	if err = engine.Start(context.Background()); err != nil {
		log.Fatal("Failed to start sync engine:", err)
	}
	defer engine.Stop()

	addr := os.Getenv("BINDER_LISTEN_ADDR")
	if addr == "" {
		addr = ":8000"
	}
	srv := web.NewServer(addr, tree, engine)
	log.Fatal(web.Run(srv, addr))
}

package app

import (
	"log"

	"github.com/adityadaniel/flora-friend/app/config"
	"github.com/adityadaniel/flora-friend/store"
)

var db *store.Store

// MustInitDB initializes the global db and logs fatally on error.
func MustInitDB() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	s, err := store.Open(cfg.DB)
	if err != nil {
		log.Fatalf("store.Open: %v", err)
	}

	log.Printf("Connected to %s", cfg.DB.Driver)
	db = s
}

// UseStore installs an already opened store, for the CLI and tests.
func UseStore(s *store.Store) {
	db = s
}

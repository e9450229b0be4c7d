package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/adityadaniel/flora-friend/app"
	"github.com/adityadaniel/flora-friend/app/config"
	"github.com/adityadaniel/flora-friend/auth"
	"github.com/adityadaniel/flora-friend/store"
)

func main() {
	imagePath := flag.String("image", "", "path to a plant photo to identify")
	list := flag.Bool("list", false, "list saved identifications")
	reset := flag.Bool("reset", false, "reset the free identification counter")
	dbPath := flag.String("db", "", "sqlite database path (default ~/.florafriend/florafriend.db)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	stateDir := stateDirectory()
	if *dbPath == "" {
		*dbPath = filepath.Join(stateDir, "florafriend.db")
	}

	s, err := store.OpenSQLite(*dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer s.Close()

	deviceID, err := auth.LocalDeviceID(stateDir)
	if err != nil {
		log.Fatalf("device id: %v", err)
	}
	subject, ok := auth.DeviceSubject(deviceID)
	if !ok {
		log.Fatalf("device id %q is not usable as a subject", deviceID)
	}

	app.UseStore(s)
	app.InitServices(cfg)

	ctx := context.Background()

	switch {
	case *reset:
		if err := app.ResetFreeUses(ctx, subject); err != nil {
			log.Fatalf("reset: %v", err)
		}
		printStatus(ctx, subject)
	case *list:
		plants, err := s.ListRecords(ctx, subject, 0, 0)
		if err != nil {
			log.Fatalf("list: %v", err)
		}
		for _, p := range plants {
			fmt.Printf("%s  %s  %s (%s)\n", p.CreatedAt.Local().Format(time.DateTime), p.ID, p.CommonName, p.ScientificName)
		}
		if len(plants) == 0 {
			fmt.Println("no saved identifications")
		}
	case *imagePath != "":
		image, err := os.ReadFile(*imagePath)
		if err != nil {
			log.Fatalf("read image: %v", err)
		}

		ctx, cancel := context.WithTimeout(ctx, cfg.Vision.Timeout)
		defer cancel()

		result, saved, err := app.IdentifyForSubject(ctx, subject, image)
		if err != nil {
			if app.IsQuotaExceeded(err) {
				fmt.Println("Free identification used. Subscribe to keep identifying plants.")
				os.Exit(2)
			}
			log.Fatalf("identify: %v", err)
		}

		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		if !saved {
			log.Printf("warning: result was not saved")
		}
		printStatus(context.Background(), subject)
	default:
		printStatus(ctx, subject)
		flag.Usage()
	}
}

func printStatus(ctx context.Context, subject string) {
	state, remaining, err := app.EntitlementFor(ctx, subject)
	if err != nil {
		log.Fatalf("entitlement: %v", err)
	}
	fmt.Printf("subject=%s subscribed=%t free_uses_consumed=%d remaining=%d\n",
		subject, state.HasSubscription, state.FreeUsesConsumed, remaining)
}

func stateDirectory() string {
	if dir := os.Getenv("FLORAFRIEND_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".florafriend"
	}
	return filepath.Join(home, ".florafriend")
}

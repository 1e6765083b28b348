// Command seed loads geofence definitions from a YAML file into the database
// and prints a development token for the seeding user.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jengzang/tracking-backend-go/internal/auth"
	"github.com/jengzang/tracking-backend-go/internal/config"
	"github.com/jengzang/tracking-backend-go/internal/database"
	"github.com/jengzang/tracking-backend-go/internal/logging"
	"github.com/jengzang/tracking-backend-go/internal/repository"
	"github.com/jengzang/tracking-backend-go/internal/service"
)

var (
	filePath = flag.String("file", "geofences.yaml", "Path to the geofence definitions")
	dryRun   = flag.Bool("dry-run", false, "Parse and validate only; no DB writes")
	role     = flag.String("role", auth.RoleOwner, "Role of the printed development token")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatalf("config: %v", err)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	data, err := os.ReadFile(*filePath)
	if err != nil {
		fatalf("read %s: %v", *filePath, err)
	}
	file, err := parseSeedFile(data)
	if err != nil {
		fatalf("parse %s: %v", *filePath, err)
	}
	inputs, err := file.inputs()
	if err != nil {
		fatalf("%s: %v", *filePath, err)
	}

	if *dryRun {
		fmt.Printf("%d geofences OK for organization %s\n", len(inputs), file.Organization)
		return
	}

	db, err := database.OpenAndMigrate(database.Config{Path: cfg.DBPath})
	if err != nil {
		fatalf("database: %v", err)
	}
	defer db.Close()

	geofences := service.NewGeofenceService(repository.NewGeofenceRepository(db), logger, cfg.Timezone)
	ctx := context.Background()
	for _, in := range inputs {
		g, err := geofences.Create(ctx, file.CreatedBy, in)
		if err != nil {
			fatalf("create %q: %v", in.Name, err)
		}
		fmt.Printf("created %s %q\n", g.ID, g.Name)
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		fatalf("token issuer: %v", err)
	}
	token, err := issuer.Issue(file.CreatedBy, file.Organization, *role)
	if err != nil {
		fatalf("issue token: %v", err)
	}
	fmt.Printf("token for %s (%s): %s\n", file.CreatedBy, *role, token)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "seed: "+format+"\n", args...)
	os.Exit(1)
}

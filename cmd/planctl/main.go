// Command planctl assigns a plan to a user directly against the configured
// store, the same way the admin API does.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/DukeRupert/ngolink/internal"
	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/repository"
	"github.com/DukeRupert/ngolink/internal/repository/postgres"
	"github.com/DukeRupert/ngolink/internal/service"
	"github.com/google/uuid"
)

func main() {
	var (
		idFlag     string
		emailFlag  string
		planFlag   string
		statusFlag bool
	)

	flag.StringVar(&idFlag, "id", "", "user ID to update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to update")
	flag.StringVar(&planFlag, "plan", "", "plan to assign (volunteer_free, volunteer_plus, ngo_base, ngo_plus)")
	flag.BoolVar(&statusFlag, "migration-status", false, "print the Postgres migration status and exit")
	flag.Parse()

	cfg, err := internal.NewConfig()
	if err != nil {
		exitWithError(fmt.Errorf("config initialization failed: %w", err))
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel).With("cmd", "planctl")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if statusFlag {
		if cfg.StoreDriver != internal.StorePostgres {
			exitWithError(errors.New("-migration-status requires STORE_DRIVER=postgres"))
		}
		db, err := postgres.Open(ctx, cfg.DatabaseUrl)
		if err != nil {
			exitWithError(err)
		}
		defer db.Close()
		if err := internal.MigrationStatus(db); err != nil {
			exitWithError(err)
		}
		return
	}

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	plan := domain.Plan(strings.TrimSpace(strings.ToLower(planFlag)))

	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if !plan.IsValid() {
		exitWithError(fmt.Errorf("unsupported plan %q", planFlag))
	}
	if cfg.StoreDriver == internal.StoreMemory {
		exitWithError(errors.New("planctl needs a persistent store; STORE_DRIVER is 'memory'"))
	}

	store, err := internal.OpenStore(ctx, cfg, logger)
	if err != nil {
		exitWithError(fmt.Errorf("failed to open store: %w", err))
	}
	defer store.Close(context.Background())

	user, err := lookupUser(ctx, store, userID, email)
	if err != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", err))
	}

	plans := service.NewPlanService(store, logger)
	updated, err := plans.AdminAssign(ctx, user.ID, plan)
	if err != nil {
		exitWithError(fmt.Errorf("failed to update user plan: %s", domain.ErrorMessage(err)))
	}

	status := plans.Status(updated)
	fmt.Printf("User %s (%s) updated to plan %s\n", updated.ID, updated.Email, status.Plan)
	fmt.Printf("role=%s\n", status.Role)
	if status.ExpiresAt != nil {
		fmt.Printf("expires_at=%s\n", status.ExpiresAt.UTC().Format(time.RFC3339))
	}
}

func lookupUser(ctx context.Context, users repository.UserRepository, id, email string) (*domain.User, error) {
	if id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid -id: %w", err)
		}
		return users.GetUserByID(ctx, parsed)
	}
	return users.GetUserByEmail(ctx, strings.ToLower(email))
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/socialnet/backend/internal/apperr"
	"github.com/socialnet/backend/internal/auth"
	"github.com/socialnet/backend/internal/config"
	"github.com/socialnet/backend/internal/models"
)

// seedFile lists accounts to register and friendships to establish between them.
type seedFile struct {
	Users       []seedUser       `json:"users"`
	Friendships []seedFriendship `json:"friendships"`
}

type seedUser struct {
	Username  string   `json:"username"`
	Firstname string   `json:"firstname"`
	Lastname  string   `json:"lastname"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Gender    string   `json:"gender"`
	Roles     []string `json:"roles"`
}

// seedFriendship is sent by From; Accepted makes To accept it.
type seedFriendship struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Accepted bool   `json:"accepted"`
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Register the accounts and friendships listed in a JSON seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), cmd, args[0])
		},
	}
}

func runSeed(ctx context.Context, cmd *cobra.Command, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()

	seed, err := readSeed(f)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.close(context.Background()) }()

	created, err := applySeed(ctx, svc, seed, logger)
	if err != nil {
		return err
	}
	cmd.Printf("seeded %d accounts and %d friendships from %s\n", created, len(seed.Friendships), path)
	return nil
}

func readSeed(r io.Reader) (seedFile, error) {
	var seed seedFile
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return seedFile{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

// applySeed registers every account, skipping ones that already exist, and
// then replays the friendships as an administrator. It returns how many
// accounts were created.
func applySeed(ctx context.Context, svc services, seed seedFile, logger *slog.Logger) (int, error) {
	created := 0
	for _, u := range seed.Users {
		_, err := svc.auth.Register(ctx, auth.RegisterInput{
			Username:  u.Username,
			Firstname: u.Firstname,
			Lastname:  u.Lastname,
			Email:     u.Email,
			Password:  u.Password,
			Gender:    u.Gender,
			Roles:     u.Roles,
		})
		switch {
		case err == nil:
			created++
		case apperr.Is(err, apperr.KindConflict):
			logger.Info("seed account already exists", "username", u.Username)
		default:
			return created, fmt.Errorf("seed account %s: %w", u.Username, err)
		}
	}

	system := models.Principal{Username: "seed", Roles: []string{models.RoleAdmin}}
	for _, fr := range seed.Friendships {
		from, err := svc.store.FindByUsername(ctx, fr.From)
		if err != nil {
			return created, fmt.Errorf("seed friendship: find %s: %w", fr.From, err)
		}
		to, err := svc.store.FindByUsername(ctx, fr.To)
		if err != nil {
			return created, fmt.Errorf("seed friendship: find %s: %w", fr.To, err)
		}

		if err := svc.relationships.SendRequest(ctx, system, from.ID, to.ID); err != nil && !apperr.Is(err, apperr.KindConflict) {
			return created, fmt.Errorf("seed friendship %s -> %s: %w", fr.From, fr.To, err)
		}
		if !fr.Accepted {
			continue
		}
		if err := svc.relationships.AcceptRequest(ctx, system, to.ID, from.ID); err != nil && !apperr.Is(err, apperr.KindValidation) {
			return created, fmt.Errorf("seed friendship %s accepts %s: %w", fr.To, fr.From, err)
		}
	}

	return created, nil
}

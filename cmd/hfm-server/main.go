package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/hfm/hfm/internal/config"
	"github.com/hfm/hfm/internal/domain/facility"
	"github.com/hfm/hfm/internal/platform/auth"
	"github.com/hfm/hfm/internal/platform/db"
	"github.com/hfm/hfm/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "hfm-server",
		Short:        "Health facility management API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(tokenCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// openPool loads configuration and connects to the database.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

// migrationFiles returns dir when given, then MIGRATIONS_DIR, otherwise the
// migrations compiled into the binary.
func migrationFiles(dir string, cfg *config.Config) fs.FS {
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := cmd.Context()

			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationFiles(dir, cfg)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Migrations directory (default: embedded)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := cmd.Context()

			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFiles(dir, cfg)).Status(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			printStatus(cmd, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Migrations directory (default: embedded)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-8s %-32s %-8s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.DateTime)
			}
		}
		fmt.Fprintf(out, "%-8d %-32s %-8s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create hospitals, pharmacies and users from a YAML fixture file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			fixtures, err := facility.LoadFixtures(f)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := facility.NewService(facility.NewUserRepo(pool), facility.NewOrgRepo(pool),
				db.NewTxManager(pool), auth.NewBcryptHasher(cfg.BcryptCost))
			res, err := svc.ApplyFixtures(ctx, fixtures)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Created %d hospital(s), %d pharmacy(ies), %d user(s); skipped %d organization(s) and %d user(s) that already exist.\n",
				res.Hospitals, res.Pharmacies, res.Users, res.SkippedOrgs, res.SkippedUsers)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to the fixture YAML file")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Operator token utilities",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a token for an existing active user",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("user")
			kind, _ := cmd.Flags().GetString("kind")
			id, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("--user must be a user id: %w", err)
			}

			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := cfg.Validate(); err != nil {
				return err
			}

			issuer, err := newTokenIssuer(cfg)
			if err != nil {
				return err
			}
			token, claims, err := issueFor(ctx, facility.NewUserRepo(pool), issuer, id, auth.TokenKind(kind))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", claims.Expiry().Format(time.RFC3339))
			return nil
		},
	}
	issueCmd.Flags().String("user", "", "User id")
	issueCmd.Flags().String("kind", string(auth.AccessToken), "Token kind: access or refresh")
	cmd.AddCommand(issueCmd)
	return cmd
}

// issueFor resolves the user from storage, so inactive users and broken
// profiles are refused exactly as at login.
func issueFor(ctx context.Context, users auth.UserLookup, issuer *auth.TokenIssuer, id uuid.UUID, kind auth.TokenKind) (string, *auth.Claims, error) {
	rec, err := users.LookupPrincipal(ctx, id)
	if err != nil {
		return "", nil, err
	}
	role, err := auth.ParseRole(rec.Role)
	if err != nil {
		return "", nil, err
	}
	p, err := auth.NewResolver(users).ResolveIdentity(ctx, id, role)
	if err != nil {
		return "", nil, err
	}
	return issuer.Issue(auth.Identity{UserID: p.ID, Role: p.Role, Scope: p.Scope}, kind)
}

func newTokenIssuer(cfg *config.Config) (*auth.TokenIssuer, error) {
	return auth.NewTokenIssuer(auth.TokenConfig{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
}

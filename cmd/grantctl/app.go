package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grantflow/backend/internal/authz"
	"github.com/grantflow/backend/internal/config"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/pkg/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type app struct {
	root       *cobra.Command
	stdout     io.Writer
	configPath string
}

func newApp() *app {
	a := &app{stdout: os.Stdout}
	a.root = &cobra.Command{
		Use:           "grantctl",
		Short:         "Maintenance commands for the grants backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	a.root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "Path to config.yaml")
	a.root.AddCommand(
		a.newMigrateCmd(),
		a.newCreateUserCmd(),
		a.newSeedTagsCmd(),
		a.newRemindPayoutsCmd(),
		a.newInitConfigCmd(),
	)
	return a
}

func (a *app) withOutput(w io.Writer) *app {
	a.stdout = w
	a.root.SetOut(w)
	a.root.SetErr(w)
	return a
}

func (a *app) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.root.ExecuteContext(ctx)
}

func (a *app) executeWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.root.ExecuteContext(ctx)
}

// open loads the config and returns a migrated database.
func (a *app) open() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	db, err := models.Open(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := models.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return cfg, db, nil
}

func (a *app) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.open()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "schema up to date (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

func (a *app) newCreateUserCmd() *cobra.Command {
	req := &services.CreateUserRequest{}
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account",
		Long: `Create an account. Omit --role for a regular user.

Examples:
  grantctl create-user -u alice -p secret1 --email alice@example.com
  grantctl create-user -u root -p changeme --role admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := a.open()
			if err != nil {
				return err
			}
			user, err := services.NewAuthService(db, &cfg.JWT).CreateUser(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "created %s user %q (id %d)\n", user.Role, user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "Login name")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Password, at least 6 characters")
	cmd.Flags().StringVar(&req.Email, "email", "", "Notification address")
	cmd.Flags().StringVar(&req.Nickname, "nickname", "", "Display name")
	cmd.Flags().StringVar(&req.Role, "role", "user", "admin or user")
	return cmd
}

type tagFile struct {
	Tags []services.TagRequest `yaml:"tags"`
}

func (a *app) newSeedTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-tags FILE",
		Short: "Upsert the bounty tag vocabulary from a YAML file",
		Long: `Upsert tags keyed by text. The file lists them under "tags":

  tags:
    - text: frontend
      description: Web and UI work
      color: "#1677ff"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var file tagFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			_, db, err := a.open()
			if err != nil {
				return err
			}
			tags := services.NewTagService(db)
			for i := range file.Tags {
				if _, err := tags.Upsert(cmd.Context(), authz.System, &file.Tags[i]); err != nil {
					return fmt.Errorf("tag %q: %w", file.Tags[i].Text, err)
				}
			}
			fmt.Fprintf(a.stdout, "seeded %d tags\n", len(file.Tags))
			return nil
		},
	}
}

func (a *app) newRemindPayoutsCmd() *cobra.Command {
	var age time.Duration
	cmd := &cobra.Command{
		Use:   "remind-payouts",
		Short: "Remind admins of payout requests older than --age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := a.open()
			if err != nil {
				return err
			}
			mailer := services.NewEmailService(cfg.SMTP)
			queue := services.NewSyncQueue()
			queue.SetProcessor(services.NewNoticeDispatcher(db, mailer, nil, nil, cfg.Notification.SiteURL).Process)
			proposals := services.NewProposalService(db, services.NewQueueNotifier(queue), cfg.Funding)
			n, err := proposals.RemindStalePayouts(cmd.Context(), age)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "sent %d reminders\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&age, "age", 72*time.Hour, "Minimum age of a pending request")
	return cmd
}

func (a *app) newInitConfigCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a config file with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if path == "" {
				path = "config.yaml"
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists, use --force to overwrite", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/database"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/server"
	"github.com/customeros/mailsync/services"
	"github.com/customeros/mailsync/services/imap"
)

func main() {
	app := &cli.App{
		Name:  "mailsync",
		Usage: "mailbox mirroring and campaign delivery",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: serve,
			},
			{
				Name:  "sync",
				Usage: "Run one sync pass and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "account",
						Usage: "mail account id; all receiving accounts when empty",
					},
				},
				Action: syncOnce,
			},
			{
				Name:   "tick",
				Usage:  "Deliver one batch for every active campaign and exit",
				Action: tickOnce,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is empty")
	}
	return cfg, nil
}

func openDatabases(cfg *config.Config) (*gorm.DB, *gorm.DB, error) {
	mailsyncDB, err := database.InitMailsyncDatabase(cfg.MailsyncDatabaseConfig)
	if err != nil {
		return nil, nil, err
	}
	crmDB, err := database.InitCrmDatabase(cfg.CrmDatabaseConfig)
	if err != nil {
		return nil, nil, err
	}
	return mailsyncDB, crmDB, nil
}

func migrate(*cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mailsyncDB, err := database.InitMailsyncDatabase(cfg.MailsyncDatabaseConfig)
	if err != nil {
		return err
	}
	if err := repository.MigrateMailsyncDB(cfg.MailsyncDatabaseConfig, mailsyncDB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed successfully")
	return nil
}

func serve(*cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mailsyncDB, crmDB, err := openDatabases(cfg)
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Mailsync starting up...")

	srv, err := server.NewServer(cfg, mailsyncDB, crmDB)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	log.Println("Shutdown complete")
	return nil
}

type commandRuntime struct {
	cfg      *config.Config
	log      logger.Logger
	repos    *repository.Repositories
	services *services.Services
	closer   io.Closer
}

func (r *commandRuntime) Close() {
	_ = r.services.Close()
	_ = r.closer.Close()
	_ = r.log.Sync()
}

func newRuntime() (*commandRuntime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	mailsyncDB, crmDB, err := openDatabases(cfg)
	if err != nil {
		return nil, err
	}
	appLogger, repos, svcs, closer, err := server.NewRuntime(cfg, mailsyncDB, crmDB)
	if err != nil {
		return nil, err
	}
	return &commandRuntime{cfg: cfg, log: appLogger, repos: repos, services: svcs, closer: closer}, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func syncOnce(c *cli.Context) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext(utils.SetAppSourceInContext(c.Context, "mailsync-cli"))
	defer cancel()

	var accounts []models.MailAccount
	if accountID := c.String("account"); accountID != "" {
		account, err := rt.repos.SettingsRepository.GetMailAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return mserrors.Wrapf(mserrors.ErrAccountNotFound, "account %s", accountID)
		}
		accounts = append(accounts, *account)
	} else {
		accounts, err = rt.repos.SettingsRepository.ListMailAccounts(ctx)
		if err != nil {
			return err
		}
	}

	dialer := imap.NewDialer(rt.cfg.SyncConfig)
	failed := 0
	for i := range accounts {
		account := &accounts[i]
		if !account.CanReceive() {
			rt.log.Warnf("skipping %s: incomplete imap settings", account.Email)
			continue
		}
		ctx := utils.SetAccountIdInContext(ctx, account.ID)
		session, err := dialer.Dial(ctx, account)
		if err != nil {
			failed++
			rt.log.Errorf("[%s] connect failed: %v", account.Email, err)
			continue
		}
		result, err := rt.services.SyncEngine.Sync(ctx, account, session)
		_ = session.Close()
		if err != nil {
			failed++
			rt.log.Errorf("[%s] sync failed: %v", account.Email, err)
			continue
		}
		printJSON(result)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d accounts failed to sync", failed, len(accounts))
	}
	return nil
}

func tickOnce(c *cli.Context) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext(utils.SetAppSourceInContext(c.Context, "mailsync-cli"))
	defer cancel()

	result, err := rt.services.Scheduler.Tick(ctx)
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("%+v", v)
		return
	}
	fmt.Println(string(out))
}

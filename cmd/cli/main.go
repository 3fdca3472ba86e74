package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/auth"
	"github.com/nimasrn/smm-storefront/internal/config"
	"github.com/nimasrn/smm-storefront/internal/feed"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"github.com/nimasrn/smm-storefront/pkg/redis"
)

const usage = `usage: cli <command> [--env=path] [options]

commands:
  migrate      [--dir=./migrations] [--cmd=up|down|redo|status|version]
  grant-admin  --user=<uuid>
  issue-token  --user=<uuid> --email=<email> [--ttl=24h]
  set-provider --name=<provider> --url=<api url> --key=<api key>
  watch        --user=<uuid>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		err = migrate()
	case "grant-admin":
		err = grantAdmin()
	case "issue-token":
		err = issueToken()
	case "set-provider":
		err = setProvider()
	case "watch":
		err = watch()
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func writeConfig() pg.Config {
	return pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}
}

func openDB() (*pg.DB, error) {
	conn, err := pg.Create(writeConfig(), false)
	if err != nil {
		return nil, err
	}
	return pg.New(conn, conn), nil
}

// main.go migrate --dir=./migrations
func migrate() error {
	return pg.Migrate(writeConfig(), getMigrationPath(), argValue("cmd"))
}

func grantAdmin() error {
	userID, err := uuid.Parse(argValue("user"))
	if err != nil {
		return fmt.Errorf("--user: %w", err)
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	if err := repository.NewProfileRepository(db).GrantRole(context.Background(), userID, model.RoleAdmin); err != nil {
		return err
	}
	logger.Info("admin role granted", "user_id", userID)
	return nil
}

// issueToken signs a token with the configured secret for local testing.
func issueToken() error {
	userID, err := uuid.Parse(argValue("user"))
	if err != nil {
		return fmt.Errorf("--user: %w", err)
	}
	ttl := 24 * time.Hour
	if v := argValue("ttl"); v != "" {
		if ttl, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("--ttl: %w", err)
		}
	}
	token, err := auth.Issue(auth.Config{
		Secret:   config.Get().JwtSecret,
		Issuer:   config.Get().JwtIssuer,
		Audience: config.Get().JwtAudience,
	}, userID, argValue("email"), ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func setProvider() error {
	cred := &model.APICredential{
		Provider: argValue("name"),
		APIURL:   argValue("url"),
		APIKey:   argValue("key"),
	}
	if cred.Provider == "" || cred.APIURL == "" || cred.APIKey == "" {
		return fmt.Errorf("--name, --url and --key are required")
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	if err := repository.NewCredentialRepository(db).Upsert(context.Background(), cred); err != nil {
		return err
	}
	logger.Info("provider credentials stored", "provider", cred.Provider, "url", cred.APIURL)
	return nil
}

// watch prints a user's orders and then every change pushed on the feed.
// The list is pulled again after each reconnect since changes published
// while disconnected are not replayed.
func watch() error {
	userID, err := uuid.Parse(argValue("user"))
	if err != nil {
		return fmt.Errorf("--user: %w", err)
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	adapter, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "storefront-cli",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orders := repository.NewOrderRepository(db)
	subscriber := feed.NewSubscriber(adapter)
	tracker := feed.NewTracker()

	for ctx.Err() == nil {
		sub, err := subscriber.Subscribe(ctx, userID)
		if err != nil {
			logger.Warn("feed unavailable, retrying", "error", err)
			sleep(ctx, 2*time.Second)
			continue
		}

		views, _, err := orders.ListByUser(ctx, userID, 1000, 0)
		if err != nil {
			_ = sub.Close()
			return err
		}
		tracker.Reset(views)
		for _, o := range tracker.Snapshot() {
			printOrder(o)
		}

		for change := range sub.Events() {
			applied, known := tracker.Apply(change)
			if !known {
				// placed after the pull; fetch it with the next list
				if views, _, err := orders.ListByUser(ctx, userID, 1000, 0); err == nil {
					tracker.Reset(views)
				}
				if o, ok := tracker.Get(change.OrderID); ok {
					printOrder(o)
				}
				continue
			}
			if applied {
				o, _ := tracker.Get(change.OrderID)
				printOrder(o)
			}
		}
		_ = sub.Close()
	}
	return nil
}

func printOrder(o *model.OrderView) {
	apiOrder := "-"
	if o.APIOrderID != nil {
		apiOrder = *o.APIOrderID
	}
	fmt.Printf("%s  %-10s  %-24s  qty=%-6d  amount=%-10s  api=%s\n",
		o.CreatedAt.Format(time.RFC3339), o.Status, o.ServiceName, o.Quantity, o.Amount.StringFixed(2), apiOrder)
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func argValue(name string) string {
	prefix := "--" + name + "="
	for _, v := range os.Args {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return ""
}

func getEnvPath() string {
	if path := argValue("env"); path != "" {
		if _, err := os.Stat(path); err != nil {
			logger.Error("failed to open the passed env file, got error" + err.Error())
			return ""
		}
		return path
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	if dir := argValue("dir"); dir != "" {
		return dir
	}
	return "./migrations"
}

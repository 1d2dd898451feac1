package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"stockwatch/internal/analytics"
	"stockwatch/internal/audit"
	"stockwatch/internal/auth"
	"stockwatch/internal/config"
	"stockwatch/internal/csvupload"
	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/notify"
	"stockwatch/internal/purchasing"
	"stockwatch/internal/server"
	"stockwatch/internal/supplier"
	"stockwatch/internal/tokens"
	"stockwatch/internal/waitlist"
	"stockwatch/internal/websocket"
)

// tokenRetention is how long expired links are kept for the admin token list.
const tokenRetention = 30 * 24 * time.Hour

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal("config: ", err)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("DB init failed: ", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := buildTransports(ctx, cfg, db)
	if err != nil {
		log.Fatal(err)
	}
	app := newApp(db, cfg, t)
	if err := bootstrap(ctx, app, cfg); err != nil {
		log.Fatal("bootstrap: ", err)
	}

	go app.License.Run(ctx, 24*time.Hour, func(ctx context.Context) {
		maintenance(ctx, app, cfg)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           routes(app),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("StockWatch server starting on http://localhost%s (base URL %s)", srv.Addr, cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	app.Waitlist.Wait()
}

// transports are the outbound integrations chosen by configuration.
type transports struct {
	Mailer   notify.Mailer
	Channels notify.ChannelSender
	Docs     purchasing.DocumentStore
}

func buildTransports(ctx context.Context, cfg *config.Config, db *sql.DB) (*transports, error) {
	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
	}

	from := notify.From{Name: cfg.FromName, Address: cfg.FromAddress}
	var mailer notify.Mailer
	switch cfg.Mailer {
	case "smtp":
		mailer = &notify.SMTPMailer{Host: cfg.SMTP.Host, Port: cfg.SMTP.Port, User: cfg.SMTP.User, Password: cfg.SMTP.Password, From: from}
	case "ses":
		mailer = notify.NewSESMailer(awsCfg, from, cfg.ReplyTo)
	default:
		mailer = notify.LogMailer{}
	}
	log.Printf("notify: using %s mailer", cfg.Mailer)

	channels := &notify.Channels{DB: db, Senders: map[string]notify.ChannelSender{}, Fallback: notify.LogSender{}}
	if cfg.SMSEnabled {
		channels.Senders["sms"] = notify.NewSNSSender(awsCfg, cfg.SMSSenderID)
	}

	var docs purchasing.DocumentStore = &purchasing.LocalStore{Dir: cfg.DocDir}
	if cfg.DocStore == "s3" {
		docs = purchasing.NewS3Store(awsCfg, cfg.S3Bucket, cfg.S3Prefix)
	}

	return &transports{
		Mailer:   &notify.LoggingMailer{DB: db, Next: mailer},
		Channels: channels,
		Docs:     docs,
	}, nil
}

// newApp constructs and wires every service.
func newApp(db *sql.DB, cfg *config.Config, t *transports) *server.App {
	hub := websocket.NewHub()
	settings := &database.Settings{DB: db}
	products := database.NewProductStore(db)
	lic := license.NewManager(settings, cfg.DefaultPro)
	notifier := notify.New(t.Mailer, settings)
	tok := tokens.New(db, cfg.BaseURL)

	sup := supplier.New(db, products, settings, notifier, t.Channels, tok, lic, hub)
	sup.DefaultThreshold = cfg.DefaultThreshold
	products.Subscribe(sup)

	wl := waitlist.New(db, products, notifier, hub, sup, cfg.BaseURL)
	po := purchasing.New(db, products, sup, settings, notifier, t.Docs, hub)
	sup.PO = po

	return &server.App{
		DB:         db,
		Hub:        hub,
		Settings:   settings,
		Products:   products,
		License:    lic,
		Auth:       auth.NewManager(db),
		Notifier:   notifier,
		Channels:   t.Channels,
		Tokens:     tok,
		Waitlist:   wl,
		Suppliers:  sup,
		Purchasing: po,
		CSV:        &csvupload.Processor{Products: products, Waitlist: wl, Hub: hub},
		Analytics:  analytics.New(db),
	}
}

// bootstrap seeds runtime settings from configuration, creates the first
// admin account and applies a configured license key.
func bootstrap(ctx context.Context, app *server.App, cfg *config.Config) error {
	defaults := map[string]string{
		database.KeySiteName:        cfg.SiteName,
		database.KeyGlobalThreshold: strconv.Itoa(cfg.DefaultThreshold),
		database.KeyTokenExpiryDays: strconv.Itoa(cfg.TokenExpiryDays),
		database.KeyPOPrefix:        cfg.POPrefix,
	}
	for k, v := range defaults {
		if err := app.Settings.SetDefault(ctx, k, v); err != nil {
			return fmt.Errorf("seed %s: %w", k, err)
		}
	}

	password := cfg.AdminPassword
	generated := password == ""
	if generated {
		var err error
		if password, err = tokens.GenerateToken(); err != nil {
			return err
		}
		// Hex is lower case and digits only; add the classes the policy wants.
		password = "Sw-" + password[:20]
	}
	created, err := app.Auth.EnsureAdmin(ctx, cfg.AdminUsername, password)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	if created && generated {
		path := adminPasswordPath(cfg)
		if err := os.WriteFile(path, []byte(password+"\n"), 0o600); err != nil {
			return fmt.Errorf("write admin password: %w", err)
		}
		log.Printf("auth: generated password for %q written to %s (change it after first login, then delete the file)", cfg.AdminUsername, path)
	}

	if cfg.LicenseKey != "" {
		if _, err := app.License.Activate(ctx, cfg.LicenseKey); err != nil {
			log.Printf("license: configured key rejected: %v", err)
		}
	}
	f := app.License.Resolve(ctx)
	log.Printf("license: status %s (pro=%v)", f.Status, f.Pro)
	return nil
}

// adminPasswordPath is where a generated admin password is written, next to
// the database.
func adminPasswordPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.DBPath), "admin-password.txt")
}

// maintenance runs after each daily license check.
func maintenance(ctx context.Context, app *server.App, cfg *config.Config) {
	if n, err := app.Tokens.Purge(ctx, tokenRetention); err != nil {
		log.Printf("tokens: purge failed: %v", err)
	} else if n > 0 {
		log.Printf("tokens: purged %d expired links", n)
	}
	if cfg.AuditRetentionDays > 0 {
		if n, err := audit.CleanupOldAuditLogs(app.DB, cfg.AuditRetentionDays); err != nil {
			log.Printf("audit: cleanup failed: %v", err)
		} else if n > 0 {
			log.Printf("audit: removed %d entries older than %d days", n, cfg.AuditRetentionDays)
		}
	}
}

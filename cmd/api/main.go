package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harentsoaR/clinic-api/internal/config"
	"github.com/harentsoaR/clinic-api/internal/handlers"
	"github.com/harentsoaR/clinic-api/internal/logger"
	"github.com/harentsoaR/clinic-api/internal/middleware"
	"github.com/harentsoaR/clinic-api/internal/services"
	"github.com/harentsoaR/clinic-api/internal/store"
	"github.com/harentsoaR/clinic-api/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, relying on environment variables.")
	}

	rootCmd := &cobra.Command{
		Use:          "clinic-api",
		Short:        "DocClinic booking API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(remindCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Email reminders for today's confirmed appointments and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.reminders.SendDue(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Reminders due: %d, sent: %d, failed: %d\n", report.Due, report.Sent, report.Failed)
			return nil
		},
	}
}

type app struct {
	cfg       *config.Config
	log       *zap.Logger
	store     store.Store
	handler   *handlers.Handler
	reminders *services.ReminderService
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	sugar := log.Sugar()

	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sugar.Infow("record store ready", "driver", cfg.StoreDriver)

	if !cfg.MailConfigured() {
		sugar.Warn("SMTP credentials not set, notification emails will not be delivered")
	}
	sender := services.NewGomailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	notifier := services.NewNotificationService(sender, services.NotificationConfig{
		ClinicEmail:   cfg.ClinicEmail,
		ClinicName:    cfg.ClinicName,
		DefaultDoctor: cfg.DefaultDoctor,
		BaseURL:       cfg.APIURL,
	}, sugar.Named("mail"))

	google := utils.NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleJWKSURL)
	identity := services.NewIdentityService(st, google, cfg.JWTSecret, sugar.Named("identity"))
	appointments := services.NewAppointmentService(st, st, notifier, cfg.DefaultDoctor, sugar.Named("appointments"))

	return &app{
		cfg:       cfg,
		log:       log,
		store:     st,
		handler:   handlers.NewHandler(identity, appointments, cfg.ClinicName, sugar.Named("http")),
		reminders: services.NewReminderService(st, st, notifier, sugar.Named("reminders")),
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return store.NewMongoStore(cctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return store.NewFileStore(cfg.DataDir)
	}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.Close(ctx); err != nil {
		a.log.Warn("close store", zap.Error(err))
	}
	_ = a.log.Sync()
}

func runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.ReminderSchedule != "" {
		c, err := a.reminders.Schedule(a.cfg.ReminderSchedule)
		if err != nil {
			return err
		}
		defer c.Stop()
	}

	if !a.cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := handlers.NewRouter(a.handler, handlers.RouterConfig{
		CORSOrigins:    a.cfg.CORSOrigins,
		TrustedProxies: a.cfg.TrustedProxies,
		Limiter:        middleware.NewRateLimiter(a.cfg.RateLimitRPS, a.cfg.RateLimitBurst),
		Logger:         a.log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("DocClinic backend listening",
			zap.String("port", a.cfg.Port),
			zap.String("clinicEmail", a.cfg.ClinicEmail),
			zap.String("store", a.cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

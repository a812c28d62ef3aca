package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/jackc/pgx/v5/stdlib"

	"scheduling-service/internal/api"
	"scheduling-service/internal/events"
	"scheduling-service/internal/notifier"
	"scheduling-service/internal/ratelimit"
	"scheduling-service/internal/repository"
	"scheduling-service/internal/service"
	"scheduling-service/internal/tracing"
	_ "scheduling-service/migrations"
)

func main() {
	if err := godotenv.Load(".env.dev"); err != nil {
		fmt.Println("No .env.dev file found, reading from environment variables provided by Docker")
	}

	api.SetupGlobalHandler("scheduling-service")

	shutdownTracer, err := tracing.InitTracerProvider("scheduling-service")
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		}
	}()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		handleMigrations()
		return
	}

	db := connectDB()
	defer db.Close()

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}
	eventPublisher, err := events.NewNatsPublisher(natsURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	log.Println("Successfully connected to NATS.")

	// appURL is where the RSVP links in emails point (this service);
	// webURL is where link clicks are redirected to afterwards.
	appURL := getEnv("APP_PUBLIC_URL", "http://localhost:8001")
	webURL := getEnv("WEB_URL", "http://localhost:3000")

	var sender notifier.Sender
	if apiKey := os.Getenv("RESEND_API_KEY"); apiKey != "" {
		sender = notifier.NewResendSender(apiKey, getEnv("MAIL_FROM", "sessions@example.com"))
	} else {
		log.Println("RESEND_API_KEY not set. Email sender will run in MOCK mode.")
		sender = notifier.NewLogSender()
	}

	userRepo := repository.NewPostgresUserRepository(db)
	tokenRepo := repository.NewPostgresTokenRepository(db)
	sessionRepo := repository.NewPostgresSessionRepository(db)

	authService := service.NewAuthService(userRepo, tokenRepo)
	sessionService := service.NewSessionService(sessionRepo, sender, eventPublisher, appURL)
	rsvpService := service.NewRSVPService(sessionRepo, sender, eventPublisher, appURL)

	authHandler := api.NewAuthHandler(authService)
	sessionHandler := api.NewSessionHandler(sessionService, rsvpService)
	rsvpHandler := api.NewRSVPHandler(rsvpService, webURL)

	rsvpLimit := getEnvInt("RSVP_RATE_LIMIT", 20)
	rsvpWindowMs := getEnvInt("RSVP_RATE_WINDOW_MS", 60000)
	limiter := ratelimit.New(rsvpLimit, time.Duration(rsvpWindowMs)*time.Millisecond)
	defer limiter.Stop()

	app := fiber.New()
	app.Use(otelfiber.Middleware())
	app.Use(api.PrometheusMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": "scheduling-service"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/v1")

	authRoutes := v1.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/refresh", authHandler.Refresh)
	authRoutes.Post("/logout", authHandler.Logout)

	userRoutes := v1.Group("/users")
	userRoutes.Use(api.AuthMiddleware())
	userRoutes.Get("/me", authHandler.GetUserProfile)

	// Public link-click endpoints: no login, a valid token is the only
	// credential, so they get the per-IP rate limiter instead.
	v1.Get("/rsvp", api.RateLimitMiddleware(limiter, "rsvp"), rsvpHandler.Respond)
	v1.Get("/reschedule/respond", api.RateLimitMiddleware(limiter, "reschedule"), rsvpHandler.RespondToReschedule)

	sessionsRoutes := v1.Group("/sessions")
	sessionsRoutes.Use(api.AuthMiddleware())
	sessionsRoutes.Get("/", sessionHandler.ListUpcomingSessions)
	sessionsRoutes.Get("/history", sessionHandler.ListHistory)
	sessionsRoutes.Get("/:id", sessionHandler.GetSessionDetails)
	sessionsRoutes.Post("/", sessionHandler.CreateSession)
	sessionsRoutes.Post("/:id/cancel", sessionHandler.CancelSession)
	sessionsRoutes.Post("/:id/reschedule", sessionHandler.ProposeReschedule)

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8001"
	}

	log.Printf("Listening scheduling-service on port %s", port)
	log.Fatal(app.Listen(":" + port))
}

func connectDB() *sqlx.DB {
	db, err := sqlx.Connect("pgx", databaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Successfully connected to the database.")
	return db
}

func handleMigrations() {
	fmt.Println("Running database migrations...")

	db, err := sql.Open("pgx", databaseURL())
	if err != nil {
		log.Fatalf("failed to connect to database for migration: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("failed to set goose dialect: %v", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		log.Fatalf("goose: failed to run migrations: %v", err)
	}

	fmt.Println("Migrations applied successfully!")
}

func databaseURL() string {
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUser, dbPassword, dbHost, dbPort, dbName,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}

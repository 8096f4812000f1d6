package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"tawsil-backend/internal/database"
	"tawsil-backend/internal/dispatch"
	"tawsil-backend/internal/events"
	"tawsil-backend/internal/handlers"
	"tawsil-backend/internal/jobs"
	"tawsil-backend/internal/middleware"
	"tawsil-backend/internal/models"
	"tawsil-backend/internal/services"
	"tawsil-backend/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 TAWSIL DISPATCH SERVER STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	// Load .env file
	log.Println("📂 Loading environment variables...")
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables from system")
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("❌ DATABASE_URL environment variable is required")
	}

	// Connect to database
	log.Println("🔌 Connecting to database...")
	db, err := database.Connect(dbURL)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer db.Close()
	log.Println("✅ Database connection established")

	// Run migrations
	log.Println("🔄 Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("❌ Database migrations failed: %v", err)
	}
	log.Println("✅ Database migrations completed")

	// Seed database
	log.Println("🌱 Seeding database with initial data...")
	if err := database.SeedUsers(db); err != nil {
		log.Fatalf("❌ User seeding failed: %v", err)
	}
	log.Println("✅ Users seeded successfully")

	orderStore := database.NewOrderStore(db)
	driverStore := database.NewDriverStore(db)

	// Initialize Firebase Cloud Messaging for new-order offers.
	// Supports both file path and base64-encoded credentials (cloud deployments).
	var fcmService *services.FCMService
	if fcmCredsBase64 := os.Getenv("FIREBASE_CREDENTIALS_BASE64"); fcmCredsBase64 != "" {
		fcmService, err = services.NewFCMServiceFromBase64(fcmCredsBase64, driverStore)
		if err != nil {
			log.Printf("⚠️  Failed to initialize FCM from base64: %v (push notifications disabled)", err)
			fcmService = nil
		} else {
			log.Println("✅ Firebase Cloud Messaging initialized from base64 credentials")
		}
	} else {
		fcmCredentialsFile := os.Getenv("FIREBASE_CREDENTIALS_FILE")
		if fcmCredentialsFile == "" {
			fcmCredentialsFile = "./firebase-service-account.json"
		}
		fcmService, err = services.NewFCMService(fcmCredentialsFile, driverStore)
		if err != nil {
			log.Printf("⚠️  Failed to initialize FCM from file: %v (push notifications disabled)", err)
			fcmService = nil
		} else {
			log.Println("✅ Firebase Cloud Messaging initialized from file")
		}
	}

	// Initialize Kafka audit stream. Optional: lifecycle writes never depend on it.
	var auditPublisher *events.SaramaPublisher
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		auditPublisher, err = events.NewSaramaPublisher(strings.Split(brokers, ","))
		if err != nil {
			log.Printf("⚠️  Failed to connect Kafka audit stream: %v (audit disabled)", err)
			auditPublisher = nil
		} else {
			defer auditPublisher.Close()
			log.Println("✅ Kafka audit stream connected")
		}
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()
	log.Println("✅ WebSocket hub started")

	// Coordinator owns every order lifecycle write.
	var audit dispatch.AuditPublisher
	if auditPublisher != nil {
		audit = auditPublisher
	}
	var push dispatch.OfferNotifier
	if fcmService != nil {
		push = fcmService
	}
	coordinator := dispatch.NewCoordinator(orderStore, wsHub, audit, push)

	routeInfo := services.NewRouteInfoClient()

	// Stale location sweeper: clears tracked positions that stopped updating.
	staleAfter := 2 * time.Minute
	if raw := os.Getenv("TRACK_STALE_AFTER"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			staleAfter = parsed
		} else {
			log.Printf("⚠️  Invalid TRACK_STALE_AFTER %q, using %s", raw, staleAfter)
		}
	}
	scheduler := cron.New()
	if err := jobs.NewStaleLocationJob(orderStore, staleAfter).Register(scheduler); err != nil {
		log.Fatalf("❌ Failed to register stale location job: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Printf("✅ Stale location sweeper running (threshold %s)", staleAfter)

	// Create router
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Authentication routes (no auth required)
	r.Post("/api/auth/login", handlers.Login(db))

	// WebSocket endpoint (authentication handled in handler via query param;
	// anonymous connections get the viewer role for public tracking)
	r.Get("/ws", websocket.HandleWebSocket(wsHub, orderStore, coordinator))

	r.Route("/api", func(r chi.Router) {
		// Public customer surface
		r.Post("/public/order/submit", handlers.SubmitOrder(coordinator))
		r.Get("/public/order/track/{orderNumber}", handlers.TrackOrder(orderStore))
		r.Patch("/orders/{orderNumber}/rate", handlers.RateOrder(coordinator))
		r.Post("/orders/route-info", handlers.GetRouteInfo(routeInfo))

		// Driver surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth)
			r.Use(middleware.RequireRole(models.RoleDriver))
			r.Get("/orders/pending", handlers.PendingOrders(orderStore))
			r.Post("/orders/accept", handlers.AcceptOrder(coordinator))
			r.Post("/orders/complete", handlers.CompleteOrder(coordinator))
			r.Post("/driver/availability", handlers.SetAvailability(driverStore))
			r.Post("/driver/fcm-token", handlers.RegisterFCMToken(driverStore))
		})

		// Staff surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth)
			r.Use(middleware.RequireRole(models.RoleStaff, models.RoleAdmin))
			r.Get("/orders", handlers.ListOrders(orderStore))
			r.Put("/orders/{orderNumber}", handlers.UpdateOrderStatus(coordinator))
			r.Delete("/orders/{orderNumber}", handlers.DeleteOrder(coordinator))
			r.Get("/manager/drivers", handlers.GetAllDrivers(driverStore))
			r.Get("/manager/active-drivers", handlers.GetActiveDrivers(driverStore))
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Printf("🚀 Server listening on port %s", port)
	log.Println("═══════════════════════════════════════════════════════════════════")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal(err)
	}
}

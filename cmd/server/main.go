package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/medivuno/medivuno-backend/internal/channel"
	"github.com/medivuno/medivuno-backend/internal/config"
	"github.com/medivuno/medivuno-backend/internal/database"
	"github.com/medivuno/medivuno-backend/internal/handlers"
	"github.com/medivuno/medivuno-backend/internal/middleware"
	"github.com/medivuno/medivuno-backend/internal/routes"
	"github.com/medivuno/medivuno-backend/internal/services"
	"github.com/medivuno/medivuno-backend/internal/session"
	"github.com/medivuno/medivuno-backend/internal/store"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	// Connect to PostgreSQL
	log.Printf("Connecting to PostgreSQL...")
	db, err := database.ConnectPostgres(cfg.PostgresURI)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer db.Close()

	// Connect to Redis
	log.Printf("Connecting to Redis...")
	rdb, err := database.ConnectRedis(cfg.RedisURI)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Wire the chat core: store → query service → event channel
	messageStore := store.NewMessageStore(db)
	conversationQueries := store.NewConversationQueries(messageStore)
	recentCache := store.NewRecentCache(rdb)
	// WebSocket sessions write through this decorator so the cached
	// conversation tails stay coherent with WS-path sends and mark-reads.
	cachedMessages := store.NewCachedMessages(messageStore, recentCache)
	eventChannel := channel.New(rdb)

	// Narrow interfaces to external collaborators
	sessionService := services.NewSessionService(rdb)
	presenceService := services.NewPresenceService(rdb)
	contactDirectory := services.NewContactDirectory(db)

	// Cloudinary for message attachments
	var cloudinaryService *services.CloudinaryService
	if cfg.CloudinaryName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cloudinaryService, err = services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v", err)
			log.Println("File uploads will not be available")
			cloudinaryService = nil
		} else {
			log.Println("✅ Cloudinary service initialized")
		}
	} else {
		log.Println("Warning: Cloudinary credentials not found. File uploads will not be available")
	}

	h := routes.Handlers{
		ChatWS:   handlers.NewChatWSHandler(sessionService, presenceService, cachedMessages, session.WrapChannel(eventChannel)),
		ChatHTTP: handlers.NewChatHTTPHandler(sessionService, presenceService, contactDirectory, messageStore, conversationQueries, recentCache, eventChannel),
		Upload:   handlers.NewUploadHandler(sessionService, cloudinaryService),
	}

	// Setup router
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity() {
			r.Use(mw)
		}
		log.Println("✅ Production security enabled (security headers, per-IP rate limiting)")
	}
	r.Use(middleware.ChatReadRateLimit)

	// Health check (no rate limit)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	routes.SetupRoutes(r, h)

	log.Println("📋 Registered routes:")
	log.Println("  GET  /health")
	log.Println("  GET  /api/chat/ws")
	log.Println("  GET  /api/chat/history")
	log.Println("  GET  /api/chat/conversations")
	log.Println("  GET  /api/chat/unread")
	log.Println("  POST /api/chat/messages")
	log.Println("  POST /api/chat/read")
	log.Println("  POST /api/upload")

	log.Printf("🚀 Medivuno chat backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

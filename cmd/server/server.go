package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/velimir/roomcast/internal/database"
	"github.com/velimir/roomcast/internal/handlers"
	"github.com/velimir/roomcast/internal/logging"
	"github.com/velimir/roomcast/internal/scheduler"
	"github.com/velimir/roomcast/internal/store"
	ws "github.com/velimir/roomcast/internal/websocket"
)

type Server struct {
	Router    *gin.Engine
	Hub       *ws.Hub
	Scheduler *scheduler.Scheduler
	Logger    *zap.Logger
}

func NewServer() *Server {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			// Environment variables only.
		}
	}

	logger, err := logging.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}

	roomStore := selectStore(logger)
	journal := selectJournal(logger)

	hub := ws.NewHub(logger)
	sched := scheduler.New(roomStore, hub, journal, logger)

	if err := sched.Recover(context.Background()); err != nil {
		logger.Warn("pending delivery recovery failed", zap.Error(err))
	}
	if journal == nil {
		logger.Warn("no recovery journal configured, scheduled messages will not survive a restart")
	}

	chatH := handlers.NewChatHandler(roomStore, sched, hub, logger)
	wsH := handlers.NewWebSocketHandler(hub, chatH, logger)

	router := gin.Default()
	APIEndpoints(router, wsH)

	return &Server{
		Router:    router,
		Hub:       hub,
		Scheduler: sched,
		Logger:    logger,
	}
}

// selectStore picks the durable store when DATABASE_URL is set, the
// in-memory one otherwise. Both behave identically to callers.
func selectStore(logger *zap.Logger) store.RoomStore {
	if os.Getenv("DATABASE_URL") == "" {
		logger.Info("using in-memory room store")
		return store.NewMemoryStore()
	}

	db := &database.Database{}
	if err := db.Connect(); err != nil {
		logger.Fatal("postgres connect failed", zap.Error(err))
	}
	logger.Info("using postgres room store")
	return db
}

func selectJournal(logger *zap.Logger) scheduler.Journal {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Fatal("invalid REDIS_URL", zap.Error(err))
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("redis connect failed", zap.Error(err))
	}
	logger.Info("using redis delivery journal")
	return scheduler.NewRedisJournal(rdb)
}

func (s *Server) Run() {
	go s.Hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Scheduler.Run(ctx)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	s.Logger.Info("server starting", zap.String("port", port))
	if err := s.Router.Run(":" + port); err != nil {
		s.Logger.Fatal("server run error", zap.Error(err))
	}
}

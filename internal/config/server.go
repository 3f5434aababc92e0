package config

import (
	"EmotionLens/database/postgres"
	emotionHandler "EmotionLens/internal/api/emotion/handler"
	emotionRepository "EmotionLens/internal/api/emotion/repository"
	emotionService "EmotionLens/internal/api/emotion/service"
	"EmotionLens/internal/middleware"
	"EmotionLens/pkg/detector"
	"EmotionLens/pkg/redis"
	"EmotionLens/pkg/s3"
	"EmotionLens/pkg/utils"
	"EmotionLens/web"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"os"
	"strconv"
	"time"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	db          *sqlx.DB
	log         *logrus.Logger
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	handlers    []handler
	redisServer redis.IRedis
	s3Client    s3.ItfS3
	detector    *detector.Lazy
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log)
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.utils == nil {
		server.utils = utils.New()
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

// WithDatabase connects to Postgres when HISTORY_ENABLED is true. Without it
// the history endpoints answer 503.
func WithDatabase() ServerOption {
	return func(s *Server) error {
		if !envBool("HISTORY_ENABLED") {
			return nil
		}

		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		s.db = db
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		if redisServer != nil {
			s.redisServer = redisServer
		}
		return nil
	}
}

func WithDetector(emotionDetector *detector.Lazy) ServerOption {
	return func(s *Server) error {
		s.detector = emotionDetector
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

// WithS3Client archives annotated results when RESULT_ARCHIVE_ENABLED is true.
func WithS3Client() ServerOption {
	return func(s *Server) error {
		if !envBool("RESULT_ARCHIVE_ENABLED") {
			return nil
		}

		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	var repo emotionRepository.Repository
	if s.db != nil {
		repo = emotionRepository.New(s.db, s.log)
	}

	var emotionDetector detector.IEmotionDetector
	if s.detector != nil {
		emotionDetector = s.detector
		go func() {
			if err := s.detector.Warm(); err != nil {
				s.log.Errorf("Emotion detector %q failed to load: %v", s.detector.Name(), err)
			}
		}()
	}

	emotionServices := emotionService.NewEmotionService(
		s.log,
		emotionDetector,
		s.redisServer,
		repo,
		s.s3Client,
		s.utils,
		emotionService.OptionsFromEnv(),
	)
	emotionHandlers := emotionHandler.New(s.log, s.validator, s.middleware, emotionServices, s.utils)

	s.handlers = append(s.handlers, emotionHandlers)
}

// Mount installs middleware and every route on the engine without listening.
func (s *Server) Mount() {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}

	s.setupHealthCheck()
	s.engine.Get("/", web.Handler())
}

func (s *Server) Run() error {
	s.Mount()

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

func (s *Server) Shutdown() error {
	err := s.engine.ShutdownWithTimeout(10 * time.Second)

	if s.detector != nil {
		s.detector.Close()
	}
	if s.db != nil {
		if dbErr := s.db.Close(); dbErr != nil {
			s.log.Errorf("Failed to close database: %v", dbErr)
		}
	}

	return err
}

func (s *Server) setupHealthCheck() {
	detectorName := "none"
	if s.detector != nil {
		detectorName = s.detector.Name()
	}

	s.engine.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message":  "Server is Healthy!",
			"detector": detectorName,
			"cache":    s.redisServer != nil,
			"history":  s.db != nil,
			"archive":  s.s3Client != nil,
		})
	})
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/config"
	"challenge-service/internal/domain"
	"challenge-service/internal/generator"
	"challenge-service/internal/infra/memory"
	pgstore "challenge-service/internal/infra/postgres"
	"challenge-service/internal/infra/rabbit"
	redisstore "challenge-service/internal/infra/redis"
	transport "challenge-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the challenge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 30*time.Minute)

	var pool *pgxpool.Pool
	var db *bun.DB
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		db = bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL))), pgdialect.New())
		defer db.Close()
	}

	var loader memory.CourseLoader = memory.NewStaticCourseLoader(sampleCourses())
	var users app.UserSource = memory.NewStaticUserSource(sampleUsers()...)
	var results app.ResultSink = memory.NewResultStore()
	if pool != nil {
		loader = pgstore.NewCourseLoader(pool)
		users = pgstore.NewUserSource(pool)
		results = pgstore.NewResultRepository(db)
	}

	courseTTL := config.Duration(cfg.Course.TTL, 10*time.Minute)
	var courses app.CourseSource
	var rooms app.RoomRepository
	if redisClient != nil {
		courses = redisstore.NewCourseRepository(redisClient, loader, courseTTL)
		rooms = redisstore.NewRoomStore(redisClient, redisTTL)
	} else {
		courses = memory.NewCourseRepository(loader, courseTTL)
		rooms = memory.NewRoomStore()
	}

	if cfg.Rabbit.URL != "" {
		exchange := cfg.Rabbit.Exchange
		if exchange == "" {
			exchange = rabbit.DefaultExchange
		}
		conn, ch, err := rabbit.Connect(cfg.Rabbit.URL, exchange)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer ch.Close()
		results = rabbit.NewResultPublisher(results, ch, exchange)
	}

	gen := generator.New(generator.Config{
		APIURL:  cfg.Generator.APIURL,
		Model:   cfg.Generator.Model,
		APIKey:  cfg.GeneratorAPIKey(),
		Timeout: config.Duration(cfg.Generator.Timeout, 60*time.Second),
	})

	opts := app.DefaultOptions()
	if cfg.Generator.QuestionCount > 0 {
		opts.QuestionCount = cfg.Generator.QuestionCount
	}
	opts.QuestionTimeLimit = config.Duration(cfg.Challenge.QuestionTimeLimit, opts.QuestionTimeLimit)
	opts.RoundDelay = config.Duration(cfg.Challenge.RoundDelay, opts.RoundDelay)
	opts.GraceWindow = config.Duration(cfg.Challenge.GraceWindow, opts.GraceWindow)
	opts.RoundTimeout = config.Duration(cfg.Challenge.RoundTimeout, 0)
	opts.AbandonAfter = config.Duration(cfg.Challenge.AbandonAfter, 0)
	opts.PendingTTL = config.Duration(cfg.Challenge.PendingTTL, 0)

	service := app.NewChallengeService(app.Deps{
		Rooms:     rooms,
		Presence:  memory.NewPresence(),
		Courses:   courses,
		Users:     users,
		Generator: gen,
		Results:   results,
	}, opts)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	if opts.PendingTTL > 0 {
		interval := opts.PendingTTL / 4
		if interval < time.Second {
			interval = time.Second
		}
		go service.RunJanitor(janitorCtx, interval)
	}

	wsHandler := transport.NewWSHandler(service)
	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(service, wsHandler),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting challenge service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	stopJanitor()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	service.Wait()
	return err
}

// sampleCourses provides demo content; the Postgres loader replaces it when a database is configured.
func sampleCourses() map[string]domain.Course {
	return map[string]domain.Course{
		"go-101": {
			ID:    "go-101",
			Title: "Go Fundamentals",
			Lessons: []domain.Lesson{
				{
					Title:   "Goroutines",
					Content: "A goroutine is a lightweight thread managed by the Go runtime. Start one with the go keyword.",
					Points:  []string{"goroutines are started with the go keyword", "the runtime multiplexes goroutines onto OS threads"},
				},
				{
					Title:   "Channels",
					Content: "Channels are typed conduits between goroutines. An unbuffered send blocks until a receiver is ready.",
					Points:  []string{"unbuffered sends block until received", "closing a channel signals no more values"},
				},
				{
					Title:   "Errors",
					Content: "Errors are values. Wrap them with fmt.Errorf and %w and inspect them with errors.Is.",
					Points:  []string{"errors.Is matches wrapped sentinel errors"},
				},
			},
		},
	}
}

func sampleUsers() []domain.User {
	return []domain.User{
		{ID: "u1", FirstName: "Alice", LastName: "Martin"},
		{ID: "u2", FirstName: "Bruno", LastName: "Costa"},
		{ID: "u3", FirstName: "Chen", LastName: "Wei"},
	}
}

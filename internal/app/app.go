// Package app はサブコマンドごとの依存関係の組み立てと起動を行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/notekeeper/internal/auth"
	"github.com/hitoshi/notekeeper/internal/config"
	"github.com/hitoshi/notekeeper/internal/database"
	"github.com/hitoshi/notekeeper/internal/events"
	"github.com/hitoshi/notekeeper/internal/handler"
	"github.com/hitoshi/notekeeper/internal/logger"
	"github.com/hitoshi/notekeeper/internal/metrics"
	"github.com/hitoshi/notekeeper/internal/middleware"
	"github.com/hitoshi/notekeeper/internal/note"
	"github.com/hitoshi/notekeeper/internal/repository"
	"github.com/hitoshi/notekeeper/internal/user"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck と client は軽量サブコマンドのため、フル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandClient:
		logger.SetupDefault(os.Stderr, slog.LevelWarn)
		return runClient(context.Background(), w, args[1:])
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_driver", cfg.StoreDriver),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// stores はストレージドライバに応じて選択したリポジトリと疎通確認先。
type stores struct {
	users  repository.UserRepository
	notes  repository.NoteRepository
	health handler.HealthChecker
	close  func() error
}

// openStores はSTORE_DRIVERに応じてストアに接続し、リポジトリを初期化する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, db, err := database.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		slog.Info("mongo connection established", slog.String("database", cfg.MongoDatabase))
		return &stores{
			users:  repository.NewMongoUserRepo(db),
			notes:  repository.NewMongoNoteRepo(db),
			health: database.MongoPinger{Client: client},
			close:  func() error { return client.Disconnect(context.Background()) },
		}, nil

	default:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return &stores{
			users:  repository.NewPostgresUserRepo(db),
			notes:  repository.NewPostgresNoteRepo(db),
			health: db,
			close:  db.Close,
		}, nil
	}
}

// newPublisher はKafkaブローカーが設定されていればKafkaPublisherを、なければ何もしないPublisherを返す。
func newPublisher(cfg *config.Config, recorder events.Recorder) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		slog.Info("note events disabled (KAFKA_BROKERS not set)")
		return events.NopPublisher{}
	}
	slog.Info("publishing note events to kafka",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.String("topic", cfg.KafkaTopic),
	)
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, recorder)
}

// runServe はAPIサーバーモードで起動する。
// ストアに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ストア接続
	st, err := openStores(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			slog.Warn("failed to close store", slog.String("error", err.Error()))
		}
	}()

	// 2. メトリクスとイベント発行
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	publisher := newPublisher(cfg, collector)
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("failed to close event publisher", slog.String("error", err.Error()))
		}
	}()

	// 3. ドメインサービスの初期化
	tokens := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:   cfg.JWTSecret,
		TTL:      cfg.TokenTTL,
		Issuer:   cfg.TokenIssuer,
		Audience: cfg.TokenAudience,
	})
	googleProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		st.users, tokens, collector,
		auth.ServiceConfig{FrontendURL: cfg.FrontendURL},
		googleProvider,
	)
	noteService := note.NewService(st.notes, publisher, collector)
	userService := user.NewService(st.users, st.notes, publisher, collector)

	// 4. ルーターの構築
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitWrite),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		TokenValidator:    authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AdminEmails:       cfg.AdminEmails,
		Logger:            slog.Default(),
		Metrics:           collector,

		AuthService: authService,
		AuthConfig:  handler.AuthHandlerConfig{CookieSecure: cfg.CookieSecure},

		NoteService: noteService,
		UserService: userService,

		HealthChecker:  st.health,
		MetricsHandler: metrics.Handler(registry),
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はスキーマを最新にする。
// PostgreSQLでは未適用のマイグレーションを順番に適用し、MongoDBではインデックスを作成する。
func runMigrate(cfg *config.Config) error {
	if err := ensureEventTopic(cfg); err != nil {
		return err
	}

	if cfg.StoreDriver == config.StoreDriverMongo {
		slog.Info("ensuring mongo indexes", slog.String("database", cfg.MongoDatabase))
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		client, db, err := database.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("mongo indexes are up to date")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if version, dirty, err := database.MigrationVersion(cfg.DatabaseURL); err == nil {
		slog.Info("database migrations completed successfully",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	}
	return nil
}

// ensureEventTopic はKafkaが設定されている場合にイベントトピックを作成する。
func ensureEventTopic(cfg *config.Config) error {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := events.EnsureTopic(ctx, cfg.KafkaBrokers[0], cfg.KafkaTopic, 1, 1); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("kafka topic is ready", slog.String("topic", cfg.KafkaTopic))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

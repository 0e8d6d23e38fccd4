package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	stdlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"genstudio-server/modules/admin"
	aidemo "genstudio-server/modules/ai-demo"
	"genstudio-server/modules/common/auth"
	"genstudio-server/modules/common/config"
	"genstudio-server/modules/common/database"
	"genstudio-server/modules/common/gemini"
	"genstudio-server/modules/common/logger"
	"genstudio-server/modules/common/model"
	"genstudio-server/modules/common/redis"
	"genstudio-server/modules/common/response"
	"genstudio-server/modules/common/storage"
	"genstudio-server/modules/generation"
	"genstudio-server/modules/kie"
	"genstudio-server/modules/progress"
	"genstudio-server/modules/relocator"
	"genstudio-server/modules/worker"
)

const serviceName = "genstudio-server"

func main() {
	// 환경변수 로드
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	rdb, err := redis.Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := database.NewClient(cfg, log)
	if err != nil {
		return err
	}
	gate := auth.NewGate(auth.NewSupabaseVerifier(db.Supabase()), cfg.IsAdminEmail, log)

	store, err := storage.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	kieClient, err := kie.NewClient(cfg, log)
	if err != nil {
		return err
	}
	assets := relocator.New(store, log)

	queue := worker.NewQueue(rdb)
	tasks := generation.NewRedisTaskStore(rdb, cfg.TaskRecordTTL)
	hub := progress.NewHub(tasks, cfg.AllowedOrigin, log)

	service := generation.NewService(generation.Deps{
		Vendor:   kieClient,
		Store:    tasks,
		Queue:    queue,
		Assets:   assets,
		Activity: db,
		Notifier: hub,
	}, generation.Options{
		Profiles: map[model.Kind]generation.PollProfile{
			model.KindImage: {Interval: cfg.ImagePollInterval, MaxAttempts: cfg.ImagePollAttempts},
			model.KindVideo: {Interval: cfg.VideoPollInterval, MaxAttempts: cfg.VideoPollAttempts},
			model.KindAudio: {Interval: cfg.AudioPollInterval, MaxAttempts: cfg.AudioPollAttempts},
		},
		MaxTransportErrors: cfg.PollTransportError,
	}, log)

	// chat은 선택 기능: 키가 없으면 요청 시 설정 오류로 응답
	var text aidemo.TextGenerator
	if client, err := gemini.NewTextClient(cfg, log); err != nil {
		log.Warn().Err(err).Msg("gemini chat disabled")
	} else {
		text = client
	}

	// 라우터 설정
	r := mux.NewRouter()
	r.Use(response.CORS(cfg.AllowedOrigin))
	r.Use(response.Metrics)

	r.HandleFunc("/", healthCheck(rdb, queue, store)).Methods(http.MethodGet)
	r.HandleFunc("/health", healthCheck(rdb, queue, store)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	kie.NewHandler(kieClient, gate, log).RegisterRoutes(r)
	relocator.NewHandler(assets, gate, db, log).RegisterRoutes(r)
	generation.NewHandler(service, gate, log).RegisterRoutes(r)
	aidemo.NewHandler(service, text, log).RegisterRoutes(r)
	admin.NewHandler(db, gate, log).RegisterRoutes(r)
	hub.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Redis Queue Worker: 재시작 전에 남은 pending 작업부터 다시 적재
	w := worker.New(queue, service, cfg.WorkerConcurrency, log)
	if n, err := w.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("failed to recover pending tasks")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("pending tasks re-enqueued")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("environment", cfg.Environment).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// healthCheck - Redis 연결, 큐 적재량, 스토리지 버킷 확인
// 스토리지 장애는 degraded로만 보고 (생성 자체는 가능)
func healthCheck(rdb *goredis.Client, queue *worker.Queue, store storage.ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := rdb.Ping(ctx).Err(); err != nil {
			response.JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "unhealthy",
				"service": serviceName,
				"redis":   err.Error(),
			})
			return
		}

		body := map[string]interface{}{
			"status":  "healthy",
			"service": serviceName,
		}
		if depth, err := queue.Len(ctx); err == nil {
			body["queueDepth"] = depth
		}
		if err := store.Health(ctx); err != nil {
			body["status"] = "degraded"
			body["storage"] = "unreachable"
		} else {
			body["storage"] = store.Backend()
		}
		response.JSON(w, http.StatusOK, body)
	}
}

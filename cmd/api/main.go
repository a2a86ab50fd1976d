package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kento-1999/Alpus-links-sub000/internal/handlers"
	"github.com/kento-1999/Alpus-links-sub000/internal/platform/auth"
	"github.com/kento-1999/Alpus-links-sub000/internal/platform/config"
	pfirestore "github.com/kento-1999/Alpus-links-sub000/internal/platform/firestore"
	"github.com/kento-1999/Alpus-links-sub000/internal/platform/jobs"
	"github.com/kento-1999/Alpus-links-sub000/internal/platform/observability"
	"github.com/kento-1999/Alpus-links-sub000/internal/platform/secrets"
	"github.com/kento-1999/Alpus-links-sub000/internal/repositories"
	firestoreRepo "github.com/kento-1999/Alpus-links-sub000/internal/repositories/firestore"
	"github.com/kento-1999/Alpus-links-sub000/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	requiredSecrets := requiredSecretNames(envValues)
	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecrets...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	if host := strings.TrimSpace(cfg.PubSub.EmulatorHost); host != "" {
		if err := os.Setenv("PUBSUB_EMULATOR_HOST", host); err != nil {
			logger.Fatal("failed to point pubsub client at emulator", zap.Error(err))
		}
	}
	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	contentSyncTopic := pubsubClient.Topic(cfg.PubSub.ContentSyncTopic)
	defer contentSyncTopic.Stop()

	contentPublisher, err := jobs.NewPubSubContentSyncPublisher(contentSyncTopic)
	if err != nil {
		logger.Fatal("failed to initialise content sync publisher", zap.Error(err))
	}

	systemService, err := newSystemService(ctx, firestoreClient, fetcher, contentSyncTopic, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	internalMiddleware := buildInternalAuthMiddleware(logger.Named("auth"), cfg)

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	postRepo, err := firestoreRepo.NewPostRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise post repository", zap.Error(err))
	}
	websiteRepo, err := firestoreRepo.NewWebsiteRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise website repository", zap.Error(err))
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise counter repository", zap.Error(err))
	}

	contentResolver, err := services.NewContentResolver(services.ContentResolverDeps{
		Posts:  postRepo,
		Logger: zapEventLogger(logger.Named("content")),
	})
	if err != nil {
		logger.Fatal("failed to initialise content resolver", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      orderRepo,
		Websites:    websiteRepo,
		Counters:    counterRepo,
		Resolver:    contentResolver,
		ContentSync: contentPublisher,
		Clock:       time.Now,
		Logger:      zapEventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	analyticsService, err := services.NewAnalyticsService(services.AnalyticsServiceDeps{
		Orders: orderRepo,
		Clock:  time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise analytics service", zap.Error(err))
	}

	contentSyncService, err := services.NewContentSyncService(services.ContentSyncServiceDeps{
		Posts:  postRepo,
		Clock:  time.Now,
		Logger: zapEventLogger(logger.Named("content")),
	})
	if err != nil {
		logger.Fatal("failed to initialise content sync service", zap.Error(err))
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService, analyticsService,
		handlers.WithPlaceOrderRateLimit(cfg.RateLimits.AuthenticatedPerMinute),
	)
	internalHandlers := handlers.NewInternalHandlers(contentSyncService)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithOrderRoutes(orderHandlers.Routes))
	opts = append(opts, handlers.WithInternalRoutes(internalHandlers.Routes))
	if internalMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(internalMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("alpus links api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// zapEventLogger adapts a zap logger to the event/fields signature the
// services take.
func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSystemService(ctx context.Context, client *firestore.Client, fetcher *secrets.Fetcher, topic *pubsub.Topic, build services.BuildInfo) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok {
					switch st.Code() {
					case codes.NotFound:
						return nil
					}
				}
				return err
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				exists, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", t.ID())
				}
				return nil
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

// buildInternalAuthMiddleware guards the push endpoints. Google-signed OIDC
// tokens are preferred; a static bearer token covers local and self-hosted
// setups. With neither configured the internal routes stay open only on
// localhost-style deployments, so warn loudly.
func buildInternalAuthMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) != "" {
		adapter := observability.NewPrintfAdapter(logger)
		cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
		validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))

		audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
		if audience == "" {
			logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
		}
		issuers := cfg.Security.OIDC.Issuers
		if len(issuers) == 0 {
			logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
		}
		return validator.RequireOIDC(audience, issuers)
	}

	if token := strings.TrimSpace(cfg.Security.InternalAuthToken); token != "" {
		return staticBearerMiddleware(token)
	}

	logger.Warn("auth: no internal auth configured; internal routes are unprotected")
	return nil
}

func staticBearerMiddleware(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			presented := []byte(strings.TrimSpace(header[len(prefix):]))
			if subtle.ConstantTimeCompare(expected, presented) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	versionPins := secretVersionPinsFromEnv(env)
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if len(versionPins) > 0 {
		opts = append(opts, secrets.WithVersionPins(versionPins))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists config fields that must resolve through the
// secret fetcher. The internal auth token is only mandatory when the
// deployment references it as a managed secret.
func requiredSecretNames(env map[string]string) []string {
	if env == nil {
		return nil
	}
	raw := strings.TrimSpace(env["API_SECURITY_INTERNAL_AUTH_TOKEN"])
	if strings.HasPrefix(raw, "secret://") || strings.HasPrefix(raw, "sm://") {
		return []string{"Security.InternalAuthToken"}
	}
	return nil
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_VERSION_PINS"]
	}
	raw = strings.TrimSpace(raw)
	pins := make(map[string]string)
	if raw == "" {
		return pins
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		ref := strings.TrimSpace(parts[0])
		version := strings.TrimSpace(parts[1])
		if ref == "" || version == "" {
			continue
		}
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		if strings.HasPrefix(ref, "sm://") {
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		ref = prefix + ref
		pins[ref] = version
	}
	return pins
}

// Command civix-session runs a session manager against the configured
// identity provider and backend and serves a local inspector API.
//
// Configuration comes from CIVIX_* environment variables (see
// civix.LoadConfigFromEnv). Without CIVIX_IDENTITY_FEED_URL an in-process
// provider is used and POST /signin drives it. Without
// CIVIX_STORE_REDIS_ADDR snapshots are kept in an embedded miniredis.
//
// Endpoints:
//
//	GET  /session       current state
//	GET  /capabilities  capabilities of the signed-in role
//	POST /login         JSON session record
//	POST /signin        JSON identity (in-process provider only)
//	POST /logout
//	POST /refresh       re-fetch the backend profile
//	GET  /metrics       Prometheus text
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/civix-platform/civix"
	"github.com/civix-platform/civix/identity"
	"github.com/civix-platform/civix/jwt"
	"github.com/civix-platform/civix/metrics/export/prometheus"
	"github.com/civix-platform/civix/profile"
	"github.com/civix-platform/civix/transport"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8765", "inspector listen address")
	flag.Parse()

	cfg, err := civix.LoadConfigFromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("civix: load config")
	}
	logger := civix.NewLogger(cfg.Logging)
	if cfg.DeviceID == "" {
		host, _ := os.Hostname()
		cfg.DeviceID = "inspector-" + host
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, cleanup, err := openRedis(cfg.Store.RedisAddr, logger)
	if err != nil {
		logger.WithError(err).Fatal("civix: open redis")
	}
	defer cleanup()

	cred := transport.NewCredential()
	builder := civix.New().
		WithConfig(cfg).
		WithCredential(cred).
		WithRedis(rdb).
		WithLogger(logger).
		WithAuditSink(civix.NewLogSink(logger))

	if cfg.Backend.BaseURL != "" {
		client, err := transport.NewClient(transport.Config{
			BaseURL:   cfg.Backend.BaseURL,
			Timeout:   cfg.Backend.RequestTimeout,
			UserAgent: cfg.Backend.UserAgent,
		}, cred)
		if err != nil {
			logger.WithError(err).Fatal("civix: backend client")
		}
		builder.WithProfileService(profile.NewClient(client))
	} else {
		logger.Warn("civix: CIVIX_BACKEND_BASE_URL unset; sessions will not be enriched")
	}

	var emitter *identity.Emitter
	if cfg.Identity.FeedURL != "" {
		feed, err := newFeed(cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("civix: identity feed")
		}
		go func() { _ = feed.Run(ctx) }()
		builder.WithIdentityProvider(feed)
	} else {
		emitter = identity.NewEmitter()
		builder.WithIdentityProvider(emitter)
	}

	manager, err := builder.Build()
	if err != nil {
		logger.WithError(err).Fatal("civix: build session manager")
	}
	defer manager.Close()

	if err := manager.Start(ctx); err != nil {
		logger.WithError(err).Fatal("civix: start session manager")
	}
	manager.Watch(func(st civix.State) {
		logger.WithFields(logrus.Fields{
			"phase":   st.Phase.String(),
			"user_id": st.User.UserID,
			"role":    st.User.Role.String(),
			"loading": st.Loading,
		}).Info("civix: session changed")
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newRouter(manager, emitter, prometheus.NewPrometheusExporter(manager)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", *addr).Info("civix: inspector listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("civix: inspector stopped")
	}
}

func openRedis(addr string, logger logrus.FieldLogger) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.WithField("addr", mr.Addr()).Info("civix: using embedded miniredis for snapshots")
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func newFeed(cfg civix.Config, logger logrus.FieldLogger) (*identity.Feed, error) {
	tokens, err := jwt.NewManager(verifierConfig(cfg.Identity))
	if err != nil {
		return nil, err
	}
	return identity.NewFeed(identity.FeedConfig{
		URL:            cfg.Identity.FeedURL,
		ReconnectDelay: cfg.Identity.ReconnectDelay,
	}, identity.NewVerifier(tokens), logger)
}

func verifierConfig(id civix.IdentityConfig) jwt.Config {
	cfg := jwt.Config{
		SigningMethod: id.SigningMethod,
		Issuer:        id.Issuer,
		Audience:      id.Audience,
		Leeway:        id.Leeway,
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = jwt.MethodEd25519
	}
	// hs256 verifies with the shared secret, which jwt.Config carries as the
	// private key.
	if cfg.SigningMethod == jwt.MethodHS256 {
		cfg.PrivateKey = []byte(id.VerifyKey)
	} else {
		cfg.PublicKey = []byte(id.VerifyKey)
	}
	return cfg
}

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"
	"go.uber.org/zap"

	"github.com/aetherflow/lobby/internal/gateway/config"
	"github.com/aetherflow/lobby/internal/gateway/handler"
	"github.com/aetherflow/lobby/internal/gateway/middleware"
	"github.com/aetherflow/lobby/internal/gateway/svc"
)

var configFile = flag.String("f", "configs/gateway.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)

	ctx, err := svc.NewServiceContext(c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize gateway: %v\n", err)
		os.Exit(1)
	}

	var opts []rest.RunOption
	if c.Cors.Enable {
		opts = append(opts, rest.WithCors(c.Cors.AllowOrigins...))
	}
	server := rest.MustNewServer(c.RestConf, opts...)

	server.Use(middleware.RequestIDMiddleware)
	server.Use(middleware.RecoveryMiddleware(ctx.Logger, ctx.Metrics))
	server.Use(middleware.TracingMiddleware(ctx.Tracer))
	server.Use(middleware.LoggerMiddleware(ctx.Logger))
	server.Use(middleware.MetricsMiddleware(ctx.Metrics))
	server.Use(middleware.UserMiddleware)
	if c.RateLimit.Enable {
		server.Use(middleware.RateLimitMiddleware(float64(c.RateLimit.Rate), c.RateLimit.Burst))
	}

	handler.RegisterHandlers(server, ctx)

	ctx.Start()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		ctx.Logger.Info("Shutting down", zap.String("signal", s.String()))
		server.Stop()
	}()

	logx.Infof("Lobby gateway started at %s:%d", c.Host, c.Port)
	ctx.Logger.Info("Lobby gateway started",
		zap.String("host", c.Host),
		zap.Int("port", c.Port),
		zap.String("registry", c.Online.Registry))

	server.Start()
	ctx.Close()
}

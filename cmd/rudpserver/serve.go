package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/wqdsca/policethief-go/internal/adapters/adminhttp"
	"github.com/wqdsca/policethief-go/internal/adapters/grpcctl"
	"github.com/wqdsca/policethief-go/internal/adapters/quicedge"
	"github.com/wqdsca/policethief-go/internal/adapters/redisstate"
	"github.com/wqdsca/policethief-go/internal/config"
	"github.com/wqdsca/policethief-go/internal/heartbeat"
	"github.com/wqdsca/policethief-go/internal/server"
	"github.com/wqdsca/policethief-go/internal/tcpchat"
	"github.com/wqdsca/policethief-go/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RUDP server and its companion transports",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = config.ResolvePath()
			}
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to server.json (default: "+config.EnvConfigPath+" env var or config/server.json)")
	return cmd
}

// runServe loads configuration, wires every subsystem, and blocks until
// SIGINT/SIGTERM, mirroring the teacher's core/main.go signal-channel
// shutdown but driving it through a single cancelable context instead of
// a select over ad-hoc channels.
func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Default()
	}

	log, err := telemetry.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("serve: build logger: %w", err)
	}
	defer log.Sync()

	telemetry.Banner("RUDP Game Server", version)

	srv := server.New(cfg, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Warn("shutdown signal received", zap.String("signal", sig.String()))
			cancel()
		case <-runCtx.Done():
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(runCtx) }()

	var companions []companion
	if cfg.TCPListenAddr != "" {
		companions = append(companions, startTCPChat(runCtx, log, cfg, srv))
	}
	if cfg.QUICListenAddr != "" {
		companions = append(companions, startQUIC(runCtx, log, cfg, srv))
	}
	var grpcSrv *grpc.Server
	if cfg.GRPCListenAddr != "" {
		grpcSrv, err = startGRPC(log, cfg, srv)
		if err != nil {
			log.Error("grpc control plane failed to start", zap.Error(err))
		}
	}
	var adminSrv *adminhttp.Server
	if cfg.AdminHTTPAddr != "" {
		adminSrv = adminhttp.New(cfg.AdminHTTPAddr, srv, srv.Fabric())
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil {
				log.Error("admin http server failed", zap.Error(err))
			}
		}()
	}
	if cfg.RedisAddr != "" {
		startRedis(log, cfg)
	}

	select {
	case <-runCtx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error("rudp dispatcher exited with error", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if adminSrv != nil {
		_ = adminSrv.Shutdown(shutdownCtx)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	for _, c := range companions {
		c.stop()
	}

	log.Info("server stopped")
	return nil
}

// companion is any transport listener started alongside the primary RUDP
// socket; runServe records only the companions that were enabled and
// stops each of them in shutdown.
type companion struct {
	stop func()
}

func startTCPChat(ctx context.Context, log *zap.Logger, cfg config.Config, srv *server.Server) companion {
	ln, err := net.Listen("tcp", cfg.TCPListenAddr)
	if err != nil {
		log.Error("tcpchat listener failed to bind", zap.Error(err), zap.String("addr", cfg.TCPListenAddr))
		return companion{stop: func() {}}
	}
	hbCfg := heartbeat.PathConfig{Interval: cfg.HeartbeatInterval(), Timeout: cfg.ConnectionTimeout()}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			go func() {
				if err := tcpchat.HandleConn(conn, srv.Fabric(), hbCfg); err != nil {
					log.Debug("tcpchat session ended", zap.Error(err))
				}
			}()
		}
	}()
	log.Info("tcpchat listener started", zap.String("addr", cfg.TCPListenAddr))
	return companion{stop: func() { ln.Close() }}
}

func startQUIC(ctx context.Context, log *zap.Logger, cfg config.Config, srv *server.Server) companion {
	hbCfg := heartbeat.PathConfig{Interval: cfg.HeartbeatInterval(), Timeout: cfg.ConnectionTimeout()}
	listener := quicedge.New(cfg.QUICListenAddr, srv.Fabric(), hbCfg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := listener.Serve(ctx); err != nil {
			log.Error("quicedge listener stopped", zap.Error(err))
		}
	}()
	log.Info("quicedge listener started", zap.String("addr", cfg.QUICListenAddr))
	return companion{stop: func() { <-done }}
}

func startGRPC(log *zap.Logger, cfg config.Config, srv *server.Server) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return nil, fmt.Errorf("grpcctl: listen %s: %w", cfg.GRPCListenAddr, err)
	}
	grpcSrv := grpcctl.NewServer("rudpserver", srv, srv)
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Debug("grpc server stopped", zap.Error(err))
		}
	}()
	log.Info("grpc control plane started", zap.String("addr", cfg.GRPCListenAddr))
	return grpcSrv, nil
}

func startRedis(log *zap.Logger, cfg config.Config) *redisstate.Store {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	store := redisstate.New(client, 5*time.Second)
	log.Info("redis state adapter configured", zap.String("addr", cfg.RedisAddr))
	return store
}

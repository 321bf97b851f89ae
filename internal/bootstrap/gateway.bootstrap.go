package bootstrap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/krobus00/realtime-gateway/internal/config"
	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	grpcHandler "github.com/krobus00/realtime-gateway/internal/handler/gateway/grpc"
	httpHandler "github.com/krobus00/realtime-gateway/internal/handler/gateway/http"
	wsHandler "github.com/krobus00/realtime-gateway/internal/handler/gateway/ws"
	"github.com/krobus00/realtime-gateway/internal/infrastructure"
	"github.com/krobus00/realtime-gateway/internal/repository"
	"github.com/krobus00/realtime-gateway/internal/service/audit"
	"github.com/krobus00/realtime-gateway/internal/service/auth"
	"github.com/krobus00/realtime-gateway/internal/service/eventbridge"
	"github.com/krobus00/realtime-gateway/internal/service/gateway"
	"github.com/krobus00/realtime-gateway/internal/service/settings"
	"github.com/krobus00/realtime-gateway/internal/service/snapshot"
	"github.com/krobus00/realtime-gateway/internal/service/tradingengine"
	"github.com/krobus00/realtime-gateway/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

func StartGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tradingDB, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["trading"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, tradingDB, config.Env.Database["trading"].PingInterval)

	redisClient, err := infrastructure.NewRedisClient(ctx, config.Env.Redis["audit"])
	util.ContinueOrFatal(err)

	// without a nats url the gateway runs standalone and dispatches events
	// in process
	var (
		nc *nats.Conn
		js nats.JetStreamContext
	)
	if strings.TrimSpace(config.Env.NatsJetstream.URL) != "" {
		nc, js, err = infrastructure.NewJetstream(config.Env.NatsJetstream)
		util.ContinueOrFatal(err)
	} else {
		logrus.Warn("nats jetstream url is empty, events are dispatched in process only")
	}

	tradingEngineConn, err := infrastructure.NewTradingEngineConnection(config.Env.TradingEngine)
	util.ContinueOrFatal(err)

	botStatusRepo := repository.NewBotStatusRepository(tradingDB)
	tradeHistoryRepo := repository.NewTradeHistoryRepository(tradingDB)
	performanceMetricRepo := repository.NewPerformanceMetricRepository(tradingDB)
	notificationRepo := repository.NewNotificationRepository(tradingDB)
	botSettingsRepo := repository.NewBotSettingsRepository(tradingDB)

	redisAuditSink := audit.NewRedisSink(redisClient, config.Env.Audit.Stream, config.Env.Audit.MaxLen)
	auditSink := audit.Multi{audit.NewLogSink(), redisAuditSink}

	jwtVerifier, err := auth.NewJWTVerifier(config.Env.JWT.Secret, config.Env.JWT.Issuer)
	util.ContinueOrFatal(err)
	gate := auth.NewGate(jwtVerifier, config.Env.Gateway.AuthTimeout, auditSink)

	snapshotService := snapshot.NewService(botStatusRepo, tradeHistoryRepo, performanceMetricRepo, notificationRepo)
	hub := gateway.NewHub(gateway.NewConfig(config.Env.Gateway), snapshotService, auditSink)

	eventBridge := eventbridge.NewService(hub, notificationRepo, js)
	settingsService := settings.NewService(botSettingsRepo, eventBridge)
	tradingEngineService := tradingengine.NewService(
		tradingEngineConn,
		tradingengine.NewRedisClaimer(redisClient),
		auditSink,
		config.Env.TradingEngine.Timeout,
	)

	hub.Handle(snapshot.MessageTypeStatusRequest, snapshotService.HandleStatusRequest)
	hub.Handle(tradingengine.MessageTypeTradeOrder, tradingEngineService.HandleTradeOrder)
	hub.Handle(settings.MessageTypeUpdateSettings, settingsService.HandleUpdateSettings)
	hub.Handle(settings.MessageTypeSettingsRequest, settingsService.HandleGetSettings)

	if js != nil {
		publishers := make([]entity.Publisher, 0)
		publishers = append(publishers, eventBridge)
		for _, v := range publishers {
			err = v.JetstreamEventInit(ctx)
			util.ContinueOrFatal(err)
		}

		subscribers := make([]entity.Subscriber, 0)
		subscribers = append(subscribers, eventBridge)
		for _, v := range subscribers {
			err = v.JetstreamEventSubscribe(ctx)
			util.ContinueOrFatal(err)
		}
	}

	hub.Start(ctx)

	wsMux := infrastructure.NewHealthMux(
		func(ctx context.Context) error { return tradingDB.PingContext(ctx) },
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	)
	wsHandler.NewGatewayWSHandler(gate, hub, config.Env.Gateway.AllowedOrigins).Register(wsMux)
	wsServer := infrastructure.NewHTTPServer(infrastructure.DefaultHTTPServerConfig("gateway_http"), wsMux)

	go func() {
		err := wsServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()

	opsMux := http.NewServeMux()
	httpHandler.NewGatewayHTTPHandler(hub, eventBridge, config.Env.APIKeys).Register(opsMux)
	opsServer := infrastructure.NewHTTPServer(infrastructure.DefaultHTTPServerConfig("gateway_ops"), opsMux)

	go func() {
		err := opsServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()

	grpcServer := grpc.NewServer()
	grpcHandler.RegisterEventGatewayServer(grpcServer, grpcHandler.NewEventGatewayGRPCServer(eventBridge))

	if config.Env.Env == constant.DevelopmentEnvironment {
		reflection.Register(grpcServer)
	}

	grpcPort := fmt.Sprintf(":%s", config.Env.Port["gateway_grpc"])

	lis, err := net.Listen("tcp", grpcPort)
	util.ContinueOrFatal(err)

	go func() {
		_ = grpcServer.Serve(lis)
	}()
	logrus.Info(fmt.Sprintf("grpc server started on %s", grpcPort))

	// sessions are closed while the audit sink and database are still up
	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"gateway hub": func(ctx context.Context) error {
			return hub.Shutdown(ctx)
		},
		"websocket http": func(ctx context.Context) error {
			return wsServer.Shutdown(ctx)
		},
		"ops http": func(ctx context.Context) error {
			return opsServer.Shutdown(ctx)
		},
		"grpc": func(ctx context.Context) error {
			grpcServer.GracefulStop()
			return nil
		},
		"event bridge": func(ctx context.Context) error {
			return eventBridge.Close()
		},
	}, map[string]operation{
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
		"trading engine connection": func(ctx context.Context) error {
			return tradingEngineConn.Close()
		},
		"audit redis": func(ctx context.Context) error {
			return redisAuditSink.Close()
		},
		"trading database": func(ctx context.Context) error {
			cancel()
			return tradingDB.Close()
		},
	})

	<-wait
}

package infrastructure

import (
	"errors"
	"strings"

	"github.com/krobus00/realtime-gateway/internal/config"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// NewTradingEngineConnection prepares a lazy client connection to the
// trading engine. No dial happens until the first call.
func NewTradingEngineConnection(cfg config.TradingEngineConfig) (*grpc.ClientConn, error) {
	if strings.TrimSpace(cfg.Target) == "" {
		return nil, errors.New("trading_engine target is required")
	}

	conn, err := grpc.NewClient(cfg.Target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	logrus.WithField("target", cfg.Target).Info("trading engine client created")
	return conn, nil
}

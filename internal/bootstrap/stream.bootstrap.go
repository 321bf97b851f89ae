package bootstrap

import (
	"context"
	"time"

	"github.com/krobus00/realtime-gateway/internal/config"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/infrastructure"
	"github.com/krobus00/realtime-gateway/internal/service/eventbridge"
	"github.com/krobus00/realtime-gateway/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultStreamInitTimeout = 15 * time.Second

// StartStreamInit creates or updates the gateway event stream without
// starting a gateway.
func StartStreamInit(cmd *cobra.Command, args []string) {
	timeout := config.Env.GracefulShutdownTimeout
	if timeout <= 0 {
		timeout = defaultStreamInitTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	nc, js, err := infrastructure.NewJetstream(config.Env.NatsJetstream)
	util.ContinueOrFatal(err)
	defer func() {
		_ = infrastructure.CloseJetstream(nc)
	}()

	publishers := []entity.Publisher{
		eventbridge.NewService(nil, nil, js),
	}
	for _, v := range publishers {
		err = v.JetstreamEventInit(ctx)
		util.ContinueOrFatal(err)
	}

	logrus.Info("gateway event stream is ready")
}

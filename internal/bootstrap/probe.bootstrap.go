package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/realtime-gateway/internal/config"
	"github.com/krobus00/realtime-gateway/internal/service/auth"
	"github.com/krobus00/realtime-gateway/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const probeTokenTTL = time.Hour

// StartProbe connects to a running gateway as a regular client, subscribes
// to the requested channels and logs every frame it receives.
func StartProbe(cmd *cobra.Command, args []string) {
	rawURL, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("token")
	userID, _ := cmd.Flags().GetString("user")
	channels, _ := cmd.Flags().GetStringSlice("channels")
	duration, _ := cmd.Flags().GetDuration("duration")

	wsHost, err := url.Parse(rawURL)
	util.ContinueOrFatal(err)

	if token == "" {
		token, err = probeToken(userID)
		util.ContinueOrFatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	initFrames := make([]map[string]any, 0, len(channels)+1)
	for _, channel := range channels {
		initFrames = append(initFrames, map[string]any{"type": "subscribe", "channel": channel})
	}
	initFrames = append(initFrames, map[string]any{"type": "status_request"})

	conn, err := runWS(ctx, *wsHost, header, initFrames, logProbeFrame)
	if conn != nil {
		_ = conn.Close()
	}
	util.ContinueOrFatal(err)
}

func probeToken(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("either --token or --user is required")
	}

	signer, err := auth.NewJWTVerifier(config.Env.JWT.Secret, config.Env.JWT.Issuer)
	if err != nil {
		return "", fmt.Errorf("sign probe token: %w", err)
	}
	return signer.Sign(userID, probeTokenTTL)
}

func logProbeFrame(_ context.Context, message []byte) error {
	var frame struct {
		Type      string `json:"type"`
		Channel   string `json:"channel"`
		RequestID string `json:"requestId"`
		Code      string `json:"code"`
	}
	if err := json.Unmarshal(message, &frame); err != nil {
		return fmt.Errorf("probe received non json frame: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"type":      frame.Type,
		"channel":   frame.Channel,
		"requestId": frame.RequestID,
		"code":      frame.Code,
	}).Info(string(message))
	return nil
}

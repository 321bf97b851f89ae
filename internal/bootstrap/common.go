package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const probePingInterval = 25 * time.Second

type operation func(ctx context.Context) error

// gracefulShutdown waits for termination syscalls and doing clean up operations after received it.
// Each stage starts after the previous one finished.
func gracefulShutdown(ctx context.Context, timeout time.Duration, stages ...map[string]operation) <-chan struct{} {
	wait := make(chan struct{})
	go func() {
		s := make(chan os.Signal, 1)

		// add any other syscalls that you want to be notified with
		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		<-s

		logrus.Info("shutting down")

		// set timeout for the ops to be done to prevent system hang
		timeoutFunc := time.AfterFunc(timeout, func() {
			logrus.Error(fmt.Sprintf("timeout %d ms has been elapsed, force exit", timeout.Milliseconds()))
			os.Exit(0)
		})

		defer timeoutFunc.Stop()

		runShutdown(ctx, timeout, stages...)

		close(wait)
	}()

	return wait
}

// runShutdown runs stages in order. Ops get a context that outlives ctx so a
// later op cancelling the app context cannot cut an earlier one short.
func runShutdown(ctx context.Context, timeout time.Duration, stages ...map[string]operation) {
	opsCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	for _, ops := range stages {
		var wg sync.WaitGroup

		// Do the operations asynchronously to save time
		for key, op := range ops {
			wg.Add(1)
			innerOp := op
			innerKey := key
			go func() {
				defer wg.Done()

				logrus.Info(fmt.Sprintf("cleaning up: %s", innerKey))
				if err := innerOp(opsCtx); err != nil {
					logrus.Error(fmt.Sprintf("%s: clean up failed: %s", innerKey, err.Error()))
					return
				}

				logrus.Info(fmt.Sprintf("%s was shutdown gracefully", innerKey))
			}()
		}

		wg.Wait()
	}
}

// runWS dials the gateway, sends every frame in initFrames and feeds inbound
// messages to onMessage until ctx is done or the connection drops.
func runWS(ctx context.Context, wsHost url.URL, header http.Header, initFrames []map[string]any, onMessage func(ctx context.Context, message []byte) error) (*websocket.Conn, error) {
	logrus.Infof("connecting to %s", wsHost.Redacted())

	c, _, err := websocket.DefaultDialer.DialContext(ctx, wsHost.String(), header)
	if err != nil {
		return nil, err
	}

	c.SetPingHandler(func(appData string) error {
		logrus.Debug("ping")
		return c.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	for _, frame := range initFrames {
		if err := c.WriteJSON(frame); err != nil {
			return c, err
		}
	}

	go func() {
		ticker := time.NewTicker(probePingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.WriteJSON(map[string]any{"type": "ping"}); err != nil {
					logrus.Warn(err)
					return
				}
			case <-ctx.Done():
				_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "probe done"), time.Now().Add(time.Second))
				return
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return c, nil
			}
			return c, err
		}

		if onMessage != nil {
			if err := onMessage(ctx, message); err != nil {
				logrus.Error(err)
			}
		}
	}
}

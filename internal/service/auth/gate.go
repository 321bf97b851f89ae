package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/util"
	"github.com/sirupsen/logrus"
)

const DefaultTimeout = 5 * time.Second

var (
	ErrAuthMissing = errors.New("authentication token missing")
	ErrAuthInvalid = errors.New("invalid authentication token")
	ErrAuthTimeout = errors.New("authentication timed out")
)

type VerifyResult struct {
	Valid    bool
	Identity entity.Identity
	Reason   string
}

// IdentityVerifier validates a bearer token against the identity provider.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (VerifyResult, error)
}

// Gate authenticates upgrade requests. It holds no connection state.
type Gate struct {
	verifier IdentityVerifier
	timeout  time.Duration
	audit    entity.AuditSink
}

func NewGate(verifier IdentityVerifier, timeout time.Duration, audit entity.AuditSink) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		verifier: verifier,
		timeout:  timeout,
		audit:    audit,
	}
}

// ExtractToken reads the bearer token from the Authorization header, then
// from the token query parameter.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Authenticate resolves the identity behind r. The verifier call is bounded
// by the gate timeout.
func (g *Gate) Authenticate(ctx context.Context, r *http.Request) (entity.Identity, error) {
	ip := util.ClientIP(r)
	token := ExtractToken(r)
	if token == "" {
		g.fail(ctx, ip, ErrAuthMissing, "token missing")
		return entity.Identity{}, ErrAuthMissing
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type outcome struct {
		result VerifyResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := g.verifier.Verify(ctx, token)
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		g.fail(ctx, ip, ErrAuthTimeout, ctx.Err().Error())
		return entity.Identity{}, ErrAuthTimeout
	case out = <-done:
	}

	switch {
	case errors.Is(out.err, context.DeadlineExceeded):
		g.fail(ctx, ip, ErrAuthTimeout, out.err.Error())
		return entity.Identity{}, ErrAuthTimeout
	case out.err != nil:
		g.fail(ctx, ip, ErrAuthInvalid, out.err.Error())
		return entity.Identity{}, fmt.Errorf("%w: %v", ErrAuthInvalid, out.err)
	case !out.result.Valid || out.result.Identity.UserID == "":
		reason := out.result.Reason
		if reason == "" {
			reason = "identity rejected"
		}
		g.fail(ctx, ip, ErrAuthInvalid, reason)
		return entity.Identity{}, fmt.Errorf("%w: %s", ErrAuthInvalid, reason)
	}

	identity := out.result.Identity
	g.record(ctx, entity.AuditRecord{
		Action: entity.AuditAuthSucceeded,
		UserID: identity.UserID,
		IP:     ip,
	})
	return identity, nil
}

// CloseCodeFor maps an authentication error to the websocket close code and
// reason sent to the client.
func CloseCodeFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrAuthMissing), errors.Is(err, ErrAuthInvalid):
		return constant.CloseUnauthorized, "Unauthorized"
	default:
		return constant.CloseAuthFailure, "Authentication failed"
	}
}

func (g *Gate) fail(ctx context.Context, ip string, err error, reason string) {
	logrus.WithFields(logrus.Fields{
		"ip":     ip,
		"reason": reason,
	}).Warn(err)

	code, _ := CloseCodeFor(err)
	g.record(context.WithoutCancel(ctx), entity.AuditRecord{
		Action: entity.AuditAuthFailed,
		IP:     ip,
		Code:   code,
		Reason: reason,
	})
}

func (g *Gate) record(ctx context.Context, record entity.AuditRecord) {
	if g.audit == nil {
		return
	}
	record.Timestamp = time.Now().UTC()
	g.audit.Audit(ctx, record)
}

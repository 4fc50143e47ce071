package rhacs

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/log"
)

// TokenAttempts bounds API token generation
const TokenAttempts = 5

// TokenRoles are the roles given to generated API tokens
var TokenRoles = []string{"Admin"}

// TokenGenerator creates Central API tokens
type TokenGenerator interface {
	GenerateToken(ctx context.Context, name string, roles []string) (string, error)
}

// GenerateAPIToken asks Central for a token, retrying transient failures at a
// fixed interval. Authentication failures are returned at once.
func GenerateAPIToken(ctx context.Context, api TokenGenerator, logger *log.Logger, name string, interval time.Duration) (string, error) {
	var token string
	attempts, err := retryTransient(logger, "API token generation", interval, func() error {
		t, err := api.GenerateToken(ctx, name, TokenRoles)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate API token after %d attempt(s): %w", attempts, err)
	}
	return token, nil
}

// retryTransient runs f up to TokenAttempts times while it fails with an
// error central.IsRetryable accepts, and returns the number of attempts.
func retryTransient(logger *log.Logger, what string, interval time.Duration, f func() error) (int, error) {
	backoff := wait.Backoff{Steps: TokenAttempts, Duration: interval, Factor: 1.0}

	attempt := 0
	err := retry.OnError(backoff, central.IsRetryable, func() error {
		attempt++
		err := f()
		if err != nil && central.IsRetryable(err) && attempt < TokenAttempts {
			logger.Warning("%s failed (attempt %d/%d): %v", what, attempt, TokenAttempts, err)
		}
		return err
	})
	return attempt, err
}

package hetzner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hetznercloud/hcloud-go/hcloud"

	"github.com/xetys/kubefleet/pkg/retry"
)

// ActionPollInterval is the interval actions are polled with
var ActionPollInterval = 500 * time.Millisecond

const (
	categoryConflict = retry.CategoryResourceConflict
	categoryMissing  = retry.CategoryMissingPrerequisite
)

// APIError is an hcloud API failure with its category
type APIError struct {
	Op       string
	Err      error
	category retry.Category
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hcloud: %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Category implements retry.Categorized
func (e *APIError) Category() retry.Category {
	return e.category
}

func apiError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &APIError{Op: op, Err: err, category: categoryOf(err)}
}

func categoryOf(err error) retry.Category {
	var hcloudErr hcloud.Error
	if !errors.As(err, &hcloudErr) {
		return retry.Classify(err).Category
	}
	switch hcloudErr.Code {
	case hcloud.ErrorCodeForbidden, hcloud.ErrorCodeUnauthorized:
		return retry.CategoryPermission
	case hcloud.ErrorCodeUniquenessError, hcloud.ErrorCodeConflict, hcloud.ErrorCodeLocked:
		return retry.CategoryResourceConflict
	case hcloud.ErrorCodeInvalidInput, hcloud.ErrorCodeNotFound:
		return retry.CategoryValidation
	case hcloud.ErrorCodeResourceLimitExceeded, hcloud.ErrorCodeResourceUnavailable:
		return retry.CategoryMissingPrerequisite
	case hcloud.ErrorCodeRateLimitExceeded, hcloud.ErrorCodeServiceError, hcloud.ErrorCodeMaintenance:
		return retry.CategoryNetwork
	default:
		return retry.ClassifyText(hcloudErr.Message)
	}
}

// WaitAction is an helper function used to wait for an action. The progress
// channel is closed together with the error channel.
func WaitAction(ctx context.Context, client *hcloud.Client, action *hcloud.Action) (<-chan error, <-chan int) {
	errCh := make(chan error, 1)
	progressCh := make(chan int)

	go func() {
		defer close(errCh)
		defer close(progressCh)

		ticker := time.NewTicker(ActionPollInterval)
		defer ticker.Stop()

		sendProgress := func(p int) {
			select {
			case progressCh <- p:
			default:
			}
		}

		for {
			current, _, err := client.Action.GetByID(ctx, action.ID)
			if err != nil {
				errCh <- err
				return
			}
			if current == nil {
				errCh <- fmt.Errorf("action %d not found", action.ID)
				return
			}

			switch current.Status {
			case hcloud.ActionStatusRunning:
				sendProgress(current.Progress)
			case hcloud.ActionStatusSuccess:
				sendProgress(100)
				errCh <- nil
				return
			case hcloud.ActionStatusError:
				errCh <- current.Error()
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-ticker.C:
			}
		}
	}()

	return errCh, progressCh
}

// WaitForAction blocks until the action completed
func WaitForAction(ctx context.Context, client *hcloud.Client, action *hcloud.Action) error {
	if action == nil {
		return nil
	}
	errCh, _ := WaitAction(ctx, client, action)
	return <-errCh
}

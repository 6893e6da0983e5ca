package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"
)

// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy は外部呼び出し共通のリトライポリシーです
// 遅延は initialDelay * 2^attempt の指数バックオフに従います
type Policy struct {
	// MaxRetries は初回試行を除くリトライ回数（デフォルト2 = 合計3試行）
	MaxRetries int
	// InitialDelay はバックオフの基底遅延
	InitialDelay time.Duration
	// MaxDelay はバックオフの上限
	MaxDelay time.Duration
}

// DefaultPolicy はデフォルトのリトライポリシーを返します
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
	}
}

// Delay はattempt回目（1始まり）のリトライ前に待つ時間を返します
func (p Policy) Delay(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * p.InitialDelay
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do はopを実行し、transientが真と判定した失敗のみポリシーに従って再試行します
// 成功したが中身が空のレスポンスはエラーではないため再試行の対象になりません
func Do[T any](ctx context.Context, p Policy, transient func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(p.Delay(attempt)):
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		// コンテキスト起因の中断は呼び出し元のデッドラインなので再試行しない
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if transient == nil || !transient(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// IsNetworkError はネットワーク層の一時的エラーかどうかを判定します
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// Package chflow has small channel helpers that give up when a context ends.
package chflow

import "context"

// Receive takes the next value from ch. ok is false when ctx ended first or
// ch was closed.
func Receive[T any](ctx context.Context, ch <-chan T) (v T, ok bool) {
	select {
	case v, ok = <-ch:
		return v, ok
	case <-ctx.Done():
		return v, false
	}
}

// Send delivers v on ch unless ctx ends first.
func Send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// TrySend delivers v only if ch can take it without blocking.
func TrySend[T any](ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}

// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"

	"github.com/patchbay-collective/patchbay/lib/loop"
)

// Go runs call on a new goroutine and delivers its result to done on
// l. Nothing is delivered once token is revoked, so done never touches
// a closed owner.
//
//	remote.Go(ctx, d.loop, d.token, func(ctx context.Context) ([]remote.Document, error) {
//		return client.ListDocuments(ctx)
//	}, d.listed)
func Go[R any](ctx context.Context, l *loop.Loop, token *loop.Token, call func(context.Context) (R, error), done func(R, error)) {
	go func() {
		result, err := call(ctx)
		loop.Deliver(l, token, func() { done(result, err) })
	}()
}

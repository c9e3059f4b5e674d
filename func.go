// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import "context"

// Func is a generic operation that accepts an input and returns a result.
//
// The stages of the connection pipeline ([*ResolveFunc], [*ConnectFunc],
// [*ObserveConnFunc], [*TLSHandshakeFunc]) are Func instances composed
// using [Compose2], [Compose3], and [Compose4].
//
// Resource cleanup contract: when a Func receives a closeable resource as input
// and returns an error, it is responsible for closing that resource before returning.
type Func[A, B any] interface {
	Call(ctx context.Context, input A) (B, error)
}

// FuncAdapter wraps a function as a [Func] implementation.
type FuncAdapter[A, B any] func(ctx context.Context, input A) (B, error)

// Call implements [Func].
func (f FuncAdapter[A, B]) Call(ctx context.Context, input A) (B, error) {
	return f(ctx, input)
}

// Unit is a type not containing any value, used to construct
// a [Func] that takes no argument.
type Unit struct{}

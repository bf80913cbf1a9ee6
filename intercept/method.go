package intercept

import (
	"context"
	"fmt"
)

// result converts an intercepted value back to the adapter's type.
// A failed call keeps whatever value the function returned alongside its
// error.
func result[O any](v any, err error) (O, error) {
	var zero O
	if v == nil {
		return zero, err
	}
	out, ok := v.(O)
	if !ok {
		if err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w: got %T, want %T", ErrResultType, v, zero)
	}
	return out, err
}

// Method0 binds a no-argument method to receiver and op.
func Method0[O any](ic *Interceptor, receiver any, op string, fn func(context.Context) (O, error)) func(context.Context) (O, error) {
	return func(ctx context.Context) (O, error) {
		return result[O](ic.Call(ctx, receiver, op, nil, func(ctx context.Context) (any, error) {
			return fn(ctx)
		}))
	}
}

// Method1 binds a one-argument method to receiver and op.
func Method1[I1, O any](ic *Interceptor, receiver any, op string, fn func(context.Context, I1) (O, error)) func(context.Context, I1) (O, error) {
	return func(ctx context.Context, a1 I1) (O, error) {
		return result[O](ic.Call(ctx, receiver, op, []any{a1}, func(ctx context.Context) (any, error) {
			return fn(ctx, a1)
		}))
	}
}

// Method2 binds a two-argument method to receiver and op.
func Method2[I1, I2, O any](ic *Interceptor, receiver any, op string, fn func(context.Context, I1, I2) (O, error)) func(context.Context, I1, I2) (O, error) {
	return func(ctx context.Context, a1 I1, a2 I2) (O, error) {
		return result[O](ic.Call(ctx, receiver, op, []any{a1, a2}, func(ctx context.Context) (any, error) {
			return fn(ctx, a1, a2)
		}))
	}
}

// Method3 binds a three-argument method to receiver and op.
func Method3[I1, I2, I3, O any](ic *Interceptor, receiver any, op string, fn func(context.Context, I1, I2, I3) (O, error)) func(context.Context, I1, I2, I3) (O, error) {
	return func(ctx context.Context, a1 I1, a2 I2, a3 I3) (O, error) {
		return result[O](ic.Call(ctx, receiver, op, []any{a1, a2, a3}, func(ctx context.Context) (any, error) {
			return fn(ctx, a1, a2, a3)
		}))
	}
}

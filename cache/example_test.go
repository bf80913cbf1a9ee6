package cache_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/memo/cache"
)

type dataService struct {
	name string
}

func ExampleEngine_Get() {
	engine := cache.NewEngine()
	ctx := context.Background()
	svc := &dataService{}

	calls := 0
	query := func(context.Context) (any, error) {
		calls++
		return fmt.Sprintf("result #%d", calls), nil
	}

	key := cache.NewKey(svc, "QueryData", 1)
	first, _ := engine.Get(ctx, key, time.Minute, query)
	second, _ := engine.Get(ctx, key, time.Minute, query)

	fmt.Println(first)
	fmt.Println(second)
	fmt.Println("computations:", calls)
	// Output:
	// result #1
	// result #1
	// computations: 1
}

func ExampleEngine_Get_errorsAreNotCached() {
	engine := cache.NewEngine()
	ctx := context.Background()
	key := cache.NewKey(nil, "Lookup", "missing")

	_, err := engine.Get(ctx, key, time.Minute, func(context.Context) (any, error) {
		return nil, errors.New("backend unavailable")
	})
	fmt.Println("first:", err)

	v, err := engine.Get(ctx, key, time.Minute, func(context.Context) (any, error) {
		return "found", nil
	})
	fmt.Println("second:", v, err)
	// Output:
	// first: backend unavailable
	// second: found <nil>
}

func ExampleNewKey() {
	svc := &dataService{}

	a := cache.NewKey(svc, "QueryData", []int{1, 2}, nil)
	b := cache.NewKey(svc, "QueryData", []int{1, 2}, nil)
	c := cache.NewKey(&dataService{}, "QueryData", []int{1, 2}, nil)

	fmt.Println("same receiver, equal args:", a.Equal(b))
	fmt.Println("different receiver:", a.Equal(c))
	// Output:
	// same receiver, equal args: true
	// different receiver: false
}

package fn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestResultBasics(t *testing.T) {
	r := Ok(5)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok result misreported")
	}
	if v, err := r.Unwrap(); v != 5 || err != nil {
		t.Fatalf("Unwrap = (%d, %v)", v, err)
	}

	e := Err[int](errors.New("boom"))
	if e.IsOk() {
		t.Fatal("Err result misreported")
	}
	if got := e.UnwrapOr(9); got != 9 {
		t.Fatalf("UnwrapOr = %d", got)
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(1, nil); r.IsErr() {
		t.Fatal("FromPair with nil error should be Ok")
	}
	if r := FromPair(0, errors.New("x")); r.IsOk() {
		t.Fatal("FromPair with error should be Err")
	}
}

func TestCollectStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	r := Collect([]Result[int]{Ok(1), Err[int](boom), Ok(3)})
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	ok := Collect([]Result[int]{Ok(1), Ok(2)})
	vals, err := ok.Unwrap()
	if err != nil || len(vals) != 2 || vals[1] != 2 {
		t.Fatalf("Collect = (%v, %v)", vals, err)
	}
}

func TestThenShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	first := func(_ context.Context, s string) Result[int] { return Err[int](boom) }
	var secondCalled bool
	second := func(_ context.Context, i int) Result[string] {
		secondCalled = true
		return Ok("done")
	}
	r := Then(first, second)(context.Background(), "in")
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if secondCalled {
		t.Fatal("second stage ran after error")
	}
}

func TestParMapResultPreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	var inFlight, maxInFlight atomic.Int32

	results := ParMapResult(items, 3, func(v int) Result[int] {
		cur := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		defer inFlight.Add(-1)
		return Ok(v * 10)
	})

	vals, err := Collect(results).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vals {
		if v != items[i]*10 {
			t.Fatalf("order broken at %d: %v", i, vals)
		}
	}
	if maxInFlight.Load() > 3 {
		t.Errorf("concurrency exceeded bound: %d", maxInFlight.Load())
	}
}

func TestSliceHelpers(t *testing.T) {
	doubled := Map([]int{1, 2}, func(v int) int { return v * 2 })
	if doubled[0] != 2 || doubled[1] != 4 {
		t.Errorf("Map = %v", doubled)
	}

	evens := Filter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	if len(evens) != 2 || evens[0] != 2 {
		t.Errorf("Filter = %v", evens)
	}

	groups := GroupBy([]string{"aa", "ab", "ba"}, func(s string) byte { return s[0] })
	if len(groups['a']) != 2 || len(groups['b']) != 1 {
		t.Errorf("GroupBy = %v", groups)
	}

	uniq := UniqueBy([]string{"Paul", "paul", "Leto"}, func(s string) string { return s })
	if len(uniq) != 3 {
		t.Errorf("UniqueBy = %v", uniq)
	}

	flat := FlatMap([][]int{{1}, {2, 3}}, func(v []int) []int { return v })
	if len(flat) != 3 {
		t.Errorf("FlatMap = %v", flat)
	}

	batches := Batch([]int{1, 2, 3, 4, 5}, 2)
	if len(batches) != 3 || len(batches[2]) != 1 {
		t.Errorf("Batch = %v", batches)
	}
	if Batch([]int{1}, 0) != nil {
		t.Error("Batch with n<=0 should be nil")
	}
}

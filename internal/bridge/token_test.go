package bridge

import (
	"reflect"
	"testing"
)

// Test table from spec §8 property 3 ("Token injection table").
func TestInjectToken(t *testing.T) {
	t.Run("single call gets token prepended and is not system.*", func(t *testing.T) {
		got := injectToken("getVersion", []any{}, "s")
		want := []any{"token:s"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("got %#v, want %#v", got, want)
		}
	})

	t.Run("top-level system.* call is left untouched", func(t *testing.T) {
		got := injectToken("system.listMethods", []any{}, "s")
		want := []any{}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("got %#v, want %#v", got, want)
		}
	})

	t.Run("multicall rewrites only the non-system.* inner call", func(t *testing.T) {
		params := []any{
			[]any{
				map[string]any{"methodName": "aria2.addUri", "params": []any{[]any{"u"}}},
				map[string]any{"methodName": "system.listMethods", "params": []any{}},
			},
		}

		got := injectToken("system.multicall", params, "s")

		calls, ok := got[0].([]any)
		if !ok || len(calls) != 2 {
			t.Fatalf("expected params[0] to be a 2-element array, got %#v", got)
		}

		first, ok := calls[0].(map[string]any)
		if !ok {
			t.Fatalf("calls[0] is not a map: %#v", calls[0])
		}
		wantFirstParams := []any{"token:s", []any{"u"}}
		if !reflect.DeepEqual(first["params"], wantFirstParams) {
			t.Fatalf("calls[0].params = %#v, want %#v", first["params"], wantFirstParams)
		}

		second, ok := calls[1].(map[string]any)
		if !ok {
			t.Fatalf("calls[1] is not a map: %#v", calls[1])
		}
		wantSecondParams := []any{}
		if !reflect.DeepEqual(second["params"], wantSecondParams) {
			t.Fatalf("calls[1].params = %#v, want %#v (untouched)", second["params"], wantSecondParams)
		}
	})

	t.Run("no secret configured means no injection at all", func(t *testing.T) {
		got := injectToken("getVersion", []any{"x"}, "")
		want := []any{"x"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("got %#v, want %#v", got, want)
		}
	})

	t.Run("multicall sub-call with no methodName defaults to needing a token", func(t *testing.T) {
		params := []any{
			[]any{
				map[string]any{"params": []any{}},
			},
		}
		got := injectToken("system.multicall", params, "s")
		calls := got[0].([]any)
		call := calls[0].(map[string]any)
		want := []any{"token:s"}
		if !reflect.DeepEqual(call["params"], want) {
			t.Fatalf("got %#v, want %#v", call["params"], want)
		}
	})
}

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
)

// Call is the Call Façade's single operation (spec §4.3). method is the
// short, unprefixed name ("getVersion", "tellStatus", "system.multicall");
// callers never inject tokens, format ids, or construct aria2.-qualified
// names — the correlator does that on dispatch.
func (b *Bridge) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	reply := make(chan callResult, 1)
	cmd := command{method: method, params: params, reply: reply}

	select {
	case b.commands <- cmd:
	case <-b.stopped:
		return nil, ErrTransportUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MulticallCall is one sub-call within a system.multicall batch.
type MulticallCall struct {
	Method string
	Params []any
}

// Multicall builds and issues a system.multicall batch, returning the raw
// per-entry results in submission order. Each entry is either a one-element
// JSON array (success, unwrap with MulticallSuccess) or a JSON error object
// (unwrap with MulticallError).
func (b *Bridge) Multicall(ctx context.Context, calls []MulticallCall) ([]json.RawMessage, error) {
	arr := make([]map[string]any, len(calls))
	for i, c := range calls {
		method := c.Method
		if len(method) < 7 || method[:7] != "system." {
			method = "aria2." + method
		}
		params := c.Params
		if params == nil {
			params = []any{}
		}
		arr[i] = map[string]any{"methodName": method, "params": params}
	}

	raw, err := b.Call(ctx, "system.multicall", []any{arr})
	if err != nil {
		return nil, err
	}

	var results []json.RawMessage
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("bridge: decode multicall result: %w", err)
	}
	return results, nil
}

// MulticallSuccess unwraps a multicall sub-result that succeeded — the
// daemon wraps each success value in a one-element array — and reports
// whether raw had that shape.
func MulticallSuccess(raw json.RawMessage) (json.RawMessage, bool) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
		return nil, false
	}
	return arr[0], true
}

// MulticallError unwraps a multicall sub-result that failed — an error
// object — and reports whether raw had that shape.
func MulticallError(raw json.RawMessage) (*rpcErrorObj, bool) {
	var obj rpcErrorObj
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Message == "" {
		return nil, false
	}
	return &obj, true
}

// -----------------------------------------------------------------------------
// Typed sugar over Call/Multicall, grounded on original_source/silly's
// aria2/proxy.rs — each handler there is a single client.call invocation.
// -----------------------------------------------------------------------------

func (b *Bridge) TellStatus(ctx context.Context, gid string) (json.RawMessage, error) {
	return b.Call(ctx, "tellStatus", []any{gid})
}

func (b *Bridge) GetGlobalStat(ctx context.Context) (json.RawMessage, error) {
	return b.Call(ctx, "getGlobalStat", nil)
}

func (b *Bridge) Pause(ctx context.Context, gid string) (json.RawMessage, error) {
	return b.Call(ctx, "pause", []any{gid})
}

func (b *Bridge) Resume(ctx context.Context, gid string) (json.RawMessage, error) {
	return b.Call(ctx, "unpause", []any{gid})
}

func (b *Bridge) Remove(ctx context.Context, gid string) (json.RawMessage, error) {
	return b.Call(ctx, "forceRemove", []any{gid})
}

// PurgeDownloadResult clears completed/error/removed results from the
// daemon's in-memory history (spec §4.9: no request body).
func (b *Bridge) PurgeDownloadResult(ctx context.Context) (json.RawMessage, error) {
	return b.Call(ctx, "purgeDownloadResult", nil)
}

func (b *Bridge) RemoveDownloadResult(ctx context.Context, gid string) (json.RawMessage, error) {
	return b.Call(ctx, "removeDownloadResult", []any{gid})
}

func (b *Bridge) ChangePosition(ctx context.Context, gid string, pos int, how string) (json.RawMessage, error) {
	return b.Call(ctx, "changePosition", []any{gid, pos, how})
}

func (b *Bridge) ChangeGlobalOption(ctx context.Context, options map[string]any) (json.RawMessage, error) {
	return b.Call(ctx, "changeGlobalOption", []any{options})
}

// AddTorrent issues the deprecated single-torrent addTorrent call directly
// (not via multicall), matching original_source/silly's add_torrent handler.
func (b *Bridge) AddTorrent(ctx context.Context, torrentB64 string, options map[string]any) (json.RawMessage, error) {
	params := []any{torrentB64, []any{}}
	if options != nil {
		params = append(params, options)
	}
	return b.Call(ctx, "addTorrent", params)
}

// Details batches getFiles/getPeers/getServers for a single gid into one
// multicall round trip (spec §4.9).
func (b *Bridge) Details(ctx context.Context, gid string) ([]json.RawMessage, error) {
	return b.Multicall(ctx, []MulticallCall{
		{Method: "getFiles", Params: []any{gid}},
		{Method: "getPeers", Params: []any{gid}},
		{Method: "getServers", Params: []any{gid}},
	})
}

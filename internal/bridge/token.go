package bridge

import "strings"

// injectToken inserts "token:<secret>" into outgoing params, respecting
// system.multicall and system.* exemptions (spec §4.2). It is a pure
// function over the params value — no I/O, no mutation of its input — so
// it is unit-testable in isolation (spec §9: "keep it as a pure function
// over the params value so it can be unit-tested without any I/O").
//
// method is the short, unprefixed form accepted by the Call Façade
// ("getVersion", "system.multicall", ...).
func injectToken(method string, params []any, secret string) []any {
	if secret == "" {
		return params
	}

	token := "token:" + secret

	if method == "system.multicall" {
		return injectMulticallTokens(params, token)
	}

	if strings.HasPrefix(method, "system.") {
		return params
	}

	withToken := make([]any, 0, len(params)+1)
	withToken = append(withToken, token)
	withToken = append(withToken, params...)
	return withToken
}

// injectMulticallTokens rewrites params[0], the array of call objects, by
// prepending token to the inner params of every sub-call whose methodName
// does not start with "system.". A sub-call missing methodName is treated
// as needing the token, matching the source's default-true behavior.
func injectMulticallTokens(params []any, token string) []any {
	if len(params) == 0 {
		return params
	}
	calls, ok := params[0].([]any)
	if !ok {
		return params
	}

	newCalls := make([]any, len(calls))
	for i, raw := range calls {
		call, ok := raw.(map[string]any)
		if !ok {
			newCalls[i] = raw
			continue
		}

		name, _ := call["methodName"].(string)
		if strings.HasPrefix(name, "system.") {
			newCalls[i] = call
			continue
		}

		innerParams, _ := call["params"].([]any)
		withToken := make([]any, 0, len(innerParams)+1)
		withToken = append(withToken, token)
		withToken = append(withToken, innerParams...)

		rewritten := make(map[string]any, len(call))
		for k, v := range call {
			rewritten[k] = v
		}
		rewritten["params"] = withToken
		newCalls[i] = rewritten
	}

	newParams := make([]any, len(params))
	copy(newParams, params)
	newParams[0] = newCalls
	return newParams
}

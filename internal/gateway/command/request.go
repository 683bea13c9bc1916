package command

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/walletpay/internal/gateway/domain"
)

// BuildRequest runs the protocol builders in order, deep-merges their output
// and strips every body path the endpoint does not allow.
func BuildRequest(proto domain.Protocol, op domain.Operation, subj domain.Subject, settings domain.Settings) (*domain.Request, error) {
	method, path, err := proto.Endpoint(op, subj)
	if err != nil {
		return nil, err
	}

	body := map[string]any{}
	for _, build := range proto.Builders(op) {
		part, err := build(subj, settings)
		if err != nil {
			return nil, err
		}
		merge(body, part)
	}
	body = filterFields(body, proto.AllowedFields(op))
	if method == http.MethodGet {
		body = nil
	}

	return &domain.Request{
		Operation:      op,
		Method:         method,
		Path:           path,
		Body:           body,
		IdempotencyKey: uuid.NewString(),
	}, nil
}

func merge(dst, src map[string]any) {
	for key, value := range src {
		incoming, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		existing, ok := dst[key].(map[string]any)
		if !ok {
			existing = map[string]any{}
			dst[key] = existing
		}
		merge(existing, incoming)
	}
}

type fieldTree map[string]fieldTree

func filterFields(body map[string]any, allowed []string) map[string]any {
	tree := fieldTree{}
	for _, path := range allowed {
		node := tree
		for _, part := range strings.Split(path, ".") {
			next, ok := node[part]
			if !ok {
				next = fieldTree{}
				node[part] = next
			}
			node = next
		}
	}
	return prune(body, tree)
}

// prune keeps keys present in tree. A leaf in tree keeps the whole subtree.
func prune(body map[string]any, tree fieldTree) map[string]any {
	out := map[string]any{}
	for key, value := range body {
		node, ok := tree[key]
		if !ok {
			continue
		}
		nested, isMap := value.(map[string]any)
		if len(node) == 0 || !isMap {
			out[key] = value
			continue
		}
		if kept := prune(nested, node); len(kept) > 0 {
			out[key] = kept
		}
	}
	return out
}

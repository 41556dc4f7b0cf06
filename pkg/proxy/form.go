package proxy

import (
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	// formMaxDepth is the number of bracket segments decoded into nested
	// values. Deeper segments stay part of the last key as literal text.
	formMaxDepth = 5

	// formMaxIndex is the highest a[n] index decoded as an array position.
	// Larger indexes become object keys.
	formMaxIndex = 20
)

// sparseArray collects indexed keys (a[0], a[3]) before they are compacted
// into a list in index order.
type sparseArray map[int]any

// decodeForm decodes an application/x-www-form-urlencoded body into nested
// values. Bracket keys build objects (a[b]=1), empty brackets append to a
// list (a[]=1), small indexes build lists (a[0]=1), and repeated plain keys
// collect into a list. Leaf values are always strings.
func decodeForm(body string) (map[string]any, error) {
	root := map[string]any{}

	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		if strings.Contains(pair, ";") {
			return nil, errors.New("invalid semicolon separator in form body")
		}

		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, err
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, err
		}
		if key == "" {
			continue
		}

		segs := formKeySegments(key)
		var leaf any = value
		for i := len(segs) - 1; i >= 1; i-- {
			leaf = formWrap(segs[i], leaf)
		}
		root[segs[0]] = mergeForm(root[segs[0]], leaf)
	}

	for k, v := range root {
		root[k] = compactForm(v)
	}
	return root, nil
}

// formKeySegments splits "a[b][]" into ["a", "b", ""]. Text that does not
// form a bracket group, and groups past formMaxDepth, is kept verbatim in
// the final segment.
func formKeySegments(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.Contains(key[open:], "]") {
		return []string{key}
	}

	segs := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 && len(segs) <= formMaxDepth {
		if rest[0] != '[' {
			break
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		segs = append(segs, rest[1:end])
		rest = rest[end+1:]
	}
	if rest != "" {
		segs = append(segs, rest)
	}
	return segs
}

// formWrap nests v one level under seg.
func formWrap(seg string, v any) any {
	if seg == "" {
		return []any{v}
	}
	if n, err := strconv.Atoi(seg); err == nil && n >= 0 && n <= formMaxIndex && strconv.Itoa(n) == seg {
		return sparseArray{n: v}
	}
	return map[string]any{seg: v}
}

// mergeForm folds src into dst. Objects merge key by key, lists append, and
// two scalars, or a scalar and a container, become a list of both.
func mergeForm(dst, src any) any {
	if dst == nil {
		return src
	}

	switch d := dst.(type) {
	case map[string]any:
		switch s := src.(type) {
		case map[string]any:
			for k, v := range s {
				d[k] = mergeForm(d[k], v)
			}
			return d
		case sparseArray:
			for i, v := range s {
				k := strconv.Itoa(i)
				d[k] = mergeForm(d[k], v)
			}
			return d
		case []any:
			for i, v := range s {
				k := strconv.Itoa(i)
				d[k] = mergeForm(d[k], v)
			}
			return d
		default:
			return []any{d, s}
		}

	case sparseArray:
		switch s := src.(type) {
		case sparseArray:
			for i, v := range s {
				d[i] = mergeForm(d[i], v)
			}
			return d
		case map[string]any:
			return mergeForm(sparseToObject(d), s)
		default:
			return mergeForm(compactForm(d), s)
		}

	case []any:
		switch s := src.(type) {
		case []any:
			return append(d, s...)
		case sparseArray:
			return append(d, compactForm(s).([]any)...)
		case map[string]any:
			obj := make(map[string]any, len(d))
			for i, v := range d {
				obj[strconv.Itoa(i)] = v
			}
			return mergeForm(obj, s)
		default:
			return append(d, s)
		}

	default:
		switch s := src.(type) {
		case []any:
			return append([]any{d}, s...)
		case sparseArray:
			return append([]any{d}, compactForm(s).([]any)...)
		default:
			return []any{d, s}
		}
	}
}

func sparseToObject(s sparseArray) map[string]any {
	obj := make(map[string]any, len(s))
	for i, v := range s {
		obj[strconv.Itoa(i)] = v
	}
	return obj
}

// compactForm replaces every sparseArray with a list in index order.
func compactForm(v any) any {
	switch t := v.(type) {
	case sparseArray:
		idx := make([]int, 0, len(t))
		for i := range t {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		out := make([]any, 0, len(idx))
		for _, i := range idx {
			out = append(out, compactForm(t[i]))
		}
		return out
	case []any:
		for i := range t {
			t[i] = compactForm(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = compactForm(t[k])
		}
		return t
	default:
		return v
	}
}

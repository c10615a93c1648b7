package cache

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Key builds a cache key of the form "namespace:operation" or, when args is
// non-nil, "namespace:operation:<hash>". The hash is xxhash64 over a msgpack
// encoding with sorted map keys, so equal arguments always give equal keys.
// Pointers are followed, never hashed by address. Arguments msgpack cannot
// encode, such as channels or funcs, are an error.
func Key(namespace, operation string, args any) (string, error) {
	base := namespace + ":" + operation
	if args == nil {
		return base, nil
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(args); err != nil {
		return "", fmt.Errorf("cache key %s: cannot encode arguments: %w", base, err)
	}
	return base + ":" + strconv.FormatUint(xxhash.Sum64(buf.Bytes()), 16), nil
}

// MustKey is like Key but panics on unencodable arguments. It is meant for
// package-level keys built from constant arguments.
func MustKey(namespace, operation string, args any) string {
	k, err := Key(namespace, operation, args)
	if err != nil {
		panic(err)
	}
	return k
}

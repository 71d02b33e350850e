package wire

import (
	"io"
	"sort"
)

// WriteStrings writes a sequence<string>: a u64 count followed by that many
// encoded strings.
func WriteStrings(w io.Writer, ss []string) error {
	if err := WriteUint64(w, uint64(len(ss))); err != nil {
		return err
	}

	for _, s := range ss {
		if err := WriteString(w, s); err != nil {
			return err
		}
	}

	return nil
}

// ReadStrings reads a sequence<string>.
func ReadStrings(r io.Reader, maxBytes uint64) ([]string, error) {
	count, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}

	ss := make([]string, count)
	for i := range ss {
		s, err := ReadString(r, maxBytes)
		if err != nil {
			return nil, err
		}

		ss[i] = s
	}

	return ss, nil
}

// WriteStringPairs writes an ordered sequence of (key, value) string pairs,
// in the order given (callers that need wire-deterministic output, such as
// an unordered map, sort before calling).
func WriteStringPairs(w io.Writer, pairs [][2]string) error {
	if err := WriteUint64(w, uint64(len(pairs))); err != nil {
		return err
	}

	for _, kv := range pairs {
		if err := WriteString(w, kv[0]); err != nil {
			return err
		}

		if err := WriteString(w, kv[1]); err != nil {
			return err
		}
	}

	return nil
}

// ReadStringPairs reads an ordered sequence of (key, value) string pairs.
func ReadStringPairs(r io.Reader, maxBytes uint64) ([][2]string, error) {
	count, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}

	pairs := make([][2]string, count)
	for i := range pairs {
		k, err := ReadString(r, maxBytes)
		if err != nil {
			return nil, err
		}

		v, err := ReadString(r, maxBytes)
		if err != nil {
			return nil, err
		}

		pairs[i] = [2]string{k, v}
	}

	return pairs, nil
}

// WriteStringMap writes a map as count + sorted key/value pairs, giving a
// deterministic wire encoding for an unordered Go map.
func WriteStringMap(w io.Writer, m map[string]string) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	pairs := make([][2]string, len(keys))
	for i, k := range keys {
		pairs[i] = [2]string{k, m[k]}
	}

	return WriteStringPairs(w, pairs)
}

// ReadStringMap reads a map of string key/value pairs.
func ReadStringMap(r io.Reader, maxBytes uint64) (map[string]string, error) {
	pairs, err := ReadStringPairs(r, maxBytes)
	if err != nil {
		return nil, err
	}

	m := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		m[kv[0]] = kv[1]
	}

	return m, nil
}

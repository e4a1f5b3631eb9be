package executor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// TestSuite is the "tests" object of a request: input → expected output.
//
// It decodes a JSON object into a slice so the key order of the request is
// kept. Go maps iterate in random order, which would make the reported
// first failure differ between identical requests.
type TestSuite []TestCase

func (s *TestSuite) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("tests: expected an object of input to expected output")
	}

	var suite TestSuite
	// A repeated key keeps its first position and takes the last value,
	// the same as decoding into a map.
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var expected string
		if err := dec.Decode(&expected); err != nil {
			return fmt.Errorf("tests[%q]: expected output must be a string: %w", key, err)
		}
		if i, seen := index[key]; seen {
			suite[i].Expected = expected
			continue
		}
		index[key] = len(suite)
		suite = append(suite, TestCase{Input: key, Expected: expected})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = suite
	return nil
}

// MarshalJSON writes the suite back as an object, in order.
func (s TestSuite) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tc := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(tc.Input)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(tc.Expected)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Package message reads launch message literals from JSON or TOML documents
// and renders decoded replies back into either format.
//
// JSON objects keep their key order and become launch.Map literals. A TOML
// document is always a table, so it always describes a dictionary.
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/launchkit/internal/launch"
	"github.com/pelletier/go-toml/v2"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// ReplyKey wraps non-table replies rendered as TOML.
const ReplyKey = "reply"

var (
	ErrUnknownFormat = errors.New("message: unknown format")
	ErrTrailingData  = errors.New("message: trailing data after literal")
	ErrNull          = errors.New("message: null has no launch data kind")
	ErrNumber        = errors.New("message: number out of range")
	ErrTooDeep       = errors.New("message: literal nested too deeply")
)

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatJSON, FormatTOML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// Parse decodes one literal suitable for launch.Marshaler.Coerce.
func Parse(data []byte, format Format) (any, error) {
	switch format {
	case FormatJSON:
		return parseJSON(data)
	case FormatTOML:
		return parseTOML(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func parseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readJSON(dec, 0)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}
	return v, nil
}

func readJSON(dec *json.Decoder, depth int) (any, error) {
	if depth > launch.MaxDecodeDepth {
		return nil, ErrTooDeep
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("message: parse json: %w", err)
	}
	switch t := tok.(type) {
	case json.Delim:
		if t == '{' {
			return readJSONObject(dec, depth)
		}
		return readJSONArray(dec, depth)
	case json.Number:
		return jsonNumber(t)
	case string:
		return t, nil
	case bool:
		return t, nil
	case nil:
		return nil, ErrNull
	}
	return nil, fmt.Errorf("message: parse json: unexpected token %v", tok)
}

func readJSONObject(dec *json.Decoder, depth int) (any, error) {
	m := launch.Map{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("message: parse json: %w", err)
		}
		key, _ := tok.(string)
		v, err := readJSON(dec, depth+1)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		m = append(m, launch.Entry{Key: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("message: parse json: %w", err)
	}
	return m, nil
}

func readJSONArray(dec *json.Decoder, depth int) (any, error) {
	items := []any{}
	for dec.More() {
		v, err := readJSON(dec, depth+1)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", len(items), err)
		}
		items = append(items, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("message: parse json: %w", err)
	}
	return items, nil
}

// jsonNumber keeps integral literals as int64 so they map to Integer.
func jsonNumber(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNumber, n)
	}
	return f, nil
}

func parseTOML(data []byte) (any, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("message: parse toml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return normalizeTOML(doc), nil
}

// normalizeTOML turns TOML date and time values into strings; launch data
// has no time kind.
func normalizeTOML(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeTOML(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalizeTOML(e)
		}
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case toml.LocalDate:
		return x.String()
	case toml.LocalTime:
		return x.String()
	case toml.LocalDateTime:
		return x.String()
	}
	return v
}

// Render formats a decoded reply. TOML output wraps anything that is not
// a dictionary under ReplyKey.
func Render(v any, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("message: render json: %w", err)
		}
		return append(out, '\n'), nil
	case FormatTOML:
		doc, ok := v.(map[string]any)
		if !ok {
			doc = map[string]any{ReplyKey: v}
		}
		out, err := toml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("message: render toml: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

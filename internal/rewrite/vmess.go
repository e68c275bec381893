package rewrite

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"subaggr/internal/hostlist"
)

// jsonField is one member of a JSON object, kept in document order.
type jsonField struct {
	key   string
	value json.RawMessage
}

type jsonObject []jsonField

func (o jsonObject) index(key string) int {
	for i, f := range o {
		if f.key == key {
			return i
		}
	}
	return -1
}

func (o jsonObject) get(key string) (json.RawMessage, bool) {
	if i := o.index(key); i >= 0 {
		return o[i].value, true
	}
	return nil, false
}

func (o jsonObject) set(key string, value json.RawMessage) jsonObject {
	if i := o.index(key); i >= 0 {
		o[i].value = value
		return o
	}
	return append(o, jsonField{key: key, value: value})
}

func (o jsonObject) remove(key string) jsonObject {
	if i := o.index(key); i >= 0 {
		return append(o[:i], o[i+1:]...)
	}
	return o
}

func decodeObject(data []byte) (jsonObject, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("vmess payload is not a json object: %w", errMalformed)
	}

	var obj jsonObject
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, errMalformed
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return nil, err
		}
		obj = obj.set(key, compact.Bytes())
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("vmess payload has trailing data: %w", errMalformed)
	}
	return obj, nil
}

func (o jsonObject) marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalString(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(f.value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// isFalsy follows JavaScript truthiness for a JSON value.
func isFalsy(raw json.RawMessage) bool {
	switch s := string(raw); s {
	case "", "null", "false", `""`:
		return true
	default:
		if s[0] == '-' || (s[0] >= '0' && s[0] <= '9') {
			f, err := strconv.ParseFloat(s, 64)
			return err == nil && f == 0
		}
		return false
	}
}

// displayText renders a truthy scalar the way string interpolation would.
func displayText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	if string(raw) == "true" {
		return "true", true
	}
	return "", false
}

func rewriteVmess(uri, host string, index int) (string, error) {
	payload, variant, err := decodeBase64(strings.TrimPrefix(uri, "vmess://"))
	if err != nil {
		return "", fmt.Errorf("decode vmess: %w", err)
	}

	config, err := decodeObject(payload)
	if err != nil {
		return "", fmt.Errorf("parse vmess json: %w", err)
	}

	if current, ok := config.get("host"); !ok || isFalsy(current) {
		if add, ok := config.get("add"); ok {
			config = config.set("host", add)
		} else {
			config = config.remove("host")
		}
	}

	addr, err := marshalString(hostlist.StripBrackets(host))
	if err != nil {
		return "", err
	}
	config = config.set("add", addr)

	if ps, ok := config.get("ps"); ok && !isFalsy(ps) {
		if name, ok := displayText(ps); ok {
			renamed, err := marshalString(name + suffix(index))
			if err != nil {
				return "", err
			}
			config = config.set("ps", renamed)
		}
	}

	out, err := config.marshal()
	if err != nil {
		return "", err
	}
	return "vmess://" + variant.encoding().EncodeToString(out), nil
}

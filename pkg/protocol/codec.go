package protocol

import (
	"fmt"
	"math"

	"kvview/pkg/kvkey"
	"kvview/pkg/wire"
)

// EncodeRequest serializes req with the wire encoding.
func EncodeRequest(req Request) ([]byte, error) {
	return wire.Marshal(req.Tree())
}

// DecodeRequest parses a wire-encoded request.
func DecodeRequest(data []byte) (Request, error) {
	tree, err := wire.Unmarshal(data)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return RequestFromTree(tree)
}

// EncodeResponse serializes resp with the wire encoding.
func EncodeResponse(resp Response) ([]byte, error) {
	return wire.Marshal(resp.Tree())
}

// DecodeResponse parses a wire-encoded response.
func DecodeResponse(data []byte) (Response, error) {
	tree, err := wire.Unmarshal(data)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ResponseFromTree(tree)
}

// Tree converts req into a value tree accepted by wire.Marshal.
func (req Request) Tree() map[string]any {
	t := map[string]any{
		"id":   req.ID,
		"type": string(req.Kind),
	}
	switch req.Kind {
	case KindList:
		t["key"] = keyTree(req.Key)
		if req.Limit > 0 {
			t["limit"] = req.Limit
		}
		if req.Cursor != "" {
			t["cursor"] = req.Cursor
		}
	case KindGet, KindDelete:
		t["key"] = keyTree(req.Key)
	case KindSet:
		t["key"] = keyTree(req.Key)
		t["value"] = req.Value
	case KindChangeDatabase:
		if req.Database != nil {
			t["database"] = *req.Database
		}
	case KindMessage:
		t["message"] = req.Message
	}
	return t
}

// RequestFromTree is the inverse of Request.Tree. When the ID and kind are
// readable but a later field is not, they are returned along with the error
// so the failure can still be answered.
func RequestFromTree(tree any) (Request, error) {
	m, ok := tree.(map[string]any)
	if !ok {
		return Request{}, fmt.Errorf("%w: request is %T, not an object", ErrMalformed, tree)
	}

	var req Request
	var err error
	if req.ID, err = idField(m); err != nil {
		return Request{}, err
	}
	if req.Kind, err = kindField(m); err != nil {
		return Request{}, err
	}

	switch req.Kind {
	case KindList:
		if req.Key, err = keyField(m, false); err != nil {
			return req, err
		}
		if req.Limit, err = intField(m, "limit"); err != nil {
			return req, err
		}
		if req.Cursor, err = stringField(m, "cursor"); err != nil {
			return req, err
		}
	case KindGet, KindDelete:
		if req.Key, err = keyField(m, true); err != nil {
			return req, err
		}
	case KindSet:
		if req.Key, err = keyField(m, true); err != nil {
			return req, err
		}
		if _, ok := m["value"]; !ok {
			return req, fmt.Errorf("%w: set without value", ErrMalformed)
		}
		req.Value = m["value"]
	case KindChangeDatabase:
		if raw, ok := m["database"]; ok && raw != nil {
			s, ok := raw.(string)
			if !ok {
				return req, fmt.Errorf("%w: database is %T", ErrMalformed, raw)
			}
			req.Database = &s
		}
	case KindMessage:
		if req.Message, err = stringField(m, "message"); err != nil {
			return req, err
		}
	}
	return req, nil
}

// Tree converts resp into a value tree accepted by wire.Marshal.
func (resp Response) Tree() map[string]any {
	t := map[string]any{
		"id":     resp.ID,
		"type":   string(resp.Kind),
		"status": string(resp.Status),
	}
	if resp.Status == StatusError {
		t["error"] = resp.Error
		return t
	}

	switch resp.Kind {
	case KindList:
		entries := make([]any, len(resp.Entries))
		for i, e := range resp.Entries {
			entries[i] = entryTree(e)
		}
		t["entries"] = entries
		if resp.Cursor != "" {
			t["cursor"] = resp.Cursor
		}
	case KindGet:
		if resp.Entry != nil {
			t["entry"] = entryTree(*resp.Entry)
		} else {
			t["entry"] = nil
		}
	case KindSet:
		t["versionstamp"] = resp.Versionstamp
	case KindChangeDatabase:
		if resp.Cancelled {
			t["cancelled"] = true
		} else if resp.Database != nil {
			t["database"] = *resp.Database
		}
	case KindConfig:
		if resp.Display != nil {
			t["config"] = map[string]any{
				"previewValue": resp.Display.PreviewValue,
				"pageSize":     resp.Display.PageSize,
			}
		}
	}
	return t
}

// ResponseFromTree is the inverse of Response.Tree.
func ResponseFromTree(tree any) (Response, error) {
	m, ok := tree.(map[string]any)
	if !ok {
		return Response{}, fmt.Errorf("%w: response is %T, not an object", ErrMalformed, tree)
	}

	var resp Response
	var err error
	if resp.ID, err = idField(m); err != nil {
		return Response{}, err
	}
	if resp.Kind, err = kindField(m); err != nil {
		return Response{}, err
	}
	status, err := stringField(m, "status")
	if err != nil {
		return Response{}, err
	}
	resp.Status = Status(status)

	switch resp.Status {
	case StatusError:
		resp.Error, err = stringField(m, "error")
		return resp, err
	case StatusOK:
	default:
		return Response{}, fmt.Errorf("%w: status %q", ErrMalformed, status)
	}

	switch resp.Kind {
	case KindList:
		raw, _ := m["entries"].([]any)
		resp.Entries = make([]Entry, 0, len(raw))
		for i, item := range raw {
			e, err := entryFromTree(item)
			if err != nil {
				return Response{}, fmt.Errorf("entry %d: %w", i, err)
			}
			resp.Entries = append(resp.Entries, e)
		}
		if resp.Cursor, err = stringField(m, "cursor"); err != nil {
			return Response{}, err
		}
	case KindGet:
		if raw := m["entry"]; raw != nil {
			e, err := entryFromTree(raw)
			if err != nil {
				return Response{}, err
			}
			resp.Entry = &e
		}
	case KindSet:
		if resp.Versionstamp, err = stringField(m, "versionstamp"); err != nil {
			return Response{}, err
		}
	case KindChangeDatabase:
		resp.Cancelled, _ = m["cancelled"].(bool)
		if db, ok := m["database"].(string); ok {
			resp.Database = &db
		}
	case KindConfig:
		if c, ok := m["config"].(map[string]any); ok {
			d := Display{}
			d.PreviewValue, _ = c["previewValue"].(bool)
			if d.PageSize, err = intField(c, "pageSize"); err != nil {
				return Response{}, err
			}
			resp.Display = &d
		}
	}
	return resp, nil
}

func keyTree(k kvkey.Key) []any {
	if k == nil {
		return []any{}
	}
	return k.Values()
}

func entryTree(e Entry) map[string]any {
	return map[string]any{
		"key":          keyTree(e.Key),
		"value":        e.Value,
		"versionstamp": e.Versionstamp,
	}
}

func entryFromTree(tree any) (Entry, error) {
	m, ok := tree.(map[string]any)
	if !ok {
		return Entry{}, fmt.Errorf("%w: entry is %T", ErrMalformed, tree)
	}
	key, err := keyField(m, true)
	if err != nil {
		return Entry{}, err
	}
	vs, err := stringField(m, "versionstamp")
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: key, Value: m["value"], Versionstamp: vs}, nil
}

func idField(m map[string]any) (uint64, error) {
	f, ok := m["id"].(float64)
	if !ok || f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: bad id %v", ErrMalformed, m["id"])
	}
	return uint64(f), nil
}

func kindField(m map[string]any) (Kind, error) {
	s, ok := m["type"].(string)
	if !ok {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	k := Kind(s)
	if !k.valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

func keyField(m map[string]any, required bool) (kvkey.Key, error) {
	raw, ok := m["key"]
	if !ok || raw == nil {
		if required {
			return nil, fmt.Errorf("%w: missing key", ErrMalformed)
		}
		return kvkey.Key{}, nil
	}
	parts, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: key is %T, not an array", ErrMalformed, raw)
	}
	key, err := kvkey.FromValues(parts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return key, nil
}

func stringField(m map[string]any, name string) (string, error) {
	raw, ok := m[name]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T", ErrMalformed, name, raw)
	}
	return s, nil
}

func intField(m map[string]any, name string) (int, error) {
	raw, ok := m[name]
	if !ok || raw == nil {
		return 0, nil
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s is %v", ErrMalformed, name, raw)
	}
	return int(f), nil
}

package browser

import (
	"context"
	"strings"
	"unicode/utf8"

	"kvview/pkg/kvkey"
	"kvview/pkg/protocol"
	"kvview/pkg/value"
	"kvview/pkg/wire"
)

// ListPage shows the entries under a prefix, one page at a time.
type ListPage struct {
	s *Session

	Prefix  kvkey.Key
	Entries []protocol.Entry
	cursor  string
}

// Row is a list entry prepared for display.
type Row struct {
	Key     string
	Preview string
}

// Search parses query into a prefix and loads its first page. A new prefix
// discards the collected entries and the cursor.
func (p *ListPage) Search(ctx context.Context, query string) error {
	p.reset(kvkey.ParseQuery(query))
	return p.fetch(ctx)
}

// Reload restarts pagination for the current prefix.
func (p *ListPage) Reload(ctx context.Context) error {
	p.reset(p.Prefix)
	return p.fetch(ctx)
}

// More appends the next page. It does nothing once the listing is complete.
func (p *ListPage) More(ctx context.Context) error {
	if !p.HasMore() {
		return nil
	}
	return p.fetch(ctx)
}

func (p *ListPage) HasMore() bool { return p.cursor != "" }

func (p *ListPage) reset(prefix kvkey.Key) {
	p.Prefix = prefix
	p.Entries = nil
	p.cursor = ""
}

func (p *ListPage) fetch(ctx context.Context) error {
	prefix := p.Prefix
	resp, err := p.s.caller.Call(ctx, protocol.Request{
		Kind:   protocol.KindList,
		Key:    prefix,
		Limit:  p.s.display.PageSize,
		Cursor: p.cursor,
	})
	if err != nil {
		return err
	}
	// a search issued meanwhile owns the page now
	if !prefix.Equal(p.Prefix) {
		return nil
	}
	p.Entries = append(p.Entries, resp.Entries...)
	p.cursor = resp.Cursor
	return nil
}

// Rows renders the collected entries. Values are previewed only when the
// display configuration asks for it.
func (p *ListPage) Rows() []Row {
	rows := make([]Row, len(p.Entries))
	for i, e := range p.Entries {
		rows[i].Key = kvkey.Render(e.Key)
		if p.s.display.PreviewValue {
			rows[i].Preview = preview(e.Value, p.s.previewWidth)
		}
	}
	return rows
}

func preview(v any, width int) string {
	text := strings.Join(strings.Fields(value.Classify(v).Text), " ")
	if utf8.RuneCountInString(text) <= width {
		return text
	}
	runes := []rune(text)
	return string(runes[:width-1]) + "…"
}

// ExportJSON encodes the collected entries with the wire serializer, so byte
// strings and big integers survive the export.
func (p *ListPage) ExportJSON() ([]byte, error) {
	items := make([]any, len(p.Entries))
	for i, e := range p.Entries {
		items[i] = map[string]any{
			"key":          e.Key.Values(),
			"value":        e.Value,
			"versionstamp": e.Versionstamp,
		}
	}
	return wire.Marshal(items)
}

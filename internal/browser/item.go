package browser

import (
	"context"
	"fmt"

	"kvview/pkg/kvkey"
	"kvview/pkg/protocol"
	"kvview/pkg/value"
)

// ItemPage edits a single entry.
type ItemPage struct {
	s *Session

	Key          kvkey.Key
	Value        value.Value
	Versionstamp string
	IsNew        bool
	Banner       *Banner
}

// New clears the page for creating an entry.
func (p *ItemPage) New() {
	p.Key = nil
	p.Value = value.Value{Type: value.TypeString}
	p.Versionstamp = ""
	p.IsNew = true
	p.Banner = nil
}

// Open loads the entry at keyText. An absent key leaves the page in create
// mode for that key.
func (p *ItemPage) Open(ctx context.Context, keyText string) error {
	p.New()
	p.Key = kvkey.ParseQuery(keyText)
	if len(p.Key) == 0 {
		return p.fail(ErrKeyEmpty)
	}
	return p.load(ctx)
}

func (p *ItemPage) load(ctx context.Context) error {
	resp, err := p.s.caller.Call(ctx, protocol.Request{Kind: protocol.KindGet, Key: p.Key})
	if err != nil {
		return p.fail(err)
	}
	if resp.Entry == nil {
		p.IsNew = true
		p.Banner = &Banner{Level: LevelInfo, Message: "Item not found"}
		return nil
	}
	p.Value = value.Classify(resp.Entry.Value)
	p.Versionstamp = resp.Entry.Versionstamp
	p.IsNew = false
	return nil
}

// Save validates text as t and writes it under keyText, then reloads the
// entry to show its new versionstamp. A nil text with a type that accepts it
// writes nothing.
func (p *ItemPage) Save(ctx context.Context, keyText string, text *string, t value.Type) error {
	key := kvkey.ParseQuery(keyText)
	if len(key) == 0 {
		return p.fail(ErrKeyEmpty)
	}
	if res := value.Validate(text, t); !res.Valid {
		p.Banner = &Banner{Level: LevelError, Message: res.Reason}
		return fmt.Errorf("%w: %s", ErrInvalidValue, res.Reason)
	}
	p.Key = key
	if text == nil {
		return nil
	}

	v, err := value.Convert(*text, t)
	if err != nil {
		return p.fail(err)
	}
	if _, err := p.s.caller.Call(ctx, protocol.Request{Kind: protocol.KindSet, Key: key, Value: v}); err != nil {
		return p.fail(err)
	}
	banner := p.s.stamp("The item set successfully")
	p.Banner = &banner

	if err := p.load(ctx); err != nil {
		return err
	}
	p.Banner = &banner
	return nil
}

// Delete removes the open entry.
func (p *ItemPage) Delete(ctx context.Context) error {
	if len(p.Key) == 0 {
		return p.fail(ErrKeyEmpty)
	}
	if _, err := p.s.caller.Call(ctx, protocol.Request{Kind: protocol.KindDelete, Key: p.Key}); err != nil {
		return p.fail(err)
	}
	banner := p.s.stamp("The item deleted successfully")
	p.Banner = &banner
	p.Versionstamp = ""
	p.IsNew = true
	return nil
}

func (p *ItemPage) fail(err error) error {
	p.Banner = &Banner{Level: LevelError, Message: err.Error()}
	return err
}

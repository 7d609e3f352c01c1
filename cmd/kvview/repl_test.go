package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kvview/internal/browser"
	"kvview/internal/host"
	"kvview/pkg/protocol"
	"kvview/pkg/store"
	"kvview/pkg/wire"
)

// memoryCaller answers protocol calls straight from an in-memory store.
type memoryCaller struct {
	st    *store.Store
	notes []string
}

func (c *memoryCaller) Call(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	resp := protocol.OK(req)
	var err error
	switch req.Kind {
	case protocol.KindList:
		var page store.Page
		page, err = c.st.List(ctx, req.Key, store.ListOptions{Limit: req.Limit, Cursor: req.Cursor})
		for _, e := range page.Entries {
			resp.Entries = append(resp.Entries, protocol.Entry(e))
		}
		resp.Cursor = page.Cursor
	case protocol.KindGet:
		var e store.Entry
		var found bool
		e, found, err = c.st.Get(ctx, req.Key)
		if found {
			pe := protocol.Entry(e)
			resp.Entry = &pe
		}
	case protocol.KindSet:
		resp.Versionstamp, err = c.st.Set(ctx, req.Key, req.Value)
	case protocol.KindDelete:
		err = c.st.Delete(ctx, req.Key)
	case protocol.KindConfig:
		resp.Display = &protocol.Display{PreviewValue: true, PageSize: 2}
	case protocol.KindChangeDatabase:
		if req.Database == nil {
			resp.Cancelled = true
		} else {
			resp.Database = req.Database
		}
	case protocol.KindMessage:
		c.notes = append(c.notes, req.Message)
	}
	if err != nil {
		resp = protocol.Fail(req, err.Error())
	}
	return resp, resp.Err()
}

func runScript(t *testing.T, script ...string) (string, *memoryCaller) {
	t.Helper()
	caller := &memoryCaller{st: store.OpenMemory(store.Options{})}
	var out bytes.Buffer
	term := host.NewTerminal(strings.NewReader(strings.Join(script, "\n")+"\n"), &out)

	session := browser.NewSession(caller)
	if _, err := session.LoadConfig(context.Background()); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := newREPL(session, term).run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return out.String(), caller
}

func expectAll(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Fatalf("output is missing %q:\n%s", w, out)
		}
	}
}

func TestREPL_EditAndList(t *testing.T) {
	out, _ := runScript(t,
		`set json "user",1 = {"a": 1}`,
		`set number "user",2 = 5`,
		`set string "user",3 = x`,
		`ls "user"`,
		`more`,
		`get "user",2`,
		`rm "user",2`,
		`ls "user"`,
		`quit`,
	)

	expectAll(t, out,
		"[success] The item set successfully",
		`"user",1`,
		`"user",3`,
		`"more" for the next page`,
		"type: number",
		"versionstamp: 0000000000000002",
		"[success] The item deleted successfully",
	)
}

func TestREPL_Rejections(t *testing.T) {
	out, _ := runScript(t,
		`set number "k" = abc`,
		`set string = x`,
		`set json "k"`,
		`set yaml "k" = a`,
		`get "missing"`,
		`ls "nothing"`,
		`bogus`,
	)

	expectAll(t, out,
		"[error] invalid number",
		"[error] Key is empty",
		"[error] json cannot be null",
		"[error] unknown valueType",
		"[info] Item not found",
		"No items found",
		`unknown command "bogus"`,
	)
}

func TestREPL_DatabaseExportNotify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	out, caller := runScript(t,
		`db`,
		`db /data/other`,
		`set string "a" = 1`,
		`ls`,
		`export `+path,
		`notify Copied!`,
	)

	expectAll(t, out, "using /data/other", "exported 1 entries")
	if len(caller.notes) != 1 || caller.notes[0] != "Copied!" {
		t.Fatalf("unexpected notifications %v", caller.notes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	if _, err := wire.Unmarshal(data); err != nil {
		t.Fatalf("export is not readable: %v", err)
	}
}

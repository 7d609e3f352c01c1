package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"kvview/internal/browser"
	"kvview/internal/host"
	"kvview/pkg/kvkey"
	"kvview/pkg/value"
)

const helpText = `commands:
  ls [query]                      list entries under a key prefix (alias: search)
  more                            load the next page
  get <key>                       open an entry
  new                             start a new entry
  set <type> <key> [= <value>]    write an entry; type is string, number or json
  rm [key]                        delete the open entry, or the one at key
  db [locator]                    change database; without a locator you are asked,
                                  "-" selects the default database
  export [file]                   write the listed entries as JSON
  notify <text>                   show a notification
  help                            show this text
  quit                            leave
`

// repl maps terminal lines onto the browser pages.
type repl struct {
	session *browser.Session
	term    *host.Terminal
}

func newREPL(session *browser.Session, term *host.Terminal) *repl {
	return &repl{session: session, term: term}
}

func (r *repl) run(ctx context.Context) error {
	r.term.Printf("KV Viewer on %s. Type \"help\" for commands.\n", r.session.DatabaseLabel())
	for {
		line, ok, err := r.term.ReadLine(fmt.Sprintf("kv[%s]> ", r.session.DatabaseLabel()))
		if err != nil {
			return err
		}
		if !ok || ctx.Err() != nil {
			return nil
		}
		if quit := r.exec(ctx, line); quit {
			return nil
		}
	}
}

// exec runs one command line and reports whether the session should end.
func (r *repl) exec(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch cmd {
	case "":
	case "ls", "search":
		if err = r.session.List().Search(ctx, rest); err == nil {
			r.printList()
		}
	case "more":
		if err = r.session.List().More(ctx); err == nil {
			r.printList()
		}
	// item failures are reported through the banner
	case "get":
		_ = r.session.Item().Open(ctx, rest)
		r.printItem()
	case "new":
		r.session.Item().New()
		r.term.Printf("new item\n")
	case "set":
		_ = r.set(ctx, rest)
		r.printItem()
	case "rm", "delete":
		_ = r.remove(ctx, rest)
		r.printItem()
	case "db":
		err = r.changeDatabase(ctx, rest)
	case "export":
		err = r.export(rest)
	case "notify":
		err = r.session.Notify(ctx, rest)
	case "help":
		r.term.Printf("%s", helpText)
	case "quit", "exit":
		return true
	default:
		r.term.Printf("unknown command %q, type \"help\"\n", cmd)
	}

	if err != nil {
		r.term.Printf("error: %v\n", err)
	}
	return false
}

// set parses "<type> <key> [= <value>]". A missing value writes nothing
// unless the type rejects it.
func (r *repl) set(ctx context.Context, args string) error {
	typ, rest, _ := strings.Cut(args, " ")
	keyText, valueText, hasValue := strings.Cut(rest, "=")

	var text *string
	if hasValue {
		v := strings.TrimSpace(valueText)
		text = &v
	}
	return r.session.Item().Save(ctx, strings.TrimSpace(keyText), text, value.Type(typ))
}

func (r *repl) remove(ctx context.Context, keyText string) error {
	item := r.session.Item()
	if keyText != "" {
		if err := item.Open(ctx, keyText); err != nil {
			return err
		}
		if item.IsNew {
			return nil
		}
	}
	return item.Delete(ctx)
}

func (r *repl) changeDatabase(ctx context.Context, arg string) error {
	var loc *string
	switch arg {
	case "":
	case "-":
		def := ""
		loc = &def
	default:
		loc = &arg
	}

	changed, err := r.session.ChangeDatabase(ctx, loc)
	if err != nil || !changed {
		return err
	}
	r.term.Printf("using %s\n", r.session.DatabaseLabel())
	if err := r.session.List().Reload(ctx); err != nil {
		return err
	}
	r.printList()
	return nil
}

func (r *repl) export(path string) error {
	data, err := r.session.List().ExportJSON()
	if err != nil {
		return err
	}
	if path == "" {
		r.term.Printf("%s\n", data)
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	r.term.Printf("exported %d entries to %s\n", len(r.session.List().Entries), path)
	return nil
}

func (r *repl) printList() {
	list := r.session.List()
	r.term.Printf("prefix: [%s]\n", kvkey.Render(list.Prefix))

	rows := list.Rows()
	if len(rows) == 0 {
		r.term.Printf("No items found\n")
		return
	}
	for _, row := range rows {
		if row.Preview == "" {
			r.term.Printf("  %s\n", row.Key)
			continue
		}
		r.term.Printf("  %-30s %s\n", row.Key, row.Preview)
	}
	if list.HasMore() {
		r.term.Printf("-- %d shown, \"more\" for the next page --\n", len(rows))
	}
}

func (r *repl) printItem() {
	item := r.session.Item()
	if len(item.Key) > 0 {
		mode := "update"
		if item.IsNew {
			mode = "create"
		}
		r.term.Printf("key:  %s (%s)\n", kvkey.Render(item.Key), mode)
		if !item.IsNew {
			r.term.Printf("type: %s\n", item.Value.Type)
			if item.Versionstamp != "" {
				r.term.Printf("versionstamp: %s\n", item.Versionstamp)
			}
			r.term.Printf("%s\n", item.Value.Text)
		}
	}
	if b := item.Banner; b != nil {
		r.term.Printf("[%s] %s\n", b.Level, b.Message)
		item.Banner = nil
	}
}

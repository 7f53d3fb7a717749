// Package internal holds operator-facing plumbing: process configuration
// and the badger inspection server.
package internal

import (
	"chat-relay/domain"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Kind      string
	ID        string
	Author    string
	Timestamp string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves a read-only view over the badger store, one row
// per key under the requested prefix. Not meant to be exposed beyond
// localhost or a trusted network.
func StartDebugServer(db *badger.DB, port int, endpoint string, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = RelayMapper
	}

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}

		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// RelayMapper renders the relay's three key families: msg: rows decode the
// stored message, dedup: rows show the original ID a retry maps to, and seq
// shows the raw counter.
func RelayMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:    key,
		Kind:   "RAW",
		ID:     "-",
		Author: "-",
		Detail: "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	switch {
	case len(key) > 4 && key[:4] == "msg:":
		var message domain.Message
		if err := json.Unmarshal(val, &message); err != nil {
			row.Detail = "undecodable: " + err.Error()
			return row
		}
		row.Kind = "MESSAGE"
		row.ID = strconv.FormatUint(message.ID, 10)
		row.Author = message.Author
		row.Timestamp = message.CreatedAt.Format(time.RFC3339)
		row.Detail = message.Content
	case len(key) > 6 && key[:6] == "dedup:":
		row.Kind = "DEDUP"
		if len(val) == 8 {
			row.ID = strconv.FormatUint(binary.BigEndian.Uint64(val), 10)
			row.Detail = "retry maps to message " + row.ID
		}
	case key == "seq":
		row.Kind = "COUNTER"
		if len(val) == 8 {
			row.ID = strconv.FormatUint(binary.BigEndian.Uint64(val), 10)
			row.Detail = "last assigned message ID"
		}
	}
	return row
}

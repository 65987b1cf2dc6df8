package internal

import (
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const defaultInspectPrefix = "msg:"

var inspectTemplate = template.Must(template.New("inspect").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>History inspector</title></head>
<body>
<form method="get"><input name="prefix" value="{{.Prefix}}" size="60"><button>Scan</button></form>
{{range $k, $v := .Stats}}<p><b>{{$k}}</b>: {{$v}}</p>{{end}}
<table border="1" cellpadding="4">
<tr><th>Key</th><th>Conversation</th><th>Seq</th><th>Detail</th></tr>
{{range .Items}}<tr><td>{{.Key}}</td><td>{{.Conversation}}</td><td>{{.Seq}}</td><td>{{.Detail}}</td></tr>{{end}}
</table>
</body>
</html>`))

type InspectRow struct {
	Key          string
	Conversation string
	Seq          string
	Detail       string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// InspectHandler renders the Badger entries under ?prefix= as an HTML table.
// It is a read-only debugging aid mounted only when DEBUG_INSPECT is set.
func InspectHandler(db *badger.DB, mapper RowMapper, statsProvider StatsProvider) http.Handler {
	if mapper == nil {
		mapper = DefaultMapper
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = defaultInspectPrefix
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		err := db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				err := item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = inspectTemplate.Execute(w, data)
	})
}

// DefaultMapper splits "msg:{kind}:{id}:{seq}" keys.
func DefaultMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:          key,
		Conversation: "-",
		Seq:          "-",
		Detail:       "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	parts := strings.Split(key, ":")
	if len(parts) == 4 {
		row.Conversation = parts[1] + ":" + parts[2]
		if seq, err := strconv.ParseUint(parts[3], 10, 64); err == nil {
			row.Seq = strconv.FormatUint(seq, 10)
		}
	}
	return row
}

package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestDefaultMapper(t *testing.T) {
	req := require.New(t)

	row := DefaultMapper("msg:room:1f2e:00000000000000000042", []byte("{}"))
	req.Equal("room:1f2e", row.Conversation)
	req.Equal("42", row.Seq)
	req.Equal("Size: 2 bytes", row.Detail)

	row = DefaultMapper("other", nil)
	req.Equal("-", row.Conversation)
}

func TestInspectHandler(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	req.NoError(db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("msg:session:abc:00000000000000000001"), []byte(`{"seq":1}`))
	}))

	handler := InspectHandler(db, nil, func() map[string]any { return map[string]any{"live": 3} })
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/inspect", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), "session:abc")
	req.Contains(rec.Body.String(), "live")
}

package history

import (
	"testing"

	"github.com/streamshort/backend/internal/kv"
	"github.com/streamshort/backend/internal/logger"
	"github.com/streamshort/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPort(t *testing.T) (*KVPort, *kv.MemoryStore) {
	t.Helper()
	store := kv.NewMemoryStore()
	return NewKVPort(store, logger.Component(logger.Discard(), "history")), store
}

func sampleRecord(id, slug string) models.VideoRecord {
	return models.VideoRecord{
		ID:            id,
		Name:          "clip.mp4",
		Size:          1048576,
		MimeType:      "video/mp4",
		ShortLink:     "https://str.short/" + slug,
		Slug:          slug,
		AITitle:       "Epic Clip",
		AIDescription: "A great clip.",
		Tags:          []string{"fun", "short"},
		CreatedAt:     1700000000000,
	}
}

func TestKVPort_LoadAll(t *testing.T) {
	valid := `{"id":"a","name":"a.mp4","size":1,"type":"video/mp4","url":"","shortUrl":"https://str.short/aaa","slug":"aaa","aiTitle":"A","aiDescription":"d","tags":["x"],"createdAt":1}`

	tests := []struct {
		name    string
		blob    *string
		wantIDs []string
	}{
		{name: "missing key", blob: nil, wantIDs: []string{}},
		{name: "malformed JSON", blob: strPtr(`[{"id":`), wantIDs: []string{}},
		{name: "valid JSON but not an array", blob: strPtr(`{"id":"a"}`), wantIDs: []string{}},
		{name: "empty array", blob: strPtr(`[]`), wantIDs: []string{}},
		{name: "one valid record", blob: strPtr(`[` + valid + `]`), wantIDs: []string{"a"}},
		{name: "drops wrong shapes", blob: strPtr(`[42, "str", {"id":"b"}, ` + valid + `]`), wantIDs: []string{"a"}},
		{name: "drops duplicate ids", blob: strPtr(`[` + valid + `,` + valid + `]`), wantIDs: []string{"a"}},
		{name: "drops record with wrong field types", blob: strPtr(`[{"id":"c","name":"c","size":"big","slug":"c","shortUrl":"s","tags":[]}]`), wantIDs: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, store := newTestPort(t)
			if tt.blob != nil {
				require.NoError(t, store.Set(StorageKey, []byte(*tt.blob)))
			}

			records, err := port.LoadAll()
			require.NoError(t, err)
			require.NotNil(t, records)

			ids := make([]string, 0, len(records))
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestKVPort_SaveAllEmptyWritesArray(t *testing.T) {
	port, store := newTestPort(t)

	require.NoError(t, port.SaveAll(nil))

	blob, ok, err := store.Get(StorageKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", string(blob))
}

func TestKVPort_RoundTripIsFixedPoint(t *testing.T) {
	port, store := newTestPort(t)

	require.NoError(t, port.SaveAll([]models.VideoRecord{
		sampleRecord("2", "bbb"),
		sampleRecord("1", "aaa"),
	}))
	first, _, err := store.Get(StorageKey)
	require.NoError(t, err)

	loaded, err := port.LoadAll()
	require.NoError(t, err)
	require.NoError(t, port.SaveAll(loaded))

	second, _, err := store.Get(StorageKey)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func strPtr(s string) *string { return &s }

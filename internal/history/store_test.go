package history

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/streamshort/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPort keeps saves in memory and can be told to fail.
type recordingPort struct {
	saved   []models.VideoRecord
	saves   int
	failErr error
}

func (p *recordingPort) LoadAll() ([]models.VideoRecord, error) {
	return append([]models.VideoRecord(nil), p.saved...), nil
}

func (p *recordingPort) SaveAll(records []models.VideoRecord) error {
	if p.failErr != nil {
		return p.failErr
	}
	p.saves++
	p.saved = append([]models.VideoRecord(nil), records...)
	return nil
}

func prepend(s *Store, rec models.VideoRecord) error {
	_, err := s.PrependUnique(func(func(string) bool) (models.VideoRecord, error) {
		return rec, nil
	})
	return err
}

func TestStore_PrependNewestFirst(t *testing.T) {
	port := &recordingPort{}
	s, err := NewStore(port)
	require.NoError(t, err)

	require.NoError(t, prepend(s, sampleRecord("1", "aaa")))
	require.NoError(t, prepend(s, sampleRecord("2", "bbb")))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[0].ID)
	assert.Equal(t, "1", list[1].ID)
	assert.Equal(t, list, port.saved)
}

func TestStore_PrependRejectsDuplicateID(t *testing.T) {
	s, err := NewStore(&recordingPort{})
	require.NoError(t, err)

	require.NoError(t, prepend(s, sampleRecord("1", "aaa")))
	assert.Error(t, prepend(s, sampleRecord("1", "bbb")))
	assert.Equal(t, 1, s.Len())
}

func TestStore_PrependUnique(t *testing.T) {
	port := &recordingPort{}
	s, err := NewStore(port)
	require.NoError(t, err)
	require.NoError(t, prepend(s, sampleRecord("1", "aaa")))

	t.Run("builder sees stored slugs", func(t *testing.T) {
		var seen map[string]bool
		rec, err := s.PrependUnique(func(taken func(string) bool) (models.VideoRecord, error) {
			seen = map[string]bool{"aaa": taken("aaa"), "zzz": taken("zzz")}
			return sampleRecord("2", "zzz"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"aaa": true, "zzz": false}, seen)
		assert.Equal(t, "zzz", rec.Slug)
		assert.Equal(t, "2", s.List()[0].ID)
	})

	t.Run("stored slug is rejected", func(t *testing.T) {
		saves := port.saves
		err := prepend(s, sampleRecord("3", "aaa"))
		assert.ErrorIs(t, err, ErrSlugTaken)
		assert.Equal(t, 2, s.Len())
		assert.Equal(t, saves, port.saves)
	})

	t.Run("builder error saves nothing", func(t *testing.T) {
		saves := port.saves
		_, err := s.PrependUnique(func(func(string) bool) (models.VideoRecord, error) {
			return models.VideoRecord{}, errors.New("no slug left")
		})
		assert.EqualError(t, err, "no slug left")
		assert.Equal(t, saves, port.saves)
	})
}

func TestStore_PrependUniqueConcurrent(t *testing.T) {
	s, err := NewStore(&recordingPort{})
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.PrependUnique(func(taken func(string) bool) (models.VideoRecord, error) {
				slug := "same"
				for n := 1; taken(slug); n++ {
					slug = fmt.Sprintf("same-%d", n)
				}
				return sampleRecord(fmt.Sprint(i), slug), nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	slugs := map[string]bool{}
	for _, r := range s.List() {
		slugs[r.Slug] = true
	}
	assert.Len(t, slugs, writers)
}

func TestStore_Delete(t *testing.T) {
	port := &recordingPort{saved: []models.VideoRecord{
		sampleRecord("2", "bbb"),
		sampleRecord("1", "aaa"),
	}}
	s, err := NewStore(port)
	require.NoError(t, err)

	removed, ok, err := s.Delete("2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bbb", removed.Slug)
	assert.Len(t, s.List(), 1)

	t.Run("absent id is a no-op", func(t *testing.T) {
		saves := port.saves
		before := s.List()

		_, ok, err := s.Delete("nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, before, s.List())
		assert.Equal(t, saves, port.saves)
	})
}

func TestStore_ClearEmptyWritesEmptyList(t *testing.T) {
	port := &recordingPort{}
	s, err := NewStore(port)
	require.NoError(t, err)

	removed, err := s.Clear()
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, 1, port.saves)
	assert.NotNil(t, port.saved)
	assert.Empty(t, port.saved)
}

func TestStore_SaveFailureKeepsMemory(t *testing.T) {
	port := &recordingPort{}
	s, err := NewStore(port)
	require.NoError(t, err)
	require.NoError(t, prepend(s, sampleRecord("1", "aaa")))

	port.failErr = errors.New("disk full")

	assert.Error(t, prepend(s, sampleRecord("2", "bbb")))
	_, _, err = s.Delete("1")
	assert.Error(t, err)
	_, err = s.Clear()
	assert.Error(t, err)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "1", list[0].ID)
}

package sessionstore

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mini
}

func TestRedisStoreCommitFindDelete(t *testing.T) {
	store, mini := newTestStore(t)

	_, found, err := store.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Commit("tok", []byte("payload"), time.Now().Add(time.Minute)))
	assert.True(t, mini.Exists(DefaultPrefix+"tok"))

	b, found, err := store.Find("tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "payload", string(b))

	require.NoError(t, store.Delete("tok"))
	_, found, err = store.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mini := newTestStore(t)

	require.NoError(t, store.Commit("tok", []byte("x"), time.Now().Add(time.Minute)))
	mini.FastForward(2 * time.Minute)

	_, found, err := store.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStorePastExpiryDeletes(t *testing.T) {
	store, mini := newTestStore(t)

	require.NoError(t, store.Commit("tok", []byte("x"), time.Now().Add(time.Minute)))
	require.NoError(t, store.Commit("tok", []byte("x"), time.Now().Add(-time.Second)))
	assert.False(t, mini.Exists(DefaultPrefix+"tok"))
}

func TestRedisStoreWithSessionManager(t *testing.T) {
	store, _ := newTestStore(t)
	sm := scs.New()
	sm.Store = store

	put := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sm.Put(r.Context(), "userId", "u-1")
	}))
	get := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sm.GetString(r.Context(), "userId")))
	}))

	rec := httptest.NewRecorder()
	put.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	get.ServeHTTP(rec, req)
	assert.Equal(t, "u-1", rec.Body.String())
}

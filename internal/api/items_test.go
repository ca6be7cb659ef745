package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourceiq/resourceiq/internal/item"
)

func seedItem(env *testEnv, owner uuid.UUID, title string) *item.Item {
	return env.items.add(&item.Item{Title: title, Description: "seeded", OwnerID: owner})
}

func TestItems_Create(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/items/", map[string]string{
		"title":       "Roadmap review",
		"description": "Q3 planning notes",
	}, env.member)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got item.Item
	decodeData(t, w, &got)
	assert.Equal(t, "Roadmap review", got.Title)
	assert.Equal(t, env.member.ID, got.OwnerID, "owner comes from the token, not the body")
	assert.NotEqual(t, uuid.Nil, got.ID)
}

func TestItems_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("empty title", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/items/", map[string]string{"title": ""}, env.member)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_error", decodeErrorEnvelope(t, w).Code)
	})

	t.Run("title too long", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/items/", map[string]string{
			"title": strings.Repeat("x", 256),
		}, env.member)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeErrorEnvelope(t, w).Message, "between 1 and 255")
	})

	t.Run("empty body", func(t *testing.T) {
		r := newRequest(t, http.MethodPost, "/api/v1/items/")
		r.Header.Set("Authorization", "Bearer "+env.token(t, env.member))
		w := env.doRaw(r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestItems_ListScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	seedItem(env, env.member.ID, "mine-a")
	seedItem(env, env.member.ID, "mine-b")
	seedItem(env, env.admin.ID, "theirs")

	w := env.do(t, http.MethodGet, "/api/v1/items/", nil, env.member)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body itemListResponse
	decodeData(t, w, &body)
	assert.Equal(t, 2, body.Count)
	for _, it := range body.Data {
		assert.Equal(t, env.member.ID, it.OwnerID)
	}
}

func TestItems_ListAdminSeesAll(t *testing.T) {
	env := newTestEnv(t)
	seedItem(env, env.member.ID, "mine")
	seedItem(env, env.admin.ID, "theirs")

	w := env.do(t, http.MethodGet, "/api/v1/items/", nil, env.admin)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body itemListResponse
	decodeData(t, w, &body)
	assert.Equal(t, 2, body.Count)
}

func TestItems_ListPagination(t *testing.T) {
	env := newTestEnv(t)
	for _, title := range []string{"a", "b", "c"} {
		seedItem(env, env.member.ID, title)
	}

	w := env.do(t, http.MethodGet, "/api/v1/items/?skip=1&limit=1", nil, env.member)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body itemListResponse
	decodeData(t, w, &body)
	assert.Equal(t, 3, body.Count)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "b", body.Data[0].Title)
}

func TestItems_Get(t *testing.T) {
	env := newTestEnv(t)
	it := seedItem(env, env.member.ID, "readable")

	t.Run("owner", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/items/"+it.ID.String(), nil, env.member)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var got item.Item
		decodeData(t, w, &got)
		assert.Equal(t, it.ID, got.ID)
	})

	t.Run("admin can read others", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/items/"+it.ID.String(), nil, env.admin)

		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("non-owner forbidden", func(t *testing.T) {
		other := seedItem(env, env.admin.ID, "private")

		w := env.do(t, http.MethodGet, "/api/v1/items/"+other.ID.String(), nil, env.member)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "not enough permissions", decodeErrorEnvelope(t, w).Message)
	})

	t.Run("not found", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/items/"+uuid.New().String(), nil, env.member)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "item_not_found", decodeErrorEnvelope(t, w).Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/items/not-a-uuid", nil, env.member)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestItems_Update(t *testing.T) {
	env := newTestEnv(t)
	it := seedItem(env, env.member.ID, "before")

	w := env.do(t, http.MethodPut, "/api/v1/items/"+it.ID.String(), map[string]string{
		"title": "after",
	}, env.member)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got item.Item
	decodeData(t, w, &got)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, "seeded", got.Description, "omitted fields keep their value")
}

func TestItems_Update_NonOwnerForbidden(t *testing.T) {
	env := newTestEnv(t)
	it := seedItem(env, env.admin.ID, "protected")

	w := env.do(t, http.MethodPut, "/api/v1/items/"+it.ID.String(), map[string]string{
		"title": "hijacked",
	}, env.member)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestItems_Update_TitleValidated(t *testing.T) {
	env := newTestEnv(t)
	it := seedItem(env, env.member.ID, "valid")

	w := env.do(t, http.MethodPut, "/api/v1/items/"+it.ID.String(), map[string]string{
		"title": "",
	}, env.member)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeErrorEnvelope(t, w).Code)
}

func TestItems_Delete(t *testing.T) {
	env := newTestEnv(t)
	it := seedItem(env, env.member.ID, "doomed")

	w := env.do(t, http.MethodDelete, "/api/v1/items/"+it.ID.String(), nil, env.member)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var msg messageResponse
	decodeData(t, w, &msg)
	assert.Equal(t, "item deleted successfully", msg.Message)

	_, err := env.items.GetByID(t.Context(), it.ID)
	assert.ErrorIs(t, err, item.ErrNotFound)
}

func TestItems_Delete_AdminOverride(t *testing.T) {
	env := newTestEnv(t)
	it := seedItem(env, env.member.ID, "moderated")

	w := env.do(t, http.MethodDelete, "/api/v1/items/"+it.ID.String(), nil, env.admin)

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

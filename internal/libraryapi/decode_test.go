package libraryapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lendr/internal/models"
)

func TestDecodeList_Shapes(t *testing.T) {
	items, meta, err := decodeList[wireBook]([]byte(` [{"id": 1, "title": "A"}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, wireID("1"), items[0].ID)
	assert.Equal(t, models.PageMeta{}, meta)

	items, meta, err = decodeList[wireBook]([]byte(`{"data":[{"id":"b-7"}],"meta":{"current_page":2,"last_page":3,"per_page":1,"total":3}}`))
	require.NoError(t, err)
	assert.Equal(t, wireID("b-7"), items[0].ID)
	assert.Equal(t, 2, meta.CurrentPage)

	for _, body := range []string{``, `{"books":[]}`, `"nope"`, `{"data":`} {
		_, _, err := decodeList[wireBook]([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestWireLoanRow_RequiresTransaction(t *testing.T) {
	row := wireLoanRow{wireBook: wireBook{ID: "3"}, DueDate: "2024-06-08"}
	_, err := row.toModel()
	assert.Error(t, err)

	row.TransactionID = "11"
	l, err := row.toModel()
	require.NoError(t, err)
	assert.Equal(t, "11", l.Record.ID)
	assert.Equal(t, "3", l.Record.BookID)
	assert.Equal(t, "No Title", l.Book.Title)
}

func TestBuildRecord(t *testing.T) {
	ret := "2024-06-03 14:05:00"
	rec, err := buildRecord("1", "2", "2024-06-01T09:00:00.000000Z", "2024-06-08 00:00:00", &ret, "returned")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-08", rec.DueDate.String())
	require.NotNil(t, rec.ReturnedAt)
	assert.Equal(t, 14, rec.ReturnedAt.Hour())

	rec, err = buildRecord("1", "2", "", "2024-06-08", nil, "returned")
	require.NoError(t, err)
	assert.NotNil(t, rec.ReturnedAt, "status returned without timestamp is still returned")

	empty := ""
	rec, err = buildRecord("1", "2", "", "2024-06-08", &empty, "borrowed")
	require.NoError(t, err)
	assert.Nil(t, rec.ReturnedAt)

	_, err = buildRecord("1", "2", "", "", nil, "borrowed")
	assert.Error(t, err)

	_, err = buildRecord("1", "2", "yesterday", "2024-06-08", nil, "borrowed")
	assert.Error(t, err)
}

func TestNewAPIError(t *testing.T) {
	assert.Equal(t, "Book not found", newAPIError(404, []byte(`{"message":"Book not found"}`)).Message)
	assert.Equal(t, "bad", newAPIError(400, []byte(`{"error":"bad"}`)).Message)
	assert.Equal(t, "Internal Server Error", newAPIError(500, []byte(`<html>`)).Message)
	assert.Nil(t, newAPIError(500, nil).Unwrap())
}

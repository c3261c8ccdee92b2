package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
)

type lineRequest struct {
	Varietal string          `json:"varietal" validate:"required"`
	Gallons  decimal.Decimal `json:"gallons" validate:"gt=0"`
}

type batchRequest struct {
	Name  string        `json:"name" validate:"required"`
	Lines []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func TestDecodeJSONBodyValidatesDecimalsAndNestedFields(t *testing.T) {
	body := `{"name":"b","lines":[{"varietal":"Merlot","gallons":"10"},{"varietal":"","gallons":"0"}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dest batchRequest
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["lines[1].varietal"])
	assert.Equal(t, "must be greater than 0", details["lines[1].gallons"])
	assert.NotContains(t, details, "lines[0].gallons")
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","lines":[],"extra":1}`))
	var dest batchRequest
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=7&min_gallons=12.5&varietal=%20Syrah%20&bad=-1", nil)

	limit, err := ParseQueryInt(req, "limit", 50, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 7, limit)

	min, err := ParseQueryDecimal(req, "min_gallons")
	require.NoError(t, err)
	assert.True(t, min.Equal(decimal.RequireFromString("12.5")))

	_, err = ParseQueryDecimal(req, "bad")
	assert.Error(t, err)

	got := QueryString(req, "varietal")
	require.NotNil(t, got)
	assert.Equal(t, "Syrah", *got)
	assert.Nil(t, QueryString(req, "vineyard"))
}

func TestParseUUIDParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", "not-a-uuid")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	_, err := ParseUUIDParam(req, "id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

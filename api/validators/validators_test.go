package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

type createBody struct {
	Quantity int    `json:"quantity" validate:"required,min=1"`
	Method   string `json:"delivery_method" validate:"required,oneof=pickup delivery"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0,"delivery_method":"drone"}`))
	var body createBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Contains(t, details, "quantity")
	require.Equal(t, "must be one of: pickup delivery", details["delivery_method"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":1,"delivery_method":"pickup","price":"1"}`))
	var body createBody
	require.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err := ParseQueryInt(req, "limit", 20, 1, 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	v, err := ParseQueryInt(req, "limit", 20, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 20, v)
}

func TestParseQueryDate(t *testing.T) {
	def := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-03-04", nil)
	got, err := ParseQueryDate(req, "from", def)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseQueryDate(req, "to", def)
	require.NoError(t, err)
	require.Equal(t, def, got)

	req = httptest.NewRequest(http.MethodGet, "/?from=yesterday", nil)
	_, err = ParseQueryDate(req, "from", def)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseURLUUID(t *testing.T) {
	id := uuid.New()
	rc := chi.NewRouteContext()
	rc.URLParams.Add("purchaseId", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseURLUUID(req, "purchaseId")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = ParseURLUUID(req, "missing")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyRejectsMalformedShapes(t *testing.T) {
	cases := map[string]string{
		"empty":      ``,
		"trailing":   `{"quantity":1,"delivery_method":"pickup"}{"quantity":2}`,
		"wrong type": `{"quantity":"one","delivery_method":"pickup"}`,
		"oversized":  `{"delivery_method":"` + strings.Repeat("x", MaxBodyBytes) + `"}`,
		"array":      `[1,2]`,
	}
	for name, raw := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		var body createBody
		err := DecodeJSONBody(req, &body)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "%s: %v", name, err)
	}
}

func TestDecodeJSONBodyNamesMistypedField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":"one","delivery_method":"pickup"}`))
	var body createBody
	typed := pkgerrors.As(DecodeJSONBody(req, &body))
	require.NotNil(t, typed)
	require.Equal(t, map[string]string{"quantity": "must be a int"}, typed.Details())
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "Kigali", SanitizeString("  Kigali\x00 ", 0))
	require.Equal(t, "abc", SanitizeString("abcdef", 3))
	// "é" is two bytes; a cap landing inside it drops the whole character.
	require.Equal(t, "caf", SanitizeString("café", 4))
	require.Equal(t, "café", SanitizeString("café", 5))
}

package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
)

type lineRequest struct {
	Quantity int              `json:"quantity" validate:"required,gt=0"`
	Price    *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
}

type cartRequest struct {
	Email string        `json:"email" validate:"required,email"`
	Lines []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func decode(t *testing.T, body string) (cartRequest, error) {
	t.Helper()
	var dest cartRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return dest, DecodeJSONBody(req, &dest)
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string][]string)
	require.True(t, ok, "details %#v", typed.Details())
	return details
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	got, err := decode(t, `{"email":"a@b.co","lines":[{"quantity":2,"price":"1.50"}]}`)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Lines[0].Quantity)
	assert.True(t, got.Lines[0].Price.Equal(decimal.RequireFromString("1.5")))
}

func TestDecodeJSONBodyReportsNestedFields(t *testing.T) {
	_, err := decode(t, `{"email":"nope","lines":[{"quantity":0,"price":"-1"}]}`)
	details := fieldErrors(t, err)
	assert.Equal(t, []string{"must be a valid email"}, details["email"])
	assert.Equal(t, []string{"is required"}, details["lines[0].quantity"])
	assert.Equal(t, []string{"must be 0 or more"}, details["lines[0].price"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"unknown field":  `{"email":"a@b.co","lines":[{"quantity":1}],"extra":true}`,
		"trailing value": `{"email":"a@b.co","lines":[{"quantity":1}]} {}`,
		"too large":      `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, body)
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
		})
	}
}

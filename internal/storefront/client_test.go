package storefront

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", Token: "opaque-token", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestFetchCart(t *testing.T) {
	var gotAuth, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		respond(http.StatusOK, `{
			"success": true,
			"data": {
				"items": [
					{"_id": 11, "productId": "p1", "quantity": 2, "priceAtAdd": "10.50",
					 "product": {"_id": "p1", "name": "Tea", "stockQuantity": 5, "reservedStock": 1, "isImported": true, "packetSize": "250g"}},
					{"id": "i2", "productId": "p2", "quantity": 1, "priceAtAdd": 3, "product": null}
				],
				"subtotal": 24,
				"totalItems": 3
			}
		}`)(w, r)
	})

	ct, err := c.FetchCart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer opaque-token", gotAuth)
	assert.Equal(t, "/cart", gotPath)
	require.Len(t, ct.Items, 2)

	first := ct.Items[0]
	assert.Equal(t, "11", first.ID)
	assert.Equal(t, "p1", first.ProductID)
	assert.Equal(t, 2, first.Quantity)
	assert.True(t, first.PriceAtAdd.Equal(decimal.RequireFromString("10.50")))
	require.NotNil(t, first.Product)
	assert.Equal(t, "Tea", first.Product.Name)
	assert.Equal(t, 5, first.Product.StockQuantity)
	assert.Equal(t, 1, first.Product.ReservedStock)
	assert.True(t, first.Product.IsImported)
	assert.Equal(t, "250g", first.Product.PacketSize)

	assert.Nil(t, ct.Items[1].Product)
	assert.True(t, ct.Subtotal.Equal(decimal.NewFromInt(24)))
	assert.Equal(t, 3, ct.TotalItems)
	assert.True(t, ct.Consistent())
}

func TestFetchCart_DerivesTotalsWhenMissing(t *testing.T) {
	c := newTestClient(t, respond(http.StatusOK, `{"success":true,"data":{"items":[
		{"id":"a","productId":"p1","quantity":3,"priceAtAdd":"1.10"},
		{"id":"b","product":"p2","quantity":1,"priceAtAdd":"0.70"}
	]}}`))

	ct, err := c.FetchCart(context.Background())
	require.NoError(t, err)
	assert.True(t, ct.Subtotal.Equal(decimal.RequireFromString("4.00")), ct.Subtotal.String())
	assert.Equal(t, 4, ct.TotalItems)
	assert.Equal(t, "p2", ct.Items[1].ProductID)
	assert.Nil(t, ct.Items[1].Product)
}

func TestClearCart_NullData(t *testing.T) {
	var gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		respond(http.StatusOK, `{"success":true,"data":null}`)(w, r)
	})

	ct, err := c.ClearCart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.True(t, ct.Empty())
	assert.True(t, ct.Subtotal.IsZero())
	assert.Zero(t, ct.TotalItems)
}

func TestCartMutations_RequestShape(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *Client) error
		wantMethod string
		wantPath   string
		wantBody   string
	}{
		{
			name: "add",
			call: func(c *Client) error {
				_, err := c.AddItem(context.Background(), "p1", 2)
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "/cart/items",
			wantBody:   `{"productId":"p1","quantity":2}`,
		},
		{
			name: "update",
			call: func(c *Client) error {
				_, err := c.UpdateItem(context.Background(), "item/1", 4)
				return err
			},
			wantMethod: http.MethodPut,
			wantPath:   "/cart/items/item%2F1",
			wantBody:   `{"quantity":4}`,
		},
		{
			name: "remove",
			call: func(c *Client) error {
				_, err := c.RemoveItem(context.Background(), "i9")
				return err
			},
			wantMethod: http.MethodDelete,
			wantPath:   "/cart/items/i9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var method, path, body, contentType string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				method = r.Method
				path = r.URL.EscapedPath()
				contentType = r.Header.Get("Content-Type")
				b, _ := io.ReadAll(r.Body)
				body = string(b)
				respond(http.StatusOK, `{"success":true,"data":{"items":[]}}`)(w, r)
			})

			require.NoError(t, tt.call(c))
			assert.Equal(t, tt.wantMethod, method)
			assert.Equal(t, tt.wantPath, path)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, body)
				assert.Equal(t, "application/json", contentType)
			} else {
				assert.Empty(t, body)
			}
		})
	}
}

func TestDo_Rejected(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "success false",
			status:      http.StatusOK,
			body:        `{"success":false,"message":"Only 2 left in stock"}`,
			wantMessage: "Only 2 left in stock",
		},
		{
			name:        "non-2xx envelope",
			status:      http.StatusConflict,
			body:        `{"success":false,"message":"Insufficient stock for Tea"}`,
			wantMessage: "Insufficient stock for Tea",
		},
		{
			name:        "no message",
			status:      http.StatusBadRequest,
			body:        `{"success":false}`,
			wantMessage: "failed to add item",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, respond(tt.status, tt.body))

			_, err := c.AddItem(context.Background(), "p1", 1)
			require.Error(t, err)

			var rej *RejectedError
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tt.status, rej.Status)
			assert.Equal(t, tt.wantMessage, Message(err))
			assert.NotErrorIs(t, err, order.ErrRejected, "cart rejections are not order rejections")
		})
	}
}

func TestDo_TransportErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "html error page", status: http.StatusBadGateway, body: "<html>bad gateway</html>"},
		{name: "missing success", status: http.StatusOK, body: `{"data":{}}`},
		{name: "broken cart payload", status: http.StatusOK, body: `{"success":true,"data":{"items":[{"quantity":"many"}]}}`},
		{name: "fractional quantity", status: http.StatusOK, body: `{"success":true,"data":{"items":[{"quantity":2.5}]}}`},
		{name: "fractional quantity string", status: http.StatusOK, body: `{"success":true,"data":{"items":[{"quantity":"1.25"}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, respond(tt.status, tt.body))

			_, err := c.FetchCart(context.Background())
			require.Error(t, err)

			var te *TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, "fetch cart", te.Op)
			assert.Equal(t, "failed to fetch cart", Message(err))
		})
	}
}

func TestDo_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url})
	require.NoError(t, err)

	_, err = c.ListAddresses(context.Background())
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "failed to list addresses", Message(err))
}

func TestListAddresses(t *testing.T) {
	c := newTestClient(t, respond(http.StatusOK, `{"success":true,"data":[
		{"_id":"a1","fullName":"Ann","street":"1 Main","city":"Columbus","state":"OH","zipCode":"43004","phone":"555","isDefault":true},
		{"_id":"a2","fullName":"Bob","state":"ca","zipCode":90001,"isDefault":false}
	]}`))

	addrs, err := c.ListAddresses(context.Background())
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.Equal(t, "a1", addrs[0].ID)
	assert.Equal(t, "Columbus", addrs[0].City)
	assert.True(t, addrs[0].IsDefault)
	assert.Equal(t, "90001", addrs[1].ZipCode)
	assert.False(t, addrs[1].IsDefault)
}

func TestPlaceOrder(t *testing.T) {
	var gotKey, gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		respond(http.StatusCreated, `{"success":true,"data":{"_id":"o1","orderNumber":"ORD-1001","status":"pending","total":"12.00"}}`)(w, r)
	})

	conf, err := c.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		AddressID:      "a1",
		CustomerNotes:  "leave at door",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "key-1", gotKey)
	assert.JSONEq(t, `{"addressId":"a1","customerNotes":"leave at door"}`, gotBody)
	assert.Equal(t, &order.Confirmation{OrderNumber: "ORD-1001", OrderID: "o1", Status: "pending"}, conf)
}

func TestPlaceOrder_MissingOrderNumber(t *testing.T) {
	c := newTestClient(t, respond(http.StatusCreated, `{"success":true,"data":{"_id":"o1"}}`))

	_, err := c.PlaceOrder(context.Background(), order.PlaceOrderRequest{AddressID: "a1"})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.NotErrorIs(t, err, order.ErrRejected)
}

func TestPlaceOrder_Rejected(t *testing.T) {
	c := newTestClient(t, respond(http.StatusConflict, `{"success":false,"message":"Filters: only 1 left"}`))

	conf, err := c.PlaceOrder(context.Background(), order.PlaceOrderRequest{AddressID: "a1"})
	require.Error(t, err)
	assert.Nil(t, conf)
	assert.ErrorIs(t, err, order.ErrRejected)
	assert.ErrorIs(t, errors.Wrap(err, "submit"), order.ErrRejected)
	assert.Equal(t, "Filters: only 1 left", Message(err))
}

func TestFetchProduct(t *testing.T) {
	c := newTestClient(t, respond(http.StatusOK, `{"success":true,"data":{"_id":"p1","name":"Tea","price":"4.25","stockQuantity":"7"}}`))

	p, err := c.FetchProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Tea", p.Name)
	assert.Equal(t, 7, p.StockQuantity)
	assert.Zero(t, p.ReservedStock)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("4.25")))
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestSessionExpiry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		respond(http.StatusOK, `{"success":true,"data":{"items":[]}}`)(w, r)
	}))
	t.Cleanup(srv.Close)

	t.Run("expired token sends nothing", func(t *testing.T) {
		c, err := New(Config{BaseURL: srv.URL, Token: signedToken(t, time.Now().Add(-time.Minute))})
		require.NoError(t, err)

		_, err = c.FetchCart(context.Background())
		require.ErrorIs(t, err, ErrSessionExpired)
		assert.Zero(t, calls.Load())
	})

	t.Run("valid token", func(t *testing.T) {
		c, err := New(Config{BaseURL: srv.URL, Token: signedToken(t, time.Now().Add(time.Hour))})
		require.NoError(t, err)

		_, err = c.FetchCart(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "boom", Message(errors.New("boom")))
	assert.Equal(t, "out of stock", Message(errors.Wrap(&RejectedError{Op: "place order", Message: "out of stock"}, "submit")))
	assert.Equal(t, "failed to clear cart", Message(&TransportError{Op: "clear cart", Err: io.EOF}))
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret",
		BaseURL:   baseURL,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(Config{}); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got %v", err)
	}
	if _, err := NewClient(Config{KeyID: "key"}); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential without secret, got %v", err)
	}
}

func TestSignPayloadDeterministic(t *testing.T) {
	client := testClient(t, "")

	sig1 := client.SignPayload("order_abc", "pay_xyz")
	sig2 := client.SignPayload("order_abc", "pay_xyz")
	if sig1 != sig2 {
		t.Errorf("signature is not deterministic: %s != %s", sig1, sig2)
	}
	if len(sig1) != 64 {
		t.Errorf("expected 64 hex chars for HMAC-SHA256, got %d", len(sig1))
	}
}

func TestVerifySignature(t *testing.T) {
	client := testClient(t, "")

	sig := client.SignPayload("order_abc", "pay_xyz")
	if !client.VerifySignature("order_abc", "pay_xyz", sig) {
		t.Error("valid signature rejected")
	}

	// Tampered payment id
	if client.VerifySignature("order_abc", "pay_other", sig) {
		t.Error("signature accepted for a different payment id")
	}

	// Tampered signature
	tampered := "0" + sig[1:]
	if tampered != sig && client.VerifySignature("order_abc", "pay_xyz", tampered) {
		t.Error("tampered signature accepted")
	}

	// Signature minted with a different secret
	other := testClient(t, "")
	other.keySecret = "another_secret"
	if client.VerifySignature("order_abc", "pay_xyz", other.SignPayload("order_abc", "pay_xyz")) {
		t.Error("signature from a different secret accepted")
	}
}

func TestCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "rzp_test_secret" {
			t.Errorf("missing or wrong basic auth credentials")
		}

		var req CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if req.Amount != 49900 {
			t.Errorf("expected amount 49900, got %d", req.Amount)
		}
		if req.Currency != "INR" {
			t.Errorf("expected currency INR, got %s", req.Currency)
		}

		json.NewEncoder(w).Encode(Order{
			ID:       "order_test123",
			Amount:   req.Amount,
			Currency: req.Currency,
			Receipt:  req.Receipt,
			Status:   "created",
		})
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	order, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		Amount:   49900,
		Currency: "INR",
		Receipt:  "crs_1_usr_2_abcd1234",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.ID != "order_test123" {
		t.Errorf("expected order_test123, got %s", order.ID)
	}
	if order.Status != "created" {
		t.Errorf("expected status created, got %s", order.Status)
	}
}

func TestCreateOrderGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"description":"amount too small"}}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{Amount: 1, Currency: "INR"})
	if !errors.Is(err, ErrOrderCreateFailed) {
		t.Errorf("expected ErrOrderCreateFailed, got %v", err)
	}
}

func TestCreateOrderEmptyOrderID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: "INR"})
	if !errors.Is(err, ErrOrderCreateFailed) {
		t.Errorf("expected ErrOrderCreateFailed on empty order id, got %v", err)
	}
}

func TestCreateOrderRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.CreateOrder(ctx, CreateOrderRequest{Amount: 100, Currency: "INR"}); err == nil {
		t.Error("expected error from cancelled context")
	}
}

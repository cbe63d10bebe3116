package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetFunds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/funds" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/funds")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer test-token")
		}
		if got := r.URL.Query().Get("fund_type"); got != "equity" {
			t.Errorf("fund_type = %q, want %q", got, "equity")
		}

		fmt.Fprint(w, `{
			"data": {
				"items": [
					{"fund_code": "000001", "fund_name": "Growth Fund", "fund_type": "equity", "fund_company": "Acme AM", "latest_nav": 1.5234, "updated_at": 1700000000},
					{"fund_code": "110022", "fund_name": "Value Fund", "fund_type": "equity", "fund_company": "Acme AM", "latest_nav": 2.01}
				],
				"total": 2,
				"page": 1,
				"size": 20,
				"pages": 1
			}
		}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	page, err := client.GetFunds(context.Background(), GetFundsOptions{Page: 1, Size: 20, Type: "equity"})
	if err != nil {
		t.Fatalf("GetFunds failed: %v", err)
	}

	if len(page.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(page.Items))
	}
	if page.Total != 2 || page.Pages != 1 {
		t.Errorf("Total = %d, Pages = %d, want 2 and 1", page.Total, page.Pages)
	}
	if page.Items[0].Code != "000001" {
		t.Errorf("Items[0].Code = %q, want %q", page.Items[0].Code, "000001")
	}
	if page.Items[0].LatestNAV != 1.5234 {
		t.Errorf("Items[0].LatestNAV = %v, want 1.5234", page.Items[0].LatestNAV)
	}
	if page.Items[0].UpdatedAt.Unix() != 1700000000 {
		t.Errorf("Items[0].UpdatedAt = %v, want unix 1700000000", page.Items[0].UpdatedAt)
	}
	if !page.Items[1].UpdatedAt.IsZero() {
		t.Errorf("Items[1].UpdatedAt = %v, want zero when absent", page.Items[1].UpdatedAt)
	}
}

func TestAllFundsPaginates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			fmt.Fprint(w, `{"data": {"items": [{"fund_code": "a"}, {"fund_code": "b"}], "total": 3, "page": 1, "size": 2, "pages": 2}}`)
		case "2":
			fmt.Fprint(w, `{"data": {"items": [{"fund_code": "c"}], "total": 3, "page": 2, "size": 2, "pages": 2}}`)
		default:
			t.Errorf("unexpected page %q", page)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	funds, err := client.AllFunds(context.Background())
	if err != nil {
		t.Fatalf("AllFunds failed: %v", err)
	}

	if len(funds) != 3 {
		t.Fatalf("len(funds) = %d, want 3", len(funds))
	}
	if funds[2].Code != "c" {
		t.Errorf("funds[2].Code = %q, want %q", funds[2].Code, "c")
	}
}

func TestGetFund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/funds/000001" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/funds/000001")
		}
		fmt.Fprint(w, `{"data": {"fund_code": "000001", "fund_name": "Growth Fund", "latest_nav": 1.5}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	fund, err := client.GetFund(context.Background(), "000001")
	if err != nil {
		t.Fatalf("GetFund failed: %v", err)
	}

	if fund.Code != "000001" || fund.Name != "Growth Fund" {
		t.Errorf("fund = %+v, want code 000001 name Growth Fund", fund)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"data": {"items": [], "total": 0, "page": 1, "size": 20, "pages": 0}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", WithRetries(3, time.Millisecond))
	_, err := client.GetFunds(context.Background(), GetFundsOptions{})
	if err != nil {
		t.Fatalf("GetFunds failed: %v", err)
	}

	if got := calls.Load(); got != 3 {
		t.Errorf("request count = %d, want 3", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", WithRetries(3, time.Millisecond))
	_, err := client.GetFund(context.Background(), "missing")
	if err == nil {
		t.Fatal("GetFund succeeded, want error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusNotFound)
	}
	if apiErr.IsRetryable() {
		t.Error("IsRetryable() = true for 404, want false")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("request count = %d, want 1 (no retry)", got)
	}
}

func TestRetriesExceeded(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", WithRetries(2, time.Millisecond))
	_, err := client.GetFunds(context.Background(), GetFundsOptions{})
	if err == nil {
		t.Fatal("GetFunds succeeded, want error")
	}

	// Initial attempt plus two retries.
	if got := calls.Load(); got != 3 {
		t.Errorf("request count = %d, want 3", got)
	}
}

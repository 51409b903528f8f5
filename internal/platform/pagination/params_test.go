package pagination

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFromRequestDefaults(t *testing.T) {
	params, err := FromRequest(httptest.NewRequest("GET", "/orders", nil))
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if !params.Cursor.IsZero() {
		t.Fatalf("expected zero cursor, got %#v", params.Cursor)
	}
}

func TestFromRequestClampsPageSize(t *testing.T) {
	params, err := FromRequest(httptest.NewRequest("GET", "/orders?pageSize=500", nil))
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageSize != DefaultMaxPageSize {
		t.Fatalf("expected clamp to %d got %d", DefaultMaxPageSize, params.PageSize)
	}
}

func TestFromRequestRejectsInvalidValues(t *testing.T) {
	cases := map[string]error{
		"/orders?pageSize=abc":          ErrInvalidPageSize,
		"/orders?pageSize=0":            ErrInvalidPageSize,
		"/orders?pageToken=***":         ErrInvalidPageToken,
		"/orders?pageToken=bm90LWpzb24": ErrInvalidPageToken,
	}
	for target, want := range cases {
		_, err := FromRequest(httptest.NewRequest("GET", target, nil))
		if !errors.Is(err, want) {
			t.Errorf("%s: expected %v got %v", target, want, err)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), ID: "ord_1"}
	token := EncodeToken(cursor)
	if token == "" {
		t.Fatalf("expected token")
	}
	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if !decoded.CreatedAt.Equal(cursor.CreatedAt) || decoded.ID != cursor.ID {
		t.Fatalf("unexpected cursor %#v", decoded)
	}
	if EncodeToken(Cursor{}) != "" {
		t.Fatalf("expected empty token for zero cursor")
	}
}

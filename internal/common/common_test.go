package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewULID_Sortable(t *testing.T) {
	prev := ""
	for i := 0; i < 100; i++ {
		id, err := NewULID()
		if err != nil {
			t.Fatalf("new ulid: %v", err)
		}
		if len(id) != 26 {
			t.Fatalf("unexpected length %d", len(id))
		}
		if id <= prev {
			t.Fatalf("ids not increasing: %s <= %s", id, prev)
		}
		prev = id
	}
}

func TestFail_Envelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Fail(c, http.StatusBadRequest, 10001, "invalid json")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"].(float64) != 10001 || body["message"] != "invalid json" || body["data"] != nil {
		t.Fatalf("unexpected envelope %v", body)
	}
}

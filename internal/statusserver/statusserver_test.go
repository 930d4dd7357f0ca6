package statusserver

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

type fakeSource struct {
	snap fuzztypes.SupervisorStats
}

func (f *fakeSource) Snapshot() fuzztypes.SupervisorStats { return f.snap }

func TestStatsEndpointReturnsSnapshot(t *testing.T) {
	src := &fakeSource{snap: fuzztypes.SupervisorStats{TotalExecutions: 7, UniqueEdges: 3}}
	s := New(src)
	defer s.Shutdown()

	req := httptest.NewRequest("GET", "/api/stats", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var got fuzztypes.SupervisorStats
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TotalExecutions != 7 || got.UniqueEdges != 3 {
		t.Fatalf("unexpected snapshot from /api/stats: %+v", got)
	}
}

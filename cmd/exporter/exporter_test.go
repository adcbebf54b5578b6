package exporter

import (
	"bytes"
	"context"
	"errors"
	"github.com/ValentinKolb/srvcoord/lib/coordinator"
	"github.com/ValentinKolb/srvcoord/lib/lockstate"
	"github.com/ValentinKolb/srvcoord/lib/store"
	"github.com/ValentinKolb/srvcoord/lib/store/memstore"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestCoordinator(s store.IStore, holder string) coordinator.ICoordinator {
	return coordinator.NewCoordinator(s, &coordinator.Options{Namespace: "test:", Holder: holder})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewMemoryStore()
	alice, bob := newTestCoordinator(s, "alice"), newTestCoordinator(s, "bob")

	if ok, err := alice.TryLock(ctx, []string{"42"}, lockstate.ModeExclusive); err != nil || !ok {
		t.Fatalf("setup lock failed: %v", err)
	}
	for _, c := range []coordinator.ICoordinator{alice, bob} {
		if ok, err := c.TryLock(ctx, []string{"49"}, lockstate.ModeShared); err != nil || !ok {
			t.Fatalf("setup lock failed: %v", err)
		}
	}

	e := newLockExporter(alice)
	if err := e.refresh(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	var buf bytes.Buffer
	e.writeMetrics(&buf)
	out := buf.String()
	for _, want := range []string{
		"srvcoord_locks 2",
		`srvcoord_lock_holders{server="42",mode="exclusive"} 1`,
		`srvcoord_lock_holders{server="49",mode="shared"} 2`,
		`srvcoord_lock_held{server="49",mode="shared",holder="bob"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}

	// released locks disappear after the next refresh
	if err := alice.Unlock(ctx, []string{"42"}, lockstate.ModeExclusive); err != nil {
		t.Fatal(err)
	}
	if err := e.refresh(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	buf.Reset()
	e.writeMetrics(&buf)
	if strings.Contains(buf.String(), `server="42"`) {
		t.Errorf("released lock still exported:\n%s", buf.String())
	}
}

func TestRefreshSameHolderTwice(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewMemoryStore()
	job1, job2 := newTestCoordinator(s, `ci "nightly"`), newTestCoordinator(s, `ci "nightly"`)
	for _, c := range []coordinator.ICoordinator{job1, job2} {
		if ok, err := c.TryLock(ctx, []string{"42"}, lockstate.ModeShared); err != nil || !ok {
			t.Fatalf("setup lock failed: %v", err)
		}
	}

	e := newLockExporter(job1)
	if err := e.refresh(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	var buf bytes.Buffer
	e.writeMetrics(&buf)
	out := buf.String()
	for _, want := range []string{
		`srvcoord_lock_holders{server="42",mode="shared"} 2`,
		`srvcoord_lock_held{server="42",mode="shared",holder="ci \"nightly\""} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}
}

func TestLabelValue(t *testing.T) {
	tests := map[string]string{
		"alice@host":  `"alice@host"`,
		`a"b`:         `"a\"b"`,
		`c:\tmp`:      `"c:\\tmp"`,
		"two\nlines":  `"two\nlines"`,
		"müller@host": `"müller@host"`,
	}
	for in, want := range tests {
		if got := labelValue(in); got != want {
			t.Errorf("labelValue(%q) = %s, want %s", in, got, want)
		}
	}
}

// failingCoordinator fails every Check.
type failingCoordinator struct {
	coordinator.ICoordinator
}

func (failingCoordinator) Check(context.Context) (map[string]lockstate.Record, error) {
	return nil, errors.New("store down")
}

func TestRefreshErrorKeepsMetrics(t *testing.T) {
	e := newLockExporter(failingCoordinator{})
	before := e.current.Load()
	if err := e.refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if e.current.Load() != before {
		t.Error("failed refresh must not replace the metrics")
	}
}

func TestHandler(t *testing.T) {
	e := newLockExporter(newTestCoordinator(memstore.NewMemoryStore(), "alice"))
	srv := httptest.NewServer(e.handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before the first refresh, got %d", resp.StatusCode)
	}

	if err := e.refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "srvcoord_locks 0") {
		t.Errorf("unexpected response %d:\n%s", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after a refresh, got %d", resp.StatusCode)
	}
}

package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/JonMunkholm/mediathek-loader/internal/core"
)

const header = `{"Filmliste":["","15.10.2026, 08:45","","3","hash"],"Filmliste":["Sender","Thema"]`

// sampleDoc builds a list with n entries of incompressible descriptions.
func sampleDoc(n int) string {
	rng := rand.New(rand.NewPCG(1, 2))
	var b strings.Builder
	b.WriteString(header)
	for i := 0; i < n; i++ {
		desc := make([]byte, 200)
		for j := range desc {
			desc[j] = byte('a' + rng.IntN(26))
		}
		b.WriteString(`,"X":["ARD","T","t","","","","","` + string(desc) + `","http://a/x.mp4"]`)
	}
	b.WriteString("}")
	return b.String()
}

func compress(t *testing.T, doc string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz.NewWriter() error = %v", err)
	}
	if _, err := io.WriteString(w, doc); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func schema(t *testing.T) *core.Schema {
	t.Helper()
	s, err := core.LookupSchema(core.DefaultSchema)
	if err != nil {
		t.Fatalf("LookupSchema() error = %v", err)
	}
	return s
}

var wantDate = time.Date(2026, 10, 15, 8, 45, 0, 0, time.UTC)

func TestOpen_XZAndPlain(t *testing.T) {
	dir := t.TempDir()
	doc := sampleDoc(3)

	xzPath := filepath.Join(dir, "Filmliste-akt.xz")
	if err := os.WriteFile(xzPath, compress(t, doc), 0o644); err != nil {
		t.Fatal(err)
	}
	plainPath := filepath.Join(dir, "Filmliste-akt.json")
	if err := os.WriteFile(plainPath, append([]byte{0xEF, 0xBB, 0xBF}, doc...), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path   string
		wantXZ bool
	}{
		{xzPath, true},
		{plainPath, false},
	}

	for _, tt := range tests {
		l, err := Open(tt.path)
		if err != nil {
			t.Fatalf("Open(%s) error = %v", tt.path, err)
		}
		got, err := io.ReadAll(l)
		l.Close()
		if err != nil {
			t.Fatalf("ReadAll(%s) error = %v", tt.path, err)
		}
		if string(got) != doc {
			t.Errorf("%s: content mismatch (%d bytes, want %d)", tt.path, len(got), len(doc))
		}
		if l.XZ != tt.wantXZ {
			t.Errorf("%s: XZ = %v, want %v", tt.path, l.XZ, tt.wantXZ)
		}
		if l.Progress() != 100 {
			t.Errorf("%s: Progress() = %d after full read, want 100", tt.path, l.Progress())
		}
	}
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.xz"))
	if err == nil || core.ErrorCode(err) != "SRC003" {
		t.Errorf("Open() error = %v, want SRC003", err)
	}
}

func TestReadMetadata(t *testing.T) {
	meta, err := ReadMetadata(strings.NewReader(sampleDoc(1)), schema(t), time.UTC)
	if err != nil {
		t.Fatalf("ReadMetadata() error = %v", err)
	}
	if meta.Version != "3" || !meta.Date.Equal(wantDate) {
		t.Errorf("meta = %+v", meta)
	}

	// Only the head is needed: a truncated document still yields the header.
	doc := sampleDoc(5)
	if _, err := ReadMetadata(strings.NewReader(doc[:len(header)+20]), schema(t), time.UTC); err != nil {
		t.Errorf("ReadMetadata(truncated) error = %v", err)
	}

	if _, err := ReadMetadata(strings.NewReader(`{}`), schema(t), time.UTC); err == nil {
		t.Error("ReadMetadata(empty) error = nil, want error")
	}
}

func TestFetcher_Download(t *testing.T) {
	payload := compress(t, sampleDoc(10))

	var badHits atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	var gotUA string
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		if r.URL.Path != "/Filmliste-akt.xz" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer good.Close()

	f := NewFetcher(FetchConfig{Mirrors: []string{bad.URL, good.URL}, FailLimit: 2, UserAgent: "mvload-test"})
	f.perm = func(n int) []int { // keep configured order
		p := make([]int, n)
		for i := range p {
			p[i] = i
		}
		return p
	}

	dest := filepath.Join(t.TempDir(), "lists", "Filmliste-akt.xz")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := f.Download(ctx, "Filmliste-akt.xz", dest)
		if err != nil {
			t.Fatalf("Download() #%d error = %v", i, err)
		}
		if n != int64(len(payload)) {
			t.Errorf("Download() = %d bytes, want %d", n, len(payload))
		}
	}

	// The bad mirror is skipped once it reaches the limit.
	if got := badHits.Load(); got != 2 {
		t.Errorf("bad mirror hits = %d, want 2", got)
	}
	if got := f.Failures()[bad.URL]; got != 2 {
		t.Errorf("Failures()[bad] = %d, want 2", got)
	}
	if _, ok := f.Failures()[good.URL]; ok {
		t.Error("good mirror has a failure count")
	}
	if gotUA != "mvload-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}

	got, err := os.ReadFile(dest)
	if err != nil || !bytes.Equal(got, payload) {
		t.Errorf("downloaded file mismatch (err %v)", err)
	}
	leftovers, _ := filepath.Glob(dest + ".*.part")
	if len(leftovers) != 0 {
		t.Errorf("temp files left: %v", leftovers)
	}
}

func TestFetcher_AllMirrorsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer bad.Close()

	f := NewFetcher(FetchConfig{Mirrors: []string{bad.URL}, FailLimit: 1})
	dest := filepath.Join(t.TempDir(), "x.xz")

	_, err := f.Download(context.Background(), "x.xz", dest)
	if !errors.Is(err, core.ErrNoMirror) {
		t.Fatalf("Download() error = %v, want ErrNoMirror", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("failed download created the destination")
	}

	// Every mirror is at the limit: counters reset and the mirror is retried.
	if _, err := f.Download(context.Background(), "x.xz", dest); !errors.Is(err, core.ErrNoMirror) {
		t.Errorf("second Download() error = %v", err)
	}
	if got := f.Failures()[bad.URL]; got != 1 {
		t.Errorf("Failures() = %d, want 1 after reset and retry", got)
	}
}

func TestFetcher_NoMirrors(t *testing.T) {
	f := NewFetcher(FetchConfig{})
	if _, err := f.Download(context.Background(), "x.xz", filepath.Join(t.TempDir(), "x")); !errors.Is(err, core.ErrNoMirror) {
		t.Errorf("Download() error = %v, want ErrNoMirror", err)
	}
}

func TestFetcher_RemoteMetadata(t *testing.T) {
	payload := compress(t, sampleDoc(200))
	const check = 1024
	if len(payload) <= check {
		t.Fatalf("payload too small for a partial read: %d bytes", len(payload))
	}

	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[:check])
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{Mirrors: []string{srv.URL}, CheckBytes: check})
	meta, err := f.RemoteMetadata(context.Background(), "Filmliste-akt.xz", schema(t), time.UTC)
	if err != nil {
		t.Fatalf("RemoteMetadata() error = %v", err)
	}
	if !meta.Date.Equal(wantDate) {
		t.Errorf("Date = %v, want %v", meta.Date, wantDate)
	}
	if gotRange != "bytes=0-1023" {
		t.Errorf("Range = %q", gotRange)
	}
}

func TestFetcher_SetFailures(t *testing.T) {
	f := NewFetcher(FetchConfig{Mirrors: []string{"http://a", "http://b"}, FailLimit: 3})
	f.SetFailures(map[string]int{"http://a": 3})

	got := f.candidates()
	if len(got) != 1 || got[0] != "http://b" {
		t.Errorf("candidates() = %v, want only http://b", got)
	}
}

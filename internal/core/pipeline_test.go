package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const sampleList = `{"Filmliste":["","15.10.2026, 08:45","","3","hash"],
"Filmliste":["Sender","Thema","Titel"],
"X":["ARD","News","A","15.10.2026","06:00:00","0:10:00","100","d","http://a/1.mp4","","","","","","","","1792044000","","","true"],
"X":["","","B","","","5:00","50","","http://a/2.mp4","","","","9|small.mp4","","","","1792047600","","",""],
"X":["","Sport","C","","","","","","","","","","","","","","1792051200","","",""],
"X":["ZDF","","D","","","","","","http://z/1.mp4","","","","","","","","1000","","",""],
"X":["","Doku","E","","","","","","http://z/2.mp4","","","","","","","","1792054800","","","0"]}`

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func runSample(t *testing.T, store Executor, opts Options) *Result {
	t.Helper()
	opts.Now = func() time.Time { return fixedNow }
	opts.Location = time.UTC
	res, err := Run(context.Background(), NewJSONStream(strings.NewReader(sampleList)), store, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return res
}

func TestRun_FullMode(t *testing.T) {
	store := newFakeStore()
	res := runSample(t, store, Options{MaxAgeDays: 30})

	s := res.Stats
	if s.Records != 7 || s.Ignored != 2 {
		t.Errorf("records/ignored = %d/%d, want 7/2", s.Records, s.Ignored)
	}
	if s.Entries != 3 || s.SkippedNoLocation != 1 || s.FilteredByAge != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.Entries+s.SkippedNoLocation+s.FilteredByAge != s.Records-2 {
		t.Errorf("accounting broken: %+v", s)
	}

	if res.Metadata.Version != "3" {
		t.Errorf("Version = %q", res.Metadata.Version)
	}
	if res.Mode != "full" {
		t.Errorf("Mode = %q", res.Mode)
	}

	video := store.videoStatements()
	if len(video) != 1 {
		t.Fatalf("video statements = %d, want 1", len(video))
	}
	v := video[0]
	if !strings.HasSuffix(v, ");") || strings.Contains(v, "ON CONFLICT") {
		t.Errorf("full mode must use plain inserts: %q", v)
	}
	for _, want := range []string{"(1,'ARD','News','A',600,", "(2,'ARD','News','B',300,", "'http://a/small.mp4'", "(3,'ZDF','Doku','E',"} {
		if !strings.Contains(v, want) {
			t.Errorf("video statement missing %q", want)
		}
	}

	if len(res.Channels) != 2 || res.Channels[0].Count != 2 || res.Channels[1].Count != 1 {
		t.Errorf("channels = %+v", res.Channels)
	}

	last := store.statements[len(store.statements)-1]
	if !strings.HasPrefix(last, `INSERT INTO "version"`) {
		t.Errorf("last statement = %q, want version row", last)
	}
	if !strings.Contains(last, ",'3',"+"1792053900,") {
		t.Errorf("version row does not carry list version and date: %q", last)
	}
}

func TestRun_DiffMode(t *testing.T) {
	store := newFakeStore()
	store.maxID[VideoTable] = 500
	store.matches[matchKey("ARD", 1792047600, "News", "B")] = 17

	res := runSample(t, store, Options{DiffMode: true})
	s := res.Stats
	if s.Updated != 1 || s.Inserted != 3 {
		t.Errorf("updated/inserted = %d/%d, want 1/3", s.Updated, s.Inserted)
	}
	if store.lookups != 4 {
		t.Errorf("lookups = %d, want 4", store.lookups)
	}

	video := store.videoStatements()
	if len(video) != 2 {
		t.Fatalf("video statements = %d, want update batch and insert batch", len(video))
	}
	upd, ins := video[0], video[1]
	if !strings.Contains(upd, "ON CONFLICT") || !strings.HasPrefix(upd, `INSERT INTO "video"`) {
		t.Errorf("update batch is not an upsert: %q", upd)
	}
	now := "1792065600"
	if !strings.Contains(upd, "(17,'ARD','News','B',") || !strings.Contains(upd, ",1,"+now+")") {
		t.Errorf("update batch = %q", upd)
	}
	if strings.Contains(ins, "ON CONFLICT") {
		t.Errorf("insert batch must not upsert: %q", ins)
	}
	for i, title := range []string{"A", "D", "E"} {
		want := "(" + []string{"501", "502", "503"}[i] + ","
		idx := strings.Index(ins, want)
		if idx < 0 || !strings.Contains(ins[idx:], "'"+title+"'") {
			t.Errorf("insert %s missing or misnumbered in %q", title, ins)
		}
		// Inserted rows are new regardless of the list flag.
		if !strings.Contains(ins[idx:], ",1,"+now+")") {
			t.Errorf("insert %s not marked new", title)
		}
	}
}

func TestRun_DiffModeSameRowTwice(t *testing.T) {
	const list = `{"Filmliste":["","15.10.2026, 08:45","","3","hash"],
"Filmliste":["Sender","Thema","Titel"],
"X":["ARD","Tagesschau","20 Uhr","","","","","first","http://a/1.mp4","","","","","","","","1792044000","","",""],
"X":["","tagesschau","20 uhr","","","","","second","http://a/2.mp4","","","","","","","","1792044000","","",""]}`

	store := newFakeStore()
	store.maxID[VideoTable] = 100
	store.matches[matchKey("ARD", 1792044000, "Tagesschau", "20 Uhr")] = 17
	store.matches[matchKey("ARD", 1792044000, "tagesschau", "20 uhr")] = 17

	opts := Options{DiffMode: true, Location: time.UTC, Now: func() time.Time { return fixedNow }}
	res, err := Run(context.Background(), NewJSONStream(strings.NewReader(list)), store, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stats.Updated != 2 || res.Stats.Inserted != 0 {
		t.Errorf("updated/inserted = %d/%d, want 2/0", res.Stats.Updated, res.Stats.Inserted)
	}

	video := store.videoStatements()
	if len(video) != 2 {
		t.Fatalf("video statements = %d, want one upsert per occurrence of id 17", len(video))
	}
	for i, stmt := range video {
		if n := strings.Count(stmt, "(17,"); n != 1 {
			t.Errorf("statement %d holds id 17 %d times: %q", i, n, stmt)
		}
	}
	// The later entry is written last and wins.
	if !strings.Contains(video[1], "'second'") {
		t.Errorf("last statement = %q, want the second entry", video[1])
	}
}

func TestRun_DiffModeRequiresLookup(t *testing.T) {
	_, err := Run(context.Background(), NewJSONStream(strings.NewReader(sampleList)),
		executorOnly{newFakeStore()}, Options{DiffMode: true})
	if err == nil {
		t.Fatal("Run() error = nil, want error")
	}
}

func TestRun_StructuralError(t *testing.T) {
	store := newFakeStore()
	doc := sampleList[:len(sampleList)-40]
	_, err := Run(context.Background(), NewJSONStream(strings.NewReader(doc)), store, Options{})
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("error = %v, want ErrTruncated", err)
	}
	if len(store.statements) != 0 {
		t.Errorf("executed %d statements before the failure, want 0", len(store.statements))
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := newFakeStore()
	records := 0
	_, err := Run(ctx, NewJSONStream(strings.NewReader(sampleList)), store, Options{
		ProgressEvery: 1,
		Progress: func(s Stats) {
			records = s.Records
			if s.Records == 3 {
				cancel()
			}
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if records != 3 {
		t.Errorf("progress stopped at %d records, want 3", records)
	}
}

func TestRun_ExecutorFailure(t *testing.T) {
	store := newFakeStore()
	store.failOn = 1
	_, err := Run(context.Background(), NewJSONStream(strings.NewReader(sampleList)), store, Options{})
	if err == nil || ErrorCode(err) != "DB003" {
		t.Fatalf("error = %v (code %s), want connection reset", err, ErrorCode(err))
	}
}

func TestRun_ProgressFinal(t *testing.T) {
	var calls []Stats
	runSample(t, newFakeStore(), Options{Progress: func(s Stats) { calls = append(calls, s) }})
	if len(calls) != 1 {
		t.Fatalf("progress calls = %d, want 1 final call", len(calls))
	}
	if calls[0].Batches != 1 {
		t.Errorf("final progress Batches = %d, want 1", calls[0].Batches)
	}
}

package syncengine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/tuncenator/ytmpd/internal/catalog"
	"github.com/tuncenator/ytmpd/internal/trackstore"
)

type fakeCatalog struct {
	playlists  []catalog.Playlist
	tracksByID map[string][]catalog.Track
	listErr    error
	tracksErr  map[string]error
}

func (f *fakeCatalog) ListPlaylists(ctx context.Context) ([]catalog.Playlist, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.playlists, nil
}

func (f *fakeCatalog) GetPlaylistTracks(ctx context.Context, playlistID string) ([]catalog.Track, error) {
	if err, ok := f.tracksErr[playlistID]; ok {
		return nil, err
	}
	return f.tracksByID[playlistID], nil
}

func (f *fakeCatalog) GetRating(ctx context.Context, videoID string) (catalog.Rating, error) {
	return catalog.RatingNeutral, nil
}

func (f *fakeCatalog) SetRating(ctx context.Context, videoID string, rating catalog.Rating) error {
	return nil
}

type fakeResolver struct {
	urls map[string]string
	errs map[string]error
}

func (f *fakeResolver) Resolve(ctx context.Context, videoID string) (string, error) {
	if err, ok := f.errs[videoID]; ok {
		return "", err
	}
	if url, ok := f.urls[videoID]; ok {
		return url, nil
	}
	return "", fmt.Errorf("no fake url for %q", videoID)
}

type fakeMPD struct {
	mu        sync.Mutex
	playlists map[string][]string
	failNames map[string]bool
}

func newFakeMPD() *fakeMPD {
	return &fakeMPD{playlists: make(map[string][]string), failNames: make(map[string]bool)}
}

func (f *fakeMPD) CreateOrReplacePlaylist(name string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNames[name] {
		return fmt.Errorf("simulated MPD failure for %q", name)
	}
	f.playlists[name] = uris
	return nil
}

func (f *fakeMPD) ListPlaylistNames() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.playlists {
		names = append(names, name)
	}
	return names, nil
}

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func openTestStore(t *testing.T) *trackstore.Store {
	t.Helper()
	s, err := trackstore.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSyncAllSeedsStoreAndMPD(t *testing.T) {
	cat := &fakeCatalog{
		playlists: []catalog.Playlist{{ID: "P1", Name: "chilax", TrackCount: 1}},
		tracksByID: map[string][]catalog.Track{
			"P1": {{VideoID: "aaaaaaaaaaa", Title: "So What", Artist: "Miles"}},
		},
	}
	res := &fakeResolver{urls: map[string]string{"aaaaaaaaaaa": "https://upstream/1"}}
	mpd := newFakeMPD()
	store := openTestStore(t)

	engine := New(cat, res, store, mpd, Config{
		ProxyEnabled: true, ProxyHost: "localhost", ProxyPort: 8080, Prefix: "YT: ",
	}, testLogger())

	result := engine.SyncAll(context.Background())
	if !result.Success {
		t.Fatalf("expected success, got errors: %v", result.Errors)
	}
	if result.TracksAdded != 1 || result.PlaylistsSynced != 1 {
		t.Errorf("unexpected counters: %+v", result)
	}

	rec, err := store.Get("aaaaaaaaaaa")
	if err != nil {
		t.Fatalf("expected track in store: %v", err)
	}
	if rec.StreamURL != "https://upstream/1" {
		t.Errorf("unexpected stream URL: %q", rec.StreamURL)
	}

	uris := mpd.playlists["YT: chilax"]
	if len(uris) != 1 || uris[0] != "http://localhost:8080/proxy/aaaaaaaaaaa" {
		t.Errorf("unexpected MPD playlist entries: %v", uris)
	}
}

func TestSyncAllDropsTracksWithoutVideoID(t *testing.T) {
	cat := &fakeCatalog{
		playlists: []catalog.Playlist{{ID: "P1", Name: "mix", TrackCount: 2}},
		tracksByID: map[string][]catalog.Track{
			"P1": {
				{VideoID: "aaaaaaaaaaa", Title: "A"},
				{VideoID: "", Title: "no id"},
			},
		},
	}
	res := &fakeResolver{urls: map[string]string{"aaaaaaaaaaa": "https://upstream/1"}}
	mpd := newFakeMPD()
	store := openTestStore(t)

	engine := New(cat, res, store, mpd, Config{ProxyEnabled: true, ProxyHost: "h", ProxyPort: 1}, testLogger())
	result := engine.SyncAll(context.Background())

	if result.TracksAdded != 1 {
		t.Errorf("expected exactly one track added, got %d", result.TracksAdded)
	}
}

func TestSyncAllPreservesOrderSkippingFailedResolution(t *testing.T) {
	cat := &fakeCatalog{
		playlists: []catalog.Playlist{{ID: "P1", Name: "mix", TrackCount: 3}},
		tracksByID: map[string][]catalog.Track{
			"P1": {
				{VideoID: "aaaaaaaaaaa", Title: "A"},
				{VideoID: "bbbbbbbbbbb", Title: "B"},
				{VideoID: "ccccccccccc", Title: "C"},
			},
		},
	}
	res := &fakeResolver{
		urls: map[string]string{
			"aaaaaaaaaaa": "https://upstream/a",
			"ccccccccccc": "https://upstream/c",
		},
		errs: map[string]error{"bbbbbbbbbbb": fmt.Errorf("resolve failed")},
	}
	mpd := newFakeMPD()
	store := openTestStore(t)

	engine := New(cat, res, store, mpd, Config{ProxyEnabled: true, ProxyHost: "h", ProxyPort: 1}, testLogger())
	result := engine.SyncAll(context.Background())

	if result.TracksFailed != 1 || result.TracksAdded != 2 {
		t.Errorf("unexpected counters: %+v", result)
	}

	uris := mpd.playlists["mix"]
	if len(uris) != 2 || uris[0] != "http://h:1/proxy/aaaaaaaaaaa" || uris[1] != "http://h:1/proxy/ccccccccccc" {
		t.Errorf("unexpected order/content: %v", uris)
	}
}

func TestSyncAllEmptyPlaylistSkipsMPDWrite(t *testing.T) {
	cat := &fakeCatalog{
		playlists: []catalog.Playlist{{ID: "P1", Name: "empty", TrackCount: 0}},
	}
	mpd := newFakeMPD()
	store := openTestStore(t)

	engine := New(cat, &fakeResolver{}, store, mpd, Config{}, testLogger())
	result := engine.SyncAll(context.Background())

	if !result.Success || result.PlaylistsSynced != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(mpd.playlists) != 0 {
		t.Errorf("expected no MPD playlists written, got %v", mpd.playlists)
	}
}

func TestSyncAllAllTracksUnresolvedCountsAsFailedPlaylistNoEmptyWrite(t *testing.T) {
	cat := &fakeCatalog{
		playlists: []catalog.Playlist{{ID: "P1", Name: "mix", TrackCount: 1}},
		tracksByID: map[string][]catalog.Track{
			"P1": {{VideoID: "aaaaaaaaaaa", Title: "A"}},
		},
	}
	res := &fakeResolver{errs: map[string]error{"aaaaaaaaaaa": fmt.Errorf("boom")}}
	mpd := newFakeMPD()
	store := openTestStore(t)

	engine := New(cat, res, store, mpd, Config{}, testLogger())
	result := engine.SyncAll(context.Background())

	if result.TracksFailed != 1 {
		t.Errorf("expected one failed track, got %+v", result)
	}
	if result.PlaylistsFailed != 1 || result.PlaylistsSynced != 0 {
		t.Errorf("expected the all-unresolved playlist to count as failed, got %+v", result)
	}
	if len(mpd.playlists) != 0 {
		t.Errorf("expected no MPD playlist for all-unresolved playlist, got %v", mpd.playlists)
	}
}

func TestSyncAllCatalogListFailureAborts(t *testing.T) {
	cat := &fakeCatalog{listErr: fmt.Errorf("catalog down")}
	store := openTestStore(t)

	engine := New(cat, &fakeResolver{}, store, newFakeMPD(), Config{}, testLogger())
	result := engine.SyncAll(context.Background())

	if result.Success {
		t.Error("expected failure when catalog listing fails")
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected exactly one error, got %v", result.Errors)
	}
}

func TestSyncAllPlaylistFailureIsolated(t *testing.T) {
	cat := &fakeCatalog{
		playlists: []catalog.Playlist{
			{ID: "P1", Name: "bad", TrackCount: 1},
			{ID: "P2", Name: "good", TrackCount: 1},
		},
		tracksByID: map[string][]catalog.Track{
			"P2": {{VideoID: "aaaaaaaaaaa", Title: "A"}},
		},
		tracksErr: map[string]error{"P1": fmt.Errorf("catalog temporary error")},
	}
	res := &fakeResolver{urls: map[string]string{"aaaaaaaaaaa": "https://upstream/a"}}
	mpd := newFakeMPD()
	store := openTestStore(t)

	engine := New(cat, res, store, mpd, Config{ProxyEnabled: true, ProxyHost: "h", ProxyPort: 1}, testLogger())
	result := engine.SyncAll(context.Background())

	if result.PlaylistsFailed != 1 || result.PlaylistsSynced != 1 {
		t.Errorf("unexpected counters: %+v", result)
	}
	if _, ok := mpd.playlists["good"]; !ok {
		t.Error("expected the healthy playlist to still be synced")
	}
}

func TestSyncAllProxyDisabledUsesUpstreamURLDirectly(t *testing.T) {
	cat := &fakeCatalog{
		playlists: []catalog.Playlist{{ID: "P1", Name: "mix", TrackCount: 1}},
		tracksByID: map[string][]catalog.Track{
			"P1": {{VideoID: "aaaaaaaaaaa", Title: "A"}},
		},
	}
	res := &fakeResolver{urls: map[string]string{"aaaaaaaaaaa": "https://upstream/a"}}
	mpd := newFakeMPD()
	store := openTestStore(t)

	engine := New(cat, res, store, mpd, Config{ProxyEnabled: false}, testLogger())
	engine.SyncAll(context.Background())

	uris := mpd.playlists["mix"]
	if len(uris) != 1 || uris[0] != "https://upstream/a" {
		t.Errorf("expected upstream URL fall-through, got %v", uris)
	}
}

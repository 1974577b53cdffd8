package download

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/bucket"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/logging"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/manifest"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/search"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// fileServer serves fixed bodies by path and counts requests.
type fileServer struct {
	*httptest.Server
	hits  atomic.Int64
	files map[string]string
	// failures makes the first n requests for a path fail with 503
	failures map[string]*atomic.Int64
}

func newFileServer(t *testing.T, files map[string]string) *fileServer {
	t.Helper()
	fs := &fileServer{files: files, failures: make(map[string]*atomic.Int64)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		if r.Header.Get("User-Agent") == "" {
			http.Error(w, "missing user agent", http.StatusBadRequest)
			return
		}
		if n, ok := fs.failures[r.URL.Path]; ok && n.Add(-1) >= 0 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		body, ok := fs.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fileServer) failFirst(path string, n int64) {
	c := &atomic.Int64{}
	c.Store(n)
	fs.failures[path] = c
}

func manifestDoc(version string, urls, hashes []string) string {
	doc := fmt.Sprintf(`{"version":%q,"description":"d","homepage":"https://example.com","license":"MIT"`, version)
	if urls != nil {
		doc += `,"url":["` + strings.Join(urls, `","`) + `"]`
	}
	if hashes != nil {
		doc += `,"hash":["` + strings.Join(hashes, `","`) + `"]`
	}
	return doc + "}"
}

func mustManifest(t *testing.T, doc string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return m
}

func testIndex(t *testing.T, buckets map[string]bucket.Bucket) *search.Index {
	t.Helper()
	return search.NewIndex(bucket.NewRegistry(buckets))
}

func testOptions(t *testing.T) Options {
	return Options{
		CacheDir:      filepath.Join(t.TempDir(), "cache"),
		MaxRetries:    2,
		Concurrency:   4,
		RetryInterval: time.Millisecond,
	}
}

func TestResolve(t *testing.T) {
	foo1 := mustManifest(t, manifestDoc("1.0", nil, nil))
	foo2 := mustManifest(t, manifestDoc("2.0", nil, nil))
	bar := mustManifest(t, manifestDoc("0.1", nil, nil))
	q := testIndex(t, map[string]bucket.Bucket{
		"main":   {"foo": foo2, "bar": bar},
		"extras": {"foo": foo1},
	})

	tests := []struct {
		name    string
		ref     string
		want    *manifest.Manifest
		wantApp string
		wantErr error
	}{
		{name: "first_bucket_wins", ref: "foo", want: foo1, wantApp: "foo"},
		{name: "trim_and_lower", ref: "  FOO ", want: foo1, wantApp: "foo"},
		{name: "bucket_ref", ref: "main/foo", want: foo2, wantApp: "foo"},
		{name: "bucket_ref_upper", ref: "Main/Bar", want: bar, wantApp: "bar"},
		{name: "absent", ref: "nope", wantErr: ErrNoAppFound},
		{name: "absent_in_bucket", ref: "extras/bar", wantErr: ErrNoAppFoundInBucket},
		{name: "unknown_bucket", ref: "other/foo", wantErr: ErrNoAppFoundInBucket},
		{name: "empty", ref: "  ", wantErr: ErrNoAppFound},
		{name: "bucket_without_app", ref: "main/", wantErr: ErrNoAppFoundInBucket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, m, err := Resolve(q, tt.ref)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.ref, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.ref, err)
			}
			if app != tt.wantApp || m != tt.want {
				t.Errorf("Resolve(%q) = %q v%s, want %q v%s", tt.ref, app, m.Version, tt.wantApp, tt.want.Version)
			}
		})
	}
}

func TestNew_AbsentAppDoesNoIO(t *testing.T) {
	opts := testOptions(t)
	_, err := New(testIndex(t, nil), "foo", opts)
	if !errors.Is(err, ErrNoAppFound) {
		t.Fatalf("New() error = %v, want ErrNoAppFound", err)
	}
	if _, err := os.Stat(opts.CacheDir); !os.IsNotExist(err) {
		t.Error("cache directory should not be created before Download")
	}
}

func TestDownload_EndToEnd(t *testing.T) {
	body := "foo archive contents"
	srv := newFileServer(t, map[string]string{"/foo.zip": body})

	m := mustManifest(t, manifestDoc("1.0", []string{srv.URL + "/foo.zip"}, []string{sha256Hex(body)}))
	q := testIndex(t, map[string]bucket.Bucket{"main": {"foo": m}})
	opts := testOptions(t)

	d, err := New(q, "foo", opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := d.Entry().Artifacts[0].FileName; got != "foo_1.0_foo.zip" {
		t.Errorf("FileName = %q, want foo_1.0_foo.zip", got)
	}

	report, err := d.Download(context.Background(), true)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if report.Status != StatusDownloaded || report.Fetched != 1 {
		t.Errorf("Status = %s, Fetched = %d", report.Status, report.Fetched)
	}
	if report.Verification != VerificationPassed || report.Err() != nil {
		t.Errorf("Verification = %s, Err = %v", report.Verification, report.Err())
	}
	if report.BatchID == "" {
		t.Error("BatchID should be set")
	}

	data, err := os.ReadFile(filepath.Join(opts.CacheDir, "foo_1.0_foo.zip"))
	if err != nil || string(data) != body {
		t.Errorf("cached file = %q, %v", data, err)
	}

	// Second call touches no network.
	before := srv.hits.Load()
	report, err = d.Download(context.Background(), true)
	if err != nil {
		t.Fatalf("second Download() error = %v", err)
	}
	if report.Status != StatusCached || report.Fetched != 0 {
		t.Errorf("second Status = %s, Fetched = %d", report.Status, report.Fetched)
	}
	if report.Verification != VerificationPassed {
		t.Errorf("second Verification = %s, want passed", report.Verification)
	}
	if srv.hits.Load() != before {
		t.Errorf("second Download() made %d requests", srv.hits.Load()-before)
	}
}

func TestDownload_MultipleArtifacts(t *testing.T) {
	files := map[string]string{}
	var urls, hashes []string
	for i := 0; i < 6; i++ {
		path := fmt.Sprintf("/pkg/part%d.bin", i)
		files[path] = strings.Repeat("x", i+1)
		urls = append(urls, "PLACEHOLDER"+path)
		hashes = append(hashes, sha256Hex(files[path]))
	}
	srv := newFileServer(t, files)
	for i := range urls {
		urls[i] = strings.Replace(urls[i], "PLACEHOLDER", srv.URL, 1)
	}

	entry, err := Plan("multi", mustManifest(t, manifestDoc("3", urls, hashes)), "")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	opts := testOptions(t)
	opts.Concurrency = 2
	opts.PerArtifact = true

	// Pre-seed one artifact so it is skipped.
	if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	seeded := filepath.Join(opts.CacheDir, entry.Artifacts[0].FileName)
	if err := os.WriteFile(seeded, []byte(files["/pkg/part0.bin"]), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := newDownloader(entry, opts).Download(context.Background(), true)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if report.Fetched != 5 || srv.hits.Load() != 5 {
		t.Errorf("Fetched = %d, requests = %d, want 5", report.Fetched, srv.hits.Load())
	}
	if report.Verification != VerificationPassed {
		t.Errorf("Verification = %s", report.Verification)
	}
	if len(report.Artifacts) != 6 {
		t.Fatalf("Artifacts = %d, want 6", len(report.Artifacts))
	}
	for i, r := range report.Artifacts {
		if r.Cached != (i == 0) {
			t.Errorf("artifact %d Cached = %v", i, r.Cached)
		}
		if r.Verification != VerificationPassed || r.Err != nil {
			t.Errorf("artifact %d = %s, %v", i, r.Verification, r.Err)
		}
	}
}

func TestDownload_Verification(t *testing.T) {
	body := "payload"
	tests := []struct {
		name   string
		hash   []string
		verify bool
		want   Verification
	}{
		{name: "match", hash: []string{sha256Hex(body)}, verify: true, want: VerificationPassed},
		{name: "match_prefixed_sha512", hash: []string{"sha512:" + func() string {
			sum := sha512.Sum512([]byte(body))
			return hex.EncodeToString(sum[:])
		}()}, verify: true, want: VerificationPassed},
		{name: "mismatch", hash: []string{sha256Hex("other")}, verify: true, want: VerificationFailed},
		{name: "no_hash", hash: nil, verify: true, want: VerificationPassed},
		{name: "not_requested", hash: []string{sha256Hex("other")}, verify: false, want: VerificationSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFileServer(t, map[string]string{"/a.exe": body})
			entry, err := Plan("app", mustManifest(t, manifestDoc("1", []string{srv.URL + "/a.exe"}, tt.hash)), "")
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}

			report, err := newDownloader(entry, testOptions(t)).Download(context.Background(), tt.verify)
			if err != nil {
				t.Fatalf("Download() error = %v", err)
			}
			if report.Verification != tt.want {
				t.Errorf("Verification = %s, want %s", report.Verification, tt.want)
			}
			if gotErr := report.Err(); (tt.want == VerificationFailed) != errors.Is(gotErr, ErrVerificationMismatch) {
				t.Errorf("Err() = %v", gotErr)
			}
		})
	}
}

func TestDownload_Retry(t *testing.T) {
	srv := newFileServer(t, map[string]string{"/flaky.zip": "ok"})
	srv.failFirst("/flaky.zip", 2)

	entry, err := Plan("flaky", mustManifest(t, manifestDoc("1", []string{srv.URL + "/flaky.zip"}, nil)), "")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	report, err := newDownloader(entry, testOptions(t)).Download(context.Background(), false)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if report.Fetched != 1 || srv.hits.Load() != 3 {
		t.Errorf("Fetched = %d, requests = %d, want 1 and 3", report.Fetched, srv.hits.Load())
	}
}

func TestDownload_TransferFailed(t *testing.T) {
	srv := newFileServer(t, map[string]string{"/good.zip": "good", "/down.zip": "never"})
	srv.failFirst("/down.zip", 100)

	entry, err := Plan("app", mustManifest(t, manifestDoc("1",
		[]string{srv.URL + "/good.zip", srv.URL + "/down.zip", srv.URL + "/missing.zip"}, nil)), "")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	opts := testOptions(t)
	opts.PerArtifact = true

	report, err := newDownloader(entry, opts).Download(context.Background(), true)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("Download() error = %v, want ErrTransferFailed", err)
	}
	if report == nil || report.Fetched != 1 {
		t.Fatalf("report = %+v, want one fetched artifact", report)
	}
	if _, err := os.Stat(filepath.Join(opts.CacheDir, "app_1_good.zip")); err != nil {
		t.Errorf("successfully fetched file should stay in cache: %v", err)
	}
	// 404 is not retried, 503 is retried up to MaxRetries.
	if got, want := srv.hits.Load(), int64(1+1+(opts.MaxRetries+1)); got != want {
		t.Errorf("requests = %d, want %d", got, want)
	}
	if report.Artifacts[1].Err == nil || report.Artifacts[2].Err == nil || report.Artifacts[0].Err != nil {
		t.Errorf("per-artifact errors = %v, %v, %v",
			report.Artifacts[0].Err, report.Artifacts[1].Err, report.Artifacts[2].Err)
	}
	entries, _ := os.ReadDir(opts.CacheDir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestDownload_Cancelled(t *testing.T) {
	srv := newFileServer(t, map[string]string{})
	srv.failFirst("/slow.zip", 100)

	entry, err := Plan("app", mustManifest(t, manifestDoc("1", []string{srv.URL + "/slow.zip"}, nil)), "")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	opts := testOptions(t)
	opts.MaxRetries = 10
	opts.RetryInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := newDownloader(entry, opts).Download(ctx, false); !errors.Is(err, ErrTransferFailed) {
		t.Errorf("Download() error = %v, want ErrTransferFailed", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("cancellation did not interrupt the retry wait")
	}
}

func TestDownload_ConcurrentCalls(t *testing.T) {
	srv := newFileServer(t, map[string]string{"/foo.zip": "foo"})
	entry, err := Plan("foo", mustManifest(t, manifestDoc("1.0", []string{srv.URL + "/foo.zip"}, nil)), "")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	d := newDownloader(entry, testOptions(t))

	reports := make([]*Report, 2)
	var wg sync.WaitGroup
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := d.Download(context.Background(), false)
			if err != nil {
				t.Errorf("Download() error = %v", err)
				return
			}
			reports[i] = report
		}()
	}
	wg.Wait()

	if reports[0] == nil || reports[1] == nil {
		t.Fatal("missing report")
	}
	if reports[0].BatchID == reports[1].BatchID {
		t.Errorf("calls share batch id %s", reports[0].BatchID)
	}
}

func TestFetch_UnsupportedSchemeNotRetried(t *testing.T) {
	f := &fetcher{
		client:    newHTTPClient(),
		userAgent: DefaultUserAgent,
		retries:   5,
		interval:  time.Hour,
		maxWait:   time.Hour,
		logger:    logging.Nop(),
	}
	src := filepath.Join(t.TempDir(), "pkg.zip")
	if err := os.WriteFile(src, []byte("pkg"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := f.fetch(ctx, "file://"+filepath.ToSlash(src), filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("fetch() of a file url should fail")
	}
	if ctx.Err() != nil {
		t.Fatalf("fetch() kept retrying until the deadline: %v", err)
	}
	if !strings.Contains(err.Error(), "after 1 attempts") || !strings.Contains(err.Error(), "unsupported protocol scheme") {
		t.Errorf("fetch() error = %v", err)
	}
}

func TestFetch_RetryAfterIsCapped(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "86400")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	f := &fetcher{
		client:    srv.Client(),
		userAgent: DefaultUserAgent,
		retries:   1,
		interval:  time.Millisecond,
		maxWait:   time.Second,
		logger:    logging.Nop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dest := filepath.Join(t.TempDir(), "out")
	if err := f.fetch(ctx, srv.URL+"/pkg.zip", dest); err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("requests = %d, want 2", hits.Load())
	}
	if data, err := os.ReadFile(dest); err != nil || string(data) != "ok" {
		t.Errorf("downloaded = %q, %v", data, err)
	}
}

func TestDownload_CacheDirUnavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	entry := &Entry{App: "a", Version: "1"}
	for _, dir := range []string{"", filepath.Join(blocker, "cache")} {
		opts := testOptions(t)
		opts.CacheDir = dir
		if _, err := newDownloader(entry, opts).Download(context.Background(), false); !errors.Is(err, ErrCacheDirUnavailable) {
			t.Errorf("Download(cache=%q) error = %v, want ErrCacheDirUnavailable", dir, err)
		}
	}
}

func TestPlan(t *testing.T) {
	urls := []string{"https://example.com/a/b.zip", "https://example.com/setup.exe#/dl.7z"}
	hashes := []string{sha256Hex("a"), "md5:0123456789ABCDEF0123456789abcdef"}
	entry, err := Plan("app", mustManifest(t, manifestDoc("2.1", urls, hashes)), "")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	got := make([]string, 0, len(entry.Artifacts))
	for _, a := range entry.Artifacts {
		got = append(got, a.FileName+" "+a.URL.String()+" "+a.Hash.String())
	}
	want := []string{
		"app_2.1_a_b.zip https://example.com/a/b.zip sha256:" + sha256Hex("a"),
		"app_2.1_setup.exe_dl.7z https://example.com/setup.exe#/dl.7z md5:0123456789abcdef0123456789abcdef",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
	}
	if entry.String() != "app v2.1" {
		t.Errorf("String() = %q", entry.String())
	}
}

func TestPlan_Architecture(t *testing.T) {
	m := mustManifest(t, `{"version":"1","description":"d","homepage":"h","license":"MIT",
		"url":"https://example.com/generic.zip",
		"architecture":{"arm64":{"url":"https://example.com/arm.zip"}}}`)

	for arch, want := range map[string]string{"": "x_1_generic.zip", manifest.Arch64: "x_1_generic.zip", manifest.ArchARM64: "x_1_arm.zip"} {
		entry, err := Plan("x", m, arch)
		if err != nil {
			t.Fatalf("Plan(%q) error = %v", arch, err)
		}
		if len(entry.Artifacts) != 1 || entry.Artifacts[0].FileName != want || entry.Artifacts[0].Hash != nil {
			t.Errorf("Plan(%q) = %+v, want %s", arch, entry.Artifacts, want)
		}
	}
}

func TestPlan_Invalid(t *testing.T) {
	tests := map[string]string{
		"relative_url": manifestDoc("1", []string{"foo.zip"}, nil),
		"bad_url":      manifestDoc("1", []string{"http://[::1"}, nil),
		"bad_hash":     manifestDoc("1", []string{"https://example.com/a"}, []string{"sha256:xyz"}),
		"unknown_alg":  manifestDoc("1", []string{"https://example.com/a"}, []string{"crc32:00000000"}),
		"file_url":     manifestDoc("1", []string{"file:///tmp/pkg.zip"}, nil),
		"ftp_url":      manifestDoc("1", []string{"ftp://example.com/pkg.zip"}, nil),
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Plan("app", mustManifest(t, doc), ""); !errors.Is(err, manifest.ErrInvalid) {
				t.Errorf("Plan() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "https://example.com/foo.zip", want: "foo_1.0_foo.zip"},
		{raw: "https://example.com/dir/sub/foo.zip", want: "foo_1.0_dir_sub_foo.zip"},
		{raw: "https://example.com/foo.exe#/foo.7z", want: "foo_1.0_foo.exe_foo.7z"},
		{raw: "https://example.com/a%20b.zip", want: "foo_1.0_a%20b.zip"},
		{raw: "https://example.com/foo.zip?x=1", want: "foo_1.0_foo.zip"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		if err != nil {
			t.Fatal(err)
		}
		if got := FileName("foo", "1.0", u); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseHash(t *testing.T) {
	digest := sha256Hex("x")
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: digest, want: "sha256:" + digest},
		{in: "SHA256:" + strings.ToUpper(digest), want: "sha256:" + digest},
		{in: "sha1:0123456789abcdef0123456789abcdef01234567", want: "sha1:0123456789abcdef0123456789abcdef01234567"},
		{in: "md5:0123456789abcdef0123456789abcdef", want: "md5:0123456789abcdef0123456789abcdef"},
		{in: "sha1:" + digest, wantErr: true},
		{in: "zz" + digest[2:], wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			h, err := ParseHash(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHash(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && h.String() != tt.want {
				t.Errorf("ParseHash(%q) = %s, want %s", tt.in, h, tt.want)
			}
		})
	}
}

func TestStatusAndVerificationStrings(t *testing.T) {
	if StatusDownloaded.String() != "downloaded" || StatusCached.String() != "cached" || Status(9).String() != "unknown" {
		t.Error("unexpected Status strings")
	}
	if VerificationSkipped.String() != "skipped" || VerificationPassed.String() != "passed" ||
		VerificationFailed.String() != "failed" || Verification(9).String() != "unknown" {
		t.Error("unexpected Verification strings")
	}
}

package fileops

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/entro314-labs/nookfb/internal/bridge/bridgetest"
)

type reported struct {
	op   string
	path string
	err  error
}

type fakeListing struct {
	mu        sync.Mutex
	refreshes int
	errors    []reported
}

func (f *fakeListing) ForceRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeListing) ReportError(op, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, reported{op: op, path: path, err: err})
}

func (f *fakeListing) snapshot() (int, []reported) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes, append([]reported(nil), f.errors...)
}

// exitCodes finishes every launched process with the code chosen by fn.
func exitCodes(fn func(args []string) int) func(p *bridgetest.Process) {
	return func(p *bridgetest.Process) {
		p.Finish(fn(p.Args))
	}
}

func newDispatcher(t *testing.T, codes func(args []string) int) (*Dispatcher, *bridgetest.Launcher, *fakeListing, string) {
	t.Helper()
	launcher := bridgetest.NewLauncher()
	launcher.OnLaunch = exitCodes(codes)
	listing := &fakeListing{}
	downloads := t.TempDir()
	d := New(launcher, listing, Options{
		UploadPath:     "/sdcard/NOOK/My Files",
		StorageRootURL: "file:///sdcard",
		DownloadDir:    func() (string, error) { return downloads, nil },
		Logger:         zerolog.Nop(),
	})
	return d, launcher, listing, downloads
}

func commands(l *bridgetest.Launcher) []string {
	var out []string
	for _, p := range l.Launches() {
		out = append(out, p.Command())
	}
	return out
}

func countPrefix(cmds []string, prefix string) int {
	n := 0
	for _, c := range cmds {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestDelete_AlwaysRescansAndRefreshes(t *testing.T) {
	for _, code := range []int{0, 1} {
		d, launcher, listing, _ := newDispatcher(t, func([]string) int { return code })

		d.Delete(context.Background(), "/root/a b.txt")
		d.Wait()

		cmds := commands(launcher)
		if len(cmds) != 2 {
			t.Fatalf("exit %d: commands = %q", code, cmds)
		}
		if got := launcher.Launches()[0].Args; !reflect.DeepEqual(got, []string{"shell", `rm -r "/root/a b.txt"`}) {
			t.Errorf("exit %d: delete args = %q", code, got)
		}
		if cmds[1] != "shell am broadcast -a android.intent.action.MEDIA_MOUNTED -d file:///sdcard" {
			t.Errorf("exit %d: rescan = %q", code, cmds[1])
		}
		refreshes, errs := listing.snapshot()
		if refreshes != 1 {
			t.Errorf("exit %d: refreshes = %d, want 1", code, refreshes)
		}
		if len(errs) != 0 {
			t.Errorf("exit %d: delete surfaced errors %v", code, errs)
		}
	}
}

func TestDelete_LaunchFailureStillRefreshes(t *testing.T) {
	d, launcher, listing, _ := newDispatcher(t, func([]string) int { return 0 })
	launcher.SetError(errors.New("no adb"))

	d.Delete(context.Background(), "/root/x")
	d.Wait()

	if refreshes, _ := listing.snapshot(); refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes)
	}
}

func TestDownload_Success(t *testing.T) {
	d, launcher, listing, downloads := newDispatcher(t, func([]string) int { return 0 })

	if err := d.Download(context.Background(), "/sdcard/NOOK/My Files/book.epub"); err != nil {
		t.Fatalf("Download error = %v", err)
	}
	d.Wait()

	want := []string{"pull", "/sdcard/NOOK/My Files/book.epub", downloads}
	if got := launcher.Launches()[0].Args; !reflect.DeepEqual(got, want) {
		t.Errorf("args = %q, want %q", got, want)
	}

	select {
	case n := <-d.Notices():
		if n.Kind != NoticeDownloaded || n.Local != filepath.Join(downloads, "book.epub") {
			t.Errorf("notice = %+v", n)
		}
	default:
		t.Fatal("no download notice")
	}

	if refreshes, errs := listing.snapshot(); refreshes != 0 || len(errs) != 0 {
		t.Errorf("refreshes = %d, errors = %v; download must not mutate the listing", refreshes, errs)
	}
}

func TestDownload_FailureIsSurfaced(t *testing.T) {
	d, _, listing, _ := newDispatcher(t, func([]string) int { return 1 })

	if err := d.Download(context.Background(), "/sdcard/missing"); err != nil {
		t.Fatalf("Download error = %v", err)
	}
	d.Wait()

	_, errs := listing.snapshot()
	if len(errs) != 1 || errs[0].op != "download" || !errors.Is(errs[0].err, ErrCommandFailed) {
		t.Fatalf("reported = %+v", errs)
	}
	select {
	case n := <-d.Notices():
		t.Errorf("unexpected notice %+v", n)
	default:
	}
}

func TestDownload_NoDownloadsDir(t *testing.T) {
	launcher := bridgetest.NewLauncher()
	listing := &fakeListing{}
	d := New(launcher, listing, Options{
		DownloadDir: func() (string, error) { return "", errors.New("no home") },
		Logger:      zerolog.Nop(),
	})

	err := d.Download(context.Background(), "/sdcard/a")
	if !errors.Is(err, ErrNoDownloadsDir) {
		t.Fatalf("Download error = %v, want ErrNoDownloadsDir", err)
	}
	if len(launcher.Launches()) != 0 {
		t.Error("pull launched without a downloads directory")
	}
	if _, errs := listing.snapshot(); len(errs) != 0 {
		t.Errorf("reported = %v, want nothing surfaced", errs)
	}
}

func TestUpload_IndependentOutcomes(t *testing.T) {
	d, launcher, listing, _ := newDispatcher(t, func(args []string) int {
		if args[0] == "push" && args[1] == "/tmp/bad.pdf" {
			return 1
		}
		return 0
	})

	d.Upload(context.Background(), "/tmp/a.epub", "/tmp/bad.pdf", "/tmp/c.epub")
	d.Wait()

	cmds := commands(launcher)
	pushes := []string{}
	for _, c := range cmds {
		if strings.HasPrefix(c, "push ") {
			pushes = append(pushes, c)
		}
	}
	sort.Strings(pushes)
	want := []string{
		"push /tmp/a.epub /sdcard/NOOK/My Files",
		"push /tmp/bad.pdf /sdcard/NOOK/My Files",
		"push /tmp/c.epub /sdcard/NOOK/My Files",
	}
	if !reflect.DeepEqual(pushes, want) {
		t.Errorf("pushes = %q, want %q", pushes, want)
	}
	if n := countPrefix(cmds, "shell am broadcast"); n != 2 {
		t.Errorf("rescans = %d, want 2", n)
	}

	refreshes, errs := listing.snapshot()
	if refreshes != 2 {
		t.Errorf("refreshes = %d, want 2", refreshes)
	}
	if len(errs) != 1 || errs[0].op != "upload" || errs[0].path != "/tmp/bad.pdf" {
		t.Errorf("reported = %+v", errs)
	}
}

func TestUpload_LaunchFailure(t *testing.T) {
	d, launcher, listing, _ := newDispatcher(t, func([]string) int { return 0 })
	launcher.SetError(errors.New("permission denied"))

	d.Upload(context.Background(), "/tmp/a.epub", "/tmp/b.epub")
	d.Wait()

	refreshes, errs := listing.snapshot()
	if len(errs) != 2 {
		t.Errorf("reported = %+v, want two upload errors", errs)
	}
	if refreshes != 0 {
		t.Errorf("refreshes = %d, want 0", refreshes)
	}
}

func TestSyncAndRefresh_IgnoresRescanFailure(t *testing.T) {
	d, launcher, listing, _ := newDispatcher(t, func([]string) int { return 255 })

	d.SyncAndRefresh(context.Background())
	d.SyncAndRefresh(context.Background())
	d.Wait()

	refreshes, errs := listing.snapshot()
	if refreshes != 2 || len(errs) != 0 {
		t.Errorf("refreshes = %d, errors = %v", refreshes, errs)
	}
	if n := len(launcher.Launches()); n != 2 {
		t.Errorf("launches = %d, want 2", n)
	}
}

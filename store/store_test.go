package store

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legamerdc/todostore/internal/testutil"
)

type directFixture struct {
	store    *Store
	backend  *spyBackend
	notifier *fakeNotifier
	clock    *testutil.FakeClock
	changes  *recorder
	authFail int
	dir      string
}

func newDirectFixture(t *testing.T, gate AuthGate) *directFixture {
	t.Helper()
	f := &directFixture{
		notifier: &fakeNotifier{},
		clock:    testutil.NewFakeClock(),
		changes:  &recorder{},
		dir:      t.TempDir(),
	}
	f.backend = &spyBackend{Backend: NewDirectBackend(f.dir)}
	f.store = New(f.backend, gate,
		WithNotifier(f.notifier),
		WithClock(f.clock),
		WithLogger(discardLogger()),
		WithGracePeriod(time.Second),
		WithAuthFailed(func() { f.authFail++ }),
		WithExternalChange(f.changes.add),
	)
	t.Cleanup(func() { _ = f.store.Close() })
	return f
}

func (f *directFixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func touch(t *testing.T, path string, at time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, at, at))
}

func TestStore_LoadSplitsLinesAndRecordsMarker(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	p := f.path("todo.txt")
	writeFile(t, p, "a\nb\nc")

	lines := f.store.Load(context.Background(), PathLocation(p))
	assert.Equal(t, []string{"a", "b", "c"}, lines)

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, Marker(strconv.FormatInt(info.ModTime().UnixNano(), 10)), f.store.LastSeen())
	assert.Equal(t, canonical(p), f.store.Watching())
	assert.False(t, f.store.NeedSync(context.Background(), PathLocation(p)))
}

func TestStore_LoadMissingFile(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	loc := PathLocation(f.path("todo.txt"))

	assert.Empty(t, f.store.Load(context.Background(), loc))
	assert.Equal(t, MissingMarker, f.store.LastSeen())
	assert.False(t, f.store.NeedSync(context.Background(), loc))

	writeFile(t, loc.Path, "new\n")
	assert.True(t, f.store.NeedSync(context.Background(), loc))
}

func TestStore_LoadTwiceKeepsOneSubscription(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	p := f.path("todo.txt")
	writeFile(t, p, "a\n")

	f.store.Load(context.Background(), PathLocation(p))
	f.store.Load(context.Background(), PathLocation(p))
	assert.Len(t, f.notifier.subscriptions(), 1)
}

func TestStore_LoadOtherFileMovesWatch(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	a, b := f.path("a.txt"), f.path("b.txt")
	writeFile(t, a, "a\n")
	writeFile(t, b, "b\n")

	f.store.Load(context.Background(), PathLocation(a))
	f.store.Load(context.Background(), PathLocation(b))

	subs := f.notifier.subscriptions()
	require.Len(t, subs, 2)
	assert.True(t, subs[0].isClosed())
	assert.Equal(t, canonical(b), f.store.Watching())
}

func TestStore_SaveWritesLinesUnderSuppression(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	p := f.path("todo.txt")
	writeFile(t, p, "old\n")
	loc := PathLocation(p)
	f.store.Load(context.Background(), loc)

	var suppressedDuringWrite bool
	f.backend.onWrite = func() { suppressedDuringWrite = f.store.watch.Suppressed() }

	got, ok := f.store.Save(context.Background(), loc, []string{"x", "y"}, "\n")
	assert.True(t, ok)
	assert.Equal(t, loc, got)

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "x\ny\n", string(b))
	assert.True(t, suppressedDuringWrite)

	// the write's own notification is ignored during the grace period
	f.store.watch.OnEvent(EventCloseWrite, p)
	assert.True(t, f.store.watch.Suppressed())
	f.clock.Advance(999 * time.Millisecond)
	assert.True(t, f.store.watch.Suppressed())
	f.store.watch.OnEvent(EventModify, p)
	assert.Equal(t, 0, f.changes.count())

	f.clock.Advance(time.Millisecond)
	assert.False(t, f.store.watch.Suppressed())
	f.store.watch.OnEvent(EventModify, p)
	assert.Equal(t, []string{canonical(p)}, f.changes.all())

	assert.False(t, f.store.NeedSync(context.Background(), loc))
}

func TestStore_SaveWithCustomEOL(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	p := f.path("todo.txt")

	f.store.Save(context.Background(), PathLocation(p), []string{"x", "y"}, "\r\n")

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "x\r\ny\r\n", string(b))
	assert.Equal(t, []string{"x", "y"}, f.store.Load(context.Background(), PathLocation(p)))
}

func TestStore_SaveFailureKeepsMarker(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	p := f.path("todo.txt")
	writeFile(t, p, "a\n")
	f.store.Load(context.Background(), PathLocation(p))
	before := f.store.LastSeen()

	bad := PathLocation(filepath.Join(f.dir, "missing", "todo.txt"))
	_, ok := f.store.Save(context.Background(), bad, []string{"x"}, "\n")

	assert.False(t, ok)
	assert.Equal(t, before, f.store.LastSeen())
	assert.True(t, f.store.watch.Suppressed())
	f.clock.Advance(time.Second)
	assert.False(t, f.store.watch.Suppressed(), "suppression ends even when the write failed")
}

func TestStore_NeedSyncAfterExternalEdit(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	p := f.path("todo.txt")
	writeFile(t, p, "a\n")
	touch(t, p, time.Unix(1000, 0))
	loc := PathLocation(p)

	f.store.Load(context.Background(), loc)
	assert.False(t, f.store.NeedSync(context.Background(), loc))

	writeFile(t, p, "a\nb\n")
	touch(t, p, time.Unix(2000, 0))
	assert.True(t, f.store.NeedSync(context.Background(), loc))
	assert.True(t, f.store.NeedSync(context.Background(), loc), "needSync does not observe")

	f.store.Load(context.Background(), loc)
	assert.False(t, f.store.NeedSync(context.Background(), loc))
}

func TestStore_IdentityChanged(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	p := f.path("todo.txt")
	writeFile(t, p, "a\n")
	loc := PathLocation(p)
	f.store.Load(context.Background(), loc)

	f.store.IdentityChanged()
	assert.Equal(t, NoMarker, f.store.LastSeen())
	assert.True(t, f.store.NeedSync(context.Background(), loc))
}

func TestStore_AppendLeavesMarker(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	todo, done := f.path("todo.txt"), f.path("done.txt")
	writeFile(t, todo, "a\n")
	f.store.Load(context.Background(), PathLocation(todo))
	before := f.store.LastSeen()

	f.store.Append(context.Background(), PathLocation(done), []string{"x done"}, "\n")
	f.store.Append(context.Background(), PathLocation(done), []string{"y done", "z done"}, "\n")

	b, err := os.ReadFile(done)
	require.NoError(t, err)
	assert.Equal(t, "x done\ny done\nz done\n", string(b))
	assert.Equal(t, before, f.store.LastSeen())
	assert.False(t, f.store.watch.Suppressed())
}

func TestStore_UnauthorizedShortCircuits(t *testing.T) {
	f := newDirectFixture(t, AuthFunc(func(context.Context) bool { return false }))
	p := f.path("todo.txt")
	writeFile(t, p, "a\nb\n")
	loc := PathLocation(p)
	ctx := context.Background()

	assert.Equal(t, []string{}, f.store.Load(ctx, loc))
	assert.Equal(t, 1, f.authFail)
	assert.Equal(t, 0, f.backend.count())
	assert.Equal(t, "", f.store.Watching())

	assert.True(t, f.store.NeedSync(ctx, loc))
	f.store.Save(ctx, loc, []string{"x"}, "\n")
	f.store.Append(ctx, PathLocation(f.path("done.txt")), []string{"x"}, "\n")
	assert.Empty(t, f.store.List(ctx, f.dir, true))
	_, ok := f.store.ReadFile(ctx, loc)
	assert.False(t, ok)
	f.store.WriteFile(ctx, loc, "y\n")

	assert.Equal(t, 7, f.authFail)
	assert.Equal(t, 0, f.backend.count())
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(b))
}

func TestStore_ExternalChangeReachesHooks(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	p := f.path("todo.txt")
	writeFile(t, p, "a\n")
	f.store.Load(context.Background(), PathLocation(p))

	var extra []string
	f.store.OnExternalChange(func(path string) { extra = append(extra, path) })

	f.store.watch.OnEvent(EventMovedTo, p)
	assert.Equal(t, []string{canonical(p)}, f.changes.all())
	assert.Equal(t, []string{canonical(p)}, extra)
}

func TestStore_ReadWriteFile(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	loc := PathLocation(f.path("notes.txt"))
	ctx := context.Background()

	content, ok := f.store.ReadFile(ctx, loc)
	assert.True(t, ok)
	assert.Equal(t, "", content)

	f.store.WriteFile(ctx, loc, "raw\ncontent")
	content, ok = f.store.ReadFile(ctx, loc)
	assert.True(t, ok)
	assert.Equal(t, "raw\ncontent", content)
	assert.Equal(t, NoMarker, f.store.LastSeen())
}

func TestStore_List(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	writeFile(t, f.path("todo.txt"), "")
	writeFile(t, f.path("DONE.TXT"), "")
	writeFile(t, f.path("notes.md"), "")
	require.NoError(t, os.Mkdir(f.path("sub"), 0o755))
	ctx := context.Background()

	assert.ElementsMatch(t, []FileEntry{
		{Path: "todo.txt"},
		{Path: "DONE.TXT"},
		{Path: "sub", IsDir: true},
	}, f.store.List(ctx, f.dir, true))

	assert.ElementsMatch(t, []FileEntry{
		{Path: "todo.txt"},
		{Path: "DONE.TXT"},
		{Path: "notes.md"},
		{Path: "sub", IsDir: true},
	}, f.store.List(ctx, f.dir, false))

	assert.Empty(t, f.store.List(ctx, f.path("nope"), false))
}

func TestStore_DefaultLocation(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	assert.Equal(t, PathLocation(filepath.Join(f.dir, "todo.txt")), f.store.DefaultLocation())
	assert.Equal(t, DirectPath, f.store.Kind())
}

func TestStore_WithLastSeen(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "todo.txt")
	writeFile(t, p, "a\n")
	m, err := NewDirectBackend(dir).LastModified(context.Background(), PathLocation(p))
	require.NoError(t, err)

	s := New(NewDirectBackend(dir), nil, WithNotifier(&fakeNotifier{}), WithLastSeen(m), WithLogger(discardLogger()))
	defer s.Close()
	assert.False(t, s.NeedSync(context.Background(), PathLocation(p)))
}

func TestStore_WriteDuringLoadStaysPending(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	p := f.path("todo.txt")
	writeFile(t, p, "a\n")
	touch(t, p, time.Unix(1000, 0))
	loc := PathLocation(p)

	f.backend.afterRead = func() {
		f.backend.afterRead = nil
		writeFile(t, p, "a\nb\n")
		touch(t, p, time.Unix(2000, 0))
	}
	assert.Equal(t, []string{"a"}, f.store.Load(context.Background(), loc))
	assert.True(t, f.store.NeedSync(context.Background(), loc))

	assert.Equal(t, []string{"a", "b"}, f.store.Load(context.Background(), loc))
	assert.False(t, f.store.NeedSync(context.Background(), loc))
}

func TestStore_ConcurrentSavesIgnoreOwnEvents(t *testing.T) {
	f := newDirectFixture(t, AlwaysAuthorized)
	p := f.path("todo.txt")
	writeFile(t, p, "a\n")
	loc := PathLocation(p)
	ctx := context.Background()
	f.store.Load(ctx, loc)
	sub := f.notifier.last()
	require.NotNil(t, sub)

	// every write reports its own event while suppression must be on
	var leaked atomic.Int32
	f.backend.onWrite = func() {
		if !f.store.watch.Suppressed() {
			leaked.Add(1)
		}
		sub.send(EventCloseWrite)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, ok := f.store.Save(ctx, loc, []string{strconv.Itoa(i), strconv.Itoa(j)}, "\n")
				assert.True(t, ok)
				f.store.NeedSync(ctx, loc)
				f.store.Load(ctx, loc)
			}
		}(i)
	}
	wg.Wait()

	assert.Zero(t, leaked.Load())
	assert.Never(t, func() bool { return f.changes.count() > 0 }, 100*time.Millisecond, 5*time.Millisecond)
	assert.True(t, f.store.watch.Suppressed(), "grace period still running")

	f.clock.Advance(time.Second)
	assert.False(t, f.store.watch.Suppressed())
	require.True(t, sub.send(EventModify))
	assert.Eventually(t, func() bool { return f.changes.count() == 1 }, time.Second, 5*time.Millisecond)
}

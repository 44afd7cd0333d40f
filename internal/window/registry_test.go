package window

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	connectErr error
	listErr    error
	windows    []Handle
	geometry   map[uint32]Geometry
	connects   int
	closed     bool
}

func (f *fakeBackend) Connect() error {
	f.connects++
	return f.connectErr
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func (f *fakeBackend) ListWindows() ([]Handle, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.windows, nil
}

func (f *fakeBackend) Geometry(id uint32) (Geometry, error) {
	g, ok := f.geometry[id]
	if !ok {
		return Geometry{}, ErrWindowNotFound
	}
	return g, nil
}

func (f *fakeBackend) Name() string { return "fake" }

func TestListWindows_FiltersEmptyAndExcludedTitles(t *testing.T) {
	backend := &fakeBackend{windows: []Handle{
		{ID: 1, Title: "Editor"},
		{ID: 2, Title: ""},
		{ID: 3, Title: "   "},
		{ID: 4, Title: "SplitScreen"},
		{ID: 5, Title: "Terminal", Class: "xterm"},
	}}

	r, err := NewRegistry(backend, []string{ExcludeTitle("SplitScreen")})
	require.NoError(t, err)

	windows, err := r.ListWindows()
	require.NoError(t, err)

	ids := make([]uint32, 0, len(windows))
	for _, h := range windows {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []uint32{1, 5}, ids)
	assert.Equal(t, 1, backend.connects)
}

func TestListWindows_ZeroWindowsIsNotAnError(t *testing.T) {
	r, err := NewRegistry(&fakeBackend{}, nil)
	require.NoError(t, err)

	windows, err := r.ListWindows()
	require.NoError(t, err)
	assert.NotNil(t, windows)
	assert.Empty(t, windows)
}

func TestListWindows_BackendFailureReturnsEmptyAndUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
	}{
		{"connect fails", &fakeBackend{connectErr: errors.New("no display")}},
		{"enumeration fails", &fakeBackend{listErr: errors.New("broken pipe")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.backend, nil)
			require.NoError(t, err)

			windows, err := r.ListWindows()
			require.ErrorIs(t, err, ErrRegistryUnavailable)
			assert.NotNil(t, windows)
			assert.Empty(t, windows)
		})
	}
}

func TestFind_MatchesTitleOrClass(t *testing.T) {
	backend := &fakeBackend{windows: []Handle{
		{ID: 10, Title: "Mozilla Firefox", Class: "firefox"},
		{ID: 11, Title: "~/src", Class: "Alacritty"},
	}}
	r, err := NewRegistry(backend, nil)
	require.NoError(t, err)

	h, err := r.Find("(?i)alacritty")
	require.NoError(t, err)
	assert.Equal(t, uint32(11), h.ID)

	h, err = r.Find("Firefox$")
	require.NoError(t, err)
	assert.Equal(t, uint32(10), h.ID)

	_, err = r.Find("gimp")
	assert.ErrorIs(t, err, ErrWindowNotFound)

	_, err = r.Find("(")
	assert.Error(t, err)
}

func TestLookup_UsesLastListing(t *testing.T) {
	backend := &fakeBackend{windows: []Handle{{ID: 7, Title: "Notes"}}}
	r, err := NewRegistry(backend, nil)
	require.NoError(t, err)

	_, ok := r.Lookup(7)
	assert.False(t, ok)

	_, err = r.ListWindows()
	require.NoError(t, err)

	h, ok := r.Lookup(7)
	assert.True(t, ok)
	assert.Equal(t, "Notes", h.Title)
}

func TestGeometry_StaleHandle(t *testing.T) {
	backend := &fakeBackend{geometry: map[uint32]Geometry{
		1: {X: 5, Y: 6, Width: 300, Height: 200},
	}}
	r, err := NewRegistry(backend, nil)
	require.NoError(t, err)

	g, err := r.Geometry(Handle{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, Geometry{X: 5, Y: 6, Width: 300, Height: 200}, g)
	assert.False(t, g.Empty())

	_, err = r.Geometry(Handle{ID: 99})
	assert.ErrorIs(t, err, ErrWindowNotFound)
}

func TestNewRegistry_RejectsBadPattern(t *testing.T) {
	_, err := NewRegistry(&fakeBackend{}, []string{"[unclosed"})
	assert.Error(t, err)
}

func TestClose_ReleasesBackend(t *testing.T) {
	backend := &fakeBackend{}
	r, err := NewRegistry(backend, nil)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.False(t, backend.closed, "never connected")

	_, _ = r.ListWindows()
	require.NoError(t, r.Close())
	assert.True(t, backend.closed)
}

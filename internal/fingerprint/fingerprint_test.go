package fingerprint

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/dennisdiepolder/ghosttrack/internal/localstore"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

type fakeEnv struct {
	screen    Screen
	gpu       GPU
	cpus      int
	memory    float64
	platform  Platform
	conn      string
	failGPU   bool
	panicConn bool
}

func (e *fakeEnv) Screen() (Screen, error) { return e.screen, nil }

func (e *fakeEnv) GPU() (GPU, error) {
	if e.failGPU {
		return GPU{}, types.ErrCapabilityUnavailable
	}
	return e.gpu, nil
}

func (e *fakeEnv) CPUCount() (int, error)         { return e.cpus, nil }
func (e *fakeEnv) DeviceMemory() (float64, error) { return e.memory, nil }
func (e *fakeEnv) Platform() (Platform, error)    { return e.platform, nil }

func (e *fakeEnv) ConnectionClass() (string, error) {
	if e.panicConn {
		panic("connection api missing")
	}
	return e.conn, nil
}

func laptop() *fakeEnv {
	return &fakeEnv{
		screen:   Screen{Width: 1920, Height: 1080, ColorDepth: 24, PixelDepth: 24, PixelRatio: 1},
		gpu:      GPU{Vendor: "0x8086", Renderer: "0x9bc4"},
		cpus:     8,
		memory:   16,
		platform: Platform{Name: "linux/amd64", UserAgent: "ghosttrack-agent/test", Machine: "x86_64"},
		conn:     "wifi",
	}
}

var hexID = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestComputeIsDeterministic(t *testing.T) {
	ctx := context.Background()

	a, err := New(laptop(), localstore.NewMemoryStore("a"), zerolog.Nop()).Compute(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := New(laptop(), localstore.NewMemoryStore("b"), zerolog.Nop()).Compute(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.ID != b.ID {
		t.Fatalf("expected identical identities, got %s and %s", a.ID, b.ID)
	}
	if !hexID.MatchString(a.ID) {
		t.Errorf("expected 64 hex chars, got %s", a.ID)
	}
	if a.Degraded {
		t.Error("expected non-degraded identity")
	}
}

func TestComputeDiffersAcrossHosts(t *testing.T) {
	ctx := context.Background()
	other := laptop()
	other.cpus = 4

	a, _ := New(laptop(), localstore.NewMemoryStore("a"), zerolog.Nop()).Compute(ctx)
	b, _ := New(other, localstore.NewMemoryStore("b"), zerolog.Nop()).Compute(ctx)

	if a.ID == b.ID {
		t.Fatal("expected different identities for different hosts")
	}
}

func TestComputeSkipsFailingAttributes(t *testing.T) {
	env := laptop()
	env.failGPU = true
	env.panicConn = true

	f := New(env, localstore.NewMemoryStore("prefs"), zerolog.Nop())
	c := f.Collect()
	if c.GPUVendor != "" || c.Connection != "" {
		t.Fatalf("expected failed attributes to be empty, got %+v", c)
	}
	if c.HardwareConcurrency != 8 || c.ScreenWidth != 1920 {
		t.Fatalf("expected remaining attributes, got %+v", c)
	}

	ident, err := f.Compute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.Degraded || !hexID.MatchString(ident.ID) {
		t.Errorf("expected a partial but derived identity, got %+v", ident)
	}
}

func TestComputeFallsBackWhenHashFails(t *testing.T) {
	store := localstore.NewMemoryStore("prefs")
	f := New(laptop(), store, zerolog.Nop(),
		WithHasher(func([]byte) (string, error) { return "", errors.New("digest unavailable") }),
		WithRandom(func() (string, error) { return "8f14e45f-ceea-4e67-a0c2-1a3b5c7d9e11", nil }),
	)

	ident, err := f.Compute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ident.Degraded {
		t.Error("expected degraded identity")
	}
	if ident.ID != "8f14e45f-ceea-4e67-a0c2-1a3b5c7d9e11" {
		t.Errorf("unexpected fallback id %s", ident.ID)
	}

	cached, err := f.Identity(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached != ident {
		t.Errorf("expected cached degraded identity %+v, got %+v", ident, cached)
	}
}

func TestComputeFallbackUsesUUID(t *testing.T) {
	f := New(laptop(), localstore.NewMemoryStore("prefs"), zerolog.Nop(),
		WithHasher(func([]byte) (string, error) { return "", errors.New("no digest") }),
	)

	a, _ := f.Compute(context.Background())
	b, _ := f.Compute(context.Background())
	if a.ID == b.ID {
		t.Error("expected fresh random identifiers")
	}
	if len(a.ID) != 36 {
		t.Errorf("expected uuid fallback, got %s", a.ID)
	}
}

func TestComputeFailsWhenFallbackFails(t *testing.T) {
	f := New(laptop(), localstore.NewMemoryStore("prefs"), zerolog.Nop(),
		WithHasher(func([]byte) (string, error) { return "", errors.New("no digest") }),
		WithRandom(func() (string, error) { return "", errors.New("no entropy") }),
	)

	if _, err := f.Compute(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestIdentityUsesCache(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemoryStore("prefs")
	store.Put(ctx, localstore.KeyFingerprint, "cached-id")

	calls := 0
	f := New(laptop(), store, zerolog.Nop(), WithHasher(func(b []byte) (string, error) {
		calls++
		return SHA256(b)
	}))

	ident, err := f.Identity(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.ID != "cached-id" || ident.Degraded {
		t.Errorf("expected cached identity, got %+v", ident)
	}
	if calls != 0 {
		t.Errorf("expected no hashing with a cached value, got %d calls", calls)
	}
}

func TestComputeOverwritesStaleCache(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemoryStore("prefs")
	store.Put(ctx, localstore.KeyFingerprint, "stale")
	store.Put(ctx, localstore.KeyFingerprintDegraded, "1")

	ident, err := New(laptop(), store, zerolog.Nop()).Compute(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cached, _ := store.Get(ctx, localstore.KeyFingerprint)
	if cached != ident.ID {
		t.Errorf("expected cache %s, got %s", ident.ID, cached)
	}
	if _, err := store.Get(ctx, localstore.KeyFingerprintDegraded); !errors.Is(err, localstore.ErrNotFound) {
		t.Error("expected degraded flag to be cleared")
	}
}

func TestNilEnvironment(t *testing.T) {
	f := New(nil, localstore.NewMemoryStore("prefs"), zerolog.Nop())
	if c := f.Collect(); c != (Components{}) {
		t.Errorf("expected empty components, got %+v", c)
	}
}

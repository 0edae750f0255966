package env

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/memtest"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/structure"
)

// add is fn(a: i32, b: i32) i32.
func (f *fixture) add(index uint32) *structure.Object {
	s := f.function("add", 12, index, func(ctx context.Context, args uint32) (uint32, error) {
		f.putU32(args, f.u32(args+4)+f.u32(args+8))
		return 0, nil
	},
		storage("retval", structure.MemberInt, 0, 32),
		storage("a", structure.MemberInt, 32, 32),
		storage("b", structure.MemberInt, 64, 32),
	)
	f.finalize()
	return f.fn(s, index)
}

// scale is fn(p: *Point, k: i32) void; it multiplies both coordinates.
func (f *fixture) scale(index uint32) *structure.Object {
	s := f.function("scale", 8, index, func(ctx context.Context, args uint32) (uint32, error) {
		p, k := f.u32(args), f.u32(args+4)
		f.putU32(p, f.u32(p)*k)
		f.putU32(p+4, f.u32(p+4)*k)
		return 0, nil
	},
		storage("retval", structure.MemberVoid, 0, 0),
		object("p", f.ptr, 0, 0),
		storage("k", structure.MemberInt, 32, 32),
	)
	f.finalize()
	return f.fn(s, index)
}

func TestCall(t *testing.T) {
	f := newFixture(t)
	add := f.add(3)

	got, err := add.Call(context.Background(), 2, 40)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(42) {
		t.Errorf("add(2, 40) = %v", got)
	}
	if f.runner.calls != 1 {
		t.Errorf("runner called %d times", f.runner.calls)
	}
	if n := len(f.alloc.Live); n != 0 {
		t.Errorf("%d shadow blocks still live after the call", n)
	}
	if n := f.env.Shadows().Registry().Len(); n != 0 {
		t.Errorf("%d shadow registrations left", n)
	}
}

func TestCallArguments(t *testing.T) {
	f := newFixture(t)
	add := f.add(3)
	ctx := context.Background()

	t.Run("count", func(t *testing.T) {
		_, err := add.Call(ctx, 1)
		wantKind(t, err, bridgeerrors.KindArgumentCount)
	})
	t.Run("type", func(t *testing.T) {
		_, err := add.Call(ctx, 1, "two")
		wantKind(t, err, bridgeerrors.KindTypeMismatch)
		var be *bridgeerrors.Error
		if !bridgeerrors.As(err, &be) {
			t.Fatalf("error is %T", err)
		}
	})
	t.Run("overflow", func(t *testing.T) {
		_, err := add.Call(ctx, 1, int64(1)<<40)
		wantKind(t, err, bridgeerrors.KindOverflow)
	})
	if f.runner.calls != 0 {
		t.Errorf("runner called %d times for invalid arguments", f.runner.calls)
	}
}

func TestCallStatus(t *testing.T) {
	f := newFixture(t)
	fail := f.function("fail", 4, 9, func(ctx context.Context, args uint32) (uint32, error) {
		return 17, nil
	}, storage("retval", structure.MemberInt, 0, 32))
	trap := f.function("trap", 4, 10, func(ctx context.Context, args uint32) (uint32, error) {
		return 0, errors.New("unreachable")
	}, storage("retval", structure.MemberInt, 0, 32))
	f.finalize()
	ctx := context.Background()

	_, err := f.fn(fail, 9).Call(ctx)
	wantKind(t, err, bridgeerrors.KindNativeCall)

	_, err = f.fn(trap, 10).Call(ctx)
	wantKind(t, err, bridgeerrors.KindNativeCall)
	if !strings.Contains(err.Error(), "unreachable") {
		t.Errorf("error lost its cause: %v", err)
	}
	if f.env.Shadows().Context() != nil {
		t.Error("failed call left a shadow context open")
	}
}

func TestCallThroughPointer(t *testing.T) {
	f := newFixture(t)
	scale := f.scale(4)

	p, err := f.point.New(map[string]any{"x": 2, "y": 3}, structure.InHostMemory())
	if err != nil {
		t.Fatal(err)
	}
	if p.View().Foreign() {
		t.Fatal("point should live in host memory")
	}
	if _, err := scale.Call(context.Background(), p, 10); err != nil {
		t.Fatal(err)
	}
	if x, _ := p.Get("x"); x != int64(20) {
		t.Errorf("x = %v, want 20", x)
	}
	if y, _ := p.Get("y"); y != int64(30) {
		t.Errorf("y = %v, want 30", y)
	}
	if n := len(f.alloc.Live); n != 0 {
		t.Errorf("%d shadow blocks still live after the call", n)
	}
}

func TestCallForeignPointer(t *testing.T) {
	f := newFixture(t)
	scale := f.scale(4)

	p, err := f.point.New(map[string]any{"x": 1, "y": 2})
	if err != nil {
		t.Fatal(err)
	}
	addr, ok := p.View().Address()
	if !ok {
		t.Fatal("point should live in foreign memory")
	}
	if _, err := scale.Call(context.Background(), p, 3); err != nil {
		t.Fatal(err)
	}
	if f.u32(addr) != 3 || f.u32(addr+4) != 6 {
		t.Errorf("foreign point = (%d, %d)", f.u32(addr), f.u32(addr+4))
	}
	if x, _ := p.Get("x"); x != int64(3) {
		t.Errorf("x = %v", x)
	}
}

func TestPointerPassesKeepTargets(t *testing.T) {
	f := newFixture(t)
	scale := f.scale(4)
	as := scale.Structure().ArgStruct()

	p, err := f.point.New(map[string]any{"x": 5, "y": 6}, structure.InHostMemory())
	if err != nil {
		t.Fatal(err)
	}
	args, err := as.New(nil, structure.InHostMemory())
	if err != nil {
		t.Fatal(err)
	}
	param := as.Params()[0]
	if err := args.SetParam(param, p); err != nil {
		t.Fatal(err)
	}
	ptr, err := args.ParamObject(param)
	if err != nil {
		t.Fatal(err)
	}

	sc := f.env.Shadows().StartContext()
	if err := f.env.UpdatePointerAddresses(sc, args); err != nil {
		t.Fatal(err)
	}
	addr, _, err := ptr.Address()
	if err != nil || addr == 0 {
		t.Fatalf("Address() = %#x, %v", addr, err)
	}
	if err := f.env.UpdatePointerTargets(sc, args, false); err != nil {
		t.Fatal(err)
	}
	if ptr.CachedTarget() != p {
		t.Error("target changed although the address did not")
	}
	if err := f.env.Shadows().EndContext(); err != nil {
		t.Fatal(err)
	}
}

func TestPointerPassesUnknownLength(t *testing.T) {
	f := newFixture(t)
	ints := f.begin(structure.Descriptor{Name: "[]i32", Kind: structure.KindSlice, Align: 4})
	f.member(ints, storage("", structure.MemberInt, 0, 32))
	f.end(ints)
	many := f.begin(structure.Descriptor{Name: "[*]i32", Kind: structure.KindPointer, ByteSize: 4, Align: 4, Flags: structure.FlagMultiple})
	f.member(many, structure.MemberDescriptor{Name: "*", Type: structure.MemberObject, BitSize: 32, ByteSize: 4, Slot: 0, Structure: ints.Handle()})
	f.end(many)
	holder := f.begin(structure.Descriptor{Name: "Holder", Kind: structure.KindStruct, ByteSize: 4, Align: 4})
	f.member(holder, object("p", many, 0, 0))
	f.end(holder)
	f.finalize()

	point, err := f.point.New(map[string]any{"x": 1, "y": 2}, structure.InHostMemory())
	if err != nil {
		t.Fatal(err)
	}
	single, err := f.ptr.New(point, structure.InHostMemory())
	if err != nil {
		t.Fatal(err)
	}
	list, err := ints.New([]int32{1, 2, 3}, structure.InHostMemory())
	if err != nil {
		t.Fatal(err)
	}
	h, err := holder.New(map[string]any{"p": list}, structure.InHostMemory())
	if err != nil {
		t.Fatal(err)
	}
	inner, err := h.Member("p")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		root   *structure.Object
		ptr    *structure.Object
		target *structure.Object
		length uint32
	}{
		{"pointer as root", single, single, point, 1},
		{"many-pointer without length", h, inner, list, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := f.env.Shadows().StartContext()
			defer func() {
				if err := f.env.Shadows().EndContext(); err != nil {
					t.Fatal(err)
				}
			}()
			if err := f.env.UpdatePointerAddresses(sc, tt.root); err != nil {
				t.Fatal(err)
			}
			if addr, _, err := tt.ptr.Address(); err != nil || addr == 0 {
				t.Fatalf("Address() = %#x, %v", addr, err)
			}
			if err := f.env.UpdatePointerTargets(sc, tt.root, false); err != nil {
				t.Fatal(err)
			}
			if tt.ptr.CachedTarget() != tt.target {
				t.Error("target replaced although the address did not change")
			}
			if n := structure.TargetLength(tt.ptr.CachedTarget()); n != tt.length {
				t.Errorf("target length = %d, want %d", n, tt.length)
			}
		})
	}
}

func TestPromise(t *testing.T) {
	f := newFixture(t)
	promise := f.special("Promise(i32)", structure.PurposePromise, f.i32)
	var payload uint32
	fetch := f.function("fetch", 8, 5, func(ctx context.Context, args uint32) (uint32, error) {
		payload = f.block(4)
		f.putU32(payload, f.u32(args)*2)
		if status := f.env.HandleInbound(ctx, f.u32(args+4), payload); status != StatusOK {
			t.Errorf("HandleInbound = %d", status)
		}
		return 0, nil
	},
		storage("retval", structure.MemberVoid, 0, 0),
		storage("n", structure.MemberInt, 0, 32),
		object("promise", promise, 32, 0),
	)
	f.finalize()

	var settled any
	v, err := f.fn(fetch, 5).Call(context.Background(), 21, CallOptions{
		OnSettle: func(v any, err error) { settled = v },
	})
	if err != nil {
		t.Fatal(err)
	}
	p, ok := v.(*Promise)
	if !ok {
		t.Fatalf("Call returned %T", v)
	}
	got, err := p.Result()
	if err != nil || got != int64(42) {
		t.Errorf("Result() = %v, %v", got, err)
	}
	if settled != int64(42) {
		t.Errorf("OnSettle got %v", settled)
	}
	if n := f.env.Table().Len(); n != 1 {
		t.Errorf("table holds %d values, want only the environment destructor", n)
	}
}

func TestPromiseUnsettled(t *testing.T) {
	p := newPromise()
	_, err := p.Result()
	wantKind(t, err, bridgeerrors.KindDeadlock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Wait(ctx)
	wantKind(t, err, bridgeerrors.KindAborted)

	p.settle(1, nil)
	p.settle(2, nil)
	if v, _ := p.Result(); v != 1 {
		t.Errorf("second settle replaced the value: %v", v)
	}
}

func TestGenerator(t *testing.T) {
	f := newFixture(t)
	gen := f.special("Generator(i32)", structure.PurposeGenerator, f.i32)
	count := f.function("count", 8, 6, func(ctx context.Context, args uint32) (uint32, error) {
		n, h := f.u32(args), f.u32(args+4)
		for i := uint32(1); i <= n; i++ {
			item := f.block(4)
			f.putU32(item, i)
			if status := f.env.HandleInbound(ctx, h, item); status != StatusOK {
				t.Errorf("item %d: status %d", i, status)
			}
		}
		if status := f.env.HandleInbound(ctx, h, 0); status != StatusOK {
			t.Errorf("end: status %d", status)
		}
		return 0, nil
	},
		storage("retval", structure.MemberVoid, 0, 0),
		storage("n", structure.MemberInt, 0, 32),
		object("gen", gen, 32, 0),
	)
	f.finalize()

	v, err := f.fn(count, 6).Call(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	g, ok := v.(*Generator)
	if !ok {
		t.Fatalf("Call returned %T", v)
	}
	items, err := g.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 || items[0] != int64(1) || items[2] != int64(3) {
		t.Errorf("items = %v", items)
	}
}

func TestGeneratorCancel(t *testing.T) {
	g := newGenerator()
	if g.push(1) {
		t.Fatal("push stopped before cancel")
	}

	done := make(chan error, 1)
	go func() { done <- g.Cancel(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for !g.push(2) {
		if time.Now().After(deadline) {
			t.Fatal("source never saw the cancellation")
		}
		runtime.Gosched()
	}
	g.finish(nil)

	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, ok, err := g.Next(context.Background()); ok || err != nil {
		t.Errorf("Next after cancel = %v, %v", ok, err)
	}
}

func TestAllocatorAdapter(t *testing.T) {
	f := newFixture(t)
	h := f.env.Table().Insert(resource.KindAllocator, newAllocatorAdapter(f.env.Allocator()))
	ctx := context.Background()

	args := f.block(12)
	f.putU32(args, 16)
	f.putU32(args+4, 8)
	if status := f.env.HandleInbound(ctx, uint32(h), args); status != StatusOK {
		t.Fatalf("alloc status %d", status)
	}
	addr := f.u32(args + 8)
	if addr == 0 || addr%8 != 0 {
		t.Fatalf("allocated %#x", addr)
	}
	if _, ok := f.alloc.Live[addr]; !ok {
		t.Fatal("allocation did not reach the module allocator")
	}

	if status := f.env.HandleInbound(ctx, uint32(h), args); status != StatusOK {
		t.Fatalf("free status %d", status)
	}
	if _, ok := f.alloc.Live[addr]; ok {
		t.Error("block still live after free")
	}
	if status := f.env.HandleInbound(ctx, uint32(h), args); status != StatusFailed {
		t.Errorf("double free status %d", status)
	}
}

func TestStreamAdapters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buf := f.block(8)
	args := f.block(12)

	r := f.env.Table().Insert(resource.KindReader, &streamAdapter{r: strings.NewReader("hello")})
	f.putU32(args, buf)
	f.putU32(args+4, 8)
	if status := f.env.HandleInbound(ctx, uint32(r), args); status != StatusOK {
		t.Fatalf("read status %d", status)
	}
	if n := f.u32(args + 8); n != 5 || string(f.mem.Data[buf:buf+5]) != "hello" {
		t.Errorf("read %d bytes: %q", n, f.mem.Data[buf:buf+n])
	}
	if status := f.env.HandleInbound(ctx, uint32(r), args); status != StatusOK || f.u32(args+8) != 0 {
		t.Errorf("read at end: status %d, count %d", status, f.u32(args+8))
	}

	var out bytes.Buffer
	w := f.env.Table().Insert(resource.KindWriter, &streamAdapter{w: &out})
	copy(f.mem.Data[buf:], "goodbye!")
	if status := f.env.HandleInbound(ctx, uint32(w), args); status != StatusOK {
		t.Fatalf("write status %d", status)
	}
	if out.String() != "goodbye!" {
		t.Errorf("written %q", out.String())
	}
}

func TestAbortSignal(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	h := f.env.Table().Insert(resource.KindAbortSignal, &abortSignal{ctx: ctx})

	if status := f.env.HandleInbound(context.Background(), uint32(h), 0); status != StatusOK {
		t.Errorf("status before abort = %d", status)
	}
	cancel()
	if status := f.env.HandleInbound(context.Background(), uint32(h), 0); status != StatusStop {
		t.Errorf("status after abort = %d", status)
	}
	if status := f.env.HandleInbound(context.Background(), 999, 0); status != StatusFailed {
		t.Errorf("unknown handle status = %d", status)
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	add := f.add(3)

	ran := 0
	f.env.Table().Defer(func() { ran++ })
	if err := f.env.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.env.Close(); err != nil {
		t.Fatal(err)
	}
	if ran != 1 {
		t.Errorf("destructor ran %d times", ran)
	}
	_, err := add.Call(context.Background(), 1, 2)
	wantKind(t, err, bridgeerrors.KindClosed)
}

func TestHandleLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mem := memtest.NewMemory(1 << 12)
	e := New(mem, memtest.NewAllocator(mem), nil, WithLogger(zap.New(core)))

	sig := e.Table().Insert(resource.KindAbortSignal, &abortSignal{ctx: context.Background()})
	e.Table().Insert(resource.KindReader, &streamAdapter{r: strings.NewReader("x")})
	e.Table().Remove(sig)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		msg  string
		want int
	}{
		{"handle created", 2},
		{"handle dropped", 1},
		{"dropping live handle", 1},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if n := logs.FilterMessage(tt.msg).Len(); n != tt.want {
				t.Errorf("%q logged %d times, want %d", tt.msg, n, tt.want)
			}
		})
	}
	live := logs.FilterMessage("dropping live handle").All()
	if len(live) == 1 && live[0].ContextMap()["kind"] != "reader" {
		t.Errorf("live handle kind = %v", live[0].ContextMap()["kind"])
	}
}

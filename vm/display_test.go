package vm

import (
	"errors"
	"testing"

	"github.com/chazu/avm2/vm/bitmap"
)

func TestBitmapDataFillRect(t *testing.T) {
	backend := bitmap.NewMemoryBackend()
	vm := newTestVM(t, Options{Backend: backend})
	bd := mustConstruct(t, vm, "flash.display.BitmapData", Int(4), Int(4), True, Uint(0))
	r := mustConstruct(t, vm, "flash.geom.Rectangle", Int(0), Int(0), Int(2), Int(2))

	if _, err := vm.Invoke(bd, "fillRect", r, Uint(0xFF336699)); err != nil {
		t.Fatalf("fillRect: %v", err)
	}
	tests := []struct {
		x, y int32
		want uint32
	}{
		{0, 0, 0xFF336699},
		{1, 1, 0xFF336699},
		{2, 2, 0},
		{-1, 0, 0},
	}
	for _, tt := range tests {
		got, err := vm.Invoke(bd, "getPixel32", Int(tt.x), Int(tt.y))
		if err != nil {
			t.Fatalf("getPixel32: %v", err)
		}
		if got.AsUint() != tt.want {
			t.Errorf("getPixel32(%d, %d) = %#x, want %#x", tt.x, tt.y, got.AsUint(), tt.want)
		}
	}
	px, _ := vm.Invoke(bd, "getPixel", Int(0), Int(0))
	if px.AsUint() != 0x336699 {
		t.Errorf("getPixel = %#x, want 0x336699", px.AsUint())
	}
	if backend.Updates() == 0 {
		t.Error("fillRect did not reach the backend")
	}
}

func TestBitmapDataLockDefersUpload(t *testing.T) {
	backend := bitmap.NewMemoryBackend()
	vm := newTestVM(t, Options{Backend: backend})
	bd := mustConstruct(t, vm, "flash.display.BitmapData", Int(2), Int(2))
	if _, err := vm.Invoke(bd, "lock"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	before := backend.Updates()
	if _, err := vm.Invoke(bd, "setPixel", Int(0), Int(0), Uint(0xFF0000)); err != nil {
		t.Fatalf("setPixel: %v", err)
	}
	if backend.Updates() != before {
		t.Error("locked bitmap uploaded a change")
	}
	if _, err := vm.Invoke(bd, "unlock"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if backend.Updates() == before {
		t.Error("unlock did not flush the pending change")
	}
}

func TestBitmapDataDispose(t *testing.T) {
	backend := bitmap.NewMemoryBackend()
	vm := newTestVM(t, Options{Backend: backend})
	bd := mustConstruct(t, vm, "flash.display.BitmapData", Int(2), Int(2))
	h := bd.AsObject().(*BitmapDataObject).Handle()
	if _, ok := backend.Texture(h); !ok {
		t.Fatal("bitmap not registered with the backend")
	}
	if _, err := vm.Invoke(bd, "dispose"); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if _, ok := backend.Texture(h); ok {
		t.Error("dispose did not release the texture")
	}
	_, err := vm.Invoke(bd, "getPixel32", Int(0), Int(0))
	scriptError(t, err, "ArgumentError", 2015)
	_, err = vm.GetProperty(bd, "width")
	scriptError(t, err, "ArgumentError", 2015)
}

func TestBitmapDataInvalidSize(t *testing.T) {
	vm := newTestVM(t, Options{})
	_, err := vm.Construct("flash.display.BitmapData", Int(0), Int(10))
	scriptError(t, err, "ArgumentError", 2015)
}

func TestBitmapDataUnsupported(t *testing.T) {
	vm := newTestVM(t, Options{})
	bd := mustConstruct(t, vm, "flash.display.BitmapData", Int(2), Int(2))
	_, err := vm.Invoke(bd, "noise", Int(1))
	var u *UnsupportedError
	if !errors.As(err, &u) {
		t.Fatalf("noise err = %v, want UnsupportedError", err)
	}
	if u.Operation != "noise" {
		t.Errorf("Operation = %q, want noise", u.Operation)
	}
}

func TestCollectedBitmapReleasesTexture(t *testing.T) {
	backend := bitmap.NewMemoryBackend()
	vm := newTestVM(t, Options{Backend: backend})
	bd, err := vm.Construct("flash.display.BitmapData", Int(2), Int(2))
	if err != nil {
		t.Fatalf("new BitmapData: %v", err)
	}
	h := bd.AsObject().(*BitmapDataObject).Handle()
	if err := vm.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if _, ok := backend.Texture(h); ok {
		t.Error("unreachable bitmap still holds its texture")
	}
}

func TestCubeTextureUpload(t *testing.T) {
	backend := bitmap.NewMemoryBackend()
	vm := newTestVM(t, Options{Backend: backend})
	tex := mustConstruct(t, vm, "flash.display3D.textures.CubeTexture", Int(2))
	bd := mustConstruct(t, vm, "flash.display.BitmapData", Int(2), Int(2), False, Uint(0xFF00FF00))

	if _, err := vm.Invoke(tex, "uploadFromBitmapData", bd, Int(3)); err != nil {
		t.Fatalf("uploadFromBitmapData: %v", err)
	}
	h := tex.AsObject().(*CubeTextureObject).Handle()
	face, ok := backend.Face(h, 3)
	if !ok || len(face) != 2*2*4 {
		t.Fatalf("face 3 = %d bytes (ok=%v), want 16", len(face), ok)
	}

	_, err := vm.Invoke(tex, "uploadFromBitmapData", bd, Int(0), Int(1))
	var u *UnsupportedError
	if !errors.As(err, &u) {
		t.Errorf("mip level 1 err = %v, want UnsupportedError", err)
	}
	_, err = vm.Invoke(tex, "uploadFromBitmapData", bd, Int(6))
	scriptError(t, err, "ArgumentError", 2008)
}

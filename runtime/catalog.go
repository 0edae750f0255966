package runtime

import (
	"os"
	"path/filepath"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/structure"
)

const catalogExt = ".catalog"

// LoadCatalog reads a catalog file written by a runtime cache or by
// Module.Catalog().Encode, and rebuilds its structures in host memory.
func LoadCatalog(path string, bigEndian bool) (*structure.Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	cat, err := structure.DecodeCatalog(b)
	if err != nil {
		return nil, err
	}
	return replay(cat, bigEndian)
}

func replay(cat *structure.Catalog, bigEndian bool) (*structure.Registry, error) {
	var opts []structure.Option
	if bigEndian {
		opts = append(opts, structure.WithBigEndian())
	}
	r := structure.NewRegistry(structure.NewHostRuntime(), opts...)
	if err := cat.Replay(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) catalogPath(key string) string {
	return filepath.Join(r.cacheDir, "catalog", key+catalogExt)
}

// readCatalog returns the cached catalog for key, or nil when there is none.
func (r *Runtime) readCatalog(key string) (*structure.Catalog, error) {
	if r.cacheDir == "" {
		return nil, nil
	}
	b, err := os.ReadFile(r.catalogPath(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return structure.DecodeCatalog(b)
}

func (r *Runtime) writeCatalog(key string, cat *structure.Catalog) error {
	if r.cacheDir == "" {
		return nil
	}
	b, err := cat.Encode()
	if err != nil {
		return err
	}
	path := r.catalogPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

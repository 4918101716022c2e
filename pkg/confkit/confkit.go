// Package confkit holds the small pieces shared by every config loader:
// .env bootstrap, path resolution relative to the main config file, and
// sections that live in their own YAML file.
package confkit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeromicro/go-zero/core/conf"
)

// ResolvePath expands environment variables in file and, when the result is
// relative, anchors it at base.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// LoadFile loads path into a new T with go-zero conf, expanding ${ENV}
// placeholders when useEnv is set.
func LoadFile[T any](path string, useEnv bool) (*T, error) {
	LoadDotenvOnce()
	var cfg T
	var opts []conf.Option
	if useEnv {
		opts = append(opts, conf.UseEnv())
	}
	if err := conf.Load(path, &cfg, opts...); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return &cfg, nil
}

// Section points at a sub-config file. After Hydrate, File is absolute and
// Value holds the parsed content.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate loads File with loader. An empty File leaves the section unset.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	p := ResolvePath(base, s.File)
	v, err := loader(p)
	if err != nil {
		return err
	}
	s.File, s.Value = p, v
	return nil
}

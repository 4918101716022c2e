package confkit_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pxwatch/pkg/confkit"
)

func TestResolvePath(t *testing.T) {
	t.Setenv("PXWATCH_CONF_DIR", "/opt/pxwatch")
	tests := []struct {
		name string
		base string
		file string
		want string
	}{
		{name: "absolute", base: "etc", file: "/srv/market.yaml", want: "/srv/market.yaml"},
		{name: "relative", base: "etc", file: "market.yaml", want: filepath.Join("etc", "market.yaml")},
		{name: "env absolute", base: "etc", file: "${PXWATCH_CONF_DIR}/notifier.yaml", want: "/opt/pxwatch/notifier.yaml"},
		{name: "env relative", base: "etc", file: "$UNSET_PXWATCH_DIR/notifier.yaml", want: "/notifier.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, confkit.ResolvePath(tt.base, tt.file))
		})
	}
}

func TestSectionHydrate(t *testing.T) {
	t.Run("empty file leaves section unset", func(t *testing.T) {
		section := &confkit.Section[string]{}
		err := section.Hydrate("/base", func(string) (*string, error) {
			t.Fatal("loader must not run without a file")
			return nil, nil
		})
		require.NoError(t, err)
		assert.Nil(t, section.Value)
	})

	t.Run("loads relative to base", func(t *testing.T) {
		section := &confkit.Section[string]{File: "market.yaml"}
		value := "loaded"
		err := section.Hydrate("/etc/pxwatch", func(p string) (*string, error) {
			assert.Equal(t, "/etc/pxwatch/market.yaml", p)
			return &value, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "/etc/pxwatch/market.yaml", section.File)
		require.NotNil(t, section.Value)
		assert.Equal(t, "loaded", *section.Value)
	})

	t.Run("loader error propagates", func(t *testing.T) {
		section := &confkit.Section[string]{File: "broken.yaml"}
		boom := errors.New("boom")
		err := section.Hydrate("/etc", func(string) (*string, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
		assert.Equal(t, "broken.yaml", section.File)
	})
}

func TestLoadFile(t *testing.T) {
	type sample struct {
		Name    string
		Retries int `json:",default=3"`
	}
	t.Setenv("PXWATCH_SAMPLE_NAME", "watcher")
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Name: ${PXWATCH_SAMPLE_NAME}\n"), 0o600))

	cfg, err := confkit.LoadFile[sample](path, true)
	require.NoError(t, err)
	assert.Equal(t, "watcher", cfg.Name)
	assert.Equal(t, 3, cfg.Retries)

	_, err = confkit.LoadFile[sample](filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.Error(t, err)
}

func TestProjectRoot(t *testing.T) {
	root, err := confkit.ProjectRoot()
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(root, "go.mod"))
	assert.NoError(t, statErr)

	p, err := confkit.ProjectPath("etc/pxwatch.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "etc", "pxwatch.yaml"), p)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, fs afero.Fs) string
		want  Secrets
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T, fs afero.Fs) string {
				writeFile(t, fs, "/s", ProxyUsername, "  ccid  \n")
				writeFile(t, fs, "/s", ProxyPassword, "hunter2")
				writeFile(t, fs, "/s", NCBIAPIKey, "abc123\n")
				return "/s"
			},
			want: Secrets{
				ProxyUsername: "ccid",
				ProxyPassword: "hunter2",
				NCBIAPIKey:    "abc123",
			},
		},
		{
			name: "returns empty set for nonexistent directory",
			setup: func(t *testing.T, fs afero.Fs) string {
				return "/does-not-exist"
			},
			want: Secrets{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T, fs afero.Fs) string {
				writeFile(t, fs, "/s", NCBIAPIKey, "valid-key")
				writeFile(t, fs, "/s", "empty-key", "")
				writeFile(t, fs, "/s", "whitespace-only", "   \n\t  ")
				return "/s"
			},
			want: Secrets{NCBIAPIKey: "valid-key"},
		},
		{
			name: "skips dotfiles and subdirectories",
			setup: func(t *testing.T, fs afero.Fs) string {
				writeFile(t, fs, "/s", ".gitkeep", "")
				writeFile(t, fs, "/s", ".hidden-key", "secret")
				writeFile(t, fs, "/s/subdir", "nested", "x")
				writeFile(t, fs, "/s", ProxyUsername, "real")
				return "/s"
			},
			want: Secrets{ProxyUsername: "real"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			dir := tt.setup(t, fs)
			got, err := Load(fs, dir, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSecretsOr(t *testing.T) {
	s := Secrets{ProxyUsername: "from-file"}

	assert.Equal(t, "from-flag", s.Or(ProxyUsername, "from-flag"))
	assert.Equal(t, "from-file", s.Or(ProxyUsername, ""))
	assert.Equal(t, "", s.Or(ProxyPassword, ""))
	assert.Equal(t, []string{ProxyUsername}, s.Keys())
}

func writeFile(t *testing.T, fs afero.Fs, dir, name, content string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name), []byte(content), 0o600))
}

package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveDataRoot(t *testing.T) {
	os.Unsetenv("SNAPSHOT_ROOT")
	assert.Equal(t, DefaultDataRoot, ResolveDataRoot())

	os.Setenv("SNAPSHOT_ROOT", "/custom/data")
	defer os.Unsetenv("SNAPSHOT_ROOT")
	assert.Equal(t, "/custom/data", ResolveDataRoot())
}

func TestSafeJoin(t *testing.T) {
	base := filepath.Join(os.TempDir(), "vms_safejoin_test")

	cases := []struct {
		name     string
		elements []string
		valid    bool
	}{
		{"normal", []string{"logs", "app.log"}, true},
		{"parent", []string{"..", "other"}, false},
		{"nested_parent", []string{"logs", "..", "..", "secrets"}, false},
		{"absolute", []string{"/etc/passwd"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := SafeJoin(base, tc.elements...)
			if tc.valid {
				assert.NoError(t, err)
				assert.Contains(t, res, base)
			} else {
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), "traversal")
				}
			}
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	tmpRoot := filepath.Join(os.TempDir(), "vms_test_data")
	os.Setenv("SNAPSHOT_ROOT", tmpRoot)
	defer func() {
		os.Unsetenv("SNAPSHOT_ROOT")
		os.RemoveAll(tmpRoot)
	}()

	err := EnsureDirs()
	assert.NoError(t, err)

	for _, sub := range []string{"violations", "discovery", "logs"} {
		_, err := os.Stat(filepath.Join(tmpRoot, sub))
		assert.NoError(t, err, "subdirectory %s should exist", sub)
	}
}

package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLocalFilesystem(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "state.db")

	tests := []struct {
		name    string
		fsType  string
		detErr  error
		wantErr string
	}{
		{name: "local", fsType: "ext4"},
		{name: "network", fsType: "nfs", wantErr: `network filesystem "nfs"`},
		{name: "unsupported platform", detErr: errDetectUnsupported},
		{name: "detector failure", detErr: errors.New("statfs boom"), wantErr: "statfs boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inspected string
			err := checkLocalFilesystemWith(dbPath, func(p string) (string, error) {
				inspected = p
				return tt.fsType, tt.detErr
			})
			assert.Equal(t, root, inspected, "nearest existing parent is inspected")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, checkLocalFilesystemWith("", nil))
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"nfs":    true,
		"SMBFS":  true,
		" cifs ": true,
		"apfs":   false,
		"0x6969": false,
	}
	for fs, want := range cases {
		assert.Equal(t, want, isNetworkFilesystem(fs), fs)
	}
}

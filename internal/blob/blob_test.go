package blob

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: filepath.Join(t.TempDir(), "b")})
	if err != nil || store.Driver() != DriverFilesystem {
		t.Fatalf("fs: %v %v", store, err)
	}
	store, err = Open(ctx, Config{Driver: DriverMemory})
	if err != nil || store.Driver() != DriverMemory {
		t.Fatalf("memory: %v %v", store, err)
	}
	if _, err := Open(ctx, Config{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOCATIONCORE_BLOB_DRIVER", "")
	t.Setenv("LOCATIONCORE_BLOB_FS_ROOT", "/var/lib/certs")
	cfg, err := ConfigFromEnv()
	if err != nil || cfg.Driver != DriverFilesystem || cfg.FSRoot != "/var/lib/certs" {
		t.Fatalf("unexpected config %+v (%v)", cfg, err)
	}
	t.Setenv("LOCATIONCORE_BLOB_DRIVER", "s3")
	t.Setenv("LOCATIONCORE_BLOB_S3_BUCKET", "")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected s3 bucket error")
	}
	t.Setenv("LOCATIONCORE_BLOB_S3_BUCKET", "certs")
	cfg, err = ConfigFromEnv()
	if err != nil || cfg.S3.Bucket != "certs" {
		t.Fatalf("unexpected s3 config %+v (%v)", cfg, err)
	}
}

package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"voxelcraft.ai/blockphys/internal/persistence/objstore"
)

// buildLogMirror returns nil unless BP_LOG_MIRROR is set. Finished hourly
// tick/audit files are uploaded under <prefix>/<path relative to dataDir>.
func buildLogMirror(dataDir string, logger *log.Logger) (*objstore.Mirror, error) {
	if !envBool("BP_LOG_MIRROR", false) {
		return nil, nil
	}

	cfg := objstore.Config{
		Endpoint:        strings.TrimSpace(os.Getenv("BP_LOG_MIRROR_ENDPOINT")),
		Bucket:          strings.TrimSpace(os.Getenv("BP_LOG_MIRROR_BUCKET")),
		Region:          strings.TrimSpace(os.Getenv("BP_LOG_MIRROR_REGION")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("BP_LOG_MIRROR_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("BP_LOG_MIRROR_SECRET_ACCESS_KEY")),
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("BP_LOG_MIRROR=true but BP_LOG_MIRROR_ENDPOINT/BUCKET/ACCESS_KEY_ID/SECRET_ACCESS_KEY are not fully set")
	}
	client, err := objstore.New(cfg)
	if err != nil {
		return nil, err
	}
	return objstore.NewMirror(client, objstore.MirrorConfig{
		DataDir: dataDir,
		Prefix:  strings.TrimSpace(os.Getenv("BP_LOG_MIRROR_PREFIX")),
		Workers: envInt("BP_LOG_MIRROR_WORKERS", 2),
		Logger:  logger,
	}), nil
}

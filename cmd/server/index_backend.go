package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"voxelcraft.ai/blockphys/internal/persistence/indexdb"
	"voxelcraft.ai/blockphys/internal/sim/blockphys"
	"voxelcraft.ai/blockphys/internal/sim/catalogs"
	"voxelcraft.ai/blockphys/internal/sim/tuning"
)

type runtimeIndex interface {
	blockphys.TickLogger
	blockphys.AuditLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir, worldID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("BP_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "blockphys.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "remote":
		endpoint := strings.TrimSpace(os.Getenv("BP_INDEX_REMOTE_URL"))
		token := strings.TrimSpace(os.Getenv("BP_INDEX_REMOTE_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("BP_INDEX_BACKEND=remote but BP_INDEX_REMOTE_URL is empty")
		}
		flushMS := envInt("BP_INDEX_REMOTE_FLUSH_MS", 500)
		batchSize := envInt("BP_INDEX_REMOTE_BATCH_SIZE", 128)
		idx, err := indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      endpoint,
			Token:         token,
			WorldID:       worldID,
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			MaxRetained:   envInt("BP_INDEX_REMOTE_MAX_RETAINED", 8192),
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported BP_INDEX_BACKEND: %s", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

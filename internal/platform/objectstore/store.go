package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/yungbote/clusterforge-backend/internal/platform/envutil"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

var ErrNotFound = errors.New("object not found")

// Store persists generated page documents and images.
type Store interface {
	// Save writes data under key and returns its public URI.
	Save(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

type Provider string

const (
	ProviderGCS   Provider = "gcs"
	ProviderLocal Provider = "local"
)

type Config struct {
	Provider     Provider
	Bucket       string
	PublicURL    string
	EmulatorHost string
	LocalDir     string
	LocalURL     string
}

func ConfigFromEnv() Config {
	return Config{
		Provider:     Provider(strings.ToLower(envutil.String("STORAGE_PROVIDER", string(ProviderLocal)))),
		Bucket:       envutil.String("GCS_BUCKET", ""),
		PublicURL:    envutil.String("GCS_PUBLIC_URL", ""),
		EmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", ""),
		LocalDir:     envutil.String("LOCAL_STORAGE_DIR", "./data/objects"),
		LocalURL:     envutil.String("LOCAL_STORAGE_URL", ""),
	}
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	switch cfg.Provider {
	case ProviderGCS:
		return NewGCSStore(ctx, log, cfg)
	case ProviderLocal, "":
		return NewLocalStore(log, cfg.LocalDir, cfg.LocalURL)
	default:
		return nil, fmt.Errorf("unknown STORAGE_PROVIDER %q", cfg.Provider)
	}
}

// PagePrefix is the folder holding every object of one generated page.
func PagePrefix(ownerID, clusterID, pageID fmt.Stringer) string {
	return path.Join(ownerID.String(), clusterID.String(), pageID.String()) + "/"
}

func ClusterPrefix(ownerID, clusterID fmt.Stringer) string {
	return path.Join(ownerID.String(), clusterID.String()) + "/"
}

func PageDocumentKey(ownerID, clusterID, pageID fmt.Stringer, postfix string) string {
	return PagePrefix(ownerID, clusterID, pageID) + postfix + ".json"
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

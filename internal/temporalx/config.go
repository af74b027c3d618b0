package temporalx

import (
	"time"

	"github.com/yungbote/clusterforge-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout   time.Duration
	DialMaxWait   time.Duration
	AutoRegister  bool
	RetentionDays int
}

func ConfigFromEnv() Config {
	return Config{
		Address:        envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace:      envutil.String("TEMPORAL_NAMESPACE", "clusterforge"),
		TaskQueue:      envutil.String("TEMPORAL_TASK_QUEUE", "clusterforge-jobs"),
		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),
		DialTimeout:    envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second),
		DialMaxWait:    envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", time.Minute),
		AutoRegister:   envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:  envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),
	}
}

// Enabled reports whether an address is configured.
func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) mtls() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

// Package cfg holds the server configuration: flags with inline defaults,
// environment fill with the CONTENTD_ prefix, and a validation pass that
// reports every problem at once.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rgeddes/contentd/internal/log"
)

type App struct {
	LogJSON  bool
	LogLevel string

	HTTPPort  int
	AdminPort int

	DataDir   string
	BackupDir string
	SiteDir   string
	UsersFile string

	AuthSecret        string
	TokenTTL          time.Duration
	BcryptCost        int
	SeedAdminPassword string

	EnableDirWatch bool

	EnableS3Mirror bool
	MirrorS3Bucket string
	MirrorS3Prefix string

	MaxBodyBytes int64
	TrustedHops  int

	EnablePprof     bool
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	StacktraceLevel string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.StringVar(&c.DataDir, "data-dir", "./data", "directory holding content JSON documents")
	fs.StringVar(&c.BackupDir, "backup-dir", "./data/backups", "directory receiving pre-write snapshots")
	fs.StringVar(&c.SiteDir, "site-dir", "./public", "directory of the static public site (embedded fallback used if missing)")
	fs.StringVar(&c.UsersFile, "users-file", "./data/users.json", "JSON file holding admin user records")
	fs.StringVar(&c.AuthSecret, "auth-secret", "", "HS256 signing secret for session tokens (min 16 bytes, required)")
	fs.DurationVar(&c.TokenTTL, "token-ttl", 12*time.Hour, "session token lifetime")
	fs.IntVar(&c.BcryptCost, "bcrypt-cost", 12, "bcrypt cost for password hashing (4..31)")
	fs.StringVar(&c.SeedAdminPassword, "seed-admin-password", "", "create an active admin user with this password when the users file is empty")
	fs.BoolVar(&c.EnableDirWatch, "enable-dir-watch", true, "watch the data dir so out-of-band edits advance lastModified")
	fs.BoolVar(&c.EnableS3Mirror, "enable-s3-mirror", false, "mirror backup snapshots to S3 (best-effort)")
	fs.StringVar(&c.MirrorS3Bucket, "mirror-s3-bucket", "", "s3 bucket receiving mirrored snapshots")
	fs.StringVar(&c.MirrorS3Prefix, "mirror-s3-prefix", "content-backups", "s3 key prefix for mirrored snapshots")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 1<<20, "request body cap for API writes")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted reverse proxies for client IP resolution")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks ranges and cross-field requirements, returning every
// invalid field joined into one error.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("DATA_DIR is required"))
	}
	if c.BackupDir == "" {
		errs = append(errs, fmt.Errorf("BACKUP_DIR is required"))
	}
	if c.UsersFile == "" {
		errs = append(errs, fmt.Errorf("USERS_FILE is required"))
	}

	if len(c.AuthSecret) < 16 {
		errs = append(errs, fmt.Errorf("AUTH_SECRET must be at least 16 bytes (got %d)", len(c.AuthSecret)))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must be positive (got %s)", c.TokenTTL))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be 4..31 (got %d)", c.BcryptCost))
	}

	if c.MaxBodyBytes < 1024 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be at least 1024 (got %d)", c.MaxBodyBytes))
	}
	if c.TrustedHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be >= 0 (got %d)", c.TrustedHops))
	}

	if c.EnableS3Mirror && c.MirrorS3Bucket == "" {
		errs = append(errs, fmt.Errorf("MIRROR_S3_BUCKET required when ENABLE_S3_MIRROR=true"))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

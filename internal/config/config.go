// Package config loads process configuration from defaults, an optional YAML
// file and CHORELY_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables read as configuration. The rest of
// the name is matched against config keys segment by segment, ignoring case,
// e.g. CHORELY_HTTP_PORT or CHORELY_FIREBASE_APIKEY.
const EnvPrefix = "CHORELY_"

const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`
	Backend   string          `koanf:"backend" validate:"oneof=memory sqlite firestore"`
	SQLite    SQLiteConfig    `koanf:"sqlite"`
	Firestore FirestoreConfig `koanf:"firestore"`
	Firebase  FirebaseConfig  `koanf:"firebase"`
	QRCode    QRCodeConfig    `koanf:"qrcode"`
	Demo      DemoConfig      `koanf:"demo"`
}

type HTTPConfig struct {
	Port int `koanf:"port" validate:"min=1,max=65535"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type FirestoreConfig struct {
	ProjectID string `koanf:"projectId"`
}

// FirebaseConfig holds the service account used by the Admin SDK and the web
// API key used for password sign-in.
type FirebaseConfig struct {
	CredentialsPath string `koanf:"credentialsPath"`
	APIKey          string `koanf:"apiKey"`
	AuthEndpoint    string `koanf:"authEndpoint" validate:"omitempty,url"`
}

type QRCodeConfig struct {
	Size  int    `koanf:"size" validate:"min=64,max=2048"`
	Level string `koanf:"level" validate:"oneof=L M Q H"`
}

// DemoConfig seeds the memory backend with a sample household.
type DemoConfig struct {
	Seed bool `koanf:"seed"`
}

var defaults = map[string]any{
	"http.port":    8080,
	"log.level":    "info",
	"log.format":   "text",
	"backend":      BackendSQLite,
	"sqlite.path":  "chorely.db",
	"qrcode.size":  256,
	"qrcode.level": "M",
	"demo.seed":    false,

	"firestore.projectId":      "",
	"firebase.credentialsPath": "",
	"firebase.apiKey":          "",
	"firebase.authEndpoint":    "",
}

// Load reads configuration. path names an optional YAML file; an empty path
// skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	existing := k.Raw()
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return canonicalizeEnvKey(strings.TrimPrefix(key, EnvPrefix), existing), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env variables: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the settings each backend requires.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	switch c.Backend {
	case BackendSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path is required for the sqlite backend"))
		}
	case BackendFirestore:
		if c.Firestore.ProjectID == "" {
			errs = append(errs, errors.New("firestore.projectId is required for the firestore backend"))
		}
		if c.Firebase.CredentialsPath == "" {
			errs = append(errs, errors.New("firebase.credentialsPath is required for the firestore backend"))
		}
		if c.Firebase.APIKey == "" {
			errs = append(errs, errors.New("firebase.apiKey is required for the firestore backend"))
		}
	}
	if c.Demo.Seed && c.Backend != BackendMemory {
		errs = append(errs, errors.New("demo.seed requires the memory backend"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

// canonicalizeEnvKey turns FIREBASE_APIKEY into firebase.apiKey by matching
// each underscore-separated segment against the keys already loaded.
func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}
		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (string, map[string]any, bool) {
	if len(current) == 0 {
		return "", nil, false
	}
	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}
		child, _ := value.(map[string]any)
		return key, child, true
	}
	return "", nil, false
}

func normalizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

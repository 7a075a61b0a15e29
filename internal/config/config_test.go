package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, DefaultBaseURL)
	}
	if cfg.API.Timeout != "30s" {
		t.Errorf("API.Timeout = %q, want %q", cfg.API.Timeout, "30s")
	}
	if cfg.Token.Store != TokenStoreFile {
		t.Errorf("Token.Store = %q, want %q", cfg.Token.Store, TokenStoreFile)
	}
	if filepath.Base(cfg.Token.Path) != "session.json" {
		t.Errorf("Token.Path = %q, want a session.json path", cfg.Token.Path)
	}
	if cfg.Cart.Ordering != OrderingSerial {
		t.Errorf("Cart.Ordering = %q, want %q", cfg.Cart.Ordering, OrderingSerial)
	}
	if cfg.Catalog.CacheTTL != "30s" || cfg.Catalog.CacheMaxSize != 500 {
		t.Errorf("Catalog = %+v, want 30s/500", cfg.Catalog)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}
}

func TestConfig_SetDefaults_TokenPathFollowsStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		store string
		want  string
	}{
		{TokenStoreFile, "session.json"},
		{TokenStoreSQLite, "session.db"},
		{TokenStoreMemory, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.store, func(t *testing.T) {
			t.Parallel()
			cfg := Config{Token: TokenConfig{Store: tt.store}}
			cfg.SetDefaults()

			got := cfg.Token.Path
			if tt.want == "" {
				if got != "" {
					t.Errorf("Token.Path = %q, want empty", got)
				}
				return
			}
			if filepath.Base(got) != tt.want {
				t.Errorf("Token.Path = %q, want base %q", got, tt.want)
			}
		})
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		API:     APIConfig{BaseURL: "http://localhost:5000/api", Timeout: "5s"},
		Token:   TokenConfig{Store: TokenStoreSQLite, Path: "/tmp/x.db"},
		Cart:    CartConfig{Ordering: OrderingLastResponseWins},
		Catalog: CatalogConfig{CacheTTL: "0s", CacheMaxSize: 10},
	}
	cfg.SetDefaults()

	if cfg.API.BaseURL != "http://localhost:5000/api" || cfg.API.Timeout != "5s" {
		t.Errorf("API overwritten: %+v", cfg.API)
	}
	if cfg.Token.Path != "/tmp/x.db" {
		t.Errorf("Token.Path = %q, want /tmp/x.db", cfg.Token.Path)
	}
	if cfg.Cart.Ordering != OrderingLastResponseWins {
		t.Errorf("Cart.Ordering = %q", cfg.Cart.Ordering)
	}
	if cfg.Catalog.CacheTTL != "0s" {
		t.Errorf("explicit 0s TTL must be kept, got %q", cfg.Catalog.CacheTTL)
	}
	ttl, err := cfg.CatalogCacheTTL()
	if err != nil || ttl != 0 {
		t.Errorf("CatalogCacheTTL() = %v, %v; want 0, nil", ttl, err)
	}
}

func TestConfig_Durations(t *testing.T) {
	t.Parallel()

	cfg := Config{API: APIConfig{Timeout: "1m"}, Catalog: CatalogConfig{CacheTTL: "bogus"}}
	if d, err := cfg.APITimeout(); err != nil || d != time.Minute {
		t.Errorf("APITimeout() = %v, %v", d, err)
	}
	if _, err := cfg.CatalogCacheTTL(); err == nil {
		t.Error("CatalogCacheTTL() should fail on an invalid duration")
	}
}

func TestConfig_EffectiveLogLevel(t *testing.T) {
	t.Parallel()

	cfg := Config{Log: LogConfig{Level: "warn"}}
	if got := cfg.EffectiveLogLevel(); got != "warn" {
		t.Errorf("EffectiveLogLevel() = %q, want warn", got)
	}
	cfg.DevMode = true
	if got := cfg.EffectiveLogLevel(); got != "debug" {
		t.Errorf("EffectiveLogLevel() in dev mode = %q, want debug", got)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "storefront.yaml")
	content := "api:\n  base_url: http://127.0.0.1:5000/api\ncart:\n  ordering: last-response-wins\ntoken:\n  store: memory\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STOREFRONT_CATALOG_CACHE_TTL", "5s")

	InitViper(cfgPath)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.API.BaseURL != "http://127.0.0.1:5000/api" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Cart.Ordering != OrderingLastResponseWins {
		t.Errorf("Cart.Ordering = %q", cfg.Cart.Ordering)
	}
	if cfg.Token.Store != TokenStoreMemory || cfg.Token.Path != "" {
		t.Errorf("Token = %+v, want memory with no path", cfg.Token)
	}
	if cfg.Catalog.CacheTTL != "5s" {
		t.Errorf("env override ignored: Catalog.CacheTTL = %q", cfg.Catalog.CacheTTL)
	}
	if ConfigFileUsed() != cfgPath {
		t.Errorf("ConfigFileUsed() = %q, want %q", ConfigFileUsed(), cfgPath)
	}
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "storefront.yaml")
	if err := os.WriteFile(cfgPath, []byte("cart:\n  ordering: random\n"), 0644); err != nil {
		t.Fatal(err)
	}

	InitViper(cfgPath)
	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig() should reject an unknown ordering")
	}
	if !strings.Contains(err.Error(), "Cart.Ordering") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "storefront.yaml")
	_ = os.WriteFile(cfgPath, []byte("log:\n  level: debug\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "storefront.yml")
	_ = os.WriteFile(cfgPath, []byte("log:\n  level: debug\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// A file named like the binary, without extension.
	_ = os.WriteFile(filepath.Join(dir, "storefront"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "storefront.yaml")
	ymlPath := filepath.Join(dir, "storefront.yml")
	_ = os.WriteFile(yamlPath, []byte("log:\n  level: info\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("log:\n  level: debug\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultScope holds the values every store inherits.
const DefaultScope = "default"

// Store setting keys.
const (
	KeyProtocol             = "protocol"
	KeyEnvironment          = "environment"
	KeyBaseURL              = "base_url"
	KeyBaseCurrency         = "base_currency"
	KeyMerchantSerialNumber = "merchant_serial_number"
	KeyClientID             = "client_id"
	KeyClientSecret         = "client_secret"
	KeySubscriptionKey      = "subscription_key"
	KeyReturnURL            = "return_url"
	KeyCallbackPrefix       = "callback_prefix"
	KeyFallbackURL          = "fallback_url"
	KeyPaymentDescription   = "payment_description"
	KeySystemName           = "system_name"
	KeyCancellationPolicy   = "cancellation_policy"
	KeyOfflinePartialVoid   = "offline_partial_void"
)

var storeKeys = []string{
	KeyProtocol, KeyEnvironment, KeyBaseURL, KeyBaseCurrency, KeyMerchantSerialNumber,
	KeyClientID, KeyClientSecret, KeySubscriptionKey, KeyReturnURL, KeyCallbackPrefix,
	KeyFallbackURL, KeyPaymentDescription, KeySystemName, KeyCancellationPolicy, KeyOfflinePartialVoid,
}

var environmentURLs = map[string]string{
	"test":       "https://apitest.vipps.no",
	"production": "https://api.vipps.no",
}

type storeSnapshot struct {
	scopes map[string]map[string]string
}

// StoreConfigHolder serves per-scope store settings and reloads stores.yml on change.
type StoreConfigHolder struct {
	current atomic.Value // holds storeSnapshot
}

// NewStoreConfigHolder reads stores.yml from paths. A missing file yields defaults only.
func NewStoreConfigHolder(paths []string, log *zap.Logger) (*StoreConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.stores")

	v := viper.New()
	v.SetConfigName("stores")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	snapshot, err := buildSnapshot(v)
	if err != nil {
		return nil, err
	}
	holder := &StoreConfigHolder{}
	holder.current.Store(snapshot)

	if found {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := buildSnapshot(v)
			if err != nil {
				log.Warn("store config reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("store config reloaded", zap.String("file", e.Name))
		})
	}
	return holder, nil
}

// NewStaticStoreConfig builds a holder from in-memory values, keyed by scope.
func NewStaticStoreConfig(scopes map[string]map[string]string) *StoreConfigHolder {
	snapshot := storeSnapshot{scopes: map[string]map[string]string{}}
	for scope, values := range scopes {
		normalized := map[string]string{}
		for k, val := range values {
			normalized[strings.ToLower(k)] = val
		}
		snapshot.scopes[normalizeScope(scope)] = normalized
	}
	if _, ok := snapshot.scopes[DefaultScope]; !ok {
		snapshot.scopes[DefaultScope] = map[string]string{}
	}
	holder := &StoreConfigHolder{}
	holder.current.Store(snapshot)
	return holder
}

// GetValue returns the scope value for key, falling back to the default scope.
func (h *StoreConfigHolder) GetValue(key, scope string) string {
	snapshot := h.current.Load().(storeSnapshot)
	key = strings.ToLower(strings.TrimSpace(key))
	if values, ok := snapshot.scopes[normalizeScope(scope)]; ok {
		if val, ok := values[key]; ok {
			return val
		}
	}
	return snapshot.scopes[DefaultScope][key]
}

func (h *StoreConfigHolder) GetBool(key, scope string) bool {
	switch strings.ToLower(strings.TrimSpace(h.GetValue(key, scope))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// BaseURL resolves the provider API host for scope.
func (h *StoreConfigHolder) BaseURL(scope string) string {
	if explicit := strings.TrimRight(h.GetValue(KeyBaseURL, scope), "/"); explicit != "" {
		return explicit
	}
	env := strings.ToLower(h.GetValue(KeyEnvironment, scope))
	if u, ok := environmentURLs[env]; ok {
		return u
	}
	return environmentURLs["test"]
}

// Scopes lists the configured scopes, including the default.
func (h *StoreConfigHolder) Scopes() []string {
	snapshot := h.current.Load().(storeSnapshot)
	out := make([]string, 0, len(snapshot.scopes))
	for scope := range snapshot.scopes {
		out = append(out, scope)
	}
	return out
}

func buildSnapshot(v *viper.Viper) (storeSnapshot, error) {
	snapshot := storeSnapshot{scopes: map[string]map[string]string{}}

	defaults := map[string]string{
		KeyProtocol:           "ecom",
		KeyEnvironment:        "test",
		KeyBaseCurrency:       "NOK",
		KeyCancellationPolicy: "automatic",
		KeySystemName:         "walletpay",
	}
	for _, key := range storeKeys {
		if v.IsSet(DefaultScope + "." + key) {
			defaults[key] = v.GetString(DefaultScope + "." + key)
		}
		envKey := "WALLETPAY_" + strings.ToUpper(key)
		if val := strings.TrimSpace(os.Getenv(envKey)); val != "" {
			defaults[key] = val
		}
	}
	snapshot.scopes[DefaultScope] = defaults

	for scope := range v.GetStringMap("scopes") {
		values := map[string]string{}
		for _, key := range storeKeys {
			path := "scopes." + scope + "." + key
			if v.IsSet(path) {
				values[key] = v.GetString(path)
			}
		}
		snapshot.scopes[normalizeScope(scope)] = values
	}

	for scope, values := range snapshot.scopes {
		if policy, ok := values[KeyCancellationPolicy]; ok {
			switch strings.ToLower(policy) {
			case "automatic", "manual":
			default:
				return storeSnapshot{}, fmt.Errorf("scope %s: invalid cancellation_policy %q", scope, policy)
			}
		}
	}
	return snapshot, nil
}

func normalizeScope(scope string) string {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		return DefaultScope
	}
	return scope
}

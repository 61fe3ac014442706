package driven

// ConfigStore provides typed access to persisted CLI configuration.
type ConfigStore interface {
	// Get retrieves a raw configuration value by key, with a boolean
	// reporting whether the key exists.
	Get(key string) (any, bool)

	// GetString returns the string value for key, or "" when the key is
	// missing or holds another type.
	GetString(key string) string

	// GetInt returns the integer value for key, or 0 when the key is
	// missing or holds another type.
	GetInt(key string) int

	// GetBool returns the boolean value for key, or false when the key
	// is missing or holds another type.
	GetBool(key string) bool

	// GetStringSlice returns the string slice for key, or nil when the
	// key is missing or holds another type.
	GetStringSlice(key string) []string

	// Set stores a value and persists it immediately.
	Set(key string, value any) error

	// Save persists the current configuration to storage.
	Save() error

	// Load reads configuration from storage.
	Load() error

	// Path returns the configuration file path.
	Path() string
}

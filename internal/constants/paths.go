package constants

// DefaultEnvPath is the default path to the .env file
const DefaultEnvPath = "./.env"

// DefaultConfigPath is the default path to the config.toml file
const DefaultConfigPath = "./config.toml"

// ConfigPathEnv overrides DefaultConfigPath when --config is not given.
const ConfigPathEnv = "NEXBOTD_CONFIG"

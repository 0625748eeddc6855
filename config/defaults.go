package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/chatdesk",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		DefaultProvider: "ollama",
		DefaultModel:    "llama3.1:latest",
		SecurityMethod:  SecurityPlainText,
		Providers: []ProviderConfig{
			{ID: "ollama", Name: "Ollama", Enabled: true, BaseURL: "http://localhost:11434"},
			{ID: "openai", Name: "OpenAI", BaseURL: "https://api.openai.com/v1"},
			{ID: "openrouter", Name: "OpenRouter", BaseURL: "https://openrouter.ai/api/v1"},
			{ID: "anthropic", Name: "Anthropic", BaseURL: "https://api.anthropic.com"},
		},
		Streaming: StreamingConfig{
			FlushIntervalMS:     50,
			MaxMessagesInMemory: 100,
			HistoryLimit:        20,
		},
		Search: SearchConfig{
			MaxURLs:             3,
			FetchTimeoutSeconds: 10,
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# chatdesk system configuration
# Location: ~/.config/chatdesk/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations, credentials and user config are stored
data_directory = "~/.local/share/chatdesk"
`
}

func GenerateUserConfigTemplate() string {
	return `# chatdesk user configuration
# Location: <data_directory>/config.toml

default_provider = "ollama"
default_model = "llama3.1:latest"

# Prepended to every conversation (optional)
system_prompt = ""

# "plaintext" (credentials.toml) or "ssh_key" (credentials.enc)
security_method = "plaintext"
# ssh_key_path = "~/.ssh/id_ed25519"

[[providers]]
id = "ollama"
name = "Ollama"
enabled = true
base_url = "http://localhost:11434"

[[providers]]
id = "openai"
name = "OpenAI"
enabled = false
base_url = "https://api.openai.com/v1"

[[providers]]
id = "openrouter"
name = "OpenRouter"
enabled = false
base_url = "https://openrouter.ai/api/v1"

[[providers]]
id = "anthropic"
name = "Anthropic"
enabled = false
base_url = "https://api.anthropic.com"

[streaming]
# How often streamed text becomes visible
flush_interval_ms = 50
# Persisted messages kept in memory per conversation
max_messages_in_memory = 100
# Previous messages sent to the model as context
history_limit = 20

[search]
enabled = false
# JSON search API returning DuckDuckGo instant-answer shaped results (optional)
# endpoint = "https://api.duckduckgo.com/"
max_urls = 3
fetch_timeout_seconds = 10

# MCP tool servers, launched over stdio
# [[tools]]
# id = "filesystem"
# command = "npx"
# args = ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
`
}

package config

import (
	"fmt"
	"os"
)

// Template returns a commented config file matching DefaultConfig.
func Template() string {
	return defaultTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `# native selects the handle implementation: "memory" or "liblaunch" (darwin only)
native = "memory"

[transport]
network = "unix"
address = "/tmp/launchkit.sock"
connect_timeout = "5s"
handshake_timeout = "5s"
read_timeout = "15s"
write_timeout = "15s"
max_payload_bytes = 8388608
max_auth_bytes = 65536
security_mode = "development"
# shared token sent in every request frame; empty disables the check
auth_token = ""

[transport.tls]
enabled = false
mutual = false
insecure_skip_verify = false
cert_file = ""
key_file = ""
ca_file = ""
server_name = ""

[log]
level = "info"
timestamp = true
no_color = false

[admin]
listen = "127.0.0.1:7010"
# empty allows http://localhost:3000 only
cors_origins = []
`

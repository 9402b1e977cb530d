package constant

import "os"

// <NodeDir>/                    (e.g., /home/user/.psession)
// └── config/
//	└── psession_config.json
// └── databases/
//	└── session_bridge.db

const (
	NodeDir = ".psession"

	ConfigSubdir   = "config"
	ConfigFileName = "psession_config.json"

	DatabasesSubdir = "databases"
	DatabaseFile    = "session_bridge.db"

	// EnvPrefix is the prefix for environment overrides (PSESSION_ROOT_KEY, ...).
	EnvPrefix = "PSESSION"
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir

// KV keys persisted per owner.
const (
	KVPreferredWallet  = "preferred_wallet"
	KVLastSessionKeyID = "last_session_key_id"
)

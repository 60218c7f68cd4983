package config

import (
	"encoding/hex"
	"fmt"
)

type SyncConfig interface {
	GetSyncSchedule() string
	GetHistoryCapacity() int
	GetCredentialKey() ([]byte, error)
}

func (v *Values) GetSyncSchedule() string {
	return v.SyncSchedule
}

func (v *Values) GetHistoryCapacity() int {
	return v.HistoryCapacity
}

// GetCredentialKey decodes the hex sealing key. An empty setting means the
// credential is stored unsealed and returns nil.
func (v *Values) GetCredentialKey() ([]byte, error) {
	if v.CredentialKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(v.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("credential key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credential key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

package identity

import (
	"fmt"

	"github.com/benmeehan/garden-agent/pkg/file"
)

// Identity holds the device's unique identifier.
type Identity struct {
	ID   string `json:"device_id,omitempty"`
	Name string `json:"device_name,omitempty"`
}

// DeviceInfoInterface defines methods for reading the device identity.
type DeviceInfoInterface interface {
	LoadDeviceInfo() error
	GetDeviceID() string
	GetDeviceIdentity() *Identity
}

// DeviceInfo resolves the device identity from an optional file, falling
// back to a fixed identifier.
type DeviceInfo struct {
	DeviceInfoFile string
	Identity       Identity
	defaultID      string
	fileOps        file.FileOperations
}

// NewDeviceInfo initializes a new DeviceInfo instance. filePath may be empty.
func NewDeviceInfo(filePath, defaultID string, fileOps file.FileOperations) DeviceInfoInterface {
	return &DeviceInfo{
		DeviceInfoFile: filePath,
		defaultID:      defaultID,
		fileOps:        fileOps,
		Identity:       Identity{ID: defaultID},
	}
}

// LoadDeviceInfo reads the identity file when one is configured and present.
// An identity without an ID keeps the default.
func (d *DeviceInfo) LoadDeviceInfo() error {
	d.Identity = Identity{ID: d.defaultID}
	if d.DeviceInfoFile == "" {
		return nil
	}

	exists, err := d.fileOps.IsFileExists(d.DeviceInfoFile)
	if err != nil {
		return fmt.Errorf("failed to stat identity file: %w", err)
	}
	if !exists {
		return nil
	}

	var loaded Identity
	if err := d.fileOps.ReadJsonFile(d.DeviceInfoFile, &loaded); err != nil {
		return fmt.Errorf("failed to read identity file: %w", err)
	}
	if loaded.ID != "" {
		d.Identity = loaded
	} else {
		d.Identity.Name = loaded.Name
	}
	return nil
}

// GetDeviceIdentity returns the current device Identity.
func (d *DeviceInfo) GetDeviceIdentity() *Identity {
	return &d.Identity
}

// GetDeviceID returns the current device ID.
func (d *DeviceInfo) GetDeviceID() string {
	return d.Identity.ID
}

// Package wifi defines the narrow callback contract the engine uses to
// reach the Wi-Fi provisioning collaborator (spec §1's "out of scope"
// list; spec §9's cyclic-reference guidance: "the Engine references
// collaborators by narrow callback types; collaborators do not reference
// the Engine"). There is no real provisioning logic here — only the
// shapes the dispatcher's Get/Save/ScanWifi commands need to call
// through.
package wifi

// Credentials is the persisted Wi-Fi configuration, spec §6's
// wifi_ssid/wifi_password/wifi_ap/wifi_max_power/Hostname namespace.
type Credentials struct {
	SSID       string
	Password   string
	AccessPoint bool
	MaxPower   int
	Hostname   string
}

// Network is one scan result.
type Network struct {
	SSID    string
	RSSI    int
	Secured bool
}

// Getter returns the currently configured credentials.
type Getter func() (Credentials, error)

// Saver persists new credentials and triggers a reconnect/AP-fallback
// cycle in the collaborator.
type Saver func(Credentials) error

// Scanner lists nearby access points.
type Scanner func() ([]Network, error)

// Collaborator bundles the three callbacks the dispatcher needs; the
// engine holds one of these, never a reference to whatever object
// implements Wi-Fi management.
type Collaborator struct {
	Get  Getter
	Save Saver
	Scan Scanner
}

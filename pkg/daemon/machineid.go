package daemon

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const deviceIDLen = 12

// DeviceID derives a stable device name from the machine ID. The ID is
// hashed with the application name so the raw machine ID isn't exposed.
func DeviceID() string {
	id, err := machineid.ProtectedID("espif")
	if err != nil {
		glog.Warningf("machine ID unavailable: %v", err)
		if id, err = os.Hostname(); err != nil {
			return "espif"
		}
		return id
	}
	if len(id) > deviceIDLen {
		id = id[:deviceIDLen]
	}
	return id
}

//go:build linux

package hal

import (
	"net"
	"os"
	"strconv"
	"strings"
)

// arphrdCAN is ARPHRD_CAN from <linux/if_arp.h>.
const arphrdCAN = 280

// enumerateLinuxCAN lists every network device whose ARPHRD type equals
// ARPHRD_CAN that is not a virtual (vcanN) interface, per spec.md §4.B.
// The kernel does not expose ARPHRD type through the net package, so
// it is read from /sys/class/net/<if>/type, matching how sysfs-based
// tooling (e.g. `ip -d link`) determines link types.
func enumerateLinuxCAN() []Info {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []Info
	for _, iface := range ifaces {
		if strings.HasPrefix(iface.Name, "vcan") {
			continue
		}
		if !isCANDevice(iface.Name) {
			continue
		}
		out = append(out, Info{
			ID:        iface.Name,
			Name:      "SocketCAN " + iface.Name,
			Type:      "socketcan",
			Available: true,
		})
	}
	return out
}

func isCANDevice(name string) bool {
	raw, err := os.ReadFile("/sys/class/net/" + name + "/type")
	if err != nil {
		return false
	}
	t, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return false
	}
	return t == arphrdCAN
}

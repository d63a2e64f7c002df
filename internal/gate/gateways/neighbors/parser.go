package neighbors

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"time"

	"github.com/haukened/rr-gate/internal/gate/common/log"
	"github.com/haukened/rr-gate/internal/gate/common/utils"
	"github.com/haukened/rr-gate/internal/gate/domain"
)

// activeStates are the neighbor states that mark a live, usable mapping.
// STALE, FAILED, and INCOMPLETE entries are ignored: they describe hosts the
// kernel can no longer vouch for.
var activeStates = map[string]struct{}{
	"REACHABLE": {},
	"DELAY":     {},
	"PROBE":     {},
	"PERMANENT": {},
}

// ParseTable parses newline-delimited neighbor-table output into device
// records. Two row shapes are accepted:
//
//	ip neigh style: "192.168.4.12 dev wlan0 lladdr aa:bb:cc:dd:ee:ff REACHABLE"
//	plain triple:   "192.168.4.12 aa:bb:cc:dd:ee:ff REACHABLE"
//
// Rows that are malformed, stale, or carry an all-zero MAC are skipped, not
// fatal.
func ParseTable(out []byte, seen time.Time, logger log.Logger) []domain.Device {
	var devices []domain.Device

	scanner := bufio.NewScanner(bytes.NewReader(out))
	line := 0
	for scanner.Scan() {
		line++
		ip, mac, state, ok := parseRow(scanner.Text())
		if !ok {
			continue
		}
		if _, active := activeStates[state]; !active {
			continue
		}

		dev, err := domain.NewDevice(mac, ip, "", domain.CategoryUnknown, seen)
		if err != nil {
			logger.Debug(map[string]any{"line": line, "error": err.Error()}, "Skipping malformed neighbor row")
			continue
		}
		devices = append(devices, dev)
	}
	return devices
}

// parseRow extracts {ip, mac, state} from one neighbor-table row.
func parseRow(row string) (ip, mac, state string, ok bool) {
	fields := strings.Fields(row)
	if len(fields) < 3 {
		return "", "", "", false
	}

	ip = fields[0]
	if net.ParseIP(ip) == nil {
		return "", "", "", false
	}

	// ip-neigh style rows name the MAC after an "lladdr" marker; the plain
	// triple carries it in the second column.
	for i := 1; i < len(fields)-1; i++ {
		if fields[i] == "lladdr" {
			mac = fields[i+1]
			break
		}
	}
	if mac == "" {
		mac = fields[1]
	}
	mac = utils.CanonicalMAC(mac)
	if _, err := net.ParseMAC(mac); err != nil {
		return "", "", "", false
	}
	if mac == "00:00:00:00:00:00" {
		return "", "", "", false
	}

	state = strings.ToUpper(fields[len(fields)-1])
	return ip, mac, state, true
}

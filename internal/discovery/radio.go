package discovery

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// Radio is the record spec.md §3 describes: a stable identifier plus
// the metadata carried by its discovery beacon and a last-seen
// timestamp used to drive the TTL eviction in §4.7.
type Radio struct {
	Serial       string
	Model        string
	Version      string
	IP           net.IP
	Port         int
	Capabilities []string
	LastSeen     time.Time
}

// parseBeacon decodes a discovery beacon payload ("model=FLEX-6600
// serial=0123-4567 ip=10.0.0.5 port=4992 capabilities=TX,MultiFlex"
// per spec.md §8 scenario 1) into a Radio record. serial is mandatory;
// everything else is best-effort, matching the router's "malformed
// tokens are skipped, never fatal" posture.
func parseBeacon(payload []byte) (Radio, bool) {
	kv := make(map[string]string)
	for _, tok := range strings.Fields(string(payload)) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			continue
		}
		kv[k] = v
	}

	serial, ok := kv["serial"]
	if !ok || serial == "" {
		return Radio{}, false
	}

	r := Radio{
		Serial:  serial,
		Model:   kv["model"],
		Version: kv["version"],
		IP:      net.ParseIP(kv["ip"]),
	}
	if portStr, ok := kv["port"]; ok {
		if port, err := strconv.Atoi(portStr); err == nil {
			r.Port = port
		}
	}
	if caps, ok := kv["capabilities"]; ok && caps != "" {
		r.Capabilities = strings.Split(caps, ",")
	}
	return r, true
}

package status

import (
	"log"

	"github.com/flexradio/flex-sdr/internal/objgraph"
)

// USBCableHandler applies "usb_cable <serial> key=value..." status
// lines. The cable variant is a tagged union (spec §9); the handler
// determines the variant from the "cable_type" key and then routes
// remaining keys into the matching variant config, creating it on first
// appearance.
type USBCableHandler struct {
	USBCables *objgraph.Collection[string, objgraph.USBCable]
}

func variantFromString(s string) (objgraph.USBCableVariant, bool) {
	switch s {
	case "cat":
		return objgraph.USBCableCAT, true
	case "bit":
		return objgraph.USBCableBIT, true
	case "bcd":
		return objgraph.USBCableBCD, true
	case "ldpa":
		return objgraph.USBCableLDPA, true
	case "passthrough":
		return objgraph.USBCablePassthrough, true
	default:
		return 0, false
	}
}

func (h USBCableHandler) Apply(line Line) {
	serial := line.Selector
	if serial == "" {
		log.Printf("[status] usb_cable: empty selector")
		return
	}
	if line.Removed {
		h.USBCables.Remove(serial)
		return
	}

	h.USBCables.Mutate(serial, func(cur objgraph.USBCable, existed bool) (objgraph.USBCable, []string) {
		if !existed {
			cur = objgraph.USBCable{Header: objgraph.USBCableHeader{Serial: serial}}
		}
		var changed []string
		for _, f := range line.Fields {
			switch f.Key {
			case "name":
				setIfChanged(&changed, f.Key, &cur.Header.Name, f.Value)
			case "enabled":
				if on, ok := ParseBool(f.Value); ok {
					setIfChanged(&changed, f.Key, &cur.Header.Enabled, on)
				}
			case "cable_type":
				if v, ok := variantFromString(f.Value); ok {
					// Only reset the variant config on an actual variant
					// change: ensureVariantConfig zeroes every sub-config,
					// so calling it unconditionally on every re-applied
					// line would make every nested field look "changed"
					// even when the line is a byte-for-byte repeat.
					if cur.Variant != v || !hasVariantConfig(cur) {
						cur.Variant = v
						ensureVariantConfig(&cur)
						changed = append(changed, f.Key)
					}
				} else {
					log.Printf("[status] usb_cable %s: unknown cable_type %q, ignored", serial, f.Value)
				}
			case "baud_rate":
				if cur.CAT != nil {
					if v, ok := ParseInt(f.Value); ok {
						setIfChanged(&changed, f.Key, &cur.CAT.BaudRate, v)
					}
				}
			case "rts_state":
				if cur.CAT != nil {
					if on, ok := ParseBool(f.Value); ok {
						setIfChanged(&changed, f.Key, &cur.CAT.RTSState, on)
					}
				}
			case "dtr_state":
				if cur.CAT != nil {
					if on, ok := ParseBool(f.Value); ok {
						setIfChanged(&changed, f.Key, &cur.CAT.DTRState, on)
					}
				}
			case "band":
				if cur.CAT != nil {
					setIfChanged(&changed, f.Key, &cur.CAT.Band, f.Value)
				}
			case "output_bit":
				if cur.BIT != nil {
					if v, ok := ParseInt(f.Value); ok {
						setIfChanged(&changed, f.Key, &cur.BIT.OutputBitNumber, v)
					}
				}
			case "active_low":
				if cur.BIT != nil {
					if on, ok := ParseBool(f.Value); ok {
						setIfChanged(&changed, f.Key, &cur.BIT.ActiveLow, on)
					}
				}
			case "lowest_bcd_bit":
				if cur.BCD != nil {
					if v, ok := ParseInt(f.Value); ok {
						setIfChanged(&changed, f.Key, &cur.BCD.LowestBCDBit, v)
					}
				}
			case "low_drive_threshold":
				if cur.LDPA != nil {
					if v, ok := ParseFloat(f.Value); ok {
						setIfChanged(&changed, f.Key, &cur.LDPA.LowDriveThresholdDBM, v)
					}
				}
			default:
				log.Printf("[status] usb_cable %s: unknown key %q, ignored", serial, f.Key)
			}
		}
		return cur, changed
	})
}

// hasVariantConfig reports whether cur already carries an allocated
// config struct matching its own Variant, so a repeated "cable_type="
// token for the same variant is recognized as a no-op rather than
// triggering another allocate-and-zero pass.
func hasVariantConfig(cur objgraph.USBCable) bool {
	switch cur.Variant {
	case objgraph.USBCableCAT:
		return cur.CAT != nil
	case objgraph.USBCableBIT:
		return cur.BIT != nil
	case objgraph.USBCableBCD:
		return cur.BCD != nil
	case objgraph.USBCableLDPA:
		return cur.LDPA != nil
	case objgraph.USBCablePassthrough:
		return cur.Passthrough != nil
	default:
		return false
	}
}

// ensureVariantConfig allocates the config struct matching cur.Variant,
// clearing any stale config from a previous (impossible in practice, but
// defensively handled) variant.
func ensureVariantConfig(cur *objgraph.USBCable) {
	cur.CAT, cur.BIT, cur.BCD, cur.LDPA, cur.Passthrough = nil, nil, nil, nil, nil
	switch cur.Variant {
	case objgraph.USBCableCAT:
		cur.CAT = &objgraph.USBCableCATConfig{}
	case objgraph.USBCableBIT:
		cur.BIT = &objgraph.USBCableBITConfig{}
	case objgraph.USBCableBCD:
		cur.BCD = &objgraph.USBCableBCDConfig{}
	case objgraph.USBCableLDPA:
		cur.LDPA = &objgraph.USBCableLDPAConfig{}
	case objgraph.USBCablePassthrough:
		cur.Passthrough = &struct{}{}
	}
}

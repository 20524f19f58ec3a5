package incident

import (
	"strings"
	"time"
)

// TimestampLayout is the canonical timestamp text stored in date columns.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in the canonical UTC layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Parts-request lifecycle labels, in forward order.
const (
	RequestPending     = "Pending"
	RequestInGestione  = "In gestione"
	RequestDisponibile = "Disponibile"
	RequestEvasione    = "Evasione"
)

var requestSequence = []string{RequestPending, RequestInGestione, RequestDisponibile, RequestEvasione}

// RequestRank returns the position of state in the lifecycle, or -1 when the
// state is unset or unrecognized.
func RequestRank(state string) int {
	s := strings.TrimSpace(state)
	for i, label := range requestSequence {
		if strings.EqualFold(s, label) {
			return i
		}
	}
	return -1
}

// AdvanceRequest moves the lifecycle forward one step. Unset states start at
// Pending; the terminal state stays put.
func AdvanceRequest(state string) string {
	rank := RequestRank(state)
	if rank < 0 {
		return RequestPending
	}
	if rank == len(requestSequence)-1 {
		return requestSequence[rank]
	}
	return requestSequence[rank+1]
}

const partsDelimiter = ";"

// EncodeParts joins part names into the stored parti_richieste text.
func EncodeParts(parts []string) string {
	return strings.Join(cleanParts(parts), partsDelimiter)
}

// DecodeParts splits stored parti_richieste text back into part names.
func DecodeParts(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return cleanParts(strings.Split(raw, partsDelimiter))
}

func cleanParts(parts []string) []string {
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// PartsRequest is the parts/device request attached to an incident.
// Exactly one of {no request, parts, device} holds at a time.
type PartsRequest struct {
	Parts       []string
	Device      bool
	RequestedAt string
	State       string
}

// PartsRequestOf extracts the request fields from a stored incident.
func PartsRequestOf(inc Incident) PartsRequest {
	req := PartsRequest{
		Parts:       DecodeParts(Deref(inc.PartiRichieste)),
		RequestedAt: Deref(inc.DataRichiestaParti),
		State:       Deref(inc.StatoRichiesta),
	}
	if inc.RichiestaApparato != nil {
		req.Device = *inc.RichiestaApparato
	}
	return req
}

// Active reports whether a request is outstanding.
func (p PartsRequest) Active() bool {
	return p.Device || len(p.Parts) > 0
}

// SelectParts replaces the requested parts. A non-empty selection clears the
// device flag.
func (p *PartsRequest) SelectParts(parts []string, now time.Time) {
	p.Parts = cleanParts(parts)
	if len(p.Parts) > 0 {
		p.Device = false
	}
	p.stamp(now)
}

// TogglePart adds or removes one part.
func (p *PartsRequest) TogglePart(part string, now time.Time) {
	part = strings.TrimSpace(part)
	if part == "" {
		return
	}
	next := make([]string, 0, len(p.Parts)+1)
	found := false
	for _, existing := range p.Parts {
		if existing == part {
			found = true
			continue
		}
		next = append(next, existing)
	}
	if !found {
		next = append(next, part)
	}
	p.SelectParts(next, now)
}

// SelectDevice sets the whole-device flag. Setting it clears all parts.
func (p *PartsRequest) SelectDevice(device bool, now time.Time) {
	p.Device = device
	if device {
		p.Parts = nil
	}
	p.stamp(now)
}

// Advance moves the lifecycle state one step forward.
func (p *PartsRequest) Advance() {
	p.State = AdvanceRequest(p.State)
}

// data_richiesta_parti records the first activation and is never cleared.
func (p *PartsRequest) stamp(now time.Time) {
	if !p.Active() || p.RequestedAt != "" {
		return
	}
	p.RequestedAt = FormatTimestamp(now)
	if RequestRank(p.State) < 0 {
		p.State = RequestPending
	}
}

// Patch returns the columns owned by the parts request.
func (p PartsRequest) Patch() Row {
	row := Row{
		FieldPartiRichieste:    nil,
		FieldRichiestaApparato: p.Device,
	}
	if len(p.Parts) > 0 {
		row[FieldPartiRichieste] = EncodeParts(p.Parts)
	}
	if p.RequestedAt != "" {
		row[FieldDataRichiestaParti] = p.RequestedAt
	}
	if p.State != "" {
		row[FieldStatoRichiesta] = p.State
	}
	return row
}

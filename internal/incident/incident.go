// Package incident holds the canonical incident record shared by the import
// pipeline, the record store and the reporting layer.
package incident

import (
	"sort"
	"strings"
)

// Canonical column names. These are the wire contract between the normalizer
// and the store.
const (
	FieldNumero                   = "numero"
	FieldStato                    = "stato"
	FieldRegione                  = "regione"
	FieldProvincia                = "provincia"
	FieldCitta                    = "citta"
	FieldFornitore                = "fornitore"
	FieldDataApertura             = "data_apertura"
	FieldDataChiusura             = "data_chiusura"
	FieldDataEsecuzione           = "data_esecuzione"
	FieldDataAggiornamento        = "data_aggiornamento"
	FieldDataUltimaRiassegnazione = "data_ultima_riassegnazione"
	FieldPianificazione           = "pianificazione"
	FieldDataRichiestaParti       = "data_richiesta_parti"
	FieldViolazioneAvvenuta       = "violazione_avvenuta"
	FieldOraViolazione            = "ora_violazione"
	FieldInSLA                    = "in_sla"
	FieldServizioHD               = "servizio_hd"
	FieldClasse                   = "classe"
	FieldDurata                   = "durata"
	FieldItem                     = "item"
	FieldAsset                    = "asset"
	FieldTagAsset                 = "tag_asset"
	FieldSerialNumber             = "serial_number"
	FieldTask                     = "task"
	FieldPartiRichieste           = "parti_richieste"
	FieldRichiestaApparato        = "richiesta_apparato"
	FieldStatoRichiesta           = "stato_richiesta"
	FieldGruppoAssegnazione       = "gruppo_assegnazione"
	FieldDescrizione              = "descrizione"
	FieldNoteLaser                = "note_laser"
	FieldUpdatedAt                = "updated_at"
)

// Columns lists every writable incident column in storage order.
var Columns = []string{
	FieldNumero, FieldStato, FieldRegione, FieldProvincia, FieldCitta, FieldFornitore,
	FieldDataApertura, FieldDataChiusura, FieldDataEsecuzione, FieldDataAggiornamento,
	FieldDataUltimaRiassegnazione, FieldPianificazione, FieldDataRichiestaParti,
	FieldViolazioneAvvenuta, FieldOraViolazione, FieldInSLA, FieldServizioHD, FieldClasse,
	FieldDurata, FieldItem, FieldAsset, FieldTagAsset, FieldSerialNumber, FieldTask,
	FieldPartiRichieste, FieldRichiestaApparato, FieldStatoRichiesta, FieldGruppoAssegnazione,
	FieldDescrizione, FieldNoteLaser, FieldUpdatedAt,
}

// DateFields are the columns holding canonical timestamps.
var DateFields = []string{
	FieldDataApertura, FieldDataChiusura, FieldDataEsecuzione, FieldDataAggiornamento,
	FieldDataUltimaRiassegnazione, FieldPianificazione, FieldDataRichiestaParti, FieldOraViolazione,
}

var knownColumns = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Columns))
	for _, c := range Columns {
		m[c] = struct{}{}
	}
	return m
}()

// IsColumn reports whether name is a canonical incident column.
func IsColumn(name string) bool {
	_, ok := knownColumns[name]
	return ok
}

// Row is a partial incident keyed by canonical column. Only the keys present
// are written; a nil value writes NULL. Values are string, bool, int64 or nil.
type Row map[string]any

// Numero returns the trimmed ticket number, or "" when absent.
func (r Row) Numero() string {
	v, ok := r[FieldNumero].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// Keys returns the row's columns sorted, with numero first.
func (r Row) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if k == FieldNumero {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if _, ok := r[FieldNumero]; ok {
		keys = append([]string{FieldNumero}, keys...)
	}
	return keys
}

// Incident is the stored read model.
type Incident struct {
	Numero                   string  `json:"numero"`
	Stato                    *string `json:"stato,omitempty"`
	Regione                  *string `json:"regione,omitempty"`
	Provincia                *string `json:"provincia,omitempty"`
	Citta                    *string `json:"citta,omitempty"`
	Fornitore                *string `json:"fornitore,omitempty"`
	DataApertura             *string `json:"data_apertura,omitempty"`
	DataChiusura             *string `json:"data_chiusura,omitempty"`
	DataEsecuzione           *string `json:"data_esecuzione,omitempty"`
	DataAggiornamento        *string `json:"data_aggiornamento,omitempty"`
	DataUltimaRiassegnazione *string `json:"data_ultima_riassegnazione,omitempty"`
	Pianificazione           *string `json:"pianificazione,omitempty"`
	DataRichiestaParti       *string `json:"data_richiesta_parti,omitempty"`
	ViolazioneAvvenuta       *bool   `json:"violazione_avvenuta,omitempty"`
	OraViolazione            *string `json:"ora_violazione,omitempty"`
	InSLA                    *string `json:"in_sla,omitempty"`
	ServizioHD               *string `json:"servizio_hd,omitempty"`
	Classe                   *string `json:"classe,omitempty"`
	Durata                   *int64  `json:"durata,omitempty"`
	Item                     *string `json:"item,omitempty"`
	Asset                    *string `json:"asset,omitempty"`
	TagAsset                 *string `json:"tag_asset,omitempty"`
	SerialNumber             *string `json:"serial_number,omitempty"`
	Task                     *string `json:"task,omitempty"`
	PartiRichieste           *string `json:"parti_richieste,omitempty"`
	RichiestaApparato        *bool   `json:"richiesta_apparato,omitempty"`
	StatoRichiesta           *string `json:"stato_richiesta,omitempty"`
	GruppoAssegnazione       *string `json:"gruppo_assegnazione,omitempty"`
	Descrizione              *string `json:"descrizione,omitempty"`
	NoteLaser                *string `json:"note_laser,omitempty"`
	UpdatedAt                *string `json:"updated_at,omitempty"`
}

// ScanTargets returns pointers to the incident's fields in Columns order.
func (i *Incident) ScanTargets() []any {
	return []any{
		&i.Numero, &i.Stato, &i.Regione, &i.Provincia, &i.Citta, &i.Fornitore,
		&i.DataApertura, &i.DataChiusura, &i.DataEsecuzione, &i.DataAggiornamento,
		&i.DataUltimaRiassegnazione, &i.Pianificazione, &i.DataRichiestaParti,
		&i.ViolazioneAvvenuta, &i.OraViolazione, &i.InSLA, &i.ServizioHD, &i.Classe,
		&i.Durata, &i.Item, &i.Asset, &i.TagAsset, &i.SerialNumber, &i.Task,
		&i.PartiRichieste, &i.RichiestaApparato, &i.StatoRichiesta, &i.GruppoAssegnazione,
		&i.Descrizione, &i.NoteLaser, &i.UpdatedAt,
	}
}

// Status labels seen across feeds. Feeds disagree on casing and language, so
// labels are compared case-insensitively as a set.
const (
	StatusAperto        = "Aperto"
	StatusInCorso       = "In Corso"
	StatusInLavorazione = "In Lavorazione"
	StatusSospeso       = "Sospeso"
	StatusSuspended     = "Suspended"
	StatusChiuso        = "Chiuso"
	StatusClosed        = "Closed"
	StatusRiassegnato   = "Riassegnato"
)

// ClosedStatuses are the labels treated as closed for backlog and ghost purposes.
var ClosedStatuses = []string{StatusChiuso, StatusClosed, StatusRiassegnato}

// IsClosedStatus reports whether the label is in the closed set.
func IsClosedStatus(stato string) bool {
	s := strings.TrimSpace(stato)
	for _, closed := range ClosedStatuses {
		if strings.EqualFold(s, closed) {
			return true
		}
	}
	return false
}

// IsSuspendedStatus reports whether the label marks a suspended ticket.
func IsSuspendedStatus(stato string) bool {
	s := strings.TrimSpace(stato)
	return strings.EqualFold(s, StatusSospeso) || strings.EqualFold(s, StatusSuspended)
}

// IsOpen reports whether the incident carries a status outside the closed set.
// Incidents with no status at all are not considered open.
func (i Incident) IsOpen() bool {
	if i.Stato == nil || strings.TrimSpace(*i.Stato) == "" {
		return false
	}
	return !IsClosedStatus(*i.Stato)
}

// LockerTag marks the locker sub-fleet within gruppo_assegnazione.
const LockerTag = "LOCKER"

// IsLocker reports whether the incident belongs to the locker sub-fleet.
func (i Incident) IsLocker() bool {
	if i.GruppoAssegnazione == nil {
		return false
	}
	return strings.Contains(strings.ToUpper(*i.GruppoAssegnazione), LockerTag)
}

// Deref returns the pointed-to string or "".
func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

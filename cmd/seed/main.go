package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/fieldops-platform/apps/api/internal/config"
	"github.com/fieldops-platform/apps/api/internal/db"
	"github.com/fieldops-platform/apps/api/internal/incident"
)

var seedRegions = []struct {
	regione   string
	provincia string
	citta     string
	fornitore string
}{
	{"Lombardia", "MI", "Milano", "Nord Service Srl"},
	{"Lazio", "RM", "Roma", "Centro Tecnica Spa"},
	{"Campania", "NA", "Napoli", "Sud Field Srl"},
	{"Piemonte", "TO", "Torino", "Nord Service Srl"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	days, err := strconv.Atoi(envOrDefault("SEED_SNAPSHOT_DAYS", "30"))
	if err != nil || days < 1 {
		log.Fatalf("SEED_SNAPSHOT_DAYS must be a positive integer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	st, err := db.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	mappings := make([]incident.SupplierMapping, 0, len(seedRegions))
	for _, r := range seedRegions {
		mappings = append(mappings, incident.SupplierMapping{Provincia: r.provincia, Fornitore: r.fornitore})
	}
	if err := st.UpsertSuppliers(ctx, mappings); err != nil {
		log.Fatalf("upsert suppliers: %v", err)
	}

	now := time.Now().UTC()
	var rows []incident.Row
	for i, r := range seedRegions {
		for n := 0; n < 3; n++ {
			opened := now.AddDate(0, 0, -(n*7 + i + 1))
			stato := incident.StatusAperto
			row := incident.Row{
				incident.FieldNumero:             fmt.Sprintf("SEED%03d", i*10+n),
				incident.FieldRegione:            r.regione,
				incident.FieldProvincia:          r.provincia,
				incident.FieldCitta:              r.citta,
				incident.FieldFornitore:          r.fornitore,
				incident.FieldDataApertura:       incident.FormatTimestamp(opened),
				incident.FieldViolazioneAvvenuta: n == 2,
				incident.FieldServizioHD:         "HD",
				incident.FieldDataChiusura:       nil,
				incident.FieldUpdatedAt:          incident.FormatTimestamp(now),
			}
			if n == 1 {
				stato = incident.StatusChiuso
				row[incident.FieldDataChiusura] = incident.FormatTimestamp(opened.AddDate(0, 0, 2))
			}
			row[incident.FieldStato] = stato
			rows = append(rows, row)
		}
	}
	if err := st.UpsertIncidents(ctx, rows); err != nil {
		log.Fatalf("upsert incidents: %v", err)
	}

	var snapshots []incident.DailySnapshot
	for d := days - 1; d >= 0; d-- {
		day := now.AddDate(0, 0, -d).Format(incident.DateLayout)
		for i, r := range seedRegions {
			backlog := int64(40 + i*5 + d%7)
			snapshots = append(snapshots, incident.DailySnapshot{
				Data:             day,
				Regione:          r.regione,
				Backlog:          backlog,
				Sospesi:          int64(d % 4),
				ViolazioniAttive: int64((d + i) % 6),
				Aperti:           int64(3 + d%5),
				Chiusi:           int64(2 + (d+i)%5),
			})
		}
	}
	if err := st.UpsertSnapshots(ctx, snapshots); err != nil {
		log.Fatalf("upsert snapshots: %v", err)
	}

	fmt.Printf("Seed completed. Store=%s, suppliers=%d, incidents=%d, snapshots=%d\n",
		st.Dialect(), len(mappings), len(rows), len(snapshots))
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

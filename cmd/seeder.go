package cmd

import (
	"context"
	"fmt"
	"log"

	recurringDatamodel "github.com/frahmantamala/fleet-recurring/internal/core/datamodel/recurring"
	"github.com/frahmantamala/fleet-recurring/internal/core/scope"
	"github.com/frahmantamala/fleet-recurring/internal/recurring"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const seedOwner = "franchise-demo"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with ledger categories and a few recurring templates for development.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		a, err := newApp(cfg)
		if err != nil {
			log.Fatalf("failed to init app: %v", err)
		}
		defer a.close()

		ctx := context.Background()

		if clearData {
			if err := clearRecurringData(a.db); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared recurring templates, history and generated entries")
		}

		categories := []struct {
			Name string
			Kind string
			Desc string
		}{
			{"lease", "expense", "vehicle lease and financing"},
			{"insurance", "expense", "fleet insurance premiums"},
			{"rent", "expense", "garage and depot rent"},
			{"fuel_card", "expense", "fuel card settlements"},
			{"franchise_fee", "income", "franchise fees collected"},
		}

		ids := make(map[string]string, len(categories))
		for _, c := range categories {
			cat, err := a.categories.Ensure(ctx, c.Name, c.Kind, c.Desc)
			if err != nil {
				log.Fatalf("failed to ensure category %s: %v", c.Name, err)
			}
			ids[c.Name] = cat.ID
			fmt.Printf("Seeded ledger category: %s\n", c.Name)
		}

		sc := scope.ForOwner(seedOwner).WithActor("seeder")
		existing, err := a.templates.List(ctx, sc, recurring.ListFilter{Limit: 1})
		if err != nil {
			log.Fatalf("failed to list templates: %v", err)
		}
		if len(existing) > 0 {
			fmt.Println("Sample templates already exist for", seedOwner)
			return
		}

		samples := []recurring.CreateTemplateDTO{
			{
				Kind:         "expense",
				CategoryID:   strPtr(ids["lease"]),
				VehicleID:    strPtr("van-001"),
				Counterparty: strPtr("Northwind Leasing"),
				Amount:       decimal.RequireFromString("420.00"),
				Description:  "Van lease",
				Frequency:    string(recurring.FrequencyMonthly),
				DueDay:       intPtr(31),
				StartDate:    "2024-01-31",
			},
			{
				Kind:        "expense",
				CategoryID:  strPtr(ids["insurance"]),
				Amount:      decimal.RequireFromString("95.50"),
				Description: "Fleet insurance",
				Frequency:   string(recurring.FrequencyWeekly),
				StartDate:   "2024-01-01",
			},
			{
				Kind:        "income",
				CategoryID:  strPtr(ids["franchise_fee"]),
				Amount:      decimal.RequireFromString("1500.00"),
				Description: "Franchise fee",
				Frequency:   string(recurring.FrequencyBiweekly),
				StartDate:   "2024-01-05",
			},
		}
		for _, dto := range samples {
			t, err := a.templates.Create(ctx, sc, dto)
			if err != nil {
				log.Fatalf("failed to seed template %q: %v", dto.Description, err)
			}
			fmt.Printf("Seeded recurring template: %s (%s)\n", t.Description, t.ID)
		}
	},
}

func clearRecurringData(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM ledger_entries WHERE id IN (SELECT entry_id FROM recurring_generations)").Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&recurringDatamodel.GenerationRecord{}).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&recurringDatamodel.RecurringTemplate{}).Error
	})
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

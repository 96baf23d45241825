package postgres_test

import (
	"context"
	"time"

	"github.com/frahmantamala/fleet-recurring/internal"
	recurringDatamodel "github.com/frahmantamala/fleet-recurring/internal/core/datamodel/recurring"
	"github.com/frahmantamala/fleet-recurring/internal/database"
	"github.com/frahmantamala/fleet-recurring/internal/recurring"
	"github.com/frahmantamala/fleet-recurring/internal/recurring/postgres"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func newTemplateRow(owner string) *recurringDatamodel.RecurringTemplate {
	return &recurringDatamodel.RecurringTemplate{
		ID:          uuid.NewString(),
		OwnerID:     owner,
		Kind:        "expense",
		Amount:      decimal.NewFromInt(90),
		Description: "Insurance",
		Frequency:   "weekly",
		StartDate:   day(1),
		IsActive:    true,
	}
}

func newPair(templateID string, occurrence time.Time) (*recurringDatamodel.LedgerEntry, *recurringDatamodel.GenerationRecord) {
	entryID := uuid.NewString()
	return &recurringDatamodel.LedgerEntry{
			ID:             entryID,
			OwnerID:        "franchise-a",
			Kind:           "expense",
			Amount:         decimal.NewFromInt(90),
			OccurrenceDate: occurrence,
			Description:    "Insurance (recurring)",
		}, &recurringDatamodel.GenerationRecord{
			ID:             uuid.NewString(),
			TemplateID:     templateID,
			EntryID:        entryID,
			OccurrenceDate: occurrence,
		}
}

var _ = Describe("recurring repositories", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		templates *postgres.TemplateRepository
		history   *postgres.HistoryRepository
		ledger    *postgres.LedgerRepository
		tpl       *recurringDatamodel.RecurringTemplate
	)

	count := func(model interface{}) int64 {
		var n int64
		Expect(db.Model(model).Count(&n).Error).To(Succeed())
		return n
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = database.Open(internal.DatabaseConfig{Driver: database.DriverSQLite, Source: ":memory:"})
		Expect(err).NotTo(HaveOccurred())
		Expect(database.AutoMigrate(db)).To(Succeed())

		templates = postgres.NewTemplateRepository(db)
		history = postgres.NewHistoryRepository(db)
		ledger = postgres.NewLedgerRepository(db)

		tpl = newTemplateRow("franchise-a")
		Expect(templates.Create(ctx, tpl)).To(Succeed())
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("TemplateRepository", func() {
		It("returns not found for a missing id", func() {
			_, err := templates.GetByID(ctx, uuid.NewString())
			Expect(err).To(MatchError(internal.ErrTemplateNotFound))
		})

		It("filters by owner and state", func() {
			other := newTemplateRow("franchise-b")
			other.IsActive = false
			Expect(templates.Create(ctx, other)).To(Succeed())

			rows, err := templates.List(ctx, recurring.TemplateQuery{OwnerID: "franchise-b"})
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))

			active := true
			rows, err = templates.List(ctx, recurring.TemplateQuery{Active: &active})
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].ID).To(Equal(tpl.ID))
		})

		It("saves updates and toggles the state", func() {
			tpl.Description = "Fleet insurance"
			Expect(templates.Update(ctx, tpl)).To(Succeed())
			Expect(templates.SetActive(ctx, tpl.ID, false)).To(Succeed())

			row, err := templates.GetByID(ctx, tpl.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(row.Description).To(Equal("Fleet insurance"))
			Expect(row.IsActive).To(BeFalse())

			Expect(templates.SetActive(ctx, uuid.NewString(), true)).To(MatchError(internal.ErrTemplateNotFound))
		})

		It("deletes the history with cascade and keeps the entries", func() {
			entry, record := newPair(tpl.ID, day(1))
			Expect(ledger.Materialize(ctx, entry, record)).To(Succeed())

			Expect(templates.Delete(ctx, tpl.ID, true)).To(Succeed())
			Expect(count(&recurringDatamodel.RecurringTemplate{})).To(BeZero())
			Expect(count(&recurringDatamodel.GenerationRecord{})).To(BeZero())
			Expect(count(&recurringDatamodel.LedgerEntry{})).To(Equal(int64(1)))

			Expect(templates.Delete(ctx, tpl.ID, true)).To(MatchError(internal.ErrTemplateNotFound))
		})
	})

	Describe("LedgerRepository", func() {
		It("stores the entry and its record together", func() {
			entry, record := newPair(tpl.ID, day(1))
			Expect(ledger.Materialize(ctx, entry, record)).To(Succeed())

			Expect(count(&recurringDatamodel.LedgerEntry{})).To(Equal(int64(1)))
			Expect(count(&recurringDatamodel.GenerationRecord{})).To(Equal(int64(1)))
		})

		It("rejects a second record for the same occurrence and rolls back its entry", func() {
			entry, record := newPair(tpl.ID, day(1))
			Expect(ledger.Materialize(ctx, entry, record)).To(Succeed())

			dupEntry, dupRecord := newPair(tpl.ID, day(1))
			err := ledger.Materialize(ctx, dupEntry, dupRecord)
			Expect(err).To(MatchError(recurring.ErrAlreadyMaterialized))

			Expect(count(&recurringDatamodel.LedgerEntry{})).To(Equal(int64(1)))
			Expect(count(&recurringDatamodel.GenerationRecord{})).To(Equal(int64(1)))
		})

		It("deletes and updates by entry date", func() {
			for _, d := range []int{1, 8, 15, 22} {
				entry, record := newPair(tpl.ID, day(d))
				Expect(ledger.Materialize(ctx, entry, record)).To(Succeed())
			}

			from := day(15)
			updated, err := ledger.UpdateGenerated(ctx, tpl.ID, day(8), map[string]interface{}{"is_paid": true})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated).To(Equal(int64(3)))

			deleted, err := ledger.DeleteGenerated(ctx, tpl.ID, &from)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(int64(2)))

			deleted, err = ledger.DeleteGenerated(ctx, tpl.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(int64(2)))
			Expect(count(&recurringDatamodel.GenerationRecord{})).To(BeZero())
		})

		It("returns zero when the template has no entries", func() {
			deleted, err := ledger.DeleteGenerated(ctx, uuid.NewString(), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeZero())
		})
	})

	Describe("HistoryRepository", func() {
		BeforeEach(func() {
			for _, d := range []int{15, 1, 8} {
				entry, record := newPair(tpl.ID, day(d))
				Expect(ledger.Materialize(ctx, entry, record)).To(Succeed())
			}
		})

		It("lists records in date order", func() {
			rows, err := history.List(ctx, tpl.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(3))
			Expect(rows[0].OccurrenceDate.Equal(day(1))).To(BeTrue())
			Expect(rows[2].OccurrenceDate.Equal(day(15))).To(BeTrue())

			from := day(8)
			rows, err = history.List(ctx, tpl.ID, &from)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
		})

		It("finds the latest occurrence", func() {
			latest, err := history.Latest(ctx, tpl.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest.OccurrenceDate.Equal(day(15))).To(BeTrue())

			none, err := history.Latest(ctx, uuid.NewString())
			Expect(err).NotTo(HaveOccurred())
			Expect(none).To(BeNil())
		})

		It("returns occurrence dates within a range and counts records", func() {
			dates, err := history.OccurrenceDates(ctx, tpl.ID, day(2), day(15))
			Expect(err).NotTo(HaveOccurred())
			Expect(dates).To(HaveLen(2))

			n, err := history.Count(ctx, tpl.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(3)))
		})
	})
})
